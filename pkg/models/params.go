package models

// Param is a named value.
type Param struct {
	Name  string `json:"name"`
	Value Value  `json:"value"`
}

// ParamList is an order-preserving mapping from unique names to values.
// Name lookup is what matters; ordering is kept only for stable output.
type ParamList []Param

// Get returns the value for name.
func (l ParamList) Get(name string) (Value, bool) {
	for _, p := range l {
		if p.Name == name {
			return p.Value, true
		}
	}
	return Value{}, false
}

// Has reports whether a param with the given name is present.
func (l ParamList) Has(name string) bool {
	_, ok := l.Get(name)
	return ok
}

// Set replaces the value for name, or appends a new param.
func (l ParamList) Set(name string, v Value) ParamList {
	for i, p := range l {
		if p.Name == name {
			l[i].Value = v
			return l
		}
	}
	return append(l, Param{Name: name, Value: v})
}

// Clone returns a shallow copy the caller may extend without aliasing.
func (l ParamList) Clone() ParamList {
	cp := make(ParamList, len(l))
	copy(cp, l)
	return cp
}

// Equal reports whether both lists hold the same name/value pairs,
// irrespective of order.
func (l ParamList) Equal(other ParamList) bool {
	if len(l) != len(other) {
		return false
	}
	for _, p := range l {
		ov, ok := other.Get(p.Name)
		if !ok || !p.Value.Equal(ov) {
			return false
		}
	}
	return true
}

// ParamType is a schema slot describing one parameter: its name, primitive
// type and optional bounds, allowed values and default. It is used for
// device params, discovery params, action params and plugin configuration.
type ParamType struct {
	ID            ParamTypeID `json:"id"`
	Name          string      `json:"name"`
	Type          ValueType   `json:"type"`
	Min           Value       `json:"min,omitzero"`
	Max           Value       `json:"max,omitzero"`
	AllowedValues []Value     `json:"allowedValues,omitempty"`
	Default       Value       `json:"default,omitzero"`
}

func findParamType(schema []ParamType, name string) (ParamType, bool) {
	for _, pt := range schema {
		if pt.Name == name {
			return pt, true
		}
	}
	return ParamType{}, false
}
