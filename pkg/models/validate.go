package models

import "fmt"

// VerifyParams checks params against a ParamType schema and returns the
// effective list downstream calls must use.
//
// Every supplied param must name a schema slot (unknown names are rejected),
// be convertible to the slot's primitive type, lie within min/max when
// bounds are set, and match the allowed-value set when one is declared.
// With requireAll, schema slots without a matching param either materialise
// their default into the effective list or fail as missing.
func VerifyParams(schema []ParamType, params ParamList, requireAll bool) (ParamList, *ParamError) {
	effective := params.Clone()

	for i, p := range effective {
		pt, ok := findParamType(schema, p.Name)
		if !ok {
			return nil, &ParamError{
				Code:   DeviceErrorInvalidParameter,
				Param:  p.Name,
				Reason: "not in schema",
			}
		}
		converted, err := verifyParam(pt, p.Value)
		if err != nil {
			return nil, err
		}
		effective[i].Value = converted
	}

	if !requireAll {
		return effective, nil
	}

	for _, pt := range schema {
		if effective.Has(pt.Name) {
			continue
		}
		if !pt.Default.IsZero() {
			effective = append(effective, Param{Name: pt.Name, Value: pt.Default})
			continue
		}
		return nil, &ParamError{
			Code:   DeviceErrorMissingParameter,
			Param:  pt.Name,
			Reason: "required and no default declared",
		}
	}
	return effective, nil
}

// verifyParam checks a single value against its schema slot and returns the
// value converted to the slot's primitive type.
func verifyParam(pt ParamType, v Value) (Value, *ParamError) {
	converted, ok := v.ConvertTo(pt.Type)
	if !ok {
		return Value{}, &ParamError{
			Code:   DeviceErrorInvalidParameter,
			Param:  pt.Name,
			Reason: fmt.Sprintf("value of type %s not convertible to %s", v.Type(), pt.Type),
		}
	}

	if !pt.Min.IsZero() {
		if c, ok := converted.Compare(pt.Min); ok && c < 0 {
			return Value{}, &ParamError{
				Code:   DeviceErrorInvalidParameter,
				Param:  pt.Name,
				Reason: fmt.Sprintf("value %s below minimum %s", converted.Encode(), pt.Min.Encode()),
			}
		}
	}
	if !pt.Max.IsZero() {
		if c, ok := converted.Compare(pt.Max); ok && c > 0 {
			return Value{}, &ParamError{
				Code:   DeviceErrorInvalidParameter,
				Param:  pt.Name,
				Reason: fmt.Sprintf("value %s above maximum %s", converted.Encode(), pt.Max.Encode()),
			}
		}
	}

	if len(pt.AllowedValues) > 0 {
		allowed := false
		for _, av := range pt.AllowedValues {
			if converted.Equal(av) {
				allowed = true
				break
			}
		}
		if !allowed {
			return Value{}, &ParamError{
				Code:   DeviceErrorInvalidParameter,
				Param:  pt.Name,
				Reason: fmt.Sprintf("value %s not in allowed set", converted.Encode()),
			}
		}
	}

	return converted, nil
}
