package models

import (
	"cmp"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ValueType discriminates the closed set of primitive value types a Param
// can hold.
type ValueType string

const (
	ValueTypeUUID       ValueType = "uuid"
	ValueTypeString     ValueType = "string"
	ValueTypeStringList ValueType = "stringlist"
	ValueTypeInt        ValueType = "int"
	ValueTypeUint       ValueType = "uint"
	ValueTypeDouble     ValueType = "double"
	ValueTypeBool       ValueType = "bool"
	ValueTypeColor      ValueType = "color"
	ValueTypeTime       ValueType = "time"
	ValueTypeObject     ValueType = "object"
	ValueTypeVariant    ValueType = "variant"
)

var colorPattern = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

// Value is a tagged variant over the primitive types listed above.
// The zero Value has no type and represents "unset".
type Value struct {
	typ ValueType
	raw any
}

func UUIDValue(u uuid.UUID) Value    { return Value{typ: ValueTypeUUID, raw: u} }
func StringValue(s string) Value     { return Value{typ: ValueTypeString, raw: s} }
func StringListValue(l []string) Value {
	cp := make([]string, len(l))
	copy(cp, l)
	return Value{typ: ValueTypeStringList, raw: cp}
}
func IntValue(i int64) Value      { return Value{typ: ValueTypeInt, raw: i} }
func UintValue(u uint64) Value    { return Value{typ: ValueTypeUint, raw: u} }
func DoubleValue(f float64) Value { return Value{typ: ValueTypeDouble, raw: f} }
func BoolValue(b bool) Value      { return Value{typ: ValueTypeBool, raw: b} }
func TimeValue(t time.Time) Value { return Value{typ: ValueTypeTime, raw: t.UTC()} }

// ColorValue builds a color value from a "#RRGGBB" string.
func ColorValue(c string) (Value, error) {
	if !colorPattern.MatchString(c) {
		return Value{}, fmt.Errorf("invalid color %q: want #RRGGBB", c)
	}
	return Value{typ: ValueTypeColor, raw: strings.ToLower(c)}, nil
}

func ObjectValue(m map[string]any) Value { return Value{typ: ValueTypeObject, raw: m} }
func VariantValue(v any) Value           { return Value{typ: ValueTypeVariant, raw: v} }

// Type returns the discriminator tag. The zero Value reports an empty type.
func (v Value) Type() ValueType { return v.typ }

// IsZero reports whether the value is unset.
func (v Value) IsZero() bool { return v.typ == "" }

// Raw returns the untyped payload. Callers should prefer the typed accessors.
func (v Value) Raw() any { return v.raw }

func (v Value) UUID() (uuid.UUID, bool) {
	u, ok := v.raw.(uuid.UUID)
	return u, ok && v.typ == ValueTypeUUID
}

func (v Value) String() string {
	if v.IsZero() {
		return ""
	}
	return v.Encode()
}

func (v Value) Str() (string, bool) {
	s, ok := v.raw.(string)
	return s, ok && (v.typ == ValueTypeString || v.typ == ValueTypeColor)
}

func (v Value) StringList() ([]string, bool) {
	l, ok := v.raw.([]string)
	return l, ok && v.typ == ValueTypeStringList
}

func (v Value) Int() (int64, bool) {
	i, ok := v.raw.(int64)
	return i, ok && v.typ == ValueTypeInt
}

func (v Value) Uint() (uint64, bool) {
	u, ok := v.raw.(uint64)
	return u, ok && v.typ == ValueTypeUint
}

func (v Value) Double() (float64, bool) {
	f, ok := v.raw.(float64)
	return f, ok && v.typ == ValueTypeDouble
}

func (v Value) Bool() (bool, bool) {
	b, ok := v.raw.(bool)
	return b, ok && v.typ == ValueTypeBool
}

func (v Value) Time() (time.Time, bool) {
	t, ok := v.raw.(time.Time)
	return t, ok && v.typ == ValueTypeTime
}

func (v Value) Object() (map[string]any, bool) {
	m, ok := v.raw.(map[string]any)
	return m, ok && v.typ == ValueTypeObject
}

// ConvertTo attempts to convert the value to the target type. Identity always
// succeeds. Numeric widening Int->Uint (non-negative), Int/Uint->Double and
// exact narrowing back are allowed; String and UUID convert into each other
// by parse/format; anything converts to Variant; Variant converts to a
// concrete type only when its payload already matches.
func (v Value) ConvertTo(target ValueType) (Value, bool) {
	if v.typ == target {
		return v, true
	}
	switch target {
	case ValueTypeVariant:
		return VariantValue(v.raw), true
	case ValueTypeUUID:
		if s, ok := v.Str(); ok {
			if u, err := uuid.Parse(s); err == nil {
				return UUIDValue(u), true
			}
		}
	case ValueTypeString:
		switch v.typ {
		case ValueTypeUUID, ValueTypeColor:
			return StringValue(v.Encode()), true
		}
	case ValueTypeColor:
		if s, ok := v.Str(); ok {
			if c, err := ColorValue(s); err == nil {
				return c, true
			}
		}
	case ValueTypeInt:
		switch v.typ {
		case ValueTypeUint:
			u := v.raw.(uint64)
			if u <= 1<<63-1 {
				return IntValue(int64(u)), true
			}
		case ValueTypeDouble:
			f := v.raw.(float64)
			if f == float64(int64(f)) {
				return IntValue(int64(f)), true
			}
		}
	case ValueTypeUint:
		switch v.typ {
		case ValueTypeInt:
			i := v.raw.(int64)
			if i >= 0 {
				return UintValue(uint64(i)), true
			}
		case ValueTypeDouble:
			f := v.raw.(float64)
			if f >= 0 && f == float64(uint64(f)) {
				return UintValue(uint64(f)), true
			}
		}
	case ValueTypeDouble:
		switch v.typ {
		case ValueTypeInt:
			return DoubleValue(float64(v.raw.(int64))), true
		case ValueTypeUint:
			return DoubleValue(float64(v.raw.(uint64))), true
		}
	}
	if v.typ == ValueTypeVariant {
		// A variant payload may already be of the target's shape.
		probe := Value{typ: target, raw: v.raw}
		if probe.wellFormed() {
			return probe, true
		}
	}
	return Value{}, false
}

// Compare orders two values of comparable types. It returns -1, 0 or +1 and
// ok=false when the types have no defined ordering. Numeric types compare
// across tags; strings compare lexicographically; times chronologically.
// Integer pairs compare exactly; the float path is only taken when a double
// is involved, so large int64/uint64 values keep their full precision.
func (v Value) Compare(other Value) (int, bool) {
	if c, ok := compareIntegers(v, other); ok {
		return c, true
	}
	if vf, ok := v.asFloat(); ok {
		if of, ok2 := other.asFloat(); ok2 {
			return cmp.Compare(vf, of), true
		}
		return 0, false
	}
	switch v.typ {
	case ValueTypeString, ValueTypeColor:
		if os, ok := other.Str(); ok {
			return strings.Compare(v.raw.(string), os), true
		}
	case ValueTypeTime:
		if ot, ok := other.Time(); ok {
			return v.raw.(time.Time).Compare(ot), true
		}
	}
	return 0, false
}

// Equal reports deep equality of type and payload.
func (v Value) Equal(other Value) bool {
	if v.typ != other.typ {
		// Numeric values of different tags still compare equal by magnitude.
		if c, ok := v.Compare(other); ok {
			return c == 0
		}
		return false
	}
	switch v.typ {
	case ValueTypeStringList:
		a := v.raw.([]string)
		b := other.raw.([]string)
		if len(a) != len(b) {
			return false
		}
		for i := range a {
			if a[i] != b[i] {
				return false
			}
		}
		return true
	case ValueTypeTime:
		return v.raw.(time.Time).Equal(other.raw.(time.Time))
	case ValueTypeObject, ValueTypeVariant:
		return fmt.Sprint(v.raw) == fmt.Sprint(other.raw)
	default:
		return v.raw == other.raw
	}
}

// compareIntegers orders two values when both carry integer tags.
func compareIntegers(a, b Value) (int, bool) {
	switch {
	case a.typ == ValueTypeInt && b.typ == ValueTypeInt:
		return cmp.Compare(a.raw.(int64), b.raw.(int64)), true
	case a.typ == ValueTypeUint && b.typ == ValueTypeUint:
		return cmp.Compare(a.raw.(uint64), b.raw.(uint64)), true
	case a.typ == ValueTypeInt && b.typ == ValueTypeUint:
		i, u := a.raw.(int64), b.raw.(uint64)
		if i < 0 {
			return -1, true
		}
		return cmp.Compare(uint64(i), u), true
	case a.typ == ValueTypeUint && b.typ == ValueTypeInt:
		c, ok := compareIntegers(b, a)
		return -c, ok
	}
	return 0, false
}

func (v Value) asFloat() (float64, bool) {
	switch v.typ {
	case ValueTypeInt:
		return float64(v.raw.(int64)), true
	case ValueTypeUint:
		return float64(v.raw.(uint64)), true
	case ValueTypeDouble:
		return v.raw.(float64), true
	}
	return 0, false
}

func (v Value) wellFormed() bool {
	switch v.typ {
	case ValueTypeUUID:
		_, ok := v.raw.(uuid.UUID)
		return ok
	case ValueTypeString:
		_, ok := v.raw.(string)
		return ok
	case ValueTypeColor:
		s, ok := v.raw.(string)
		return ok && colorPattern.MatchString(s)
	case ValueTypeStringList:
		_, ok := v.raw.([]string)
		return ok
	case ValueTypeInt:
		_, ok := v.raw.(int64)
		return ok
	case ValueTypeUint:
		_, ok := v.raw.(uint64)
		return ok
	case ValueTypeDouble:
		_, ok := v.raw.(float64)
		return ok
	case ValueTypeBool:
		_, ok := v.raw.(bool)
		return ok
	case ValueTypeTime:
		_, ok := v.raw.(time.Time)
		return ok
	case ValueTypeObject:
		_, ok := v.raw.(map[string]any)
		return ok
	case ValueTypeVariant:
		return true
	}
	return false
}

// Encode renders the value as a lossless string for the settings store.
func (v Value) Encode() string {
	switch v.typ {
	case ValueTypeUUID:
		return v.raw.(uuid.UUID).String()
	case ValueTypeString, ValueTypeColor:
		return v.raw.(string)
	case ValueTypeStringList:
		b, _ := json.Marshal(v.raw)
		return string(b)
	case ValueTypeInt:
		return strconv.FormatInt(v.raw.(int64), 10)
	case ValueTypeUint:
		return strconv.FormatUint(v.raw.(uint64), 10)
	case ValueTypeDouble:
		return strconv.FormatFloat(v.raw.(float64), 'g', -1, 64)
	case ValueTypeBool:
		return strconv.FormatBool(v.raw.(bool))
	case ValueTypeTime:
		return v.raw.(time.Time).UTC().Format(time.RFC3339Nano)
	case ValueTypeObject, ValueTypeVariant:
		b, _ := json.Marshal(v.raw)
		return string(b)
	}
	return ""
}

// DecodeValue parses the settings-store string form back into a Value of the
// given type.
func DecodeValue(typ ValueType, s string) (Value, error) {
	switch typ {
	case ValueTypeUUID:
		u, err := uuid.Parse(s)
		if err != nil {
			return Value{}, fmt.Errorf("decode uuid: %w", err)
		}
		return UUIDValue(u), nil
	case ValueTypeString:
		return StringValue(s), nil
	case ValueTypeColor:
		return ColorValue(s)
	case ValueTypeStringList:
		var l []string
		if err := json.Unmarshal([]byte(s), &l); err != nil {
			return Value{}, fmt.Errorf("decode stringlist: %w", err)
		}
		return StringListValue(l), nil
	case ValueTypeInt:
		i, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return Value{}, fmt.Errorf("decode int: %w", err)
		}
		return IntValue(i), nil
	case ValueTypeUint:
		u, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return Value{}, fmt.Errorf("decode uint: %w", err)
		}
		return UintValue(u), nil
	case ValueTypeDouble:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return Value{}, fmt.Errorf("decode double: %w", err)
		}
		return DoubleValue(f), nil
	case ValueTypeBool:
		b, err := strconv.ParseBool(s)
		if err != nil {
			return Value{}, fmt.Errorf("decode bool: %w", err)
		}
		return BoolValue(b), nil
	case ValueTypeTime:
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return Value{}, fmt.Errorf("decode time: %w", err)
		}
		return TimeValue(t), nil
	case ValueTypeObject:
		var m map[string]any
		if err := json.Unmarshal([]byte(s), &m); err != nil {
			return Value{}, fmt.Errorf("decode object: %w", err)
		}
		return ObjectValue(m), nil
	case ValueTypeVariant:
		var a any
		if err := json.Unmarshal([]byte(s), &a); err != nil {
			return Value{}, fmt.Errorf("decode variant: %w", err)
		}
		return VariantValue(a), nil
	}
	return Value{}, fmt.Errorf("unknown value type %q", typ)
}

// valueJSON is the wire envelope; the discriminator is always preserved.
type valueJSON struct {
	Type  ValueType       `json:"type"`
	Value json.RawMessage `json:"value"`
}

// MarshalJSON encodes the value as {"type": ..., "value": ...}.
func (v Value) MarshalJSON() ([]byte, error) {
	if v.IsZero() {
		return []byte("null"), nil
	}
	var payload any
	switch v.typ {
	case ValueTypeUUID:
		payload = v.raw.(uuid.UUID).String()
	case ValueTypeTime:
		payload = v.raw.(time.Time).UTC().Format(time.RFC3339Nano)
	default:
		payload = v.raw
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(valueJSON{Type: v.typ, Value: raw})
}

// UnmarshalJSON decodes the {"type", "value"} envelope.
func (v *Value) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*v = Value{}
		return nil
	}
	var env valueJSON
	if err := json.Unmarshal(b, &env); err != nil {
		return err
	}
	switch env.Type {
	case ValueTypeUUID:
		var s string
		if err := json.Unmarshal(env.Value, &s); err != nil {
			return err
		}
		u, err := uuid.Parse(s)
		if err != nil {
			return err
		}
		*v = UUIDValue(u)
	case ValueTypeString:
		var s string
		if err := json.Unmarshal(env.Value, &s); err != nil {
			return err
		}
		*v = StringValue(s)
	case ValueTypeColor:
		var s string
		if err := json.Unmarshal(env.Value, &s); err != nil {
			return err
		}
		c, err := ColorValue(s)
		if err != nil {
			return err
		}
		*v = c
	case ValueTypeStringList:
		var l []string
		if err := json.Unmarshal(env.Value, &l); err != nil {
			return err
		}
		*v = StringListValue(l)
	case ValueTypeInt:
		var i int64
		if err := json.Unmarshal(env.Value, &i); err != nil {
			return err
		}
		*v = IntValue(i)
	case ValueTypeUint:
		var u uint64
		if err := json.Unmarshal(env.Value, &u); err != nil {
			return err
		}
		*v = UintValue(u)
	case ValueTypeDouble:
		var f float64
		if err := json.Unmarshal(env.Value, &f); err != nil {
			return err
		}
		*v = DoubleValue(f)
	case ValueTypeBool:
		var b2 bool
		if err := json.Unmarshal(env.Value, &b2); err != nil {
			return err
		}
		*v = BoolValue(b2)
	case ValueTypeTime:
		var s string
		if err := json.Unmarshal(env.Value, &s); err != nil {
			return err
		}
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return err
		}
		*v = TimeValue(t)
	case ValueTypeObject:
		var m map[string]any
		if err := json.Unmarshal(env.Value, &m); err != nil {
			return err
		}
		*v = ObjectValue(m)
	case ValueTypeVariant:
		var a any
		if err := json.Unmarshal(env.Value, &a); err != nil {
			return err
		}
		*v = VariantValue(a)
	default:
		return fmt.Errorf("unknown value type %q", env.Type)
	}
	return nil
}
