// Package records holds the data model shared by the loader: the tagged
// Value variant used for decoded Singer payloads, the flat column Schema
// derived from a stream's JSON schema, and the flat Record rows that are
// buffered until a flush.
package records

import (
	"bytes"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"
)

// Kind enumerates the variants a Value can hold.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindNumber
	KindText
	KindObject
	KindArray
)

var kindNames = [...]string{"null", "boolean", "integer", "number", "string", "object", "array"}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// Field is a single member of an object Value.
type Field struct {
	Name  string
	Value Value
}

// Value is a decoded JSON value. The zero Value is null.
type Value struct {
	kind   Kind
	b      bool
	i      int64
	f      float64
	s      string
	// digits keeps the exact text of an integer Number too large for int64.
	digits string
	fields []Field
	items  []Value
}

func Null() Value             { return Value{} }
func Bool(b bool) Value       { return Value{kind: KindBool, b: b} }
func Int(i int64) Value       { return Value{kind: KindInt, i: i} }
func Number(f float64) Value  { return Value{kind: KindNumber, f: f} }
func Text(s string) Value     { return Value{kind: KindText, s: s} }
func Array(v ...Value) Value  { return Value{kind: KindArray, items: v} }
func Object(f ...Field) Value { return Value{kind: KindObject, fields: f} }

func (v Value) Kind() Kind       { return v.kind }
func (v Value) IsNull() bool     { return v.kind == KindNull }
func (v Value) Bool() bool       { return v.b }
func (v Value) Int() int64       { return v.i }
func (v Value) Text() string     { return v.s }
func (v Value) Fields() []Field  { return v.fields }
func (v Value) Items() []Value   { return v.items }
func (v Value) NumFields() int   { return len(v.fields) }

// IntegerText returns the exact decimal text of an integral Number that does
// not fit in int64.
func (v Value) IntegerText() (string, bool) {
	return v.digits, v.kind == KindNumber && v.digits != ""
}

// Float returns the numeric value of an Int or Number.
func (v Value) Float() float64 {
	if v.kind == KindInt {
		return float64(v.i)
	}
	return v.f
}

// Field returns the member called name of an object Value.
func (v Value) Field(name string) (Value, bool) {
	for _, f := range v.fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return Value{}, false
}

// jsonNumber is satisfied by both encoding/json.Number and go-json's Number.
type jsonNumber interface {
	String() string
	Int64() (int64, error)
	Float64() (float64, error)
}

// FromJSON converts the output of a JSON decoder running with UseNumber into
// a Value. Object members are ordered by name so that conversion is
// deterministic.
func FromJSON(in any) (Value, error) {
	switch t := in.(type) {
	case nil:
		return Null(), nil
	case bool:
		return Bool(t), nil
	case string:
		return Text(t), nil
	case jsonNumber:
		return numberValue(t)
	case float64:
		if t == math.Trunc(t) && math.Abs(t) < 1<<53 {
			return Int(int64(t)), nil
		}
		return Number(t), nil
	case int:
		return Int(int64(t)), nil
	case int64:
		return Int(t), nil
	case map[string]any:
		names := make([]string, 0, len(t))
		for k := range t {
			names = append(names, k)
		}
		sort.Strings(names)
		fields := make([]Field, 0, len(names))
		for _, k := range names {
			fv, err := FromJSON(t[k])
			if err != nil {
				return Value{}, fmt.Errorf("%s: %w", k, err)
			}
			fields = append(fields, Field{Name: k, Value: fv})
		}
		return Object(fields...), nil
	case []any:
		items := make([]Value, 0, len(t))
		for i, e := range t {
			ev, err := FromJSON(e)
			if err != nil {
				return Value{}, fmt.Errorf("[%d]: %w", i, err)
			}
			items = append(items, ev)
		}
		return Array(items...), nil
	default:
		return Value{}, fmt.Errorf("records: unsupported JSON value of type %T", in)
	}
}

func numberValue(n jsonNumber) (Value, error) {
	s := n.String()
	if !strings.ContainsAny(s, ".eE") {
		if i, err := n.Int64(); err == nil {
			return Int(i), nil
		}
	}
	f, err := n.Float64()
	if err != nil {
		return Value{}, fmt.Errorf("records: invalid number %q: %w", s, err)
	}
	v := Number(f)
	if !strings.ContainsAny(s, ".eE") {
		v.digits = strings.TrimPrefix(s, "+")
	}
	return v, nil
}

// CanonicalJSON renders v as compact JSON with object members sorted by
// name. Equal values always render to identical text.
func (v Value) CanonicalJSON() (string, error) {
	var buf bytes.Buffer
	if err := v.writeJSON(&buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// MarshalJSON implements json.Marshaler using the canonical form.
func (v Value) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := v.writeJSON(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (v Value) writeJSON(buf *bytes.Buffer) error {
	switch v.kind {
	case KindNull:
		buf.WriteString("null")
	case KindBool:
		buf.WriteString(strconv.FormatBool(v.b))
	case KindInt:
		buf.WriteString(strconv.FormatInt(v.i, 10))
	case KindNumber:
		if v.digits != "" {
			buf.WriteString(v.digits)
			break
		}
		if math.IsNaN(v.f) || math.IsInf(v.f, 0) {
			return fmt.Errorf("records: cannot encode %v as JSON", v.f)
		}
		buf.WriteString(strconv.FormatFloat(v.f, 'g', -1, 64))
	case KindText:
		b, err := json.Marshal(v.s)
		if err != nil {
			return err
		}
		buf.Write(b)
	case KindArray:
		buf.WriteByte('[')
		for i, it := range v.items {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := it.writeJSON(buf); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case KindObject:
		fields := append([]Field(nil), v.fields...)
		sort.SliceStable(fields, func(i, j int) bool { return fields[i].Name < fields[j].Name })
		buf.WriteByte('{')
		for i, f := range fields {
			if i > 0 {
				buf.WriteByte(',')
			}
			k, err := json.Marshal(f.Name)
			if err != nil {
				return err
			}
			buf.Write(k)
			buf.WriteByte(':')
			if err := f.Value.writeJSON(buf); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	}
	return nil
}
