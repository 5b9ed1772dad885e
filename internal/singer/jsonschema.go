package singer

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Property is the subset of a JSON Schema node the target understands.
// Properties keeps the member order of the source document so that flat
// column order is stable across repeated SCHEMA messages.
type Property struct {
	Types      []string
	Format     string
	Properties []NamedProperty
	Items      *Property
	AnyOf      []*Property
	MaxLength  int
	MultipleOf *float64
	Minimum    *float64
	Maximum    *float64
	// Required lists the members that must be present in an object.
	Required []string
}

// NamedProperty is one member of an object Property.
type NamedProperty struct {
	Name     string
	Property *Property
}

// HasType reports whether t is one of the declared types.
func (p *Property) HasType(t string) bool {
	for _, x := range p.Types {
		if x == t {
			return true
		}
	}
	return false
}

// NonNullTypes returns the declared types other than "null".
func (p *Property) NonNullTypes() []string {
	out := make([]string, 0, len(p.Types))
	for _, x := range p.Types {
		if x != "null" {
			out = append(out, x)
		}
	}
	return out
}

// Nullable reports whether null is an accepted value. A property without a
// declared type accepts anything, including null.
func (p *Property) Nullable() bool {
	if len(p.Types) == 0 {
		return true
	}
	return p.HasType("null")
}

// IsRequired reports whether the member called name must be present.
func (p *Property) IsRequired(name string) bool {
	for _, r := range p.Required {
		if r == name {
			return true
		}
	}
	return false
}

// Lookup returns the member called name.
func (p *Property) Lookup(name string) (*Property, bool) {
	for _, np := range p.Properties {
		if np.Name == name {
			return np.Property, true
		}
	}
	return nil, false
}

type rawProperty struct {
	Type       json.RawMessage   `json:"type"`
	Format     string            `json:"format"`
	Properties json.RawMessage   `json:"properties"`
	Items      json.RawMessage   `json:"items"`
	AnyOf      []json.RawMessage `json:"anyOf"`
	MaxLength  *int              `json:"maxLength"`
	MultipleOf *float64          `json:"multipleOf"`
	Minimum    *float64          `json:"minimum"`
	Maximum    *float64          `json:"maximum"`
	Required   []string          `json:"required"`
}

// UnmarshalJSON decodes a JSON Schema node.
func (p *Property) UnmarshalJSON(b []byte) error {
	var raw rawProperty
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}

	*p = Property{
		Format:     raw.Format,
		MultipleOf: raw.MultipleOf,
		Minimum:    raw.Minimum,
		Maximum:    raw.Maximum,
		Required:   raw.Required,
	}
	if raw.MaxLength != nil {
		p.MaxLength = *raw.MaxLength
	}

	types, err := decodeTypes(raw.Type)
	if err != nil {
		return err
	}
	p.Types = types

	if len(raw.Properties) > 0 && !bytes.Equal(raw.Properties, []byte("null")) {
		members, err := orderedMembers(raw.Properties)
		if err != nil {
			return fmt.Errorf("properties: %w", err)
		}
		p.Properties = make([]NamedProperty, 0, len(members))
		for _, m := range members {
			child := new(Property)
			if err := child.UnmarshalJSON(m.raw); err != nil {
				return fmt.Errorf("properties.%s: %w", m.name, err)
			}
			p.Properties = append(p.Properties, NamedProperty{Name: m.name, Property: child})
		}
	}

	if len(raw.Items) > 0 && raw.Items[0] == '{' {
		p.Items = new(Property)
		if err := p.Items.UnmarshalJSON(raw.Items); err != nil {
			return fmt.Errorf("items: %w", err)
		}
	}

	for i, a := range raw.AnyOf {
		alt := new(Property)
		if err := alt.UnmarshalJSON(a); err != nil {
			return fmt.Errorf("anyOf[%d]: %w", i, err)
		}
		p.AnyOf = append(p.AnyOf, alt)
	}
	return nil
}

// decodeTypes accepts both "type": "string" and "type": ["null", "string"].
func decodeTypes(b json.RawMessage) ([]string, error) {
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil, nil
	}
	var one string
	if err := json.Unmarshal(b, &one); err == nil {
		return []string{one}, nil
	}
	var many []string
	if err := json.Unmarshal(b, &many); err != nil {
		return nil, fmt.Errorf("type: must be a string or an array of strings")
	}
	return many, nil
}

type member struct {
	name string
	raw  json.RawMessage
}

// orderedMembers returns the members of a JSON object in document order.
func orderedMembers(b []byte) ([]member, error) {
	dec := json.NewDecoder(bytes.NewReader(b))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("expected an object")
	}
	var out []member
	seen := map[string]bool{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		name, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("expected an object key")
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		if seen[name] {
			return nil, fmt.Errorf("duplicate key %q", name)
		}
		seen[name] = true
		out = append(out, member{name: name, raw: raw})
	}
	return out, nil
}
