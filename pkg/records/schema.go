package records

import (
	"fmt"
	"strings"
)

// LogicalKind is the declared (warehouse-independent) type of a flat column.
type LogicalKind uint8

const (
	LogicalString LogicalKind = iota
	LogicalInteger
	LogicalNumber
	LogicalBoolean
	LogicalDateTime
	LogicalDate
	// LogicalJSON marks arrays and property-less objects, stored as their
	// canonical JSON text.
	LogicalJSON
)

var logicalNames = [...]string{"string", "integer", "number", "boolean", "date-time", "date", "json"}

func (k LogicalKind) String() string {
	if int(k) < len(logicalNames) {
		return logicalNames[k]
	}
	return fmt.Sprintf("logical(%d)", uint8(k))
}

// LogicalType is a LogicalKind plus the JSON schema constraints that affect
// the physical column type.
type LogicalType struct {
	Kind       LogicalKind
	MaxLength  int      // strings only; 0 means unbounded
	MultipleOf *float64 // numbers only
	Minimum    *float64
	Maximum    *float64
}

// Column is one flat column of a stream Schema.
type Column struct {
	Name     string
	Type     LogicalType
	Nullable bool
	// Path is the nested property path the column was derived from.
	Path []string
	// Required means the field must be present whenever its parent object is.
	Required bool
}

// Schema is an ordered set of uniquely named columns.
type Schema struct {
	cols  []Column
	index map[string]int
}

// NewSchema builds a Schema, rejecting duplicate column names.
func NewSchema(cols ...Column) (*Schema, error) {
	s := &Schema{index: make(map[string]int, len(cols))}
	for _, c := range cols {
		if err := s.Add(c); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Add appends c, failing if a column with the same name already exists.
func (s *Schema) Add(c Column) error {
	if s.index == nil {
		s.index = map[string]int{}
	}
	if i, ok := s.index[c.Name]; ok {
		return fmt.Errorf("duplicate column %q (paths %s and %s)",
			c.Name, strings.Join(s.cols[i].Path, "."), strings.Join(c.Path, "."))
	}
	s.index[c.Name] = len(s.cols)
	s.cols = append(s.cols, c)
	return nil
}

// Replace overwrites the column with c.Name, or appends it when absent.
func (s *Schema) Replace(c Column) {
	if i, ok := s.index[c.Name]; ok {
		s.cols[i] = c
		return
	}
	_ = s.Add(c)
}

func (s *Schema) Len() int { return len(s.cols) }

// Columns returns the columns in declaration order. Callers must not modify
// the returned slice.
func (s *Schema) Columns() []Column { return s.cols }

// Lookup returns the column called name.
func (s *Schema) Lookup(name string) (Column, bool) {
	i, ok := s.index[name]
	if !ok {
		return Column{}, false
	}
	return s.cols[i], true
}

func (s *Schema) Has(name string) bool {
	_, ok := s.index[name]
	return ok
}

// Names returns the column names in declaration order.
func (s *Schema) Names() []string {
	out := make([]string, len(s.cols))
	for i, c := range s.cols {
		out[i] = c.Name
	}
	return out
}
