// Package singer decodes the Singer.io message stream consumed by the target:
// SCHEMA, RECORD, STATE and ACTIVATE_VERSION messages, one JSON object per
// line, plus the subset of JSON Schema that SCHEMA messages carry.
package singer

import (
	json "github.com/goccy/go-json"
	"github.com/juju/errors"

	"target-snowflake/pkg/records"
)

const (
	// ErrInvalidMessage is returned for lines that are not a well-formed
	// Singer message.
	ErrInvalidMessage = errors.ConstError("invalid message")

	// ErrInvalidSchema is returned for SCHEMA messages the target cannot map
	// to a relational table.
	ErrInvalidSchema = errors.ConstError("invalid schema")
)

// Message is one decoded input line. The concrete type is one of
// *SchemaMessage, *RecordMessage, *StateMessage or *ActivateVersionMessage.
type Message interface {
	// Kind returns the Singer message type, e.g. "RECORD".
	Kind() string
}

// SchemaMessage declares (or redeclares) a stream's schema.
type SchemaMessage struct {
	Stream        string
	Schema        *Property
	KeyProperties []string
}

// RecordMessage carries one nested record for a stream.
type RecordMessage struct {
	Stream string
	Record records.Value
}

// StateMessage carries an opaque checkpoint.
type StateMessage struct {
	Value json.RawMessage
}

// ActivateVersionMessage is accepted and ignored by the target.
type ActivateVersionMessage struct {
	Stream  string
	Version int64
}

func (*SchemaMessage) Kind() string          { return "SCHEMA" }
func (*RecordMessage) Kind() string          { return "RECORD" }
func (*StateMessage) Kind() string           { return "STATE" }
func (*ActivateVersionMessage) Kind() string { return "ACTIVATE_VERSION" }
