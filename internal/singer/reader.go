package singer

import (
	"bufio"
	"bytes"
	"fmt"
	"io"

	json "github.com/goccy/go-json"
	"github.com/juju/errors"

	"target-snowflake/pkg/records"
)

// maxPreview bounds how much of an offending line is echoed in errors.
const maxPreview = 200

// envelope is the union of all Singer message fields the target reads.
type envelope struct {
	Type          string          `json:"type"`
	Stream        *string         `json:"stream"`
	Schema        json.RawMessage `json:"schema"`
	KeyProperties json.RawMessage `json:"key_properties"`
	Record        json.RawMessage `json:"record"`
	Value         json.RawMessage `json:"value"`
	Version       int64           `json:"version"`
}

// Reader decodes newline-delimited Singer messages.
type Reader struct {
	r    *bufio.Reader
	line int
}

// NewReader wraps r. Lines may be arbitrarily long.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: bufio.NewReaderSize(r, 1<<16)}
}

// Line returns the 1-based number of the last line read.
func (d *Reader) Line() int { return d.line }

// Next reads the next message. Blank lines are skipped. io.EOF is returned
// once the input is exhausted.
func (d *Reader) Next() (Message, error) {
	for {
		b, err := d.r.ReadBytes('\n')
		if len(b) == 0 && err != nil {
			if err == io.EOF {
				return nil, io.EOF
			}
			return nil, errors.Annotate(err, "singer: read")
		}
		d.line++
		b = bytes.TrimSpace(b)
		if len(b) == 0 {
			if err == io.EOF {
				return nil, io.EOF
			}
			continue
		}
		return Decode(b)
	}
}

// Decode parses a single Singer message line.
func Decode(line []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(line, &env); err != nil {
		return nil, fmt.Errorf("%w: unable to parse %s: %v", ErrInvalidMessage, preview(line), err)
	}
	if env.Type == "" {
		return nil, invalid("line is missing required key 'type'", line)
	}

	switch env.Type {
	case "RECORD":
		if env.Stream == nil {
			return nil, invalid("line is missing required key 'stream'", line)
		}
		rec, err := decodeRecord(env.Record)
		if err != nil {
			return nil, fmt.Errorf("%w: record for stream %q: %v", ErrInvalidMessage, *env.Stream, err)
		}
		return &RecordMessage{Stream: *env.Stream, Record: rec}, nil

	case "SCHEMA":
		if env.Stream == nil {
			return nil, invalid("line is missing required key 'stream'", line)
		}
		return decodeSchema(*env.Stream, env, line)

	case "STATE":
		return &StateMessage{Value: append(json.RawMessage(nil), env.Value...)}, nil

	case "ACTIVATE_VERSION":
		var stream string
		if env.Stream != nil {
			stream = *env.Stream
		}
		return &ActivateVersionMessage{Stream: stream, Version: env.Version}, nil

	default:
		return nil, invalid("unknown message type "+env.Type, line)
	}
}

func decodeRecord(raw json.RawMessage) (records.Value, error) {
	if len(raw) == 0 {
		return records.Value{}, errors.New("missing required key 'record'")
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return records.Value{}, err
	}
	val, err := records.FromJSON(v)
	if err != nil {
		return records.Value{}, err
	}
	if val.Kind() != records.KindObject {
		return records.Value{}, errors.Errorf("record must be an object, got %s", val.Kind())
	}
	return val, nil
}

func decodeSchema(stream string, env envelope, line []byte) (Message, error) {
	if len(env.Schema) == 0 {
		return nil, invalid("line is missing required key 'schema'", line)
	}
	prop := new(Property)
	if err := prop.UnmarshalJSON(env.Schema); err != nil {
		return nil, fmt.Errorf("%w: stream %q: %v", ErrInvalidSchema, stream, err)
	}
	// At least one top-level property is needed to build a relational table.
	if len(prop.Properties) == 0 {
		return nil, fmt.Errorf("%w: stream %q: it should at least have one top level property in schema",
			ErrInvalidSchema, stream)
	}

	if len(env.KeyProperties) == 0 {
		return nil, invalid("key_properties field is required", line)
	}
	var keys []string
	if err := json.Unmarshal(env.KeyProperties, &keys); err != nil {
		return nil, invalid("key_properties must be an array of strings", line)
	}
	return &SchemaMessage{Stream: stream, Schema: prop, KeyProperties: keys}, nil
}

func invalid(msg string, line []byte) error {
	return fmt.Errorf("%w: %s: %s", ErrInvalidMessage, msg, preview(line))
}

func preview(line []byte) string {
	if len(line) > maxPreview {
		return string(line[:maxPreview]) + "..."
	}
	return string(line)
}
