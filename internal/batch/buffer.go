// Package batch buffers flattened records per stream and writes them to the
// warehouse in one append or upsert per flush.
package batch

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/juju/errors"
	"github.com/zeebo/xxh3"

	"target-snowflake/pkg/records"
)

// ErrMissingKeyProperty is the kind of every MissingKeyPropertyError.
const ErrMissingKeyProperty = errors.ConstError("missing key property")

// MissingKeyPropertyError reports an upsert-mode record without a value for
// one of the key columns.
type MissingKeyPropertyError struct {
	Stream string
	Column string
	Record records.Record
}

func (e *MissingKeyPropertyError) Error() string {
	return fmt.Sprintf("stream %q: %s %q in record %v", e.Stream, ErrMissingKeyProperty, e.Column, e.Record)
}

func (e *MissingKeyPropertyError) Unwrap() error { return ErrMissingKeyProperty }

// Buffer holds the records of one stream awaiting a flush. With key columns
// it keeps one record per composite key: a later record replaces the earlier
// one in place, so rows keep first-seen order. Without key columns every
// record is kept.
//
// A Buffer is owned by one goroutine at a time.
type Buffer struct {
	stream string
	keys   []string
	ttl    time.Duration

	rows    []records.Record
	byKey   map[uint64][]int // key hash -> row positions
	expires time.Time        // zero when disarmed
}

// NewBuffer returns an empty Buffer. A zero ttl disables expiry.
func NewBuffer(stream string, keys []string, ttl time.Duration) *Buffer {
	b := &Buffer{stream: stream, keys: append([]string(nil), keys...), ttl: ttl}
	if len(keys) > 0 {
		b.byKey = map[uint64][]int{}
	}
	return b
}

func (b *Buffer) Stream() string { return b.stream }
func (b *Buffer) Keys() []string { return b.keys }
func (b *Buffer) Len() int       { return len(b.rows) }
func (b *Buffer) IsUpsert() bool { return len(b.keys) > 0 }
func (b *Buffer) Empty() bool    { return len(b.rows) == 0 }

// Records returns the buffered records in order. Callers must not modify
// the returned slice.
func (b *Buffer) Records() []records.Record { return b.rows }

// Append buffers rec and re-arms the expiry relative to now.
func (b *Buffer) Append(rec records.Record, now time.Time) error {
	if !b.IsUpsert() {
		b.rows = append(b.rows, rec)
		b.arm(now)
		return nil
	}

	for _, k := range b.keys {
		if v, ok := rec[k]; !ok || v == nil {
			return &MissingKeyPropertyError{Stream: b.stream, Column: k, Record: rec}
		}
	}
	h := keyHash(rec, b.keys)
	for _, i := range b.byKey[h] {
		if sameKey(b.rows[i], rec, b.keys) {
			b.rows[i] = rec
			b.arm(now)
			return nil
		}
	}
	b.byKey[h] = append(b.byKey[h], len(b.rows))
	b.rows = append(b.rows, rec)
	b.arm(now)
	return nil
}

// Reset empties the buffer and disarms the expiry.
func (b *Buffer) Reset() {
	b.rows = nil
	if b.byKey != nil {
		b.byKey = map[uint64][]int{}
	}
	b.expires = time.Time{}
}

// Expired reports whether the buffer holds records whose expiry has passed.
func (b *Buffer) Expired(now time.Time) bool {
	return !b.expires.IsZero() && len(b.rows) > 0 && !now.Before(b.expires)
}

// ExpiresAt returns when the buffer expires, or the zero time when disarmed.
func (b *Buffer) ExpiresAt() time.Time { return b.expires }

func (b *Buffer) arm(now time.Time) {
	if b.ttl > 0 {
		b.expires = now.Add(b.ttl)
	}
}

func sameKey(a, b records.Record, keys []string) bool {
	for _, k := range keys {
		if a[k] != b[k] {
			return false
		}
	}
	return true
}

// keyHash hashes the typed key values of rec. Equal hashes are confirmed with
// sameKey, so collisions only cost a comparison.
func keyHash(rec records.Record, keys []string) uint64 {
	buf := make([]byte, 0, 16*len(keys))
	for _, k := range keys {
		switch v := rec[k].(type) {
		case int64:
			buf = append(buf, 'i')
			buf = binary.LittleEndian.AppendUint64(buf, uint64(v))
		case float64:
			buf = append(buf, 'f')
			buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(v))
		case bool:
			buf = append(buf, 'b')
			if v {
				buf = append(buf, 1)
			} else {
				buf = append(buf, 0)
			}
		case string:
			buf = append(buf, 's')
			buf = binary.LittleEndian.AppendUint64(buf, uint64(len(v)))
			buf = append(buf, v...)
		case time.Time:
			buf = append(buf, 't')
			buf = binary.LittleEndian.AppendUint64(buf, uint64(v.UnixNano()))
		default:
			buf = append(buf, fmt.Sprintf("?%T:%v", v, v)...)
		}
	}
	return xxh3.Hash(buf)
}
