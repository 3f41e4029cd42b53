package wire

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrMissingField indicates a required field is absent from a record.
var ErrMissingField = errors.New("missing required field")

// Record is an ordered set of wire fields. Field order is preserved from
// insertion (or from the wire on decode) so a record re-encodes exactly as
// it arrived.
type Record struct {
	keys   []string
	values map[string]string
}

// NewRecord creates a record of the given message type. TYPE is always the
// first field on the wire.
func NewRecord(msgType string) *Record {
	r := &Record{values: make(map[string]string)}
	r.Set(FieldType, msgType)
	return r
}

// Type returns the record's TYPE field.
func (r *Record) Type() string {
	return r.values[FieldType]
}

// lineBreaks flattens embedded line breaks in a field value. The format is
// one field per line, so a value carrying "\n" would end the field early and
// a "\n\n" would terminate the whole record.
var lineBreaks = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ")

// Set stores a field value, normalizing the key to upper case and the value
// to a single line. Setting an existing key overwrites its value but keeps
// the original position. Returns the record for chaining.
func (r *Record) Set(key, value string) *Record {
	key = strings.ToUpper(strings.TrimSpace(key))
	if key == "" {
		return r
	}
	value = lineBreaks.Replace(value)
	if _, ok := r.values[key]; !ok {
		r.keys = append(r.keys, key)
	}
	r.values[key] = value
	return r
}

// SetInt stores an integer field value.
func (r *Record) SetInt(key string, value int64) *Record {
	return r.Set(key, strconv.FormatInt(value, 10))
}

// Get returns the value for key, or "" when absent.
func (r *Record) Get(key string) string {
	return r.values[strings.ToUpper(strings.TrimSpace(key))]
}

// Lookup returns the value for key and whether it is present.
func (r *Record) Lookup(key string) (string, bool) {
	v, ok := r.values[strings.ToUpper(strings.TrimSpace(key))]
	return v, ok
}

// Has reports whether key is present.
func (r *Record) Has(key string) bool {
	_, ok := r.Lookup(key)
	return ok
}

// Int parses the named field as a base-10 integer.
func (r *Record) Int(key string) (int64, error) {
	v, ok := r.Lookup(key)
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrMissingField, strings.ToUpper(strings.TrimSpace(key)))
	}
	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("field %s: %w", key, err)
	}
	return n, nil
}

// Keys returns the field names in wire order.
func (r *Record) Keys() []string {
	out := make([]string, len(r.keys))
	copy(out, r.keys)
	return out
}

// Len returns the number of fields.
func (r *Record) Len() int {
	return len(r.keys)
}

// Require verifies that every named field is present, returning an error
// that lists the missing ones. Handlers call this with their own type's
// required field set; the codec never does.
func (r *Record) Require(keys ...string) error {
	var missing []string
	for _, k := range keys {
		if !r.Has(k) {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s needs %s", ErrMissingField, r.Type(), strings.Join(missing, ", "))
	}
	return nil
}
