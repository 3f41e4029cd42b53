package wire

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Terminator ends every encoded message: the blank line after the final
// field line.
const Terminator = "\n\n"

var (
	// ErrMalformed is the base error for every decode failure.
	ErrMalformed = errors.New("malformed record")

	// ErrMissingType indicates a record without a TYPE field.
	ErrMissingType = fmt.Errorf("%w: no TYPE field", ErrMalformed)

	// ErrMissingTerminator indicates input that ends before the
	// terminating blank line.
	ErrMissingTerminator = fmt.Errorf("%w: missing terminating blank line", ErrMalformed)
)

// Encode renders a record as wire text: one "KEY: VALUE" line per field in
// insertion order, then the terminating blank line. Defaulted fields
// (TIMESTAMP for timestamped types, TTL for posts) are filled in on the
// record first, so the caller sees exactly what was sent.
func Encode(r *Record) []byte {
	applyDefaults(r, time.Now().Unix())
	var b strings.Builder
	for _, k := range r.keys {
		b.WriteString(k)
		b.WriteString(": ")
		b.WriteString(r.values[k])
		b.WriteByte('\n')
	}
	b.WriteByte('\n')
	return []byte(b.String())
}

func applyDefaults(r *Record, now int64) {
	if timestampedTypes[r.Type()] && !r.Has(FieldTimestamp) {
		r.SetInt(FieldTimestamp, now)
	}
	if r.Type() == TypePost && !r.Has(FieldTTL) {
		r.Set(FieldTTL, strconv.Itoa(DefaultTTL))
	}
}

// Decode parses one wire message. It is strict about format: the terminating
// blank line must be present, every line needs the ':' separator, and a TYPE
// field is mandatory. Anything after the terminator is ignored; LSNP sends
// one message per datagram. \r\n sequences are normalized to \n first.
func Decode(data []byte) (*Record, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty input", ErrMalformed)
	}
	text := strings.ReplaceAll(string(data), "\r\n", "\n")
	idx := strings.Index(text, Terminator)
	if idx < 0 {
		return nil, ErrMissingTerminator
	}
	r := &Record{values: make(map[string]string)}
	for _, line := range strings.Split(text[:idx], "\n") {
		if line == "" {
			return nil, fmt.Errorf("%w: blank line inside record", ErrMalformed)
		}
		k, v, ok := strings.Cut(line, ":")
		if !ok {
			return nil, fmt.Errorf("%w: line %q lacks separator", ErrMalformed, line)
		}
		key := strings.ToUpper(strings.TrimSpace(k))
		if key == "" {
			return nil, fmt.Errorf("%w: line %q lacks key", ErrMalformed, line)
		}
		r.Set(key, strings.TrimLeft(v, " \t"))
	}
	if r.Get(FieldType) == "" {
		return nil, ErrMissingType
	}
	return r, nil
}

// NewMessageID returns a fresh MESSAGE_ID value.
func NewMessageID() string {
	return uuid.NewString()
}
