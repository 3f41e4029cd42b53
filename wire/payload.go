package wire

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrSizeMismatch indicates a decoded payload whose length differs from the
// declared byte-length field carried alongside it.
var ErrSizeMismatch = errors.New("payload size mismatch")

// EncodePayload renders binary data as a base64 field value.
func EncodePayload(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// DecodePayload decodes a base64 field value and verifies the result
// against the declared byte length.
func DecodePayload(encoded, declaredSize string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
	if err != nil {
		return nil, fmt.Errorf("%w: bad base64: %v", ErrMalformed, err)
	}
	want, err := strconv.Atoi(strings.TrimSpace(declaredSize))
	if err != nil {
		return nil, fmt.Errorf("%w: bad declared size %q", ErrMalformed, declaredSize)
	}
	if len(data) != want {
		return nil, fmt.Errorf("%w: got %d bytes, declared %d", ErrSizeMismatch, len(data), want)
	}
	return data, nil
}
