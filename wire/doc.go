// Package wire implements the LSNP message codec, converting between wire
// text and structured key-value records.
//
// # Wire Format
//
// An LSNP message is UTF-8 text: one "KEY: VALUE" line per field, terminated
// by a blank line. Keys are case-insensitive on the wire and normalized to
// upper case; insertion order is preserved, so a canonically spaced message
// round-trips byte-for-byte. Every message carries a TYPE field naming its
// handler. Unknown keys are kept, not dropped, for forward compatibility.
//
//	TYPE: DM
//	FROM: alice@192.168.1.10
//	TO: bob@192.168.1.11
//	CONTENT: hello
//	TIMESTAMP: 1756080000
//	MESSAGE_ID: f2a1...
//	TOKEN: alice@192.168.1.10|1756083600|chat
//
// # Decoding
//
// Decode is strict about format and silent about semantics: it fails with an
// error wrapping ErrMalformed when the terminating blank line is missing,
// when a line lacks the ':' separator, or when no TYPE field is present.
// Required-field checks are per message type and belong to the handlers, via
// Record.Require.
//
// # Payload Fields
//
// Binary payloads (avatars, file chunks) travel as base64 text next to a
// declared byte-length field. DecodePayload verifies the decoded length
// against the declaration.
package wire
