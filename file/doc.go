// Package file implements LSNP file transfers: the offer/chunk/ack state
// machine and the reassembly of chunked payloads received over UDP.
//
// # Overview
//
// The package provides two components:
//
//   - Transfer: one file transfer's state, chunk buffer, and integrity
//     checks
//   - Manager: the set of in-flight transfers keyed by (peer, file id),
//     auto-accept policy, and persistence of completed payloads
//
// # Transfer Lifecycle
//
// An incoming transfer is created Offered by a FILE_OFFER. Accepting it
// (automatically under the auto-accept policy, or explicitly) moves it to
// Receiving. FILE_CHUNK payloads may arrive in any order and are buffered
// by index; duplicates are ignored. When the declared chunk count is
// present, the reassembled size is verified against the offered size:
// a mismatch fails the transfer, a match completes it exactly once and the
// payload is written under the download directory with a de-duplicated
// name.
//
// An outgoing transfer is created when a local file is split into chunks
// for sending, and completes when the recipient's FILE_RECEIVED arrives.
//
// Transfers carry no timeout: a stalled transfer simply stays Receiving
// until the process exits. Nothing is retried; the protocol is best-effort.
package file
