// Package limits provides centralized size constants and validation functions
// for the LSNP wire protocol. This package ensures consistent size enforcement
// across all components of the node.
//
// # Size Hierarchy
//
// The package defines the size limits that bound each stage of message
// processing:
//
//   - MaxDatagram (65535 bytes): The receive buffer size and the absolute
//     upper bound for any encoded message. LSNP messages must fit a single
//     UDP datagram; nothing is fragmented at the protocol layer.
//
//   - MaxAvatarBytes (20480 bytes): The cap on decoded avatar payloads
//     attached to PROFILE messages. Oversized avatars are discarded while the
//     rest of the profile is still applied.
//
//   - MaxChunkData (32768 bytes): The cap on a decoded FILE_CHUNK payload.
//     Base64 expansion of a payload this size still leaves headroom for the
//     chunk's header fields inside one datagram.
//
//   - MaxContentBytes (4096 bytes): The cap on POST, DM, and GROUP_MESSAGE
//     content.
//
//   - MaxFileSize (64 MiB): The cap on the declared size of an offered file
//     transfer, bounding the chunk buffer a single offer may commit the node
//     to. MaxTotalChunks bounds the declared chunk count of the same offer.
//
// # Validation Functions
//
// Each validation function checks for empty input and size limit violations:
//
//	if err := limits.ValidateChunkData(data); err != nil {
//	    // ErrPayloadEmpty or ErrPayloadTooLarge
//	}
//
// For custom limits, use the generic ValidateSize function.
package limits
