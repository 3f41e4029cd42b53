// Package limits provides centralized size limits for the LSNP protocol.
// This ensures consistent validation across different components of the node.
package limits

import (
	"errors"
	"fmt"
)

const (
	// MaxDatagram is the receive buffer size and the hard cap for any
	// encoded message. LSNP never spans a message across datagrams.
	MaxDatagram = 65535

	// MaxAvatarBytes is the cap on decoded avatar bytes in a PROFILE
	// message. Larger avatars are dropped field-only; the profile itself
	// is still processed.
	MaxAvatarBytes = 20 * 1024

	// MaxChunkData is the cap on a decoded FILE_CHUNK payload. At this
	// size the base64 text plus header fields still fit MaxDatagram.
	MaxChunkData = 32 * 1024

	// MaxContentBytes is the cap on POST, DM, and GROUP_MESSAGE content.
	MaxContentBytes = 4096

	// MaxFileSize is the cap on the declared size of an offered file,
	// bounding how much chunk data one transfer may ever buffer.
	MaxFileSize = 64 * 1024 * 1024

	// MaxTotalChunks is the cap on an offer's declared chunk count:
	// MaxFileSize worth of minimum-sized 1 KiB chunks.
	MaxTotalChunks = MaxFileSize / 1024

	// MaxFileNameLength is the cap on offered file names.
	MaxFileNameLength = 255

	// MaxDisplayNameLength is the cap on peer display names.
	MaxDisplayNameLength = 64

	// MaxGroupMembers bounds the member list of a single group.
	MaxGroupMembers = 256
)

var (
	// ErrPayloadEmpty indicates an empty payload was provided
	ErrPayloadEmpty = errors.New("empty payload")

	// ErrPayloadTooLarge indicates a payload exceeds its maximum size
	ErrPayloadTooLarge = errors.New("payload too large")
)

// ValidateSize validates data against the specified maximum size.
// Returns an error with context including the actual and maximum sizes.
func ValidateSize(data []byte, maxSize int) error {
	if len(data) == 0 {
		return ErrPayloadEmpty
	}
	if len(data) > maxSize {
		return fmt.Errorf("%w: size %d exceeds limit %d", ErrPayloadTooLarge, len(data), maxSize)
	}
	return nil
}

// ValidateDatagram validates an encoded message against MaxDatagram.
func ValidateDatagram(data []byte) error {
	if len(data) == 0 {
		return ErrPayloadEmpty
	}
	if len(data) > MaxDatagram {
		return fmt.Errorf("%w: datagram size %d exceeds limit %d", ErrPayloadTooLarge, len(data), MaxDatagram)
	}
	return nil
}

// ValidateAvatar validates decoded avatar bytes against MaxAvatarBytes.
func ValidateAvatar(data []byte) error {
	if len(data) == 0 {
		return ErrPayloadEmpty
	}
	if len(data) > MaxAvatarBytes {
		return fmt.Errorf("%w: avatar size %d exceeds limit %d", ErrPayloadTooLarge, len(data), MaxAvatarBytes)
	}
	return nil
}

// ValidateChunkData validates a decoded file chunk payload against MaxChunkData.
func ValidateChunkData(data []byte) error {
	if len(data) == 0 {
		return ErrPayloadEmpty
	}
	if len(data) > MaxChunkData {
		return fmt.Errorf("%w: chunk size %d exceeds limit %d", ErrPayloadTooLarge, len(data), MaxChunkData)
	}
	return nil
}

// ValidateContent validates message content against MaxContentBytes.
func ValidateContent(content string) error {
	if len(content) == 0 {
		return ErrPayloadEmpty
	}
	if len(content) > MaxContentBytes {
		return fmt.Errorf("%w: content size %d exceeds limit %d", ErrPayloadTooLarge, len(content), MaxContentBytes)
	}
	return nil
}

// ValidateFileSize validates a declared transfer size against MaxFileSize.
func ValidateFileSize(size int64) error {
	if size <= 0 {
		return ErrPayloadEmpty
	}
	if size > MaxFileSize {
		return fmt.Errorf("%w: file size %d exceeds limit %d", ErrPayloadTooLarge, size, MaxFileSize)
	}
	return nil
}

// ValidateFileName validates an offered file name against MaxFileNameLength.
func ValidateFileName(name string) error {
	if len(name) == 0 {
		return ErrPayloadEmpty
	}
	if len(name) > MaxFileNameLength {
		return fmt.Errorf("%w: file name length %d exceeds limit %d", ErrPayloadTooLarge, len(name), MaxFileNameLength)
	}
	return nil
}
