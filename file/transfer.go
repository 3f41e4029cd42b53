package file

import (
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/lsnp/limits"
)

// ErrNotAccepted indicates a chunk for a transfer still waiting to be accepted.
var ErrNotAccepted = errors.New("transfer not accepted")

// ErrFinished indicates an operation on a completed or failed transfer.
var ErrFinished = errors.New("transfer already finished")

// ErrChunkIndex indicates a chunk index outside the declared range.
var ErrChunkIndex = errors.New("chunk index out of range")

// ErrSizeMismatch indicates a reassembled payload that does not match the
// offered file size.
var ErrSizeMismatch = errors.New("reassembled size does not match offer")

// TransferDirection indicates whether a transfer is incoming or outgoing.
type TransferDirection uint8

const (
	// TransferIncoming represents a file being received.
	TransferIncoming TransferDirection = iota
	// TransferOutgoing represents a file being sent.
	TransferOutgoing
)

// TransferState represents the current state of a file transfer.
type TransferState uint8

const (
	// TransferOffered indicates the offer was seen but chunks are not
	// collected yet.
	TransferOffered TransferState = iota
	// TransferReceiving indicates chunks are being collected.
	TransferReceiving
	// TransferCompleted indicates the payload reassembled and verified.
	TransferCompleted
	// TransferFailed indicates an integrity failure; nothing is retried.
	TransferFailed
)

// String returns a human-readable state name.
func (s TransferState) String() string {
	switch s {
	case TransferOffered:
		return "offered"
	case TransferReceiving:
		return "receiving"
	case TransferCompleted:
		return "completed"
	case TransferFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ChunkSize is the raw byte size of each outgoing file chunk.
const ChunkSize = 1024

// Transfer represents one file transfer and its chunk buffer.
type Transfer struct {
	Peer        string
	FileID      string
	Direction   TransferDirection
	FileName    string
	FileType    string
	Description string
	FileSize    int64
	TotalChunks int
	Created     int64

	mu        sync.Mutex
	state     TransferState
	chunks    map[int][]byte
	bytesHeld int64
	assembled []byte
	failure   error
}

func newTransfer(peer, fileID string, direction TransferDirection) *Transfer {
	return &Transfer{
		Peer:      peer,
		FileID:    fileID,
		Direction: direction,
		state:     TransferOffered,
		chunks:    make(map[int][]byte),
	}
}

// State returns the transfer's current state.
func (t *Transfer) State() TransferState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Err returns the failure that moved the transfer to TransferFailed, if any.
func (t *Transfer) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.failure
}

// Received returns how many distinct chunks are buffered.
func (t *Transfer) Received() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.chunks)
}

// Progress returns the share of declared bytes currently held, in percent.
func (t *Transfer) Progress() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.FileSize == 0 {
		return 0.0
	}
	return float64(t.bytesHeld) / float64(t.FileSize) * 100.0
}

// Accept moves an offered incoming transfer to Receiving.
func (t *Transfer) Accept() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch t.state {
	case TransferOffered:
		t.state = TransferReceiving
		logrus.WithFields(logrus.Fields{
			"function": "Accept",
			"peer":     t.Peer,
			"file_id":  t.FileID,
			"name":     t.FileName,
		}).Info("File transfer accepted")
		return nil
	case TransferReceiving:
		return nil
	default:
		return fmt.Errorf("%w: state %s", ErrFinished, t.state)
	}
}

// AddChunk buffers one decoded chunk by index. Duplicates are ignored.
// It returns true when the final chunk completed the transfer; integrity
// failures move the transfer to TransferFailed and are returned.
func (t *Transfer) AddChunk(index int, data []byte) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch t.state {
	case TransferOffered:
		return false, ErrNotAccepted
	case TransferCompleted, TransferFailed:
		return false, fmt.Errorf("%w: state %s", ErrFinished, t.state)
	}

	if err := limits.ValidateChunkData(data); err != nil {
		t.failLocked(err)
		return false, err
	}
	if index < 0 || index >= t.TotalChunks {
		err := fmt.Errorf("%w: index %d of %d", ErrChunkIndex, index, t.TotalChunks)
		t.failLocked(err)
		return false, err
	}
	if _, dup := t.chunks[index]; dup {
		logrus.WithFields(logrus.Fields{
			"function": "AddChunk",
			"peer":     t.Peer,
			"file_id":  t.FileID,
			"index":    index,
		}).Debug("Duplicate chunk ignored")
		return false, nil
	}

	t.chunks[index] = append([]byte(nil), data...)
	t.bytesHeld += int64(len(data))

	logrus.WithFields(logrus.Fields{
		"function": "AddChunk",
		"peer":     t.Peer,
		"file_id":  t.FileID,
		"index":    index,
		"held":     len(t.chunks),
		"total":    t.TotalChunks,
	}).Debug("Chunk buffered")

	if len(t.chunks) < t.TotalChunks {
		return false, nil
	}
	return true, t.assembleLocked()
}

// assembleLocked concatenates the buffered chunks in index order and
// verifies the result against the offered size.
func (t *Transfer) assembleLocked() error {
	if t.bytesHeld != t.FileSize {
		err := fmt.Errorf("%w: got %d bytes, offered %d", ErrSizeMismatch, t.bytesHeld, t.FileSize)
		t.failLocked(err)
		return err
	}
	out := make([]byte, 0, t.bytesHeld)
	for i := 0; i < t.TotalChunks; i++ {
		out = append(out, t.chunks[i]...)
	}
	t.assembled = out
	t.chunks = nil
	t.state = TransferCompleted

	logrus.WithFields(logrus.Fields{
		"function": "assemble",
		"peer":     t.Peer,
		"file_id":  t.FileID,
		"name":     t.FileName,
		"bytes":    len(out),
	}).Info("File transfer reassembled")
	return nil
}

// fail marks the transfer failed outside the chunk path, for persistence
// errors after assembly.
func (t *Transfer) fail(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == TransferFailed {
		return
	}
	t.failLocked(err)
}

func (t *Transfer) failLocked(err error) {
	t.state = TransferFailed
	t.failure = err
	t.chunks = nil

	logrus.WithFields(logrus.Fields{
		"function": "fail",
		"peer":     t.Peer,
		"file_id":  t.FileID,
		"name":     t.FileName,
		"error":    err.Error(),
	}).Warn("File transfer failed")
}

// Assembled returns the verified payload of a completed incoming transfer.
func (t *Transfer) Assembled() ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state != TransferCompleted {
		return nil, fmt.Errorf("transfer is %s, not completed", t.state)
	}
	return t.assembled, nil
}

// markCompleted finishes an outgoing transfer once the recipient acked it.
func (t *Transfer) markCompleted() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state == TransferCompleted || t.state == TransferFailed {
		return false
	}
	t.state = TransferCompleted
	return true
}

// Split cuts data into ChunkSize pieces for sending. The final chunk may be
// shorter. Empty input yields no chunks; empty files are rejected before an
// offer goes out.
func Split(data []byte) [][]byte {
	if len(data) == 0 {
		return nil
	}
	chunks := make([][]byte, 0, CountChunks(int64(len(data))))
	for len(data) > 0 {
		n := ChunkSize
		if len(data) < n {
			n = len(data)
		}
		chunks = append(chunks, data[:n])
		data = data[n:]
	}
	return chunks
}

// CountChunks returns how many ChunkSize chunks a payload of size bytes
// splits into: ceil(size/ChunkSize).
func CountChunks(size int64) int {
	if size <= 0 {
		return 0
	}
	return int((size + ChunkSize - 1) / ChunkSize)
}
