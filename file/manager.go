package file

import (
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/lsnp/limits"
)

// ErrUnknownTransfer indicates a chunk or ack for a transfer never offered.
var ErrUnknownTransfer = errors.New("unknown transfer")

// ErrEmptyFile indicates an attempt to offer a file with no content.
var ErrEmptyFile = errors.New("file is empty")

// ErrBadOffer indicates an offer whose declared size or chunk count is
// unusable.
var ErrBadOffer = errors.New("unusable offer")

// transferKey identifies a transfer by remote peer and file id.
type transferKey struct {
	peer   string
	fileID string
}

// Manager tracks the in-flight transfers, applies the auto-accept policy,
// and persists completed payloads under the download directory.
type Manager struct {
	mu          sync.RWMutex
	transfers   map[transferKey]*Transfer
	downloadDir string
	autoAccept  bool

	progressCallback func(t *Transfer)
	completeCallback func(t *Transfer, path string)
	failedCallback   func(t *Transfer, err error)
}

// NewManager creates a transfer manager writing completed files to
// downloadDir.
func NewManager(downloadDir string, autoAccept bool) *Manager {
	logrus.WithFields(logrus.Fields{
		"function":     "NewManager",
		"download_dir": downloadDir,
		"auto_accept":  autoAccept,
	}).Info("Creating file transfer manager")

	return &Manager{
		transfers:   make(map[transferKey]*Transfer),
		downloadDir: downloadDir,
		autoAccept:  autoAccept,
	}
}

// OnProgress sets a callback invoked after each buffered chunk.
func (m *Manager) OnProgress(callback func(t *Transfer)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.progressCallback = callback
}

// OnComplete sets a callback invoked when a transfer completes. For
// incoming transfers path is the persisted file; for outgoing ones it is
// empty.
func (m *Manager) OnComplete(callback func(t *Transfer, path string)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completeCallback = callback
}

// OnFailed sets a callback invoked when a transfer fails.
func (m *Manager) OnFailed(callback func(t *Transfer, err error)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failedCallback = callback
}

func (m *Manager) callbacks() (func(t *Transfer), func(t *Transfer, path string), func(t *Transfer, err error)) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.progressCallback, m.completeCallback, m.failedCallback
}

// Offer registers an incoming FILE_OFFER. A repeated offer for the same
// (peer, file id) returns the existing transfer with created false, so
// duplicated datagrams have no side effects.
func (m *Manager) Offer(peer, fileID, name, fileType, description string, size int64, totalChunks int, created int64) (*Transfer, bool, error) {
	if size <= 0 || totalChunks <= 0 {
		return nil, false, fmt.Errorf("%w: size %d, chunks %d", ErrBadOffer, size, totalChunks)
	}
	if err := limits.ValidateFileSize(size); err != nil {
		return nil, false, err
	}
	if totalChunks > limits.MaxTotalChunks {
		return nil, false, fmt.Errorf("%w: %d chunks exceeds limit %d", ErrBadOffer, totalChunks, limits.MaxTotalChunks)
	}
	if err := limits.ValidateFileName(name); err != nil {
		return nil, false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	k := transferKey{peer: peer, fileID: fileID}
	if t, ok := m.transfers[k]; ok {
		return t, false, nil
	}

	t := newTransfer(peer, fileID, TransferIncoming)
	t.FileName = name
	t.FileType = fileType
	t.Description = description
	t.FileSize = size
	t.TotalChunks = totalChunks
	t.Created = created
	m.transfers[k] = t

	logrus.WithFields(logrus.Fields{
		"function":     "Offer",
		"peer":         peer,
		"file_id":      fileID,
		"name":         name,
		"size":         size,
		"total_chunks": totalChunks,
		"auto_accept":  m.autoAccept,
	}).Info("Incoming file offer registered")

	if m.autoAccept {
		_ = t.Accept()
	}
	return t, true, nil
}

// Accept moves an offered transfer to Receiving, for nodes running without
// the auto-accept policy.
func (m *Manager) Accept(peer, fileID string) error {
	t, ok := m.Get(peer, fileID)
	if !ok {
		return fmt.Errorf("%w: %s from %s", ErrUnknownTransfer, fileID, peer)
	}
	return t.Accept()
}

// Get returns the transfer for (peer, fileID).
func (m *Manager) Get(peer, fileID string) (*Transfer, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.transfers[transferKey{peer: peer, fileID: fileID}]
	return t, ok
}

// Count returns the number of tracked transfers.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.transfers)
}

// AddChunk routes a decoded chunk to its transfer. When the chunk completes
// the payload the file is persisted and its path returned with done true;
// exactly one chunk can ever complete a given transfer.
func (m *Manager) AddChunk(peer, fileID string, index int, data []byte) (*Transfer, string, bool, error) {
	t, ok := m.Get(peer, fileID)
	if !ok {
		return nil, "", false, fmt.Errorf("%w: %s from %s", ErrUnknownTransfer, fileID, peer)
	}

	onProgress, onComplete, onFailed := m.callbacks()

	done, err := t.AddChunk(index, data)
	if err != nil {
		// Chunks arriving after the transfer already finished must not
		// re-announce the failure.
		if onFailed != nil && !errors.Is(err, ErrFinished) && t.State() == TransferFailed {
			onFailed(t, err)
		}
		return t, "", false, err
	}
	if onProgress != nil {
		onProgress(t)
	}
	if !done {
		return t, "", false, nil
	}

	payload, err := t.Assembled()
	if err != nil {
		return t, "", false, err
	}
	path, err := m.persist(t, payload)
	if err != nil {
		t.fail(err)
		if onFailed != nil {
			onFailed(t, err)
		}
		return t, "", false, err
	}
	if onComplete != nil {
		onComplete(t, path)
	}
	return t, path, true, nil
}

// OfferOutgoing reads a local file, registers an outgoing transfer, and
// returns the chunk payloads to send after the offer. The transfer stays
// Offered until the recipient's FILE_RECEIVED arrives.
func (m *Manager) OfferOutgoing(peer, fileID, path, description string, created int64) (*Transfer, [][]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read file for offer: %w", err)
	}
	if len(data) == 0 {
		return nil, nil, ErrEmptyFile
	}
	if err := limits.ValidateFileSize(int64(len(data))); err != nil {
		return nil, nil, err
	}
	name := SafeFileName(path)
	if err := limits.ValidateFileName(name); err != nil {
		return nil, nil, err
	}

	t := newTransfer(peer, fileID, TransferOutgoing)
	t.FileName = name
	t.FileType = typeByName(name)
	t.Description = description
	t.FileSize = int64(len(data))
	t.TotalChunks = CountChunks(int64(len(data)))
	t.Created = created

	m.mu.Lock()
	m.transfers[transferKey{peer: peer, fileID: fileID}] = t
	m.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function":     "OfferOutgoing",
		"peer":         peer,
		"file_id":      fileID,
		"name":         name,
		"size":         t.FileSize,
		"total_chunks": t.TotalChunks,
	}).Info("Outgoing file offer registered")

	return t, Split(data), nil
}

// MarkReceived completes an outgoing transfer after the recipient's
// FILE_RECEIVED ack. Duplicate acks report false.
func (m *Manager) MarkReceived(peer, fileID string) (*Transfer, bool) {
	t, ok := m.Get(peer, fileID)
	if !ok || t.Direction != TransferOutgoing {
		return t, false
	}
	if !t.markCompleted() {
		return t, false
	}

	logrus.WithFields(logrus.Fields{
		"function": "MarkReceived",
		"peer":     peer,
		"file_id":  fileID,
		"name":     t.FileName,
	}).Info("Outgoing file transfer acknowledged")

	_, onComplete, _ := m.callbacks()
	if onComplete != nil {
		onComplete(t, "")
	}
	return t, true
}

func (m *Manager) persist(t *Transfer, payload []byte) (string, error) {
	if err := os.MkdirAll(m.downloadDir, 0700); err != nil {
		return "", fmt.Errorf("create download dir: %w", err)
	}
	path := m.dedupedPath(SafeFileName(t.FileName))
	if err := os.WriteFile(path, payload, 0600); err != nil {
		return "", fmt.Errorf("write received file: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"function": "persist",
		"peer":     t.Peer,
		"file_id":  t.FileID,
		"path":     path,
		"bytes":    len(payload),
	}).Info("Received file persisted")

	return path, nil
}

// dedupedPath joins name onto the download directory, appending _1, _2, …
// before the extension until the name is unused.
func (m *Manager) dedupedPath(name string) string {
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	path := filepath.Join(m.downloadDir, name)
	for i := 1; ; i++ {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return path
		}
		path = filepath.Join(m.downloadDir, fmt.Sprintf("%s_%d%s", stem, i, ext))
	}
}

// SafeFileName reduces an offered file name to a bare name with no path
// components, so a hostile offer cannot place files outside the download
// directory. Unusable names fall back to "download".
func SafeFileName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "" || name == "." || name == ".." || name == "/" {
		return "download"
	}
	return name
}

func typeByName(name string) string {
	if t := mime.TypeByExtension(filepath.Ext(name)); t != "" {
		return t
	}
	return "application/octet-stream"
}
