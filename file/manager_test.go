package file

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/opd-ai/lsnp/limits"
)

const testPeer = "bob@192.168.1.11"

// deliver feeds every chunk of payload into the manager and returns the
// stored path reported by the completing chunk.
func deliver(t *testing.T, m *Manager, fileID string, payload []byte) string {
	t.Helper()
	var storedPath string
	for i, c := range Split(payload) {
		_, path, done, err := m.AddChunk(testPeer, fileID, i, c)
		if err != nil {
			t.Fatalf("AddChunk(%d) failed: %v", i, err)
		}
		if done {
			storedPath = path
		}
	}
	if storedPath == "" {
		t.Fatal("no chunk reported completion")
	}
	return storedPath
}

func offer(t *testing.T, m *Manager, fileID, name string, payload []byte) *Transfer {
	t.Helper()
	tr, created, err := m.Offer(testPeer, fileID, name, "application/octet-stream", "",
		int64(len(payload)), CountChunks(int64(len(payload))), 1756080000)
	if err != nil {
		t.Fatalf("Offer failed: %v", err)
	}
	if !created {
		t.Fatal("Offer reported an existing transfer")
	}
	return tr
}

func TestOfferAutoAccept(t *testing.T) {
	m := NewManager(t.TempDir(), true)
	payload := testPayload(100)

	tr := offer(t, m, "f1", "photo.jpg", payload)
	if tr.State() != TransferReceiving {
		t.Errorf("state = %v, want %v with auto-accept on", tr.State(), TransferReceiving)
	}

	// The same offer replayed is a no-op.
	again, created, err := m.Offer(testPeer, "f1", "photo.jpg", "application/octet-stream", "",
		int64(len(payload)), 1, 1756080000)
	if err != nil {
		t.Fatalf("repeated Offer failed: %v", err)
	}
	if created {
		t.Error("repeated Offer reported a new transfer")
	}
	if again != tr {
		t.Error("repeated Offer returned a different transfer")
	}
	if m.Count() != 1 {
		t.Errorf("Count = %d, want 1", m.Count())
	}
}

func TestOfferManualAccept(t *testing.T) {
	m := NewManager(t.TempDir(), false)
	payload := testPayload(100)

	tr := offer(t, m, "f1", "photo.jpg", payload)
	if tr.State() != TransferOffered {
		t.Fatalf("state = %v, want %v with auto-accept off", tr.State(), TransferOffered)
	}

	if _, _, _, err := m.AddChunk(testPeer, "f1", 0, payload); !errors.Is(err, ErrNotAccepted) {
		t.Errorf("AddChunk before Accept: err = %v, want %v", err, ErrNotAccepted)
	}

	if err := m.Accept(testPeer, "f1"); err != nil {
		t.Fatalf("Accept failed: %v", err)
	}
	if tr.State() != TransferReceiving {
		t.Errorf("state after Accept = %v, want %v", tr.State(), TransferReceiving)
	}

	if err := m.Accept(testPeer, "missing"); !errors.Is(err, ErrUnknownTransfer) {
		t.Errorf("Accept of unknown transfer: err = %v, want %v", err, ErrUnknownTransfer)
	}
}

func TestOfferRejectsBadMetadata(t *testing.T) {
	m := NewManager(t.TempDir(), true)

	if _, _, err := m.Offer(testPeer, "f1", "x.bin", "", "", 0, 1, 0); !errors.Is(err, ErrBadOffer) {
		t.Errorf("zero size: err = %v, want %v", err, ErrBadOffer)
	}
	if _, _, err := m.Offer(testPeer, "f1", "x.bin", "", "", 10, 0, 0); !errors.Is(err, ErrBadOffer) {
		t.Errorf("zero chunks: err = %v, want %v", err, ErrBadOffer)
	}
	if _, _, err := m.Offer(testPeer, "f1", "", "", "", 10, 1, 0); !errors.Is(err, limits.ErrPayloadEmpty) {
		t.Errorf("empty name: err = %v, want %v", err, limits.ErrPayloadEmpty)
	}
	if m.Count() != 0 {
		t.Errorf("Count = %d after rejected offers, want 0", m.Count())
	}
}

// A hostile offer must not be able to commit the node to buffering an
// unbounded number of chunks.
func TestOfferRejectsExhaustingDeclarations(t *testing.T) {
	m := NewManager(t.TempDir(), true)

	huge := int64(limits.MaxFileSize) + 1
	if _, _, err := m.Offer(testPeer, "f1", "x.bin", "", "", huge, 1, 0); !errors.Is(err, limits.ErrPayloadTooLarge) {
		t.Errorf("oversized declared size: err = %v, want %v", err, limits.ErrPayloadTooLarge)
	}
	if _, _, err := m.Offer(testPeer, "f2", "x.bin", "", "", 10, limits.MaxTotalChunks+1, 0); !errors.Is(err, ErrBadOffer) {
		t.Errorf("oversized chunk count: err = %v, want %v", err, ErrBadOffer)
	}
	if m.Count() != 0 {
		t.Errorf("Count = %d after rejected offers, want 0", m.Count())
	}
}

func TestReceiveFileEndToEnd(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(dir, true)
	payload := testPayload(2*ChunkSize + 600)

	var progress int
	var completions int
	var completedPath string
	m.OnProgress(func(tr *Transfer) { progress++ })
	m.OnComplete(func(tr *Transfer, path string) {
		completions++
		completedPath = path
	})

	offer(t, m, "f1", "report.pdf", payload)
	storedPath := deliver(t, m, "f1", payload)

	if want := filepath.Join(dir, "report.pdf"); storedPath != want {
		t.Errorf("stored at %q, want %q", storedPath, want)
	}
	got, err := os.ReadFile(storedPath)
	if err != nil {
		t.Fatalf("reading stored file: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Error("stored file differs from sent payload")
	}
	if progress != 3 {
		t.Errorf("progress callback ran %d times, want 3", progress)
	}
	if completions != 1 || completedPath != storedPath {
		t.Errorf("completion callback: %d runs with path %q", completions, completedPath)
	}

	// A replayed final chunk must not complete or persist again.
	final := Split(payload)[2]
	if _, _, _, err := m.AddChunk(testPeer, "f1", 2, final); !errors.Is(err, ErrFinished) {
		t.Errorf("replayed chunk: err = %v, want %v", err, ErrFinished)
	}
	if completions != 1 {
		t.Errorf("completion callback ran %d times after replay, want 1", completions)
	}
}

func TestReceivedFileNamesDeduplicated(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(dir, true)
	payload := testPayload(64)

	var paths []string
	for _, fileID := range []string{"f1", "f2", "f3"} {
		offer(t, m, fileID, "photo.jpg", payload)
		paths = append(paths, deliver(t, m, fileID, payload))
	}

	want := []string{
		filepath.Join(dir, "photo.jpg"),
		filepath.Join(dir, "photo_1.jpg"),
		filepath.Join(dir, "photo_2.jpg"),
	}
	for i := range want {
		if paths[i] != want[i] {
			t.Errorf("transfer %d stored at %q, want %q", i, paths[i], want[i])
		}
		if _, err := os.Stat(want[i]); err != nil {
			t.Errorf("expected file missing: %v", err)
		}
	}
}

func TestAddChunkUnknownTransfer(t *testing.T) {
	m := NewManager(t.TempDir(), true)
	if _, _, _, err := m.AddChunk(testPeer, "nope", 0, []byte("x")); !errors.Is(err, ErrUnknownTransfer) {
		t.Errorf("err = %v, want %v", err, ErrUnknownTransfer)
	}
}

func TestIntegrityFailureReported(t *testing.T) {
	m := NewManager(t.TempDir(), true)
	payload := testPayload(64)

	failures := 0
	var failed error
	m.OnFailed(func(tr *Transfer, err error) { failures++; failed = err })

	// Offer declares more bytes than the single chunk carries.
	if _, _, err := m.Offer(testPeer, "f1", "x.bin", "", "", 9999, 1, 0); err != nil {
		t.Fatalf("Offer failed: %v", err)
	}
	tr, _, _, err := m.AddChunk(testPeer, "f1", 0, payload)
	if !errors.Is(err, ErrSizeMismatch) {
		t.Fatalf("err = %v, want %v", err, ErrSizeMismatch)
	}
	if tr.State() != TransferFailed {
		t.Errorf("state = %v, want %v", tr.State(), TransferFailed)
	}
	if !errors.Is(failed, ErrSizeMismatch) {
		t.Errorf("failure callback got %v, want %v", failed, ErrSizeMismatch)
	}

	// A straggler chunk after the failure is rejected without a second
	// failure announcement.
	if _, _, _, err := m.AddChunk(testPeer, "f1", 0, payload); !errors.Is(err, ErrFinished) {
		t.Fatalf("straggler err = %v, want %v", err, ErrFinished)
	}
	if failures != 1 {
		t.Errorf("failure callback fired %d times, want 1", failures)
	}
}

func TestOfferOutgoing(t *testing.T) {
	dir := t.TempDir()
	payload := testPayload(2*ChunkSize + 100)
	src := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(src, payload, 0o644); err != nil {
		t.Fatalf("writing source file: %v", err)
	}

	m := NewManager(dir, true)
	tr, chunks, err := m.OfferOutgoing(testPeer, "f1", src, "meeting notes", 1756080000)
	if err != nil {
		t.Fatalf("OfferOutgoing failed: %v", err)
	}

	if tr.Direction != TransferOutgoing {
		t.Errorf("direction = %v, want %v", tr.Direction, TransferOutgoing)
	}
	if tr.FileName != "notes.txt" {
		t.Errorf("FileName = %q, want notes.txt", tr.FileName)
	}
	if tr.FileSize != int64(len(payload)) {
		t.Errorf("FileSize = %d, want %d", tr.FileSize, len(payload))
	}
	if len(chunks) != 3 || tr.TotalChunks != 3 {
		t.Errorf("chunks = %d, TotalChunks = %d, want 3", len(chunks), tr.TotalChunks)
	}
	if tr.State() != TransferOffered {
		t.Errorf("state = %v, want %v until the recipient acks", tr.State(), TransferOffered)
	}
}

func TestMarkReceived(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(src, testPayload(50), 0o644); err != nil {
		t.Fatalf("writing source file: %v", err)
	}

	m := NewManager(dir, true)
	var completions int
	var completedPath string
	m.OnComplete(func(tr *Transfer, path string) {
		completions++
		completedPath = path
	})

	if _, _, err := m.OfferOutgoing(testPeer, "f1", src, "", 0); err != nil {
		t.Fatalf("OfferOutgoing failed: %v", err)
	}

	tr, ok := m.MarkReceived(testPeer, "f1")
	if !ok {
		t.Fatal("first MarkReceived returned false")
	}
	if tr.State() != TransferCompleted {
		t.Errorf("state = %v, want %v", tr.State(), TransferCompleted)
	}
	if completions != 1 || completedPath != "" {
		t.Errorf("completion callback: %d runs with path %q, want 1 run with empty path", completions, completedPath)
	}

	if _, ok := m.MarkReceived(testPeer, "f1"); ok {
		t.Error("duplicate MarkReceived returned true")
	}
	if _, ok := m.MarkReceived(testPeer, "ghost"); ok {
		t.Error("MarkReceived for unknown transfer returned true")
	}

	// Acks only complete outgoing transfers.
	offer(t, m, "in1", "x.bin", testPayload(10))
	if _, ok := m.MarkReceived(testPeer, "in1"); ok {
		t.Error("MarkReceived completed an incoming transfer")
	}
}

func TestOfferOutgoingRejectsEmptyAndMissingFiles(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(dir, true)

	empty := filepath.Join(dir, "empty.bin")
	if err := os.WriteFile(empty, nil, 0o644); err != nil {
		t.Fatalf("writing empty file: %v", err)
	}
	if _, _, err := m.OfferOutgoing(testPeer, "f1", empty, "", 0); !errors.Is(err, ErrEmptyFile) {
		t.Errorf("empty file: err = %v, want %v", err, ErrEmptyFile)
	}

	if _, _, err := m.OfferOutgoing(testPeer, "f2", filepath.Join(dir, "ghost.bin"), "", 0); err == nil {
		t.Error("missing file: expected an error")
	}
}

func TestSafeFileName(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "plain", input: "photo.jpg", want: "photo.jpg"},
		{name: "unix_traversal", input: "../../etc/passwd", want: "passwd"},
		{name: "nested_path", input: "dir/sub/x.png", want: "x.png"},
		{name: "windows_path", input: `C:\evil\name.txt`, want: "name.txt"},
		{name: "empty", input: "", want: "download"},
		{name: "dot", input: ".", want: "download"},
		{name: "dotdot", input: "..", want: "download"},
		{name: "root", input: "/", want: "download"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SafeFileName(tt.input); got != tt.want {
				t.Errorf("SafeFileName(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}
