package bulk

import (
	"os"
	"testing"

	"github.com/dkvbridge/dkvbridge/internal/shm"
)

func requireShm(t *testing.T) {
	t.Helper()
	if _, err := os.Stat("/dev/shm"); err != nil {
		t.Skip("/dev/shm not available on this platform")
	}
}

func TestWriterReaderRoundtrip(t *testing.T) {
	requireShm(t)
	name := ReadBatchName(uint32(os.Getpid()), 1, 42)

	w, err := CreateWriter(name, 128)
	if err != nil {
		t.Fatalf("CreateWriter: %v", err)
	}
	copy(w.Bytes(), []byte("hello batch"))
	if err := w.Close(); err != nil {
		t.Fatalf("writer Close: %v", err)
	}

	r, err := OpenReader(name, 128)
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	if got := string(r.Bytes()[:len("hello batch")]); got != "hello batch" {
		t.Fatalf("got %q", got)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("reader Close: %v", err)
	}

	if !shm.Exists(name) {
		t.Fatalf("segment should still exist before Unlink")
	}
	if err := Unlink(name); err != nil {
		t.Fatalf("Unlink: %v", err)
	}
	if shm.Exists(name) {
		t.Fatalf("segment should not exist after Unlink")
	}
}

func TestCreateWriterUnlinksStale(t *testing.T) {
	requireShm(t)
	name := RangeQueryName(uint32(os.Getpid()), 2, 7)

	w1, err := CreateWriter(name, 64)
	if err != nil {
		t.Fatalf("CreateWriter 1: %v", err)
	}
	copy(w1.Bytes(), []byte("stale"))
	w1.Close()

	w2, err := CreateWriter(name, 64)
	if err != nil {
		t.Fatalf("CreateWriter 2: %v", err)
	}
	if got := string(w2.Bytes()[:5]); got == "stale" {
		t.Fatalf("expected fresh zeroed segment, got leftover %q", got)
	}
	w2.Close()
	Unlink(name)
}
