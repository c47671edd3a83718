package shm

import (
	"os"
	"path/filepath"
	"sync/atomic"

	"golang.org/x/sys/unix"
)

// baseDir is where named segments live. POSIX names this "shm_open" and
// leaves the backing store to the implementation; on Linux that store is a
// tmpfs mounted at /dev/shm, which is where every named segment ends up as
// a plain file. Naming stays flat per spec: no subdirectories are created
// under a name.
const baseDir = "/dev/shm"

// pathFor turns a flat POSIX-style shared memory name (e.g. "/KVChannel3")
// into the file path backing it.
func pathFor(name string) string {
	return filepath.Join(baseDir, filepath.Base(name))
}

// Segment is a named shared memory region. The zero value is not usable;
// construct one with Create or Open.
type Segment struct {
	name   string
	file   *os.File
	data   []byte
	closed atomic.Bool
}

// Create creates (or truncates, if it already exists) a named segment of
// the given size and maps it.
func Create(name string, size int) (*Segment, error) {
	f, err := os.OpenFile(pathFor(name), os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0666)
	if err != nil {
		return nil, Wrap(KindIpcSystemError, "shm_create: open "+name, err)
	}
	if err := unix.Ftruncate(int(f.Fd()), int64(size)); err != nil {
		f.Close()
		return nil, Wrap(KindIpcSystemError, "shm_create: ftruncate "+name, err)
	}
	return mapSegment(name, f, size)
}

// Open opens an existing named segment and maps it. size must be the
// segment's known size (callers agree on it out of band, e.g. via the
// channel layout or the byte count a ReadBatch/RangeQuery response carries).
func Open(name string, size int) (*Segment, error) {
	f, err := os.OpenFile(pathFor(name), os.O_RDWR, 0666)
	if err != nil {
		return nil, Wrap(KindIpcSystemError, "shm_open: open "+name, err)
	}
	return mapSegment(name, f, size)
}

// Truncate resizes an already-open segment and remaps it. The bulk segment
// writers do not use it: bulk.CreateWriter unlinks the name and creates a
// fresh segment for every batch.
func (s *Segment) Truncate(size int) error {
	if err := unix.Ftruncate(int(s.file.Fd()), int64(size)); err != nil {
		return Wrap(KindIpcSystemError, "shm_truncate: "+s.name, err)
	}
	if err := s.unmapOnly(); err != nil {
		return err
	}
	data, err := unix.Mmap(int(s.file.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return Wrap(KindIpcSystemError, "shm_truncate: mmap "+s.name, err)
	}
	s.data = data
	return nil
}

func mapSegment(name string, f *os.File, size int) (*Segment, error) {
	data, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, Wrap(KindIpcSystemError, "shm_map: "+name, err)
	}
	return &Segment{name: name, file: f, data: data}, nil
}

// Bytes returns the mapped region. Valid only until Close/Unmap is called.
func (s *Segment) Bytes() []byte {
	if s.closed.Load() {
		return nil
	}
	return s.data
}

// Name returns the segment's POSIX-style name.
func (s *Segment) Name() string {
	return s.name
}

func (s *Segment) unmapOnly() error {
	if s.data == nil {
		return nil
	}
	err := unix.Munmap(s.data)
	s.data = nil
	if err != nil {
		return Wrap(KindIpcSystemError, "munmap: "+s.name, err)
	}
	return nil
}

// Close unmaps and closes the segment's file descriptor. It does not unlink
// the backing name; ownership of unlinking is a caller-level (protocol)
// decision (spec §4.4).
func (s *Segment) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	err := s.unmapOnly()
	if cerr := s.file.Close(); cerr != nil && err == nil {
		err = Wrap(KindIpcSystemError, "close: "+s.name, cerr)
	}
	return err
}

// Unlink removes a named segment. Safe to call on a name with no current
// mapping; failures are swallowed into a stale-name-not-found case which is
// not itself an error for callers that unlink defensively before create
// (spec §9 "naming collisions").
func Unlink(name string) error {
	err := os.Remove(pathFor(name))
	if err != nil && !os.IsNotExist(err) {
		return Wrap(KindIpcSystemError, "shm_unlink: "+name, err)
	}
	return nil
}

// Exists reports whether a named segment currently exists. Used by the
// internal/bulk tests verifying that bulk.Unlink actually removed a
// segment.
func Exists(name string) bool {
	_, err := os.Stat(pathFor(name))
	return err == nil
}
