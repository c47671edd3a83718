package shm

/*
#include <semaphore.h>
#include <errno.h>

// sem_t must live at a stable address for its whole lifetime; Go's garbage
// collector may move stack memory but never moves memory the runtime knows
// is escaped to C via cgo, and the memory here always comes from a shared
// mapping (never from the Go heap), so pinning is not a concern.
static int dkvbridge_sem_init(void *addr, unsigned int value) {
	return sem_init((sem_t *)addr, 1, value);
}
static int dkvbridge_sem_destroy(void *addr) {
	return sem_destroy((sem_t *)addr);
}
static int dkvbridge_sem_post(void *addr) {
	return sem_post((sem_t *)addr);
}
static int dkvbridge_sem_wait(void *addr) {
	return sem_wait((sem_t *)addr);
}
static int dkvbridge_sem_trywait(void *addr) {
	return sem_trywait((sem_t *)addr);
}
*/
import "C"

import (
	"syscall"
	"unsafe"
)

// SemSize is the size in bytes a sem_t occupies on this platform. Channel
// layout math (internal/ipc) uses this to size the region reserved for each
// semaphore.
const SemSize = C.sizeof_sem_t

// Sem is a POSIX counting semaphore placed at a fixed address inside a
// shared memory mapping (sem_init with pshared=1), per spec §4.1. A Sem
// does not own the memory it lives in; the owning Segment must outlive it.
type Sem struct {
	addr unsafe.Pointer
}

// AtOffset returns the Sem living at the given byte offset within seg's
// mapped region. The caller is responsible for reserving SemSize bytes at
// that offset in the channel layout and for calling Init exactly once
// before any other Sem method (by whichever process creates the segment).
func AtOffset(seg *Segment, offset int) *Sem {
	b := seg.Bytes()
	return &Sem{addr: unsafe.Pointer(&b[offset])}
}

// Init initializes the semaphore with the given initial count. Must be
// called exactly once, by the segment's creator, before any other process
// touches it.
func (s *Sem) Init(initValue uint32) error {
	if rc, err := C.dkvbridge_sem_init(s.addr, C.uint(initValue)); rc != 0 {
		return Wrap(KindIpcSystemError, "sem_init", err)
	}
	return nil
}

// Destroy releases the semaphore's kernel-side resources. Called once, by
// whichever process tears the channel down.
func (s *Sem) Destroy() error {
	if rc, err := C.dkvbridge_sem_destroy(s.addr); rc != 0 {
		return Wrap(KindIpcSystemError, "sem_destroy", err)
	}
	return nil
}

// Post increments the semaphore, waking one waiter if any are blocked.
func (s *Sem) Post() error {
	if rc, err := C.dkvbridge_sem_post(s.addr); rc != 0 {
		return Wrap(KindIpcSystemError, "sem_post", err)
	}
	return nil
}

// Wait decrements the semaphore, blocking until it is non-zero. A wait
// interrupted by a signal (EINTR) is retried transparently, per spec §4.1.
func (s *Sem) Wait() error {
	for {
		rc, err := C.dkvbridge_sem_wait(s.addr)
		if rc == 0 {
			return nil
		}
		if err == syscall.EINTR {
			continue
		}
		return Wrap(KindIpcSystemError, "sem_wait", err)
	}
}

// TryWait attempts to decrement the semaphore without blocking. It returns
// (true, nil) on success, (false, nil) if the semaphore was zero, and
// (false, err) on any other failure.
func (s *Sem) TryWait() (bool, error) {
	rc, err := C.dkvbridge_sem_trywait(s.addr)
	if rc == 0 {
		return true, nil
	}
	if err == syscall.EAGAIN {
		return false, nil
	}
	return false, Wrap(KindIpcSystemError, "sem_trywait", err)
}
