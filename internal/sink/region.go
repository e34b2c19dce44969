// Package sink implements the memory sink from spec §4.7: a named
// shared-memory region, a binary semaphore and an advisory file lock,
// letting one producer hand JPEG or H.264 frames to many sibling
// processes without going through the HTTP server.
//
// The region technique is grounded on other_examples' dj-oyu shm reader,
// re-expressed without cgo: instead of a C struct mapped by mmap(2)
// through cgo, the layout below is a set of fixed byte offsets inside a
// []byte obtained from unix.Mmap, addressed with sync/atomic through
// unsafe.Pointer. The binary semaphore is a monotonic counter in that same
// region, polled at the 1ms floor spec.md prescribes rather than backed by
// a real POSIX named semaphore, since neither cgo nor a semaphore package
// appears anywhere in the retrieval pack.
package sink

import (
	"sync/atomic"
	"unsafe"
)

const (
	// Magic identifies a region written by this implementation.
	Magic uint64 = 0x5553545245414d52 // "USTREAMR"
	// Version bumps whenever the header layout changes incompatibly.
	Version uint64 = 1
)

// Header slot byte offsets. Every slot is 8 bytes so every field can be
// addressed with sync/atomic's 64-bit operations regardless of its
// semantic width.
const (
	offMagic              = 0
	offVersion            = 8
	offID                 = 16
	offWidth              = 24
	offHeight             = 32
	offFormat             = 40
	offStride             = 48
	offOnline             = 56
	offKey                = 64
	offUsed               = 72
	offGrabTsNanos        = 80
	offEncodeBeginTsNanos = 88
	offEncodeEndTsNanos   = 96
	offLastClientTsNanos  = 104
	offKeyRequested       = 112
	offSemaphore          = 120

	// HeaderSize is the fixed region prefix; the payload begins here.
	HeaderSize = 128
)

// region is a thin accessor over a shared memory-mapped byte slice. It
// never allocates or copies the backing array — callers own its lifetime
// (see Open/Close).
type region struct {
	data []byte
}

func newRegion(data []byte) *region {
	if len(data) < HeaderSize {
		panic("sink: region smaller than header")
	}
	return &region{data: data}
}

func (r *region) slot(off int) *uint64 {
	return (*uint64)(unsafe.Pointer(&r.data[off]))
}

func (r *region) load(off int) uint64        { return atomic.LoadUint64(r.slot(off)) }
func (r *region) store(off int, v uint64)    { atomic.StoreUint64(r.slot(off), v) }
func (r *region) add(off int, delta uint64) uint64 {
	return atomic.AddUint64(r.slot(off), delta)
}

func (r *region) payload() []byte {
	return r.data[HeaderSize:]
}

func (r *region) capacity() int {
	return len(r.data) - HeaderSize
}
