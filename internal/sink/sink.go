package sink

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"golang.org/x/sys/unix"

	"github.com/ustreamer-go/ustreamer/internal/frame"
)

// ErrBusy is returned by Put when the advisory lock is held by a reader;
// it is not fatal, matching spec.md §4.7's "server_put ... returns busy".
var ErrBusy = errors.New("sink: region locked by a reader")

// ErrNoUpdate is returned by Get when no frame newer than the client's
// last-seen id has been published yet.
var ErrNoUpdate = errors.New("sink: no update since last read")

const pollInterval = time.Millisecond

// Region is the producer side of a memory sink: the process running the
// capture pipeline that publishes frames for sibling processes to read.
type Region struct {
	path string
	file *os.File
	mm   []byte
	r    *region
	lock *flock.Flock
}

// Open creates or attaches a POSIX shared-memory-backed region at
// /dev/shm/<name> (or dir/<name> when dir is non-empty, for tests), sized
// to hold a payload of at least capacity bytes.
func Open(dir, name string, capacity int) (*Region, error) {
	if dir == "" {
		dir = "/dev/shm"
	}
	path := filepath.Join(dir, name)

	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0666)
	if err != nil {
		return nil, fmt.Errorf("sink: open %s: %w", path, err)
	}

	size := HeaderSize + capacity
	if err := file.Truncate(int64(size)); err != nil {
		file.Close()
		return nil, fmt.Errorf("sink: truncate %s: %w", path, err)
	}

	mm, err := unix.Mmap(int(file.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("sink: mmap %s: %w", path, err)
	}

	reg := newRegion(mm)
	reg.store(offMagic, Magic)
	reg.store(offVersion, Version)

	return &Region{
		path: path,
		file: file,
		mm:   mm,
		r:    reg,
		lock: flock.New(path + ".lock"),
	}, nil
}

// Close unmaps the region and closes the backing file. It does not remove
// the file from /dev/shm; sibling processes may still be attached.
func (s *Region) Close() error {
	var err error
	if s.mm != nil {
		err = unix.Munmap(s.mm)
		s.mm = nil
	}
	if cerr := s.file.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

// CheckDemand reports whether publishing is worth the work right now: a
// client has ticked within ttl, and the candidate frame has a non-empty
// payload. Lets the publisher skip writing frames to a region nobody is
// reading.
func (s *Region) CheckDemand(candidateUsed int, ttl time.Duration) bool {
	if candidateUsed <= 0 {
		return false
	}
	last := time.Unix(0, int64(s.r.load(offLastClientTsNanos)))
	return time.Since(last) <= ttl
}

// KeyRequested reports whether a client has asked for a fresh key frame
// via RequestKeyFrame. It does not reset the request; clearKeyRequested
// does.
func (s *Region) KeyRequested() bool {
	return s.r.load(offKeyRequested) != 0
}

func (s *Region) clearKeyRequested() {
	s.r.store(offKeyRequested, 0)
}

// Put publishes f into the region: metadata then payload, under the
// advisory lock taken non-blocking, bumping id and posting the semaphore
// on success. Returns ErrBusy (not fatal) if a reader currently holds the
// lock.
func (s *Region) Put(f *frame.Frame) error {
	if len(f.Data) > s.r.capacity() {
		return fmt.Errorf("sink: frame of %d bytes exceeds region capacity %d", len(f.Data), s.r.capacity())
	}

	locked, err := s.lock.TryLock()
	if err != nil {
		return fmt.Errorf("sink: try-lock: %w", err)
	}
	if !locked {
		return ErrBusy
	}
	defer s.lock.Unlock()

	s.r.store(offWidth, uint64(f.Width))
	s.r.store(offHeight, uint64(f.Height))
	s.r.store(offFormat, uint64(f.Format))
	s.r.store(offStride, uint64(f.Stride))
	s.r.store(offOnline, boolToU64(f.Online))
	s.r.store(offKey, boolToU64(f.Key))
	s.r.store(offUsed, uint64(len(f.Data)))
	s.r.store(offGrabTsNanos, uint64(f.GrabTimestamp.UnixNano()))
	s.r.store(offEncodeBeginTsNanos, uint64(f.EncodeBeginTimestamp.UnixNano()))
	s.r.store(offEncodeEndTsNanos, uint64(f.EncodeEndTimestamp.UnixNano()))
	copy(s.r.payload(), f.Data)

	s.r.add(offID, 1)
	s.r.add(offSemaphore, 1)
	return nil
}

// Client is the consumer side of a memory sink: a sibling process reading
// frames another process publishes.
type Client struct {
	file        *os.File
	mm          []byte
	r           *region
	lock        *flock.Flock
	lastSeenID  uint64
	lastSeenSem uint64
	haveSeen    bool
}

// OpenClient attaches to an existing region; it does not create one.
func OpenClient(dir, name string) (*Client, error) {
	if dir == "" {
		dir = "/dev/shm"
	}
	path := filepath.Join(dir, name)

	file, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("sink: open client %s: %w", path, err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("sink: stat %s: %w", path, err)
	}
	if info.Size() < HeaderSize {
		file.Close()
		return nil, fmt.Errorf("sink: %s is smaller than a region header", path)
	}

	mm, err := unix.Mmap(int(file.Fd()), 0, int(info.Size()), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("sink: mmap client %s: %w", path, err)
	}

	reg := newRegion(mm)
	if reg.load(offMagic) != Magic {
		unix.Munmap(mm)
		file.Close()
		return nil, fmt.Errorf("sink: %s has an unrecognized magic", path)
	}

	return &Client{
		file: file,
		mm:   mm,
		r:    reg,
		lock: flock.New(path + ".lock"),
	}, nil
}

// Close unmaps and closes the client's view of the region.
func (c *Client) Close() error {
	var err error
	if c.mm != nil {
		err = unix.Munmap(c.mm)
		c.mm = nil
	}
	if cerr := c.file.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

// RequestKeyFrame asks the producer to reissue a key frame on its next
// publish, for H.264 streams.
func (c *Client) RequestKeyFrame() {
	c.r.store(offKeyRequested, 1)
}

// Get waits up to timeout for a fresh frame, polling the semaphore at the
// 1ms floor spec.md prescribes, then copies it out under the advisory
// lock. Returns ErrNoUpdate if the deadline or ctx elapses first, or if the
// id did not actually advance once the lock was acquired.
func (c *Client) Get(ctx context.Context, out *frame.Frame, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		sem := c.r.load(offSemaphore)
		if sem != c.lastSeenSem {
			break
		}
		select {
		case <-ctx.Done():
			return ErrNoUpdate
		case <-ticker.C:
		}
		if time.Now().After(deadline) {
			return ErrNoUpdate
		}
	}

	lockCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()
	locked, err := c.lock.TryLockContext(lockCtx, pollInterval)
	if err != nil || !locked {
		return ErrNoUpdate
	}
	defer c.lock.Unlock()

	id := c.r.load(offID)
	if id == c.lastSeenID {
		return ErrNoUpdate
	}

	out.Width = uint32(c.r.load(offWidth))
	out.Height = uint32(c.r.load(offHeight))
	out.Format = uint32(c.r.load(offFormat))
	out.Stride = uint32(c.r.load(offStride))
	out.Online = c.r.load(offOnline) != 0
	out.Key = c.r.load(offKey) != 0
	out.GrabTimestamp = time.Unix(0, int64(c.r.load(offGrabTsNanos)))
	out.EncodeBeginTimestamp = time.Unix(0, int64(c.r.load(offEncodeBeginTsNanos)))
	out.EncodeEndTimestamp = time.Unix(0, int64(c.r.load(offEncodeEndTsNanos)))

	used := int(c.r.load(offUsed))
	out.Realloc(used)
	out.Data = out.Data[:used]
	copy(out.Data, c.r.payload()[:used])

	c.lastSeenID = id
	c.lastSeenSem = c.r.load(offSemaphore)
	c.haveSeen = true
	c.r.store(offLastClientTsNanos, uint64(time.Now().UnixNano()))

	return nil
}

func boolToU64(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}
