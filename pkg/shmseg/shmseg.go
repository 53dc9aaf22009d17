// Package shmseg wraps named POSIX shared-memory segments used to hand
// bulk sample payloads between processes. A segment is a flat byte region
// under /dev/shm: the producer creates, truncates and maps it read-write,
// the consumer maps it read-only, and whoever owns the lifetime unlinks it.
// Segments are not reference-counted; Remove is the only reclamation.
package shmseg

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Segment is a mapped shared-memory region. Close unmaps and closes the
// descriptor but leaves the name in place; Remove unlinks the name.
type Segment struct {
	fd       int
	data     []byte
	name     string
	readOnly bool
}

// On Linux, POSIX shm names are files under /dev/shm. Opening the path
// directly is equivalent to shm_open and keeps the fd usable with the
// regular file syscalls.
func shmPath(name string) string {
	return "/dev/shm" + name
}

// Create makes a fresh segment of exactly size bytes, mapped read-write.
// An existing segment with the same name is an error; callers that want
// to reuse a name must Remove it first.
func Create(name string, size int) (*Segment, error) {
	if size <= 0 {
		return nil, fmt.Errorf("shmseg: invalid size %d", size)
	}
	f, err := unix.Open(shmPath(name), unix.O_RDWR|unix.O_CREAT|unix.O_EXCL, 0666)
	if err != nil {
		return nil, fmt.Errorf("open shm %s: %w", name, err)
	}

	if err := unix.Ftruncate(f, int64(size)); err != nil {
		unix.Close(f)
		unix.Unlink(shmPath(name))
		return nil, fmt.Errorf("ftruncate: %w", err)
	}

	data, err := unix.Mmap(f, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		unix.Close(f)
		unix.Unlink(shmPath(name))
		return nil, fmt.Errorf("mmap: %w", err)
	}

	return &Segment{fd: f, data: data, name: name}, nil
}

// OpenReadOnly maps an existing segment for reading.
func OpenReadOnly(name string) (*Segment, error) {
	f, err := unix.Open(shmPath(name), unix.O_RDONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("open shm %s: %w", name, err)
	}

	var stat unix.Stat_t
	if err := unix.Fstat(f, &stat); err != nil {
		unix.Close(f)
		return nil, fmt.Errorf("fstat: %w", err)
	}
	if stat.Size == 0 {
		unix.Close(f)
		return nil, fmt.Errorf("shmseg: segment %s is empty", name)
	}

	data, err := unix.Mmap(f, 0, int(stat.Size), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		unix.Close(f)
		return nil, fmt.Errorf("mmap: %w", err)
	}

	return &Segment{fd: f, data: data, name: name, readOnly: true}, nil
}

// Name returns the segment's shm name (with leading slash).
func (s *Segment) Name() string { return s.name }

// Size returns the mapped length in bytes.
func (s *Segment) Size() int { return len(s.data) }

// Bytes exposes the mapped region. The slice is only valid until Close.
func (s *Segment) Bytes() []byte { return s.data }

// Close unmaps the region and closes the descriptor. Safe to call twice.
func (s *Segment) Close() error {
	if s.data != nil {
		unix.Munmap(s.data)
		s.data = nil
	}
	if s.fd > 0 {
		unix.Close(s.fd)
		s.fd = 0
	}
	return nil
}

// Remove unlinks the named segment. A missing segment is not an error, so
// release paths stay idempotent.
func Remove(name string) error {
	err := unix.Unlink(shmPath(name))
	if err != nil && err != unix.ENOENT {
		return fmt.Errorf("unlink shm %s: %w", name, err)
	}
	return nil
}
