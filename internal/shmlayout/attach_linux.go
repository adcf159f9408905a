//go:build linux

package shmlayout

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// AttachedSegment is a SysV shared-memory segment attached read-write
// into this process's address space.
type AttachedSegment struct {
	ID   int
	Data []byte
}

// Attach attaches the SysV shared-memory segment identified by id and
// returns its mapped bytes. The segment's actual size (as reported by
// shmctl(IPC_STAT)) is used, so callers can validate it against the
// size they expect.
func Attach(id int32) (*AttachedSegment, error) {
	size, err := segmentSize(int(id))
	if err != nil {
		return nil, fmt.Errorf("shmlayout: shmctl(IPC_STAT) on id %d: %w", id, err)
	}
	mapped, err := unix.SysvShmAttach(int(id), 0, 0)
	if err != nil {
		return nil, fmt.Errorf("shmlayout: shmat on id %d: %w", id, err)
	}
	data := unsafe.Slice((*byte)(unsafe.Pointer(&mapped[0])), size)
	return &AttachedSegment{ID: int(id), Data: data}, nil
}

// Detach detaches the segment. Safe to call once; a second call is a
// caller error (matches shmdt semantics).
func (s *AttachedSegment) Detach() error {
	if s == nil || s.Data == nil {
		return nil
	}
	if err := unix.SysvShmDetach(s.Data); err != nil {
		return fmt.Errorf("shmlayout: shmdt on id %d: %w", s.ID, err)
	}
	s.Data = nil
	return nil
}

func segmentSize(id int) (int, error) {
	var desc unix.SysvShmDesc
	if _, err := unix.SysvShmCtl(id, unix.IPC_STAT, &desc); err != nil {
		return 0, err
	}
	return int(desc.Segsz), nil
}
