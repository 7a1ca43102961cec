//go:build linux

package capture

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// sysvSegment is a private System V shared memory segment mapped into this
// process, as used by MIT-SHM.
type sysvSegment struct {
	id   int
	data []byte
}

func createSysvSegment(size int) (int, error) {
	id, err := unix.SysvShmGet(unix.IPC_PRIVATE, size, unix.IPC_CREAT|0o600)
	if err != nil {
		return -1, fmt.Errorf("shmget %d bytes: %w", size, err)
	}
	return id, nil
}

func (s *sysvSegment) attach() error {
	data, err := unix.SysvShmAttach(s.id, 0, 0)
	if err != nil {
		return fmt.Errorf("shmat %d: %w", s.id, err)
	}
	s.data = data
	return nil
}

func (s *sysvSegment) detach() error {
	if s.data == nil {
		return nil
	}
	err := unix.SysvShmDetach(s.data)
	s.data = nil
	if err != nil {
		return fmt.Errorf("shmdt %d: %w", s.id, err)
	}
	return nil
}

func (s *sysvSegment) remove() error {
	if _, err := unix.SysvShmCtl(s.id, unix.IPC_RMID, nil); err != nil {
		return fmt.Errorf("shmctl IPC_RMID %d: %w", s.id, err)
	}
	return nil
}

// memfdRegion is an anonymous sealed file mapped read/write. Its descriptor
// is handed to the compositor as a wl_shm pool.
type memfdRegion struct {
	fd   int
	data []byte
}

func createMemfd(name string, size int) (int, error) {
	fd, err := unix.MemfdCreate(name, unix.MFD_CLOEXEC|unix.MFD_ALLOW_SEALING)
	if err != nil {
		return -1, fmt.Errorf("memfd_create: %w", err)
	}
	if err := unix.Ftruncate(fd, int64(size)); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("ftruncate memfd to %d: %w", size, err)
	}
	// The compositor maps this file; it must never shrink under it.
	if _, err := unix.FcntlInt(uintptr(fd), unix.F_ADD_SEALS, unix.F_SEAL_SHRINK); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("seal memfd: %w", err)
	}
	return fd, nil
}

func (m *memfdRegion) mmap(size int) error {
	data, err := unix.Mmap(m.fd, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return fmt.Errorf("mmap memfd: %w", err)
	}
	m.data = data
	return nil
}

func (m *memfdRegion) unmap() error {
	if m.data == nil {
		return nil
	}
	err := unix.Munmap(m.data)
	m.data = nil
	return err
}

func (m *memfdRegion) close() error {
	if m.fd < 0 {
		return nil
	}
	err := unix.Close(m.fd)
	m.fd = -1
	return err
}
