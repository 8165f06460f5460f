//go:build unix

package vectordb

import (
	"os"

	"golang.org/x/sys/unix"
)

// mmappedFile is a file kept memory-mapped for its entire lifetime. Base and
// index files are mmapped this way and read from directly by search;
// compaction writes a fresh generation to plain (non-mapped) files and
// swaps them in rather than growing a mapping in place.
type mmappedFile struct {
	f    *os.File
	data []byte
}

// openMmapped opens path (creating it if needed), truncates it to at least
// size bytes, and maps it read/write.
func openMmapped(path string, size int) (*mmappedFile, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if int(info.Size()) < size {
		if err := f.Truncate(int64(size)); err != nil {
			f.Close()
			return nil, err
		}
	}
	m := &mmappedFile{f: f}
	if size > 0 {
		data, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
		if err != nil {
			f.Close()
			return nil, err
		}
		m.data = data
	}
	return m, nil
}

// close unmaps and closes the underlying file.
func (m *mmappedFile) close() error {
	if m.data != nil {
		if err := unix.Munmap(m.data); err != nil {
			m.f.Close()
			return err
		}
		m.data = nil
	}
	return m.f.Close()
}
