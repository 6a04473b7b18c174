package fs

import (
	"fmt"
	"os"
)

// File is a save container backed by a file on disk. Writes never grow
// the file; containers keep the size the console gave them.
type File struct {
	f        *os.File
	size     int64
	writable bool
}

// OpenContainer opens the container at path.
func OpenContainer(path string, writable bool) (*File, error) {
	flags := os.O_RDONLY
	if writable {
		flags = os.O_RDWR
	}
	f, err := os.OpenFile(path, flags, 0)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	return &File{f: f, size: info.Size(), writable: writable}, nil
}

func (c *File) ReadAt(p []byte, off int64) (int, error) {
	return c.f.ReadAt(p, off)
}

func (c *File) WriteAt(p []byte, off int64) (int, error) {
	if !c.writable {
		return 0, fmt.Errorf("container %s opened read-only", c.f.Name())
	}
	if off < 0 || off+int64(len(p)) > c.size {
		return 0, fmt.Errorf("write of %d bytes at %#x exceeds container size %#x", len(p), off, c.size)
	}
	return c.f.WriteAt(p, off)
}

func (c *File) Size() int64 {
	return c.size
}

// Close flushes pending writes to stable storage and closes the file.
func (c *File) Close() error {
	if c.writable {
		if err := c.f.Sync(); err != nil {
			c.f.Close()
			return err
		}
	}
	return c.f.Close()
}
