//go:build unix

package load

import (
	"os"

	"golang.org/x/sys/unix"
)

// readFile maps the file at the given path into memory. The returned function unmaps it.
func readFile(path string) ([]byte, func(), error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, nil, err
	}
	size := info.Size()
	if size == 0 || int64(int(size)) != size {
		// Empty files cannot be mapped.
		contents, err := os.ReadFile(path)
		return contents, func() {}, err
	}

	contents, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_PRIVATE)
	if err != nil {
		return nil, nil, &os.PathError{Op: "mmap", Path: path, Err: err}
	}
	return contents, func() { _ = unix.Munmap(contents) }, nil
}
