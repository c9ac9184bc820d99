package console

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	. "github.com/weberc2/flatfs/pkg/types"
)

// Transfer moves file content between the image and the outside world for
// the `store` and `load` commands.
type Transfer interface {
	// Source opens the external file `from` so it can be stored in the
	// image. It returns the content and its length.
	Source(from string) (io.ReadCloser, uint64, error)

	// Sink opens the external destination `to` for `size` bytes loaded
	// from the image file named `basename`.
	Sink(to, basename string, size uint64) (io.WriteCloser, error)
}

// HostTransfer stores and loads files on the local host filesystem. Loading
// into an existing directory writes a file named after the source.
type HostTransfer struct{}

func (HostTransfer) Source(from string) (io.ReadCloser, uint64, error) {
	file, err := os.Open(from)
	if err != nil {
		return nil, 0, err
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, 0, err
	}
	if info.IsDir() {
		file.Close()
		return nil, 0, fmt.Errorf("opening `%s`: %w", from, ErrIsADirectory)
	}
	return file, uint64(info.Size()), nil
}

func (HostTransfer) Sink(to, basename string, size uint64) (io.WriteCloser, error) {
	if info, err := os.Stat(to); err == nil && info.IsDir() {
		to = filepath.Join(to, basename)
	}
	return os.OpenFile(to, os.O_CREATE|os.O_RDWR|os.O_TRUNC, 0640)
}
