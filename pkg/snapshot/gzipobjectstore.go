package snapshot

import (
	"compress/gzip"
	"fmt"
	"io"

	"github.com/weberc2/flatfs/pkg/superblock"
)

// GzipObjectStore compresses snapshots on the way in and decompresses them
// on the way out. Images are mostly zeroes, so this shrinks them a lot.
type GzipObjectStore struct {
	ObjectStore
}

// PutObject streams the compressed image to the wrapped store without
// holding it in memory or on disk.
func (store *GzipObjectStore) PutObject(
	bucket string,
	key string,
	body io.Reader,
	geometry superblock.Geometry,
) error {
	r, w := io.Pipe()
	go func() {
		zw, err := gzip.NewWriterLevel(w, gzip.BestCompression)
		if err == nil {
			if _, err = io.Copy(zw, body); err == nil {
				err = zw.Close()
			}
		}
		w.CloseWithError(err)
	}()

	err := store.ObjectStore.PutObject(bucket, key, r, geometry)
	// unblocks the compressor if the upload stopped reading early
	r.CloseWithError(err)
	if err != nil {
		return fmt.Errorf("putting compressed snapshot: %w", err)
	}
	return nil
}

type gzipReadCloser struct {
	body io.ReadCloser
	r    *gzip.Reader
}

func (grc *gzipReadCloser) Read(data []byte) (int, error) {
	return grc.r.Read(data)
}

func (grc *gzipReadCloser) Close() error {
	if err := grc.body.Close(); err != nil {
		return err
	}
	return grc.r.Close()
}

func (store *GzipObjectStore) GetObject(
	bucket string,
	key string,
) (io.ReadCloser, superblock.Geometry, error) {
	body, geometry, err := store.ObjectStore.GetObject(bucket, key)
	if err != nil {
		return nil, superblock.Geometry{}, fmt.Errorf(
			"getting compressed snapshot: %w",
			err,
		)
	}
	r, err := gzip.NewReader(body)
	if err != nil {
		body.Close()
		return nil, superblock.Geometry{}, fmt.Errorf(
			"creating gzip reader: %w",
			err,
		)
	}
	return &gzipReadCloser{body: body, r: r}, geometry, nil
}
