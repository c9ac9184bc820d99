package snapshot

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/weberc2/flatfs/pkg/image"
	. "github.com/weberc2/flatfs/pkg/types"
)

const ErrTargetExists ConstError = "image already exists; use force to overwrite"

// Push uploads the image at `path` along with the geometry from its header.
// It takes a shared lock, so it fails with ErrLocked while the image is
// open for writing.
func Push(store ObjectStore, bucket, key, path string, logger *slog.Logger) error {
	geometry, err := image.Check(path)
	if err != nil {
		return fmt.Errorf("pushing snapshot: %w", err)
	}
	file, err := image.Lock(path, os.O_RDONLY, false)
	if err != nil {
		return fmt.Errorf("pushing snapshot of `%s`: %w", path, err)
	}
	defer file.Close()

	if err := store.PutObject(bucket, key, file, geometry); err != nil {
		return fmt.Errorf("pushing snapshot of `%s`: %w", path, err)
	}
	logger.Info("pushed snapshot", "path", path, "bucket", bucket, "key", key)
	return nil
}

// Pull downloads a snapshot to `path`. The download only replaces `path`
// once its header matches the geometry recorded at upload. An existing
// image is only replaced if `force` is set, and only while no other process
// has it open.
func Pull(
	store ObjectStore,
	bucket string,
	key string,
	path string,
	force bool,
	logger *slog.Logger,
) error {
	if _, err := os.Stat(path); err == nil {
		if !force {
			return fmt.Errorf("pulling snapshot to `%s`: %w", path, ErrTargetExists)
		}
		lock, err := image.Lock(path, os.O_RDONLY, true)
		if err != nil {
			return fmt.Errorf("pulling snapshot to `%s`: %w", path, err)
		}
		defer lock.Close()
	}

	body, geometry, err := store.GetObject(bucket, key)
	if err != nil {
		return fmt.Errorf("pulling snapshot to `%s`: %w", path, err)
	}
	defer body.Close()

	tmp, err := os.CreateTemp(filepath.Dir(path), ".flatfs-pull-*")
	if err != nil {
		return fmt.Errorf("pulling snapshot to `%s`: %w", path, err)
	}
	defer os.Remove(tmp.Name())
	n, err := io.Copy(tmp, body)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return fmt.Errorf("pulling snapshot to `%s`: downloading: %w", path, err)
	}

	found, err := image.Check(tmp.Name())
	if err != nil {
		return fmt.Errorf("pulling snapshot to `%s`: %w", path, err)
	}
	if found != geometry {
		return fmt.Errorf(
			"pulling snapshot to `%s`: snapshot recorded `%+v`; image "+
				"header says `%+v`: %w",
			path,
			geometry,
			found,
			ErrCorrupt,
		)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("pulling snapshot to `%s`: %w", path, err)
	}
	logger.Info(
		"pulled snapshot",
		"path", path,
		"bucket", bucket,
		"key", key,
		"bytes", n,
	)
	return nil
}

// List returns the snapshot keys under `prefix`.
func List(store ObjectStore, bucket, prefix string) ([]string, error) {
	keys, err := store.ListObjects(bucket, prefix)
	if err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}
	return keys, nil
}
