// Package snapshot backs images up to, and restores them from, an object
// store such as S3.
package snapshot

import (
	"errors"
	"fmt"
	"io"

	"github.com/weberc2/flatfs/pkg/superblock"
)

// ObjectStore keeps image snapshots. Each object carries the geometry of
// the image it holds so a download can be verified against its header.
type ObjectStore interface {
	PutObject(bucket, key string, body io.Reader, geometry superblock.Geometry) error
	GetObject(bucket, key string) (io.ReadCloser, superblock.Geometry, error)
	ListObjects(bucket, prefix string) ([]string, error)
}

type ObjectNotFoundErr struct {
	Bucket string
	Key    string
}

func (err *ObjectNotFoundErr) Error() string {
	return fmt.Sprintf(
		"snapshot not found: bucket=`%s`, key=`%s`",
		err.Bucket,
		err.Key,
	)
}

func IsObjectNotFound(err error) bool {
	var notFound *ObjectNotFoundErr
	return errors.As(err, &notFound)
}
