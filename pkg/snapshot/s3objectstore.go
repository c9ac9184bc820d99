package snapshot

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"

	"github.com/weberc2/flatfs/pkg/superblock"
	. "github.com/weberc2/flatfs/pkg/types"
)

const (
	ErrNoGeometry ConstError = "snapshot has no image geometry metadata"

	metaBlockCount = "Flatfs-Block-Count"
	metaInodeCount = "Flatfs-Inode-Count"

	// partSize is the multipart chunk size. Images run to many GiB and a
	// single PutObject tops out at 5 GiB.
	partSize = 64 * 1024 * 1024
)

// S3ObjectStore stores snapshots as S3 objects, uploading them in parts
// and recording the image geometry in the object's user metadata.
type S3ObjectStore struct {
	Client   *s3.S3
	Uploader *s3manager.Uploader
}

// NewS3ObjectStore builds a store from the default AWS credential chain.
// `endpoint` may be empty; when set (e.g. for MinIO), path-style addressing
// is used.
func NewS3ObjectStore(region, endpoint string) (*S3ObjectStore, error) {
	config := aws.Config{}
	if region != "" {
		config.Region = aws.String(region)
	}
	if endpoint != "" {
		config.Endpoint = aws.String(endpoint)
		config.S3ForcePathStyle = aws.Bool(true)
	}
	sess, err := session.NewSession(&config)
	if err != nil {
		return nil, fmt.Errorf("creating aws session: %w", err)
	}
	client := s3.New(sess)
	return &S3ObjectStore{
		Client: client,
		Uploader: s3manager.NewUploaderWithClient(
			client,
			func(u *s3manager.Uploader) { u.PartSize = partSize },
		),
	}, nil
}

func (store *S3ObjectStore) PutObject(
	bucket string,
	key string,
	body io.Reader,
	geometry superblock.Geometry,
) error {
	if _, err := store.Uploader.Upload(&s3manager.UploadInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String("application/octet-stream"),
		Metadata:    geometryMetadata(geometry),
	}); err != nil {
		return fmt.Errorf(
			"uploading snapshot to bucket `%s` at key `%s`: %w",
			bucket,
			key,
			err,
		)
	}
	return nil
}

func (store *S3ObjectStore) GetObject(
	bucket string,
	key string,
) (io.ReadCloser, superblock.Geometry, error) {
	rsp, err := store.Client.GetObject(&s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var aerr awserr.Error
		if errors.As(err, &aerr) && aerr.Code() == s3.ErrCodeNoSuchKey {
			return nil, superblock.Geometry{}, &ObjectNotFoundErr{
				Bucket: bucket,
				Key:    key,
			}
		}
		return nil, superblock.Geometry{}, fmt.Errorf(
			"downloading snapshot from bucket `%s` at key `%s`: %w",
			bucket,
			key,
			err,
		)
	}

	geometry, err := metadataGeometry(rsp.Metadata)
	if err != nil {
		rsp.Body.Close()
		return nil, superblock.Geometry{}, fmt.Errorf(
			"downloading snapshot from bucket `%s` at key `%s`: %w",
			bucket,
			key,
			err,
		)
	}
	return rsp.Body, geometry, nil
}

func (store *S3ObjectStore) ListObjects(bucket, prefix string) ([]string, error) {
	var keys []string
	if err := store.Client.ListObjectsV2Pages(
		&s3.ListObjectsV2Input{
			Bucket: aws.String(bucket),
			Prefix: aws.String(prefix),
		},
		func(page *s3.ListObjectsV2Output, lastPage bool) bool {
			for _, object := range page.Contents {
				keys = append(keys, aws.StringValue(object.Key))
			}
			return true
		},
	); err != nil {
		return nil, fmt.Errorf(
			"listing snapshots in bucket `%s` with prefix `%s`: %w",
			bucket,
			prefix,
			err,
		)
	}
	return keys, nil
}

func geometryMetadata(geometry superblock.Geometry) map[string]*string {
	return map[string]*string{
		metaBlockCount: aws.String(strconv.FormatUint(geometry.BlockCount, 10)),
		metaInodeCount: aws.String(strconv.FormatUint(geometry.InodeCount, 10)),
	}
}

// metadataGeometry reads the geometry back out of object metadata. S3
// doesn't preserve the case of metadata keys, so keys match in any case.
func metadataGeometry(meta map[string]*string) (superblock.Geometry, error) {
	var geometry superblock.Geometry
	for _, field := range []struct {
		key string
		dst *uint64
	}{
		{metaBlockCount, &geometry.BlockCount},
		{metaInodeCount, &geometry.InodeCount},
	} {
		value, ok := lookupFold(meta, field.key)
		if !ok {
			return superblock.Geometry{}, fmt.Errorf(
				"metadata `%s` missing: %w",
				field.key,
				ErrNoGeometry,
			)
		}
		n, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return superblock.Geometry{}, fmt.Errorf(
				"metadata `%s`: %v: %w",
				field.key,
				err,
				ErrNoGeometry,
			)
		}
		*field.dst = n
	}
	return geometry, nil
}

func lookupFold(meta map[string]*string, key string) (string, bool) {
	for k, v := range meta {
		if strings.EqualFold(k, key) && v != nil {
			return *v, true
		}
	}
	return "", false
}
