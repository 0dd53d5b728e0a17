// Package filesource provides the core.FileSource implementations: an
// in-flight stream such as an HTTP body, a local file and an S3 object.
package filesource

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/google/uuid"

	"github.com/JonMunkholm/VehicleTaxonomy/internal/core"
)

var (
	// ErrNotFound is returned when a file or object does not exist.
	ErrNotFound = errors.New("file or url does not exist")

	// ErrAlreadyOpened is returned when a one-shot stream is opened twice.
	ErrAlreadyOpened = errors.New("stream already opened")
)

// Stream wraps a reader that can be consumed once.
type Stream struct {
	id     string
	mu     sync.Mutex
	r      io.Reader
	opened bool
}

var _ core.FileSource = (*Stream)(nil)

// NewStream returns a source over r. An empty id is replaced by a new uuid.
func NewStream(id string, r io.Reader) *Stream {
	if id == "" {
		id = uuid.New().String()
	}
	return &Stream{id: id, r: r}
}

func (s *Stream) RequestID() string { return s.id }

func (s *Stream) Open(ctx context.Context) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.opened {
		return nil, ErrAlreadyOpened
	}
	s.opened = true

	if rc, ok := s.r.(io.ReadCloser); ok {
		return rc, nil
	}
	return io.NopCloser(s.r), nil
}

// Local reads a file from disk.
type Local struct {
	id   string
	path string
}

var _ core.FileSource = (*Local)(nil)

func NewLocal(path string) *Local {
	return &Local{id: uuid.New().String(), path: path}
}

func (l *Local) RequestID() string { return l.id }

func (l *Local) Open(ctx context.Context) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := os.Open(l.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, l.path)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", l.path, err)
	}
	return f, nil
}

// S3Object streams an object from S3.
type S3Object struct {
	id     string
	client s3iface.S3API
	bucket string
	key    string
}

var _ core.FileSource = (*S3Object)(nil)

func NewS3Object(client s3iface.S3API, bucket, key string) *S3Object {
	return &S3Object{id: uuid.New().String(), client: client, bucket: bucket, key: key}
}

func (o *S3Object) RequestID() string { return o.id }

func (o *S3Object) Open(ctx context.Context) (io.ReadCloser, error) {
	out, err := o.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(o.bucket),
		Key:    aws.String(o.key),
	})
	if err != nil {
		var aerr awserr.Error
		if errors.As(err, &aerr) {
			switch aerr.Code() {
			case s3.ErrCodeNoSuchBucket, s3.ErrCodeNoSuchKey:
				return nil, fmt.Errorf("%w: s3://%s/%s", ErrNotFound, o.bucket, o.key)
			}
		}
		return nil, fmt.Errorf("fetch s3://%s/%s: %w", o.bucket, o.key, err)
	}
	return out.Body, nil
}

// ParseS3URL splits "s3://bucket/key" into its parts.
func ParseS3URL(raw string) (bucket, key string, err error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", fmt.Errorf("parse S3 URL %s: %w", raw, err)
	}
	if u.Scheme != "s3" || u.Host == "" {
		return "", "", fmt.Errorf("not an S3 URL: %s", raw)
	}
	key = strings.TrimPrefix(u.Path, "/")
	if key == "" {
		return "", "", fmt.Errorf("S3 URL has no object key: %s", raw)
	}
	return u.Host, key, nil
}

// Resolve returns the source for location, which is either a local path or
// an s3:// URL. s3client is only needed for S3 locations.
func Resolve(location string, s3client s3iface.S3API) (core.FileSource, error) {
	if !strings.HasPrefix(location, "s3://") {
		return NewLocal(location), nil
	}
	if s3client == nil {
		return nil, errors.New("missing s3 client")
	}
	bucket, key, err := ParseS3URL(location)
	if err != nil {
		return nil, err
	}
	return NewS3Object(s3client, bucket, key), nil
}
