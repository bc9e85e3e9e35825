package state

import (
	"context"
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/imamik/edgefip/internal/floatingip"
	"github.com/imamik/edgefip/internal/platform/s3"
)

// ObjectClient is the subset of the object storage client the store needs.
type ObjectClient interface {
	PutObject(ctx context.Context, bucket, key string, data []byte) error
	GetObject(ctx context.Context, bucket, key string) ([]byte, error)
	DeleteObject(ctx context.Context, bucket, key string) error
}

// S3Store keeps one object per interface under prefix.
type S3Store struct {
	client ObjectClient
	bucket string
	prefix string
}

// NewS3Store returns a store writing to bucket. Object keys are prefix+id.
func NewS3Store(client ObjectClient, bucket, prefix string) *S3Store {
	return &S3Store{client: client, bucket: bucket, prefix: prefix}
}

func (s *S3Store) key(id string) string {
	return s.prefix + id + ".yaml"
}

// Load implements Store.
func (s *S3Store) Load(ctx context.Context, id string) (*floatingip.RuntimeState, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}
	data, err := s.client.GetObject(ctx, s.bucket, s.key(id))
	if errors.Is(err, s3.ErrNotFound) {
		return &floatingip.RuntimeState{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load state of %s: %w", id, err)
	}
	return decode(data)
}

// Save implements Store.
func (s *S3Store) Save(ctx context.Context, id string, st *floatingip.RuntimeState) error {
	if err := validateID(id); err != nil {
		return err
	}
	if isEmpty(st) {
		return s.client.DeleteObject(ctx, s.bucket, s.key(id))
	}
	data, err := yaml.Marshal(st)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}
	return s.client.PutObject(ctx, s.bucket, s.key(id), data)
}
