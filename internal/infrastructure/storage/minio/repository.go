package minio

import (
	"context"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"

	"github.com/turtacn/molbayes/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/molbayes/internal/intelligence/bayesian"
	"github.com/turtacn/molbayes/pkg/errors"
)

// ModelObject describes one stored model.
type ModelObject struct {
	ID           string            `json:"id"`
	Key          string            `json:"key"`
	Size         int64             `json:"size"`
	ETag         string            `json:"etag,omitempty"`
	ContentType  string            `json:"content_type,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	LastModified time.Time         `json:"last_modified"`
}

// ModelStore persists serialized Bayesian models as objects.
type ModelStore interface {
	Put(ctx context.Context, id, text string, metadata map[string]string) (*ModelObject, error)
	Get(ctx context.Context, id string) (string, error)
	Stat(ctx context.Context, id string) (*ModelObject, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]*ModelObject, error)
}

type minioModelStore struct {
	client *MinIOClient
	logger logging.Logger
}

func NewModelStore(client *MinIOClient, log logging.Logger) ModelStore {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &minioModelStore{client: client, logger: log}
}

// ObjectKey maps a model id to "<prefix><id>.bayesian".
func ObjectKey(prefix, id string) string {
	return prefix + id + bayesian.FileExtension
}

func (s *minioModelStore) key(id string) string {
	return ObjectKey(s.client.Prefix(), id)
}

func (s *minioModelStore) idFromKey(key string) (string, bool) {
	rest, ok := strings.CutPrefix(key, s.client.Prefix())
	if !ok {
		return "", false
	}
	return strings.CutSuffix(rest, bayesian.FileExtension)
}

func isNoSuchKey(err error) bool {
	return minio.ToErrorResponse(err).Code == "NoSuchKey"
}

func notFound(id string) error {
	return errors.New(errors.ErrCodeModelNotFound, "model not found").WithDetail(id)
}

func (s *minioModelStore) Put(ctx context.Context, id, text string, metadata map[string]string) (*ModelObject, error) {
	if id == "" {
		return nil, errors.InvalidParam("model id is required")
	}
	api, err := s.client.API()
	if err != nil {
		return nil, err
	}

	key := s.key(id)
	info, err := api.PutObject(ctx, s.client.Bucket(), key, strings.NewReader(text), int64(len(text)), minio.PutObjectOptions{
		ContentType:  bayesian.ContentType,
		UserMetadata: metadata,
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeStorageError, "model upload failed")
	}

	s.logger.Debug("model stored", logging.String("key", key), logging.Int("bytes", len(text)))
	return &ModelObject{
		ID:           id,
		Key:          key,
		Size:         info.Size,
		ETag:         info.ETag,
		ContentType:  bayesian.ContentType,
		Metadata:     metadata,
		LastModified: info.LastModified,
	}, nil
}

func (s *minioModelStore) Get(ctx context.Context, id string) (string, error) {
	api, err := s.client.API()
	if err != nil {
		return "", err
	}
	data, _, err := api.ReadObject(ctx, s.client.Bucket(), s.key(id))
	if err != nil {
		if isNoSuchKey(err) {
			return "", notFound(id)
		}
		return "", errors.Wrap(err, errors.ErrCodeStorageError, "model download failed")
	}
	return string(data), nil
}

func (s *minioModelStore) Stat(ctx context.Context, id string) (*ModelObject, error) {
	api, err := s.client.API()
	if err != nil {
		return nil, err
	}
	key := s.key(id)
	info, err := api.StatObject(ctx, s.client.Bucket(), key, minio.StatObjectOptions{})
	if err != nil {
		if isNoSuchKey(err) {
			return nil, notFound(id)
		}
		return nil, errors.Wrap(err, errors.ErrCodeStorageError, "model stat failed")
	}
	return &ModelObject{
		ID:           id,
		Key:          key,
		Size:         info.Size,
		ETag:         info.ETag,
		ContentType:  info.ContentType,
		Metadata:     normalizeMetadata(info.UserMetadata),
		LastModified: info.LastModified,
	}, nil
}

func (s *minioModelStore) Delete(ctx context.Context, id string) error {
	api, err := s.client.API()
	if err != nil {
		return err
	}
	if err := api.RemoveObject(ctx, s.client.Bucket(), s.key(id), minio.RemoveObjectOptions{}); err != nil {
		return errors.Wrap(err, errors.ErrCodeStorageError, "model delete failed")
	}
	return nil
}

// List returns every object under the prefix that carries the model extension.
func (s *minioModelStore) List(ctx context.Context) ([]*ModelObject, error) {
	api, err := s.client.API()
	if err != nil {
		return nil, err
	}

	var out []*ModelObject
	for obj := range api.ListObjects(ctx, s.client.Bucket(), minio.ListObjectsOptions{
		Prefix:       s.client.Prefix(),
		Recursive:    true,
		WithMetadata: true,
	}) {
		if obj.Err != nil {
			return nil, errors.Wrap(obj.Err, errors.ErrCodeStorageError, "model listing failed")
		}
		id, ok := s.idFromKey(obj.Key)
		if !ok {
			continue
		}
		out = append(out, &ModelObject{
			ID:           id,
			Key:          obj.Key,
			Size:         obj.Size,
			ETag:         obj.ETag,
			ContentType:  obj.ContentType,
			Metadata:     normalizeMetadata(obj.UserMetadata),
			LastModified: obj.LastModified,
		})
	}
	return out, nil
}

// normalizeMetadata lower-cases user metadata keys and strips the S3 header
// prefix, which the server canonicalizes on the way back.
func normalizeMetadata(md map[string]string) map[string]string {
	if len(md) == 0 {
		return nil
	}
	out := make(map[string]string, len(md))
	for k, v := range md {
		k = strings.ToLower(k)
		k = strings.TrimPrefix(k, "x-amz-meta-")
		out[k] = v
	}
	return out
}
