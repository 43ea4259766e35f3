// Package storage is the file-storage collaborator used to relocate
// submitted uploads out of the request body.
package storage

import (
	"context"
	"io"
	"net/url"
	"path"

	"github.com/mbolis/form-forge/config"
	minio "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type Store interface {
	Upload(ctx context.Context, object string, contentType string, r io.Reader, size int64) error
	PublicURL(object string) string
}

type Minio struct {
	client *minio.Client
	bucket string
}

func NewMinio(ctx context.Context, cfg config.StorageConfig) (*Minio, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, err
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, err
	}
	if !exists {
		err = client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{})
		if err != nil {
			return nil, err
		}
	}

	return &Minio{client: client, bucket: cfg.Bucket}, nil
}

func (m *Minio) Upload(ctx context.Context, object string, contentType string, r io.Reader, size int64) error {
	_, err := m.client.PutObject(ctx, m.bucket, object, r, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	return err
}

func (m *Minio) PublicURL(object string) string {
	endpoint := m.client.EndpointURL()
	u := url.URL{
		Scheme: endpoint.Scheme,
		Host:   endpoint.Host,
		Path:   path.Join("/", m.bucket, object),
	}
	return u.String()
}
