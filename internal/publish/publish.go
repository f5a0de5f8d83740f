// Package publish uploads finished render artifacts to S3-compatible object
// storage.
package publish

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"chartreel/internal/config"
	"chartreel/internal/logging"
	"chartreel/internal/services"
)

const contentType = "video/mp4"

// objectStore is the subset of *minio.Client the publisher needs.
type objectStore interface {
	BucketExists(ctx context.Context, bucket string) (bool, error)
	MakeBucket(ctx context.Context, bucket string, opts minio.MakeBucketOptions) error
	FPutObject(ctx context.Context, bucket, object, filePath string, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	EndpointURL() *url.URL
}

// Publisher uploads artifacts into one bucket under a key prefix.
type Publisher struct {
	client objectStore
	bucket string
	region string
	prefix string
	logger *slog.Logger
}

// New builds a Publisher from storage settings. It returns nil, nil when
// publishing is disabled.
func New(cfg config.Storage, logger *slog.Logger) (*Publisher, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "publish", "init", "create object storage client", err)
	}
	return newPublisher(client, cfg, logger), nil
}

func newPublisher(client objectStore, cfg config.Storage, logger *slog.Logger) *Publisher {
	return &Publisher{
		client: client,
		bucket: cfg.Bucket,
		region: cfg.Region,
		prefix: strings.Trim(cfg.Prefix, "/"),
		logger: logging.NewComponentLogger(logger, "publish"),
	}
}

// ObjectKey is where the artifact for jobID is stored.
func (p *Publisher) ObjectKey(jobID string) string {
	return path.Join(p.prefix, jobID+".mp4")
}

// Publish uploads the file at artifact for jobID and returns its URL.
func (p *Publisher) Publish(ctx context.Context, jobID, artifact string) (string, error) {
	if p == nil {
		return "", nil
	}
	exists, err := p.client.BucketExists(ctx, p.bucket)
	if err != nil {
		return "", services.Wrap(services.ErrTransient, "publish", "check bucket", p.bucket, err)
	}
	if !exists {
		if err := p.client.MakeBucket(ctx, p.bucket, minio.MakeBucketOptions{Region: p.region}); err != nil {
			return "", services.Wrap(services.ErrExternalTool, "publish", "create bucket", p.bucket, err)
		}
		p.logger.Info("created artifact bucket", logging.String("bucket", p.bucket))
	}

	key := p.ObjectKey(jobID)
	info, err := p.client.FPutObject(ctx, p.bucket, key, artifact, minio.PutObjectOptions{
		ContentType:        contentType,
		ContentDisposition: `attachment; filename="infographic.mp4"`,
		UserMetadata:       map[string]string{"job-id": jobID},
	})
	if err != nil {
		return "", services.Wrap(services.ErrTransient, "publish", "upload", key, err)
	}
	location := p.objectURL(key)
	p.logger.Info("artifact published",
		logging.String(logging.FieldJobID, jobID),
		logging.String("object", key),
		logging.Int64("bytes", info.Size),
		logging.String("url", location),
		logging.String(logging.FieldEventType, "artifact_published"),
	)
	return location, nil
}

func (p *Publisher) objectURL(key string) string {
	endpoint := p.client.EndpointURL()
	if endpoint == nil {
		return fmt.Sprintf("s3://%s/%s", p.bucket, key)
	}
	u := *endpoint
	u.Path = path.Join("/", p.bucket, key)
	return u.String()
}
