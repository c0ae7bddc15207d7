package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MaxLogoBytes caps an uploaded company logo.
const MaxLogoBytes = 2 << 20

var (
	ErrTooLarge        = errors.New("logo exceeds 2 MiB")
	ErrUnsupportedType = errors.New("logo must be png, jpeg or webp")
)

var allowedTypes = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/webp": ".webp",
}

type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	// PublicURL, when set, replaces the endpoint in returned object URLs
	// (e.g. a CDN in front of the bucket).
	PublicURL string
}

// Logos stores company logos in an S3-compatible bucket.
type Logos struct {
	client    *minio.Client
	bucket    string
	publicURL string
}

// NewLogos connects to the object store and makes sure the bucket exists.
func NewLogos(ctx context.Context, cfg Config) (*Logos, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create object store client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", cfg.Bucket, err)
		}
	}

	publicURL := strings.TrimRight(cfg.PublicURL, "/")
	if publicURL == "" {
		publicURL = strings.TrimRight(client.EndpointURL().String(), "/")
	}
	return &Logos{client: client, bucket: cfg.Bucket, publicURL: publicURL}, nil
}

// ReadLogo reads an upload body, rejecting anything over MaxLogoBytes.
func ReadLogo(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxLogoBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read logo: %w", err)
	}
	if len(data) > MaxLogoBytes {
		return nil, ErrTooLarge
	}
	return data, nil
}

// Sniff detects the image type from the content itself; the client's
// declared content type is not trusted.
func Sniff(data []byte) (contentType, ext string, err error) {
	detected := mimetype.Detect(data).String()
	ext, ok := allowedTypes[detected]
	if !ok {
		return "", "", ErrUnsupportedType
	}
	return detected, ext, nil
}

// Upload stores a logo under a fresh key and returns its public URL.
func (l *Logos) Upload(ctx context.Context, companyID string, data []byte) (string, error) {
	contentType, ext, err := Sniff(data)
	if err != nil {
		return "", err
	}
	key := objectKey(companyID, uuid.NewString(), ext)
	_, err = l.client.PutObject(ctx, l.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType:  contentType,
		CacheControl: "public, max-age=31536000, immutable",
	})
	if err != nil {
		return "", fmt.Errorf("put logo: %w", err)
	}
	return objectURL(l.publicURL, l.bucket, key), nil
}

// Ping reports whether the bucket is reachable.
func (l *Logos) Ping(ctx context.Context) error {
	_, err := l.client.BucketExists(ctx, l.bucket)
	return err
}

func objectKey(companyID, id, ext string) string {
	return "companies/" + companyID + "/logo-" + id + ext
}

func objectURL(base, bucket, key string) string {
	return base + "/" + bucket + "/" + key
}
