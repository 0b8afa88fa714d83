// Package storage keeps uploaded profile and menu images.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/disintegration/imaging"
	"github.com/google/uuid"

	"github.com/bellyrush/marketplace/internal/config"
)

// MaxDimension bounds the longest side of a stored image
const MaxDimension = 1024

// DefaultMaxPixels is used when a store is built without a pixel limit
const DefaultMaxPixels = 40_000_000

// ErrInvalidImage is returned for uploads that cannot or may not be decoded
var ErrInvalidImage = errors.New("invalid image")

// ImageStore saves a normalized JPEG and returns the URL it is served from.
// Delete removes an image previously returned by Save.
type ImageStore interface {
	Save(ctx context.Context, folder string, r io.Reader) (string, error)
	Delete(ctx context.Context, url string) error
}

// Normalize decodes any supported image, fits it into MaxDimension and
// re-encodes it as JPEG. The header is checked first so that images larger
// than maxPixels are refused before their pixels are allocated.
func Normalize(r io.Reader, maxPixels int) ([]byte, error) {
	if maxPixels <= 0 {
		maxPixels = DefaultMaxPixels
	}

	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || int64(cfg.Width)*int64(cfg.Height) > int64(maxPixels) {
		return nil, fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrInvalidImage, cfg.Width, cfg.Height, maxPixels)
	}

	img, err := imaging.Decode(bytes.NewReader(raw), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}

	b := img.Bounds()
	if b.Dx() > MaxDimension || b.Dy() > MaxDimension {
		img = imaging.Fit(img, MaxDimension, MaxDimension, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(85)); err != nil {
		return nil, fmt.Errorf("encode image: %w", err)
	}
	return buf.Bytes(), nil
}

func newKey(folder string) string {
	return path.Join(folder, uuid.NewString()+".jpg")
}

// Local writes images below Dir; they are served by the router under /uploads/
type Local struct {
	Dir       string
	BaseURL   string
	MaxPixels int
}

func NewLocal(dir, baseURL string) *Local {
	if baseURL == "" {
		baseURL = "/uploads"
	}
	return &Local{Dir: dir, BaseURL: strings.TrimRight(baseURL, "/"), MaxPixels: DefaultMaxPixels}
}

func (l *Local) Save(_ context.Context, folder string, r io.Reader) (string, error) {
	data, err := Normalize(r, l.MaxPixels)
	if err != nil {
		return "", err
	}

	key := newKey(folder)
	dst := filepath.Join(l.Dir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", fmt.Errorf("create upload dir: %w", err)
	}
	if err := os.WriteFile(dst, data, 0o644); err != nil {
		return "", fmt.Errorf("write image: %w", err)
	}
	return l.BaseURL + "/" + key, nil
}

func (l *Local) Delete(_ context.Context, u string) error {
	key, ok := strings.CutPrefix(u, l.BaseURL+"/")
	if !ok || key == "" {
		return fmt.Errorf("%q is not a local upload", u)
	}
	dst := filepath.Join(l.Dir, filepath.FromSlash(path.Clean("/"+key)))
	if err := os.Remove(dst); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove image: %w", err)
	}
	return nil
}

// S3 uploads images to a bucket and returns their public object URL
type S3 struct {
	client    *s3.Client
	uploader  *manager.Uploader
	bucket    string
	region    string
	endpoint  string
	maxPixels int
}

func NewS3(ctx context.Context, cfg config.S3, maxPixels int) (*S3, error) {
	awsConfig, err := awscfg.LoadDefaultConfig(ctx, awscfg.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return &S3{
		client:    client,
		uploader:  manager.NewUploader(client),
		bucket:    cfg.Bucket,
		region:    cfg.Region,
		endpoint:  strings.TrimRight(cfg.Endpoint, "/"),
		maxPixels: maxPixels,
	}, nil
}

func (s *S3) Save(ctx context.Context, folder string, r io.Reader) (string, error) {
	data, err := Normalize(r, s.maxPixels)
	if err != nil {
		return "", err
	}

	key := newKey(folder)
	_, err = s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("image/jpeg"),
	})
	if err != nil {
		return "", fmt.Errorf("upload image: %w", err)
	}
	return s.objectURL(key), nil
}

func (s *S3) Delete(ctx context.Context, u string) error {
	key, ok := strings.CutPrefix(u, s.objectURL(""))
	if !ok || key == "" {
		return fmt.Errorf("%q is not in bucket %s", u, s.bucket)
	}
	if unescaped, err := url.PathUnescape(key); err == nil {
		key = unescaped
	}
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("delete image: %w", err)
	}
	return nil
}

func (s *S3) objectURL(key string) string {
	escaped := (&url.URL{Path: key}).EscapedPath()
	if s.endpoint != "" {
		return fmt.Sprintf("%s/%s/%s", s.endpoint, s.bucket, escaped)
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.bucket, s.region, escaped)
}

// Open returns the store selected by cfg
func Open(ctx context.Context, cfg config.Storage) (ImageStore, error) {
	switch cfg.Driver {
	case config.StorageS3:
		return NewS3(ctx, cfg.S3, cfg.MaxPixels)
	case config.StorageLocal, "":
		l := NewLocal(cfg.LocalDir, cfg.BaseURL)
		if cfg.MaxPixels > 0 {
			l.MaxPixels = cfg.MaxPixels
		}
		return l, nil
	}
	return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
}

