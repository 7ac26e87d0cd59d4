package gcp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	pkgerrors "github.com/yungbote/kierachat-backend/internal/pkg/errors"
	"github.com/yungbote/kierachat-backend/internal/pkg/logger"
)

// UploadTarget is what a browser needs to put bytes straight into the bucket.
type UploadTarget struct {
	URL       string            `json:"uploadUrl"`
	Method    string            `json:"method"`
	Headers   map[string]string `json:"headers,omitempty"`
	ExpiresAt time.Time         `json:"expiresAt"`
}

type ObjectAttrs struct {
	Size        int64
	ContentType string
	Updated     time.Time
}

// ObjectStore is the blob boundary: the API never streams attachment bytes
// itself, it only hands out short-lived URLs.
type ObjectStore interface {
	UploadURL(ctx context.Context, key string, contentType string) (*UploadTarget, error)
	ReadURL(ctx context.Context, key string) (string, time.Time, error)
	Attrs(ctx context.Context, key string) (*ObjectAttrs, error)
	Close() error
}

type objectStore struct {
	log    *logger.Logger
	cfg    ObjectStorageConfig
	client *storage.Client
	now    func() time.Time
}

func NewObjectStore(ctx context.Context, log *logger.Logger, cfg ObjectStorageConfig) (ObjectStore, error) {
	cfg, err := cfg.Normalize()
	if err != nil {
		return nil, fmt.Errorf("validate object storage config: %w", err)
	}
	client, err := newStorageClientForMode(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	serviceLog := log.With("service", "ObjectStore")
	serviceLog.Info("Object storage initialized",
		"mode", cfg.Mode,
		"bucket", cfg.Bucket,
		"emulator_host", cfg.EmulatorHost,
		"public_base_url", cfg.PublicBaseURL,
	)
	return &objectStore{log: serviceLog, cfg: cfg, client: client, now: time.Now}, nil
}

func newStorageClientForMode(ctx context.Context, cfg ObjectStorageConfig) (*storage.Client, error) {
	switch cfg.Mode {
	case ObjectStorageModeGCS:
		opts := ClientOptions(cfg.Credentials)
		opts = append(opts, option.WithScopes(storage.ScopeReadWrite))
		return storage.NewClient(ctx, opts...)
	case ObjectStorageModeGCSEmulator:
		_ = os.Setenv("STORAGE_EMULATOR_HOST", cfg.EmulatorHost)
		return storage.NewClient(ctx, option.WithoutAuthentication())
	default:
		return nil, &ObjectStorageConfigError{Code: ObjectStorageConfigErrorInvalidMode, Value: string(cfg.Mode)}
	}
}

func (s *objectStore) Close() error {
	if s.client == nil {
		return nil
	}
	return s.client.Close()
}

// emulatorBase is the host the browser should talk to in emulator mode.
func (s *objectStore) emulatorBase() string {
	if s.cfg.PublicBaseURL != "" {
		return s.cfg.PublicBaseURL
	}
	return s.cfg.EmulatorHost
}

func (s *objectStore) UploadURL(ctx context.Context, key string, contentType string) (*UploadTarget, error) {
	key = strings.TrimLeft(strings.TrimSpace(key), "/")
	if key == "" {
		return nil, fmt.Errorf("empty object key: %w", pkgerrors.ErrInvalidArgument)
	}
	expires := s.now().Add(s.cfg.URLTTL)
	headers := map[string]string{}
	if contentType != "" {
		headers["Content-Type"] = contentType
	}

	if s.cfg.IsEmulatorMode() {
		q := url.Values{}
		q.Set("uploadType", "media")
		q.Set("name", key)
		return &UploadTarget{
			URL:       fmt.Sprintf("%s/upload/storage/v1/b/%s/o?%s", s.emulatorBase(), url.PathEscape(s.cfg.Bucket), q.Encode()),
			Method:    http.MethodPost,
			Headers:   headers,
			ExpiresAt: expires,
		}, nil
	}

	signed, err := s.client.Bucket(s.cfg.Bucket).SignedURL(key, &storage.SignedURLOptions{
		Scheme:      storage.SigningSchemeV4,
		Method:      http.MethodPut,
		ContentType: contentType,
		Expires:     expires,
	})
	if err != nil {
		return nil, fmt.Errorf("sign upload url for %q: %w", key, err)
	}
	return &UploadTarget{URL: signed, Method: http.MethodPut, Headers: headers, ExpiresAt: expires}, nil
}

func (s *objectStore) ReadURL(ctx context.Context, key string) (string, time.Time, error) {
	key = strings.TrimLeft(strings.TrimSpace(key), "/")
	if key == "" {
		return "", time.Time{}, fmt.Errorf("empty object key: %w", pkgerrors.ErrInvalidArgument)
	}
	expires := s.now().Add(s.cfg.URLTTL)
	if s.cfg.IsEmulatorMode() {
		return fmt.Sprintf("%s/storage/v1/b/%s/o/%s?alt=media",
			s.emulatorBase(),
			url.PathEscape(s.cfg.Bucket),
			url.PathEscape(key),
		), expires, nil
	}
	signed, err := s.client.Bucket(s.cfg.Bucket).SignedURL(key, &storage.SignedURLOptions{
		Scheme:  storage.SigningSchemeV4,
		Method:  http.MethodGet,
		Expires: expires,
	})
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign read url for %q: %w", key, err)
	}
	return signed, expires, nil
}

func (s *objectStore) Attrs(ctx context.Context, key string) (*ObjectAttrs, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	attrs, err := s.client.Bucket(s.cfg.Bucket).Object(key).Attrs(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, fmt.Errorf("object %q: %w", key, pkgerrors.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch GCS object attrs: %w", err)
	}
	return &ObjectAttrs{
		Size:        attrs.Size,
		ContentType: attrs.ContentType,
		Updated:     attrs.Updated,
	}, nil
}
