package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/yungbote/kierachat-backend/internal/pkg/logger"
	"github.com/yungbote/kierachat-backend/internal/platform/gcp"
)

type stubObjectStore struct{}

func (stubObjectStore) UploadURL(context.Context, string, string) (*gcp.UploadTarget, error) {
	return &gcp.UploadTarget{}, nil
}
func (stubObjectStore) ReadURL(context.Context, string) (string, time.Time, error) {
	return "", time.Time{}, nil
}
func (stubObjectStore) Attrs(context.Context, string) (*gcp.ObjectAttrs, error) {
	return nil, nil
}
func (stubObjectStore) Close() error { return nil }

func stubNewObjectStore(t *testing.T, fn func(cfg gcp.ObjectStorageConfig) (gcp.ObjectStore, error)) {
	t.Helper()
	prev := newObjectStore
	newObjectStore = func(_ context.Context, _ *logger.Logger, cfg gcp.ObjectStorageConfig) (gcp.ObjectStore, error) {
		return fn(cfg)
	}
	t.Cleanup(func() { newObjectStore = prev })
}

func TestClassifyStorageProviderBootstrapError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want StorageProviderBootstrapErrorCode
	}{
		{"invalid mode", &gcp.ObjectStorageConfigError{Code: gcp.ObjectStorageConfigErrorInvalidMode, Value: "s3"}, StorageProviderBootstrapErrorInvalidMode},
		{"missing emulator host", &gcp.ObjectStorageConfigError{Code: gcp.ObjectStorageConfigErrorMissingEmulatorHost}, StorageProviderBootstrapErrorMissingEmulatorHost},
		{"invalid url", &gcp.ObjectStorageConfigError{Code: gcp.ObjectStorageConfigErrorInvalidURL, Value: "::"}, StorageProviderBootstrapErrorInvalidURL},
		{"wrapped config error", errors.Join(errors.New("validate"), &gcp.ObjectStorageConfigError{Code: gcp.ObjectStorageConfigErrorInvalidMode}), StorageProviderBootstrapErrorInvalidMode},
		{"anything else", errors.New("dial tcp: connection refused"), StorageProviderBootstrapErrorConnectFailed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := classifyStorageProviderBootstrapError(gcp.ObjectStorageConfig{Mode: gcp.ObjectStorageModeGCS}, tc.err)
			var got *StorageProviderBootstrapError
			if !errors.As(err, &got) {
				t.Fatalf("expected StorageProviderBootstrapError, got=%T", err)
			}
			if got.Code != tc.want {
				t.Fatalf("code: want=%q got=%q", tc.want, got.Code)
			}
			if !errors.Is(err, tc.err) {
				t.Fatalf("cause not preserved: %v", err)
			}
		})
	}
}

func TestResolveObjectStoreDisabledWithoutBucket(t *testing.T) {
	called := false
	stubNewObjectStore(t, func(gcp.ObjectStorageConfig) (gcp.ObjectStore, error) {
		called = true
		return stubObjectStore{}, nil
	})
	store, err := resolveObjectStore(context.Background(), logger.Nop(), Config{GCSBucketName: "  "})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store != nil || called {
		t.Fatalf("expected uploads to stay disabled")
	}
}

func TestResolveObjectStorePassesConfig(t *testing.T) {
	var seen gcp.ObjectStorageConfig
	stubNewObjectStore(t, func(cfg gcp.ObjectStorageConfig) (gcp.ObjectStore, error) {
		seen = cfg
		return stubObjectStore{}, nil
	})
	store, err := resolveObjectStore(context.Background(), logger.Nop(), Config{
		GCSBucketName:       "chat-uploads",
		StorageEmulatorHost: " http://fake-gcs:4443 ",
		StorageURLTTL:       time.Minute,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store == nil {
		t.Fatalf("expected a store")
	}
	if seen.Bucket != "chat-uploads" || seen.EmulatorHost != "http://fake-gcs:4443" || seen.URLTTL != time.Minute {
		t.Fatalf("unexpected config: %+v", seen)
	}
}

func TestResolveObjectStoreClassifiesFailure(t *testing.T) {
	stubNewObjectStore(t, func(cfg gcp.ObjectStorageConfig) (gcp.ObjectStore, error) {
		return nil, &gcp.ObjectStorageConfigError{Code: gcp.ObjectStorageConfigErrorMissingEmulatorHost}
	})
	_, err := resolveObjectStore(context.Background(), logger.Nop(), Config{GCSBucketName: "b", StorageMode: "gcs_emulator"})
	if got := storageProviderBootstrapErrorCode(err); got != StorageProviderBootstrapErrorMissingEmulatorHost {
		t.Fatalf("code: got=%q", got)
	}
}
