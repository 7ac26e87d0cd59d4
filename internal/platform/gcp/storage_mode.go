package gcp

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

type ObjectStorageMode string

const (
	ObjectStorageModeGCS         ObjectStorageMode = "gcs"
	ObjectStorageModeGCSEmulator ObjectStorageMode = "gcs_emulator"
)

type ObjectStorageConfig struct {
	Bucket       string
	Mode         ObjectStorageMode
	EmulatorHost string
	// PublicBaseURL overrides the host handed to browsers, e.g. when the
	// emulator is reachable as fake-gcs inside compose but localhost outside.
	PublicBaseURL string
	Credentials   string
	URLTTL        time.Duration
}

type ObjectStorageConfigErrorCode string

const (
	ObjectStorageConfigErrorMissingBucket       ObjectStorageConfigErrorCode = "missing_bucket"
	ObjectStorageConfigErrorInvalidMode         ObjectStorageConfigErrorCode = "invalid_mode"
	ObjectStorageConfigErrorMissingEmulatorHost ObjectStorageConfigErrorCode = "missing_emulator_host"
	ObjectStorageConfigErrorInvalidURL          ObjectStorageConfigErrorCode = "invalid_url"
)

type ObjectStorageConfigError struct {
	Code  ObjectStorageConfigErrorCode
	Value string
	Cause error
}

func (e *ObjectStorageConfigError) Error() string {
	if e == nil {
		return "invalid object storage config"
	}
	switch e.Code {
	case ObjectStorageConfigErrorMissingBucket:
		return "object storage requires GCS_BUCKET_NAME"
	case ObjectStorageConfigErrorInvalidMode:
		return fmt.Sprintf("invalid OBJECT_STORAGE_MODE=%q (allowed: %q, %q)", e.Value, ObjectStorageModeGCS, ObjectStorageModeGCSEmulator)
	case ObjectStorageConfigErrorMissingEmulatorHost:
		return fmt.Sprintf("OBJECT_STORAGE_MODE=%q requires STORAGE_EMULATOR_HOST", ObjectStorageModeGCSEmulator)
	case ObjectStorageConfigErrorInvalidURL:
		return fmt.Sprintf("invalid storage url %q; expected absolute URL like http://fake-gcs:4443", e.Value)
	default:
		return "invalid object storage config"
	}
}

func (e *ObjectStorageConfigError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Normalize resolves the mode (an emulator host without an explicit mode
// selects the emulator), trims URLs and fills the URL lifetime.
func (cfg ObjectStorageConfig) Normalize() (ObjectStorageConfig, error) {
	out := cfg
	out.Bucket = strings.TrimSpace(out.Bucket)
	out.EmulatorHost = strings.TrimRight(strings.TrimSpace(out.EmulatorHost), "/")
	out.PublicBaseURL = strings.TrimRight(strings.TrimSpace(out.PublicBaseURL), "/")
	out.Mode = ObjectStorageMode(strings.ToLower(strings.TrimSpace(string(out.Mode))))
	if out.Mode == "" {
		out.Mode = ObjectStorageModeGCS
		if out.EmulatorHost != "" {
			out.Mode = ObjectStorageModeGCSEmulator
		}
	}
	if out.URLTTL <= 0 {
		out.URLTTL = 15 * time.Minute
	}

	if out.Bucket == "" {
		return out, &ObjectStorageConfigError{Code: ObjectStorageConfigErrorMissingBucket}
	}
	switch out.Mode {
	case ObjectStorageModeGCS:
	case ObjectStorageModeGCSEmulator:
		if out.EmulatorHost == "" {
			return out, &ObjectStorageConfigError{Code: ObjectStorageConfigErrorMissingEmulatorHost}
		}
		if err := checkAbsoluteURL(out.EmulatorHost); err != nil {
			return out, err
		}
	default:
		return out, &ObjectStorageConfigError{Code: ObjectStorageConfigErrorInvalidMode, Value: string(out.Mode)}
	}
	if out.PublicBaseURL != "" {
		if err := checkAbsoluteURL(out.PublicBaseURL); err != nil {
			return out, err
		}
	}
	return out, nil
}

func (cfg ObjectStorageConfig) IsEmulatorMode() bool {
	return cfg.Mode == ObjectStorageModeGCSEmulator
}

func checkAbsoluteURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || strings.TrimSpace(u.Scheme) == "" || strings.TrimSpace(u.Host) == "" {
		return &ObjectStorageConfigError{Code: ObjectStorageConfigErrorInvalidURL, Value: raw, Cause: err}
	}
	return nil
}
