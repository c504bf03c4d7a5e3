package storage

import (
	"fmt"
	"path/filepath"
	"strings"
)

// MaxBucketNameLength bounds bucket names to what every mainstream
// filesystem accepts as a single directory entry.
const MaxBucketNameLength = 255

// ValidateBucketName validates a bucket name. Names are used verbatim as
// directory names under the storage root, so anything that could change the
// directory level is rejected. Case is preserved as given.
func ValidateBucketName(name string) error {
	if name == "" {
		return ErrInvalidBucketName
	}
	if len(name) > MaxBucketNameLength {
		return fmt.Errorf("%w: name must be at most %d characters", ErrInvalidBucketName, MaxBucketNameLength)
	}
	if strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("%w: name must not contain path separators", ErrInvalidBucketName)
	}
	if name == "." || name == ".." {
		return fmt.Errorf("%w: name must not be a relative path segment", ErrInvalidBucketName)
	}
	return nil
}

// ValidateKey validates an object key. Keys may contain forward slashes to
// emulate pseudo-directories but must never resolve outside their bucket.
// A trailing slash is only legal for directory markers.
//
// Keys ending in ".metadata" or with a ".directory" segment are accepted but
// share a namespace with the sidecar and marker files the filesystem backend
// writes: such an object can be clobbered by another object's sidecar and is
// hidden from listings.
func ValidateKey(key string) error {
	if key == "" {
		return ErrInvalidKey
	}
	if strings.HasPrefix(key, "/") {
		return fmt.Errorf("%w: key must not be absolute", ErrInvalidKey)
	}
	// Backslashes are rejected outright: on Windows they act as separators
	// and mixed separators are a classic traversal vector.
	if strings.Contains(key, `\`) {
		return fmt.Errorf("%w: key must not contain backslashes", ErrInvalidKey)
	}
	for _, segment := range strings.Split(strings.TrimSuffix(key, "/"), "/") {
		if segment == "" {
			return fmt.Errorf("%w: key must not contain empty path segments", ErrInvalidKey)
		}
		if segment == "." || segment == ".." {
			return fmt.Errorf("%w: key must not contain relative path segments", ErrInvalidKey)
		}
	}
	return nil
}

// ResolveBucketPath maps a bucket name to its directory under root.
// Pure function of its inputs; no filesystem access.
func ResolveBucketPath(root, bucket string) (string, error) {
	if err := ValidateBucketName(bucket); err != nil {
		return "", err
	}
	return filepath.Join(root, bucket), nil
}

// ResolveObjectPath maps a (bucket, key) pair to a canonical filesystem
// path. The resolved path is re-checked for containment under the bucket
// directory rather than trusted by construction.
func ResolveObjectPath(root, bucket, key string) (string, error) {
	bucketPath, err := ResolveBucketPath(root, bucket)
	if err != nil {
		return "", err
	}
	if err := ValidateKey(key); err != nil {
		return "", err
	}

	full := filepath.Join(bucketPath, filepath.FromSlash(strings.TrimSuffix(key, "/")))
	if !strings.HasPrefix(full, bucketPath+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: key resolves outside its bucket", ErrInvalidKey)
	}
	return full, nil
}
