package storage

import "time"

// Common storage errors
var (
	ErrInvalidBucketName   = NewError("InvalidBucketName", "The specified bucket name is not valid")
	ErrInvalidKey          = NewError("InvalidKey", "The specified object key is not valid")
	ErrBucketAlreadyExists = NewError("BucketAlreadyExists", "The requested bucket name already exists")
	ErrBucketNotFound      = NewError("BucketNotFound", "The specified bucket does not exist")
	ErrBucketNotEmpty      = NewError("BucketNotEmpty", "The bucket you tried to delete is not empty")
	ErrObjectNotFound      = NewError("ObjectNotFound", "The specified object does not exist")
)

// StorageError represents a storage-specific error
type StorageError struct {
	Code    string
	Message string
	Cause   error
}

func (e *StorageError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *StorageError) Unwrap() error {
	return e.Cause
}

// NewError creates a new storage error
func NewError(code, message string) *StorageError {
	return &StorageError{
		Code:    code,
		Message: message,
	}
}

// NewErrorWithCause creates a new storage error with underlying cause.
// Used for unexpected filesystem failures (permissions, disk full, I/O);
// these are never collapsed into the not-found sentinels.
func NewErrorWithCause(code, message string, cause error) *StorageError {
	return &StorageError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// BucketInfo describes a bucket for listing responses
type BucketInfo struct {
	Name         string    `json:"name"`
	CreationDate time.Time `json:"creation_date"`
}

// ObjectInfo describes a stored object. For listing responses it is a
// transient value object, never persisted.
type ObjectInfo struct {
	Key          string            `json:"key"`
	Bucket       string            `json:"bucket"`
	Size         int64             `json:"size"`
	LastModified time.Time         `json:"last_modified"`
	ContentType  string            `json:"content_type"`
	ETag         string            `json:"etag,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}
