package storage

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"io"
	"sort"
	"strings"
	"sync"
	"time"
)

// memoryObject holds one stored object and its metadata
type memoryObject struct {
	data        []byte
	contentType string
	etag        string
	metadata    map[string]string
	modified    time.Time
}

// memoryBucket holds a bucket's objects keyed by object key
type memoryBucket struct {
	created time.Time
	objects map[string]*memoryObject
}

// MemoryBackend implements the Backend interface entirely in memory. It is
// used by tests and exercises the same resolver and error taxonomy as the
// filesystem backend.
type MemoryBackend struct {
	mu      sync.RWMutex
	buckets map[string]*memoryBucket
}

// NewMemoryBackend creates a new in-memory storage backend
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		buckets: make(map[string]*memoryBucket),
	}
}

func (m *MemoryBackend) CreateBucket(ctx context.Context, name string) error {
	if err := ValidateBucketName(name); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.buckets[name]; ok {
		return ErrBucketAlreadyExists
	}
	m.buckets[name] = &memoryBucket{
		created: time.Now(),
		objects: make(map[string]*memoryObject),
	}
	return nil
}

func (m *MemoryBackend) ListBuckets(ctx context.Context) ([]BucketInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	buckets := make([]BucketInfo, 0, len(m.buckets))
	for name, b := range m.buckets {
		buckets = append(buckets, BucketInfo{Name: name, CreationDate: b.created})
	}
	sort.Slice(buckets, func(i, j int) bool { return buckets[i].Name < buckets[j].Name })
	return buckets, nil
}

func (m *MemoryBackend) BucketExists(ctx context.Context, name string) (bool, error) {
	if err := ValidateBucketName(name); err != nil {
		return false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.buckets[name]
	return ok, nil
}

func (m *MemoryBackend) DeleteBucket(ctx context.Context, name string, force bool) error {
	if err := ValidateBucketName(name); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.buckets[name]
	if !ok {
		return ErrBucketNotFound
	}
	if len(b.objects) > 0 && !force {
		return ErrBucketNotEmpty
	}
	delete(m.buckets, name)
	return nil
}

func (m *MemoryBackend) PutObject(ctx context.Context, bucket, key string, data io.Reader, contentType string, userMeta map[string]string) (*ObjectInfo, error) {
	if err := ValidateBucketName(bucket); err != nil {
		return nil, err
	}
	if err := ValidateKey(key); err != nil {
		return nil, err
	}

	var content []byte
	if data != nil {
		var err error
		content, err = io.ReadAll(data)
		if err != nil {
			return nil, NewErrorWithCause("WriteData", "Failed to read object data", err)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.buckets[bucket]
	if !ok {
		return nil, ErrBucketNotFound
	}

	sum := md5.Sum(content)
	obj := &memoryObject{
		data:        content,
		contentType: contentType,
		etag:        hex.EncodeToString(sum[:]),
		metadata:    userMeta,
		modified:    time.Now(),
	}
	b.objects[key] = obj

	return m.objectInfo(bucket, key, obj), nil
}

// GetObject looks up the object and copies its data in a single critical
// section, so a concurrent delete cannot invalidate the entry between the
// lookup and the read.
func (m *MemoryBackend) GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, *ObjectInfo, error) {
	if err := ValidateBucketName(bucket); err != nil {
		return nil, nil, err
	}
	if err := ValidateKey(key); err != nil {
		return nil, nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.buckets[bucket]
	if !ok {
		return nil, nil, ErrBucketNotFound
	}
	obj, ok := b.objects[key]
	if !ok {
		return nil, nil, ErrObjectNotFound
	}

	data := make([]byte, len(obj.data))
	copy(data, obj.data)
	return io.NopCloser(bytes.NewReader(data)), m.objectInfo(bucket, key, obj), nil
}

func (m *MemoryBackend) StatObject(ctx context.Context, bucket, key string) (*ObjectInfo, error) {
	if err := ValidateBucketName(bucket); err != nil {
		return nil, err
	}
	if err := ValidateKey(key); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.buckets[bucket]
	if !ok {
		return nil, ErrBucketNotFound
	}
	obj, ok := b.objects[key]
	if !ok {
		return nil, ErrObjectNotFound
	}
	return m.objectInfo(bucket, key, obj), nil
}

func (m *MemoryBackend) DeleteObject(ctx context.Context, bucket, key string) error {
	if err := ValidateBucketName(bucket); err != nil {
		return err
	}
	if err := ValidateKey(key); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.buckets[bucket]
	if !ok {
		return ErrBucketNotFound
	}
	if _, ok := b.objects[key]; !ok {
		return ErrObjectNotFound
	}
	delete(b.objects, key)
	return nil
}

func (m *MemoryBackend) ListObjects(ctx context.Context, bucket, prefix string) ([]ObjectInfo, error) {
	if err := ValidateBucketName(bucket); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.buckets[bucket]
	if !ok {
		return nil, ErrBucketNotFound
	}

	objects := []ObjectInfo{}
	for key, obj := range b.objects {
		if strings.HasSuffix(key, "/") {
			continue // directory markers are not listable objects
		}
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		objects = append(objects, *m.objectInfo(bucket, key, obj))
	}
	sort.Slice(objects, func(i, j int) bool { return objects[i].Key < objects[j].Key })
	return objects, nil
}

func (m *MemoryBackend) CreateDirectory(ctx context.Context, bucket, dirPath string) error {
	key := strings.TrimSuffix(dirPath, "/") + "/"
	_, err := m.PutObject(ctx, bucket, key, bytes.NewReader(nil), "application/x-directory", nil)
	return err
}

func (m *MemoryBackend) Close() error {
	return nil
}

func (m *MemoryBackend) objectInfo(bucket, key string, obj *memoryObject) *ObjectInfo {
	return &ObjectInfo{
		Key:          key,
		Bucket:       bucket,
		Size:         int64(len(obj.data)),
		LastModified: obj.modified,
		ContentType:  resolveContentType(key, obj.contentType),
		ETag:         obj.etag,
		Metadata:     obj.metadata,
	}
}
