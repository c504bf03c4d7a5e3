package storage

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"
)

const (
	// metadataSuffix is appended to an object's file name to form its
	// sidecar metadata record. Sidecars never exist without their object.
	metadataSuffix = ".metadata"

	// directoryMarkerName marks a directory that was created explicitly
	// (directory-marker upload or the directories endpoint) rather than
	// implied by a nested key.
	directoryMarkerName = ".directory"

	defaultContentType = "application/octet-stream"
)

// sidecarRecord is the per-object metadata stored next to the object file.
// Content type is recorded here on Put and read back on Get/Stat so the two
// sides stay symmetric across restarts.
type sidecarRecord struct {
	ContentType string            `json:"content_type,omitempty"`
	ETag        string            `json:"etag,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// FilesystemBackend implements the Backend interface for local filesystem
// storage. One directory per bucket under the root, one file per object at a
// path equal to its key.
type FilesystemBackend struct {
	rootPath string
}

// NewFilesystemBackend creates a new filesystem storage backend
func NewFilesystemBackend(config Config) (*FilesystemBackend, error) {
	if err := os.MkdirAll(config.Root, 0755); err != nil {
		return nil, NewErrorWithCause("CreateRootDir", "Failed to create storage root", err)
	}
	return &FilesystemBackend{rootPath: config.Root}, nil
}

// GetRootPath returns the configured storage root
func (fs *FilesystemBackend) GetRootPath() string {
	return fs.rootPath
}

// CreateBucket creates the bucket directory. os.Mkdir has create-if-absent
// semantics, so a concurrent duplicate create fails cleanly instead of
// silently succeeding twice.
func (fs *FilesystemBackend) CreateBucket(ctx context.Context, name string) error {
	bucketPath, err := ResolveBucketPath(fs.rootPath, name)
	if err != nil {
		return err
	}

	if err := os.Mkdir(bucketPath, 0755); err != nil {
		if os.IsExist(err) {
			return ErrBucketAlreadyExists
		}
		return NewErrorWithCause("CreateBucket", "Failed to create bucket directory", err)
	}

	logrus.WithField("bucket", name).Debug("Created bucket directory")
	return nil
}

// ListBuckets enumerates all bucket directories under the storage root.
// Results are sorted lexicographically by name; directory-entry order is not
// stable across platforms.
func (fs *FilesystemBackend) ListBuckets(ctx context.Context) ([]BucketInfo, error) {
	entries, err := os.ReadDir(fs.rootPath)
	if err != nil {
		return nil, NewErrorWithCause("ListBuckets", "Failed to read storage root", err)
	}

	buckets := make([]BucketInfo, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue // removed concurrently
		}
		buckets = append(buckets, BucketInfo{
			Name:         entry.Name(),
			CreationDate: info.ModTime(),
		})
	}

	sort.Slice(buckets, func(i, j int) bool { return buckets[i].Name < buckets[j].Name })
	return buckets, nil
}

// BucketExists checks if a bucket directory is present
func (fs *FilesystemBackend) BucketExists(ctx context.Context, name string) (bool, error) {
	bucketPath, err := ResolveBucketPath(fs.rootPath, name)
	if err != nil {
		return false, err
	}

	info, err := os.Stat(bucketPath)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, NewErrorWithCause("StatBucket", "Failed to stat bucket directory", err)
	}
	return info.IsDir(), nil
}

// DeleteBucket removes an empty bucket directory. With force set, all
// contents are removed first. The final os.Remove itself fails on a bucket
// that picked up new content in the meantime, so a successful return always
// means the directory is gone.
func (fs *FilesystemBackend) DeleteBucket(ctx context.Context, name string, force bool) error {
	bucketPath, err := ResolveBucketPath(fs.rootPath, name)
	if err != nil {
		return err
	}

	if _, err := os.Stat(bucketPath); os.IsNotExist(err) {
		return ErrBucketNotFound
	} else if err != nil {
		return NewErrorWithCause("StatBucket", "Failed to stat bucket directory", err)
	}

	entries, err := os.ReadDir(bucketPath)
	if err != nil {
		return NewErrorWithCause("ReadBucket", "Failed to read bucket directory", err)
	}

	if len(entries) > 0 {
		if !force {
			return ErrBucketNotEmpty
		}
		for _, entry := range entries {
			if err := os.RemoveAll(filepath.Join(bucketPath, entry.Name())); err != nil {
				return NewErrorWithCause("ForceDelete", "Failed to delete bucket contents", err)
			}
		}
	}

	if err := os.Remove(bucketPath); err != nil {
		if isDirNotEmpty(err) {
			return ErrBucketNotEmpty
		}
		return NewErrorWithCause("DeleteBucket", "Failed to remove bucket directory", err)
	}

	logrus.WithFields(logrus.Fields{"bucket": name, "force": force}).Debug("Deleted bucket directory")
	return nil
}

// PutObject writes the full content stream to the resolved file path.
// Overwrites are last-writer-wins: content goes to a temp file in the
// destination directory and is renamed into place, so readers never observe
// torn content and a failed Put leaves the previous object intact.
func (fs *FilesystemBackend) PutObject(ctx context.Context, bucket, key string, data io.Reader, contentType string, userMeta map[string]string) (*ObjectInfo, error) {
	fullPath, err := fs.resolveInBucket(ctx, bucket, key)
	if err != nil {
		return nil, err
	}

	// Keys with a trailing slash are S3-style directory markers.
	if strings.HasSuffix(key, "/") {
		if err := fs.createDirectoryMarker(fullPath); err != nil {
			return nil, err
		}
		return &ObjectInfo{
			Key:         key,
			Bucket:      bucket,
			Size:        0,
			ContentType: "application/x-directory",
		}, nil
	}

	dir := filepath.Dir(fullPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, NewErrorWithCause("CreateDirectory", "Failed to create pseudo-directory segments", err)
	}

	tempFile, err := os.CreateTemp(dir, ".tmp_")
	if err != nil {
		return nil, NewErrorWithCause("CreateTempFile", "Failed to create temporary file", err)
	}
	defer os.Remove(tempFile.Name())
	defer tempFile.Close()

	hasher := md5.New()
	size, err := io.Copy(io.MultiWriter(tempFile, hasher), data)
	if err != nil {
		return nil, NewErrorWithCause("WriteData", "Failed to write object data", err)
	}
	if err := tempFile.Close(); err != nil {
		return nil, NewErrorWithCause("WriteData", "Failed to flush object data", err)
	}

	if err := os.Rename(tempFile.Name(), fullPath); err != nil {
		return nil, NewErrorWithCause("AtomicMove", "Failed to move object to final location", err)
	}

	record := sidecarRecord{
		ContentType: contentType,
		ETag:        hex.EncodeToString(hasher.Sum(nil)),
		Metadata:    userMeta,
	}
	if err := fs.writeSidecar(fullPath, record); err != nil {
		return nil, err
	}

	stat, err := os.Stat(fullPath)
	if err != nil {
		return nil, NewErrorWithCause("StatFile", "Failed to stat stored object", err)
	}

	return &ObjectInfo{
		Key:          key,
		Bucket:       bucket,
		Size:         size,
		LastModified: stat.ModTime(),
		ContentType:  resolveContentType(key, record.ContentType),
		ETag:         record.ETag,
		Metadata:     userMeta,
	}, nil
}

// GetObject returns the raw byte stream plus derived metadata
func (fs *FilesystemBackend) GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, *ObjectInfo, error) {
	info, err := fs.StatObject(ctx, bucket, key)
	if err != nil {
		return nil, nil, err
	}

	fullPath, err := ResolveObjectPath(fs.rootPath, bucket, key)
	if err != nil {
		return nil, nil, err
	}

	file, err := os.Open(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, ErrObjectNotFound
		}
		return nil, nil, NewErrorWithCause("OpenFile", "Failed to open object file", err)
	}
	return file, info, nil
}

// StatObject is the metadata-only variant of GetObject. Size and
// last-modified come from the filesystem; content type from the sidecar
// record, falling back to an extension guess for files created out of band.
func (fs *FilesystemBackend) StatObject(ctx context.Context, bucket, key string) (*ObjectInfo, error) {
	fullPath, err := fs.resolveInBucket(ctx, bucket, key)
	if err != nil {
		return nil, err
	}

	stat, err := os.Stat(fullPath)
	if os.IsNotExist(err) {
		return nil, ErrObjectNotFound
	}
	if err != nil {
		return nil, NewErrorWithCause("StatFile", "Failed to stat object file", err)
	}
	if stat.IsDir() {
		// A pseudo-directory is not an object.
		return nil, ErrObjectNotFound
	}

	record := fs.readSidecar(fullPath)
	return &ObjectInfo{
		Key:          key,
		Bucket:       bucket,
		Size:         stat.Size(),
		LastModified: stat.ModTime(),
		ContentType:  resolveContentType(key, record.ContentType),
		ETag:         record.ETag,
		Metadata:     record.Metadata,
	}, nil
}

// DeleteObject removes the object file and its sidecar, then prunes any
// pseudo-directory segments left empty so listing and bucket-emptiness
// checks stay consistent with actual content.
func (fs *FilesystemBackend) DeleteObject(ctx context.Context, bucket, key string) error {
	fullPath, err := fs.resolveInBucket(ctx, bucket, key)
	if err != nil {
		return err
	}

	stat, err := os.Stat(fullPath)
	if os.IsNotExist(err) || (err == nil && stat.IsDir()) {
		return ErrObjectNotFound
	}
	if err != nil {
		return NewErrorWithCause("StatFile", "Failed to stat object file", err)
	}

	if err := os.Remove(fullPath); err != nil {
		return NewErrorWithCause("DeleteFile", "Failed to delete object file", err)
	}
	os.Remove(fullPath + metadataSuffix) // best effort, sidecar may not exist

	bucketPath, err := ResolveBucketPath(fs.rootPath, bucket)
	if err != nil {
		return err
	}
	fs.pruneEmptyDirs(filepath.Dir(fullPath), bucketPath)

	return nil
}

// ListObjects walks the bucket directory and returns every object whose key
// starts with prefix. The match is a plain string prefix over the full key,
// not path-segment aware. Results are sorted lexicographically by key; an
// empty result is not an error.
func (fs *FilesystemBackend) ListObjects(ctx context.Context, bucket, prefix string) ([]ObjectInfo, error) {
	bucketPath, err := ResolveBucketPath(fs.rootPath, bucket)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(bucketPath); os.IsNotExist(err) {
		return nil, ErrBucketNotFound
	} else if err != nil {
		return nil, NewErrorWithCause("StatBucket", "Failed to stat bucket directory", err)
	}

	objects := []ObjectInfo{}
	err = filepath.WalkDir(bucketPath, func(path string, entry os.DirEntry, err error) error {
		if err != nil {
			return nil // entry removed concurrently
		}
		if entry.IsDir() {
			return nil
		}
		name := entry.Name()
		if strings.HasSuffix(name, metadataSuffix) || name == directoryMarkerName {
			return nil
		}

		relPath, err := filepath.Rel(bucketPath, path)
		if err != nil {
			return nil
		}
		key := filepath.ToSlash(relPath)
		if !strings.HasPrefix(key, prefix) {
			return nil
		}

		info, err := entry.Info()
		if err != nil {
			return nil
		}
		record := fs.readSidecar(path)
		objects = append(objects, ObjectInfo{
			Key:          key,
			Bucket:       bucket,
			Size:         info.Size(),
			LastModified: info.ModTime(),
			ContentType:  resolveContentType(key, record.ContentType),
			ETag:         record.ETag,
			Metadata:     record.Metadata,
		})
		return nil
	})
	if err != nil {
		return nil, NewErrorWithCause("WalkBucket", "Failed to walk bucket directory", err)
	}

	sort.Slice(objects, func(i, j int) bool { return objects[i].Key < objects[j].Key })
	return objects, nil
}

// CreateDirectory creates an explicit pseudo-directory inside a bucket
func (fs *FilesystemBackend) CreateDirectory(ctx context.Context, bucket, dirPath string) error {
	fullPath, err := fs.resolveInBucket(ctx, bucket, strings.TrimSuffix(dirPath, "/")+"/")
	if err != nil {
		return err
	}
	return fs.createDirectoryMarker(fullPath)
}

// Close closes the filesystem backend
func (fs *FilesystemBackend) Close() error {
	return nil
}

// Helper methods

// resolveInBucket resolves an object path after confirming its bucket
// exists, so missing buckets and missing objects stay distinguishable.
func (fs *FilesystemBackend) resolveInBucket(ctx context.Context, bucket, key string) (string, error) {
	exists, err := fs.BucketExists(ctx, bucket)
	if err != nil {
		return "", err
	}
	if !exists {
		return "", ErrBucketNotFound
	}
	return ResolveObjectPath(fs.rootPath, bucket, key)
}

func (fs *FilesystemBackend) createDirectoryMarker(fullPath string) error {
	if err := os.MkdirAll(fullPath, 0755); err != nil {
		return NewErrorWithCause("CreateDirectory", "Failed to create directory", err)
	}
	marker, err := os.Create(filepath.Join(fullPath, directoryMarkerName))
	if err != nil {
		return NewErrorWithCause("CreateDirectoryMarker", "Failed to create directory marker", err)
	}
	return marker.Close()
}

func (fs *FilesystemBackend) writeSidecar(objectPath string, record sidecarRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return NewErrorWithCause("MarshalMetadata", "Failed to marshal object metadata", err)
	}
	if err := os.WriteFile(objectPath+metadataSuffix, data, 0644); err != nil {
		return NewErrorWithCause("WriteMetadata", "Failed to write object metadata", err)
	}
	return nil
}

// readSidecar reads the sidecar record for an object. A missing or corrupt
// sidecar degrades to extension-based content-type detection rather than
// failing the read.
func (fs *FilesystemBackend) readSidecar(objectPath string) sidecarRecord {
	var record sidecarRecord
	data, err := os.ReadFile(objectPath + metadataSuffix)
	if err != nil {
		return record
	}
	if err := json.Unmarshal(data, &record); err != nil {
		logrus.WithError(err).WithField("path", objectPath).Warn("Ignoring corrupt metadata sidecar")
		return sidecarRecord{}
	}
	return record
}

// pruneEmptyDirs removes empty directories from dir up to (not including)
// stop. os.Remove fails on non-empty directories, which ends the climb;
// explicitly created directories keep their marker file and survive.
func (fs *FilesystemBackend) pruneEmptyDirs(dir, stop string) {
	for dir != stop && strings.HasPrefix(dir, stop+string(filepath.Separator)) {
		if err := os.Remove(dir); err != nil {
			return
		}
		dir = filepath.Dir(dir)
	}
}

// resolveContentType applies the stored content type, then an extension
// guess, then the octet-stream default.
func resolveContentType(key, stored string) string {
	if stored != "" {
		return stored
	}
	if byExt := mime.TypeByExtension(filepath.Ext(key)); byExt != "" {
		return byExt
	}
	return defaultContentType
}

// isDirNotEmpty reports whether err is the platform's directory-not-empty
// error from os.Remove.
func isDirNotEmpty(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, syscall.ENOTEMPTY) {
		return true
	}
	// Windows reports ERROR_DIR_NOT_EMPTY, which does not unwrap to
	// ENOTEMPTY; match on the stringified errno the same way os itself
	// tests it.
	msg := err.Error()
	return strings.Contains(msg, "directory not empty") || strings.Contains(msg, "not empty")
}
