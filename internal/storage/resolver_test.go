package storage

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateBucketName(t *testing.T) {
	t.Run("Valid names", func(t *testing.T) {
		for _, name := range []string{"docs", "my-bucket", "MixedCase", "b", strings.Repeat("a", 255)} {
			assert.NoError(t, ValidateBucketName(name), name)
		}
	})

	t.Run("Invalid names", func(t *testing.T) {
		for _, name := range []string{"", ".", "..", "a/b", `a\b`, strings.Repeat("a", 256)} {
			err := ValidateBucketName(name)
			assert.ErrorIs(t, err, ErrInvalidBucketName, "name %q", name)
		}
	})

	t.Run("Case is preserved", func(t *testing.T) {
		path, err := ResolveBucketPath("/srv/storage", "MyBucket")
		require.NoError(t, err)
		assert.Equal(t, filepath.Join("/srv/storage", "MyBucket"), path)
	})
}

func TestValidateKey(t *testing.T) {
	t.Run("Valid keys", func(t *testing.T) {
		for _, key := range []string{"file.txt", "images/photo1.jpg", "a/b/c/d.bin", "no-extension", "folder/"} {
			assert.NoError(t, ValidateKey(key), key)
		}
	})

	t.Run("Invalid keys", func(t *testing.T) {
		for _, key := range []string{
			"",
			"/absolute.txt",
			"../escape.txt",
			"a/../../escape.txt",
			"a/./b.txt",
			"a//b.txt",
			`dir\file.txt`,
			"..",
		} {
			err := ValidateKey(key)
			assert.ErrorIs(t, err, ErrInvalidKey, "key %q", key)
		}
	})
}

func TestResolveObjectPath(t *testing.T) {
	root := t.TempDir()

	t.Run("Resolves inside the bucket", func(t *testing.T) {
		path, err := ResolveObjectPath(root, "docs", "reports/q1.txt")
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(path, filepath.Join(root, "docs")+string(filepath.Separator)))
	})

	t.Run("Traversal attempts fail before filesystem access", func(t *testing.T) {
		_, err := ResolveObjectPath(root, "docs", "../other/secret.txt")
		assert.ErrorIs(t, err, ErrInvalidKey)

		_, err = ResolveObjectPath(root, "docs", "/etc/passwd")
		assert.ErrorIs(t, err, ErrInvalidKey)
	})

	t.Run("Invalid bucket name fails first", func(t *testing.T) {
		_, err := ResolveObjectPath(root, "a/b", "file.txt")
		assert.ErrorIs(t, err, ErrInvalidBucketName)
	})
}
