package config

import (
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCommand() *cobra.Command {
	cmd := &cobra.Command{Use: "opens3"}
	cmd.PersistentFlags().StringP("config", "c", "", "Configuration file path")
	cmd.PersistentFlags().StringP("data-dir", "d", "", "Data directory path")
	cmd.PersistentFlags().StringP("listen", "l", ":8001", "Listen address")
	cmd.PersistentFlags().String("log-level", "info", "Log level")
	cmd.PersistentFlags().String("access-key", "", "Access key")
	cmd.PersistentFlags().String("secret-key", "", "Secret key")
	// Merge persistent flags into cmd.Flags(), as cobra does during Execute;
	// Load is always called from within a command Run in production.
	_ = cmd.ParseFlags(nil)
	return cmd
}

func TestLoad(t *testing.T) {
	t.Run("Defaults with data dir", func(t *testing.T) {
		cmd := testCommand()
		dataDir := t.TempDir()
		require.NoError(t, cmd.PersistentFlags().Set("data-dir", dataDir))

		cfg, err := Load(cmd)
		require.NoError(t, err)

		assert.Equal(t, ":8001", cfg.Listen)
		assert.Equal(t, "info", cfg.LogLevel)
		assert.Equal(t, "filesystem", cfg.Storage.Backend)
		assert.Equal(t, filepath.Join(dataDir, "storage"), cfg.Storage.Root)
		assert.Equal(t, "admin", cfg.Auth.AccessKey)
		assert.True(t, cfg.Metrics.Enable)
		assert.True(t, cfg.Audit.Enable)
	})

	t.Run("Missing data dir fails", func(t *testing.T) {
		cmd := testCommand()
		_, err := Load(cmd)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "data_dir is required")
	})

	t.Run("Flags override defaults", func(t *testing.T) {
		cmd := testCommand()
		require.NoError(t, cmd.PersistentFlags().Set("data-dir", t.TempDir()))
		require.NoError(t, cmd.PersistentFlags().Set("listen", ":9999"))
		require.NoError(t, cmd.PersistentFlags().Set("access-key", "tester"))
		require.NoError(t, cmd.PersistentFlags().Set("secret-key", "hunter2"))

		cfg, err := Load(cmd)
		require.NoError(t, err)
		assert.Equal(t, ":9999", cfg.Listen)
		assert.Equal(t, "tester", cfg.Auth.AccessKey)
		assert.Equal(t, "hunter2", cfg.Auth.SecretKey)
	})

	t.Run("Environment variables are honored", func(t *testing.T) {
		t.Setenv("OPENS3_ACCESS_KEY", "env-user")
		t.Setenv("OPENS3_SECRET_KEY", "env-pass")

		cmd := testCommand()
		require.NoError(t, cmd.PersistentFlags().Set("data-dir", t.TempDir()))

		cfg, err := Load(cmd)
		require.NoError(t, err)
		assert.Equal(t, "env-user", cfg.Auth.AccessKey)
		assert.Equal(t, "env-pass", cfg.Auth.SecretKey)
	})
}
