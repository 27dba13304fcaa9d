package main

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rpggio/deskset/internal/config"
	"github.com/stretchr/testify/require"
)

func TestParseLogLevel(t *testing.T) {
	require.Equal(t, slog.LevelDebug, parseLogLevel("debug"))
	require.Equal(t, slog.LevelWarn, parseLogLevel("warn"))
	require.Equal(t, slog.LevelError, parseLogLevel("error"))
	require.Equal(t, slog.LevelInfo, parseLogLevel("verbose"))
}

func TestOpenStore_SQLite(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "deskset.db")

	store, err := openStore(config.StoreConfig{Driver: "sqlite", Path: path})
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Set(ctx, "k", []byte("v")))
	got, err := store.Get(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, []byte("v"), got)
}

func TestOpenStore_UnknownDriver(t *testing.T) {
	_, err := openStore(config.StoreConfig{Driver: "etcd"})
	require.Error(t, err)
}

func TestLogFileWriter_Truncates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "deskset.log")
	w, file, err := newLogFileWriter(path)
	require.NoError(t, err)
	defer file.Close()

	line := strings.Repeat("x", 1023) + "\n"
	for written := 0; written <= maxLogSizeBytes; written += len(line) {
		_, err := w.Write([]byte(line))
		require.NoError(t, err)
	}

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.LessOrEqual(t, info.Size(), int64(maxLogSizeBytes))
}
