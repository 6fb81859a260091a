package database

import (
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"konsult/internal/config"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPerformBackup(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "src.db")
	logger := zerolog.New(io.Discard)
	src, err := NewDB(dbPath, &logger)
	require.NoError(t, err)
	defer src.Close()
	mustConsultant(t, src)

	backupDir := filepath.Join(t.TempDir(), "backups")
	svc := NewBackupService(dbPath, config.BackupConfig{
		Enabled:     true,
		StoragePath: backupDir,
	}, &logger)

	backupPath, err := svc.PerformBackup()
	require.NoError(t, err)

	files, err := os.ReadDir(backupDir)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Contains(t, files[0].Name(), "konsult_backup_")

	// The backup opens as a valid database.
	restored, err := NewDB(backupPath, &logger)
	require.NoError(t, err)
	defer restored.Close()
}

func TestCleanupOldBackups(t *testing.T) {
	logger := zerolog.New(io.Discard)
	backupDir := t.TempDir()

	oldFile := filepath.Join(backupDir, "backup_old.db")
	freshFile := filepath.Join(backupDir, "backup_fresh.db")
	require.NoError(t, os.WriteFile(oldFile, []byte("old"), 0o644))
	require.NoError(t, os.WriteFile(freshFile, []byte("fresh"), 0o644))

	past := time.Now().AddDate(0, 0, -30)
	require.NoError(t, os.Chtimes(oldFile, past, past))

	svc := NewBackupService("unused.db", config.BackupConfig{
		Enabled:       true,
		StoragePath:   backupDir,
		RetentionDays: 14,
	}, &logger)
	svc.CleanupOldBackups()

	_, err := os.Stat(oldFile)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(freshFile)
	assert.NoError(t, err)
}

func TestCleanupDisabledWithoutRetention(t *testing.T) {
	logger := zerolog.New(io.Discard)
	backupDir := t.TempDir()

	oldFile := filepath.Join(backupDir, "backup_old.db")
	require.NoError(t, os.WriteFile(oldFile, []byte("old"), 0o644))
	past := time.Now().AddDate(0, 0, -365)
	require.NoError(t, os.Chtimes(oldFile, past, past))

	svc := NewBackupService("unused.db", config.BackupConfig{StoragePath: backupDir}, &logger)
	svc.CleanupOldBackups()

	_, err := os.Stat(oldFile)
	assert.NoError(t, err)
}
