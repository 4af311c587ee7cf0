package database

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"skolar/internal/config"

	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
	"github.com/rs/zerolog"
)

// BackupService snapshots the queue database so pending bookings survive
// a corrupted or lost device store.
type BackupService struct {
	dbPath string
	config config.BackupConfig
	logger *zerolog.Logger
}

func NewBackupService(dbPath string, cfg config.BackupConfig, logger *zerolog.Logger) *BackupService {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &BackupService{
		dbPath: dbPath,
		config: cfg,
		logger: logger,
	}
}

// PerformBackup writes a timestamped copy of the database and returns its path.
func (s *BackupService) PerformBackup(ctx context.Context) (string, error) {
	if !s.config.Enabled {
		return "", fmt.Errorf("backup is disabled")
	}
	if err := os.MkdirAll(s.config.StoragePath, 0o755); err != nil {
		return "", fmt.Errorf("failed to create backup directory: %w", err)
	}

	timestamp := time.Now().Format("20060102_150405.000")
	backupPath := filepath.Join(s.config.StoragePath, fmt.Sprintf("pending_%s.db", timestamp))

	s.logger.Info().Str("path", backupPath).Msg("Performing queue backup using VACUUM INTO")

	db, err := sql.Open("sqlite3", s.dbPath)
	if err != nil {
		return "", fmt.Errorf("failed to open source database: %w", err)
	}
	defer db.Close()

	quoted := strings.ReplaceAll(backupPath, "'", "''")
	if _, err := db.ExecContext(ctx, fmt.Sprintf("VACUUM INTO '%s'", quoted)); err != nil {
		s.logger.Warn().Err(err).Msg("VACUUM INTO failed, falling back to file copy")
		if err := s.performBackupFallback(backupPath); err != nil {
			return "", err
		}
		return backupPath, nil
	}

	s.logger.Info().Msg("Backup completed successfully")
	return backupPath, nil
}

func (s *BackupService) performBackupFallback(backupPath string) error {
	source, err := os.Open(s.dbPath)
	if err != nil {
		return err
	}
	defer source.Close()

	destination, err := os.Create(backupPath)
	if err != nil {
		return err
	}
	defer destination.Close()

	// Not atomic for SQLite; a concurrent write may corrupt the copy.
	if _, err := io.Copy(destination, source); err != nil {
		return err
	}

	s.logger.Info().Msg("Fallback backup completed successfully")
	return nil
}

// CleanupOldBackups removes snapshots older than the retention window.
func (s *BackupService) CleanupOldBackups() int {
	if s.config.RetentionDays <= 0 {
		return 0
	}

	files, err := os.ReadDir(s.config.StoragePath)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to read backup directory for cleanup")
		return 0
	}

	cutoff := time.Now().AddDate(0, 0, -s.config.RetentionDays)

	removed := 0
	for _, file := range files {
		if file.IsDir() {
			continue
		}

		info, err := file.Info()
		if err != nil {
			continue
		}

		if info.ModTime().Before(cutoff) {
			s.logger.Info().Str("file", file.Name()).Msg("Deleting old backup")
			if err := os.Remove(filepath.Join(s.config.StoragePath, file.Name())); err == nil {
				removed++
			}
		}
	}
	return removed
}
