package reliability

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/loanops/dealbridge/internal/database"
)

const (
	backupPrefix    = "dealbridge-backup-"
	backupTimestamp = "2006-01-02-150405"
)

// BackupService snapshots the mirror database into a tar.gz archive with
// checksummed metadata and uploads it to object storage. Backups are
// triggered manually through the system API; there is no scheduler.
type BackupService struct {
	storage *ObjectStorage
	db      *database.DB
	dataDir string
	keep    int
	log     zerolog.Logger
}

// BackupMetadata describes the archive contents.
type BackupMetadata struct {
	Timestamp time.Time `json:"timestamp"`
	Database  string    `json:"database"`
	Filename  string    `json:"filename"`
	SizeBytes int64     `json:"size_bytes"`
	Checksum  string    `json:"checksum"`
}

// BackupInfo describes a backup stored in the bucket.
type BackupInfo struct {
	Filename  string    `json:"filename"`
	Timestamp time.Time `json:"timestamp"`
	SizeBytes int64     `json:"size_bytes"`
	AgeHours  int64     `json:"age_hours"`
}

// NewBackupService creates a backup service. keep is the number of backups
// retained after each successful upload; 0 disables pruning.
func NewBackupService(storage *ObjectStorage, db *database.DB, dataDir string, keep int, log zerolog.Logger) *BackupService {
	return &BackupService{
		storage: storage,
		db:      db,
		dataDir: dataDir,
		keep:    keep,
		log:     log.With().Str("service", "backup").Logger(),
	}
}

// CreateBackup checkpoints the database, archives it with metadata, and
// uploads the archive. Returns the uploaded archive name.
func (s *BackupService) CreateBackup(ctx context.Context) (string, error) {
	s.log.Info().Msg("Starting backup")
	start := time.Now()

	// Fold the WAL into the main file so the copy is self-contained.
	if err := s.db.WALCheckpoint("TRUNCATE"); err != nil {
		return "", fmt.Errorf("failed to checkpoint database: %w", err)
	}

	stagingDir, err := os.MkdirTemp(s.dataDir, "backup-staging-")
	if err != nil {
		return "", fmt.Errorf("failed to create staging directory: %w", err)
	}
	defer os.RemoveAll(stagingDir)

	dbCopy := filepath.Join(stagingDir, s.db.Name()+".db")
	if err := copyFile(s.db.Path(), dbCopy); err != nil {
		return "", fmt.Errorf("failed to copy database: %w", err)
	}

	info, err := os.Stat(dbCopy)
	if err != nil {
		return "", fmt.Errorf("failed to stat database copy: %w", err)
	}
	checksum, err := fileChecksum(dbCopy)
	if err != nil {
		return "", fmt.Errorf("failed to checksum database copy: %w", err)
	}

	metadata := BackupMetadata{
		Timestamp: time.Now().UTC(),
		Database:  s.db.Name(),
		Filename:  filepath.Base(dbCopy),
		SizeBytes: info.Size(),
		Checksum:  checksum,
	}
	metadataPath := filepath.Join(stagingDir, "backup-metadata.json")
	if err := writeMetadata(metadataPath, metadata); err != nil {
		return "", fmt.Errorf("failed to write metadata: %w", err)
	}

	archiveName := backupPrefix + time.Now().Format(backupTimestamp) + ".tar.gz"
	archivePath := filepath.Join(stagingDir, archiveName)
	if err := createArchive(archivePath, []string{dbCopy, metadataPath}); err != nil {
		return "", fmt.Errorf("failed to create archive: %w", err)
	}

	archive, err := os.Open(archivePath)
	if err != nil {
		return "", fmt.Errorf("failed to open archive: %w", err)
	}
	defer archive.Close()

	if err := s.storage.Upload(ctx, archiveName, archive); err != nil {
		return "", err
	}

	archiveInfo, _ := os.Stat(archivePath)
	var archiveSize int64
	if archiveInfo != nil {
		archiveSize = archiveInfo.Size()
	}
	s.log.Info().
		Dur("duration", time.Since(start)).
		Str("archive", archiveName).
		Int64("size_bytes", archiveSize).
		Msg("Backup completed")

	// A prune failure leaves extra backups behind but the new backup is
	// already safe, so it does not fail the operation.
	if err := s.PruneOldBackups(ctx); err != nil {
		s.log.Warn().Err(err).Msg("Failed to prune old backups")
	}

	return archiveName, nil
}

// PruneOldBackups deletes stored backups beyond the retention count,
// oldest first. A no-op when retention is disabled.
func (s *BackupService) PruneOldBackups(ctx context.Context) error {
	if s.keep <= 0 {
		return nil
	}

	backups, err := s.ListBackups(ctx)
	if err != nil {
		return err
	}

	for _, name := range backupsToPrune(backups, s.keep) {
		if err := s.storage.Delete(ctx, name); err != nil {
			return fmt.Errorf("failed to delete backup %s: %w", name, err)
		}
		s.log.Info().Str("archive", name).Msg("Pruned old backup")
	}
	return nil
}

// backupsToPrune returns the filenames past the retention count. Input is
// expected newest first, as ListBackups returns it.
func backupsToPrune(backups []BackupInfo, keep int) []string {
	if keep <= 0 || len(backups) <= keep {
		return nil
	}
	names := make([]string, 0, len(backups)-keep)
	for _, b := range backups[keep:] {
		names = append(names, b.Filename)
	}
	return names
}

// ListBackups returns stored backups, newest first.
func (s *BackupService) ListBackups(ctx context.Context) ([]BackupInfo, error) {
	objects, err := s.storage.List(ctx, backupPrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list backups: %w", err)
	}

	now := time.Now()
	backups := make([]BackupInfo, 0, len(objects))
	for _, obj := range objects {
		if obj.Key == nil {
			continue
		}
		filename := *obj.Key
		if !strings.HasPrefix(filename, backupPrefix) || !strings.HasSuffix(filename, ".tar.gz") {
			continue
		}

		stamp := strings.TrimSuffix(strings.TrimPrefix(filename, backupPrefix), ".tar.gz")
		timestamp, err := time.Parse(backupTimestamp, stamp)
		if err != nil {
			s.log.Warn().Str("filename", filename).Msg("Skipping object with unparseable timestamp")
			continue
		}

		var size int64
		if obj.Size != nil {
			size = *obj.Size
		}
		backups = append(backups, BackupInfo{
			Filename:  filename,
			Timestamp: timestamp,
			SizeBytes: size,
			AgeHours:  int64(now.Sub(timestamp).Hours()),
		})
	}

	sort.Slice(backups, func(i, j int) bool {
		return backups[i].Timestamp.After(backups[j].Timestamp)
	})
	return backups, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}

func fileChecksum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func writeMetadata(path string, metadata BackupMetadata) error {
	data, err := json.MarshalIndent(metadata, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func createArchive(archivePath string, files []string) error {
	out, err := os.Create(archivePath)
	if err != nil {
		return err
	}
	defer out.Close()

	gw := gzip.NewWriter(out)
	defer gw.Close()
	tw := tar.NewWriter(gw)
	defer tw.Close()

	for _, file := range files {
		if err := addToArchive(tw, file); err != nil {
			return err
		}
	}
	return nil
}

func addToArchive(tw *tar.Writer, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}

	header, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return err
	}
	header.Name = filepath.Base(path)
	if err := tw.WriteHeader(header); err != nil {
		return err
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = io.Copy(tw, f)
	return err
}
