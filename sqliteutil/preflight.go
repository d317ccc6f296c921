// Package sqliteutil opens SQLite files for the export writer and checks
// existing files before use so a damaged database never blocks shutdown.
package sqliteutil

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

const defaultPreflightTimeout = 2 * time.Second

// PreflightResult reports the outcome of a SQLite preflight check.
type PreflightResult struct {
	Healthy         bool   // No issues detected; safe to proceed.
	Fresh           bool   // No database existed yet.
	Quarantined     bool   // The database was renamed aside.
	QuarantinePath  string // Path of the quarantined database (main file only).
	Elapsed         time.Duration
	CheckpointError error
	CheckError      error
}

// Open creates the parent directory, opens path with a single connection, and
// sets the busy timeout.
func Open(ctx context.Context, path string, busy time.Duration) (*sql.DB, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite: empty path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("sqlite: ensure dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", path, err)
	}
	// Keep operations serialized and honor busy timeout.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if busy <= 0 {
		busy = defaultPreflightTimeout
	}
	if _, err := db.ExecContext(ctx, fmt.Sprintf("pragma busy_timeout=%d", busy.Milliseconds())); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: set busy_timeout: %w", err)
	}
	return db, nil
}

// Preflight runs a bounded WAL checkpoint and quick_check on an existing
// database. A file that fails either check is renamed (with its sidecars) to
// a timestamped quarantine path so the caller can start a fresh one. A
// missing file is reported as fresh and healthy.
func Preflight(ctx context.Context, path, role string, timeout time.Duration) (PreflightResult, error) {
	if timeout <= 0 {
		timeout = defaultPreflightTimeout
	}
	res := PreflightResult{}
	if strings.TrimSpace(path) == "" {
		return res, errors.New("preflight: empty path")
	}
	log := logrus.WithField("db", role)
	start := time.Now()
	existing := collectExisting(path)
	if !existing[0].have {
		res.Healthy = true
		res.Fresh = true
		return res, nil
	}

	checkCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	db, err := Open(checkCtx, path, timeout)
	if err != nil {
		return res, fmt.Errorf("preflight: %s db: %w", role, err)
	}
	res.CheckpointError = runCheckpoint(checkCtx, db)
	res.CheckError = quickCheck(checkCtx, db)
	db.Close()
	res.Elapsed = time.Since(start)

	if res.CheckpointError == nil && res.CheckError == nil {
		res.Healthy = true
		return res, nil
	}
	if errors.Is(checkCtx.Err(), context.DeadlineExceeded) {
		return res, fmt.Errorf("preflight: %s db timed out after %s", role, timeout)
	}

	quarantinePath, err := quarantine(path, existing, log)
	if err != nil {
		return res, fmt.Errorf("preflight: %s db quarantine failed: %w (checkpoint=%v, quick_check=%v)",
			role, err, res.CheckpointError, res.CheckError)
	}
	res.Quarantined = true
	res.QuarantinePath = quarantinePath
	log.WithFields(logrus.Fields{
		"checkpoint":  res.CheckpointError,
		"quick_check": res.CheckError,
		"elapsed":     res.Elapsed,
	}).Warnf("SQLite: preflight failed; quarantined to %s", quarantinePath)
	return res, nil
}

func runCheckpoint(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, "pragma wal_checkpoint(TRUNCATE)")
	return err
}

func quickCheck(ctx context.Context, db *sql.DB) error {
	rows, err := db.QueryContext(ctx, "pragma quick_check")
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var status string
		if err := rows.Scan(&status); err != nil {
			return err
		}
		if strings.TrimSpace(status) != "ok" {
			return fmt.Errorf("quick_check reported %q", status)
		}
	}
	return rows.Err()
}

type fileState struct {
	path string
	have bool
}

// collectExisting returns the main file first, then its sidecars.
func collectExisting(path string) []fileState {
	targets := []string{path, path + "-wal", path + "-shm", path + "-journal"}
	out := make([]fileState, 0, len(targets))
	for _, t := range targets {
		_, err := os.Stat(t)
		out = append(out, fileState{path: t, have: err == nil})
	}
	return out
}

func quarantine(path string, existing []fileState, log *logrus.Entry) (string, error) {
	suffix := ".bad-" + time.Now().UTC().Format("20060102T150405Z")
	for _, state := range existing {
		if !state.have {
			continue
		}
		err := os.Rename(state.path, state.path+suffix)
		switch {
		case err == nil:
		case os.IsNotExist(err):
			// Sidecars can vanish during the checkpoint.
			log.Debugf("SQLite: %s disappeared before quarantine", state.path)
		default:
			return "", err
		}
	}
	return path + suffix, nil
}
