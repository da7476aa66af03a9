// Package attachment manages the backing files of attachment rows.
//
// Every attachment inserted through the gateway is converted to the URI
// form: its binary payload (or an empty placeholder) is written to a file
// in the managed directory and the row stores a content URI pointing at it.
// Files no longer referenced by any row are removed by a background sweep.
package attachment

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/entrybook/syncgw/internal/store/db"
)

// Config configures a Manager.
type Config struct {
	// Dir is the managed directory holding backing files.
	Dir string

	// Authority is the host part of generated content URIs.
	Authority string

	// SweepGrace protects files younger than this from the orphan sweep.
	SweepGrace time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Dir:        "attachments",
		Authority:  "syncgw",
		SweepGrace: time.Minute,
	}
}

const uriScheme = "content"
const uriPrefix = "/attachments/"

// Manager creates, resolves and sweeps backing files.
type Manager struct {
	dir       string
	authority string
	grace     time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

// NewManager creates the managed directory if needed.
func NewManager(cfg Config, logger *slog.Logger) (*Manager, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("attachment dir cannot be empty")
	}
	if cfg.Authority == "" {
		cfg.Authority = DefaultConfig().Authority
	}
	if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create attachment directory: %w", err)
	}
	abs, err := filepath.Abs(cfg.Dir)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		dir:       abs,
		authority: cfg.Authority,
		grace:     cfg.SweepGrace,
		logger:    logger.With("component", "attachment"),
		now:       time.Now,
	}, nil
}

// Dir returns the absolute managed directory.
func (m *Manager) Dir() string {
	return m.dir
}

// URI returns the content URI of the backing file name.
func (m *Manager) URI(name string) string {
	u := url.URL{Scheme: uriScheme, Host: m.authority, Path: uriPrefix + name}
	return u.String()
}

// FileName returns the backing file name a managed URI points at.
func (m *Manager) FileName(uri string) (string, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNotManaged, err)
	}
	if u.Scheme != uriScheme || u.Host != m.authority || !strings.HasPrefix(u.Path, uriPrefix) {
		return "", fmt.Errorf("%w: %s", ErrNotManaged, uri)
	}
	name := strings.TrimPrefix(u.Path, uriPrefix)
	if !validName(name) {
		return "", fmt.Errorf("%w: %s", ErrNotManaged, uri)
	}
	return name, nil
}

// Resolve maps a managed URI to its absolute file path.
func (m *Manager) Resolve(uri string) (string, error) {
	name, err := m.FileName(uri)
	if err != nil {
		return "", err
	}
	return filepath.Join(m.dir, name), nil
}

func validName(name string) bool {
	return name != "" && name != "." && name != ".." &&
		!strings.ContainsAny(name, `/\`) && path.Base(name) == name
}

// Open opens the backing file of uri read-only, or read/write when writable
// is set.
func (m *Manager) Open(uri string, writable bool) (*os.File, error) {
	p, err := m.Resolve(uri)
	if err != nil {
		return nil, err
	}
	flag := os.O_RDONLY
	if writable {
		flag = os.O_RDWR
	}
	f, err := os.OpenFile(p, flag, 0)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNoBackingFile, uri)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIOFailure, err)
	}
	return f, nil
}

// extension derives the backing file extension from the attachment's
// filename, falling back to its MIME type.
func extension(filename, fmttype string) string {
	if ext := strings.ToLower(filepath.Ext(filename)); ext != "" && validName("x"+ext) {
		return ext
	}
	if fmttype != "" {
		if exts, err := mime.ExtensionsByType(fmttype); err == nil && len(exts) > 0 {
			return exts[0]
		}
	}
	return ""
}

// Materialize converts attachment row id to the URI form. A row that
// already has a URI keeps it and loses any binary payload. Otherwise the
// payload, if any, becomes the file content, or an empty placeholder is
// created. MIME type and filename are filled in when missing.
func (m *Manager) Materialize(ctx context.Context, q db.DBTX, id int64) (string, error) {
	var (
		uri, fmttype, filename sql.NullString
		payload                []byte
	)
	err := q.QueryRowContext(ctx,
		`SELECT uri, binary, fmttype, filename FROM attachment WHERE id = ?`, id).
		Scan(&uri, &payload, &fmttype, &filename)
	if err != nil {
		return "", fmt.Errorf("failed to load attachment %d: %w", id, err)
	}
	if uri.String != "" {
		if payload != nil {
			if _, err := q.ExecContext(ctx, `UPDATE attachment SET binary = NULL WHERE id = ?`, id); err != nil {
				return "", fmt.Errorf("failed to clear payload of attachment %d: %w", id, err)
			}
			m.logger.Debug("dropped payload of attachment with uri", "attachment_id", id, "size", len(payload))
		}
		return uri.String, nil
	}

	ext := extension(filename.String, fmttype.String)
	name := uuid.NewString() + ext
	p := filepath.Join(m.dir, name)

	if err := os.WriteFile(p, payload, 0644); err != nil {
		return "", fmt.Errorf("%w: attachment %d: %v", ErrIOFailure, id, err)
	}

	if fmttype.String == "" && ext != "" {
		if t := mime.TypeByExtension(ext); t != "" {
			fmttype = sql.NullString{String: t, Valid: true}
		}
	}
	if filename.String == "" {
		filename = sql.NullString{String: name, Valid: true}
	}

	newURI := m.URI(name)
	_, err = q.ExecContext(ctx, `
		UPDATE attachment SET uri = ?, binary = NULL, fmttype = ?, filename = ?, filesize = ?
		WHERE id = ?`, newURI, fmttype, filename, int64(len(payload)), id)
	if err != nil {
		// Leave nothing behind for a row that never pointed at the file.
		_ = os.Remove(p)
		return "", fmt.Errorf("failed to store uri of attachment %d: %w", id, err)
	}

	m.logger.Debug("attachment materialized", "attachment_id", id, "file", name, "size", len(payload))
	return newURI, nil
}

// SweepResult summarizes one orphan sweep.
type SweepResult struct {
	Scanned int
	Removed int
	// Young counts unreferenced files spared by the grace period.
	Young int
	Freed int64
	// Names lists the removed files.
	Names []string
}

// Sweep removes backing files that no attachment row references. It only
// ever deletes files unreferenced at the time it runs, so it is safe to
// repeat or skip.
func (m *Manager) Sweep(ctx context.Context, q db.DBTX) (SweepResult, error) {
	var res SweepResult

	referenced, err := m.referenced(ctx, q)
	if err != nil {
		return res, err
	}

	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return res, fmt.Errorf("failed to list attachment directory: %w", err)
	}

	cutoff := m.now().Add(-m.grace)
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		res.Scanned++
		if referenced[e.Name()] {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			res.Young++
			continue
		}
		if err := os.Remove(filepath.Join(m.dir, e.Name())); err != nil && !errors.Is(err, os.ErrNotExist) {
			m.logger.Warn("failed to remove orphaned attachment file", "file", e.Name(), "error", err)
			continue
		}
		res.Removed++
		res.Freed += info.Size()
		res.Names = append(res.Names, e.Name())
	}

	if res.Removed > 0 {
		m.logger.Info("attachment sweep", "scanned", res.Scanned, "removed", res.Removed, "freed", res.Freed)
	}
	return res, nil
}

func (m *Manager) referenced(ctx context.Context, q db.DBTX) (map[string]bool, error) {
	rows, err := q.QueryContext(ctx, `SELECT uri FROM attachment WHERE uri IS NOT NULL`)
	if err != nil {
		return nil, fmt.Errorf("failed to list attachment uris: %w", err)
	}
	defer rows.Close()

	out := make(map[string]bool)
	for rows.Next() {
		var uri string
		if err := rows.Scan(&uri); err != nil {
			return nil, err
		}
		if name, err := m.FileName(uri); err == nil {
			out[name] = true
		}
	}
	return out, rows.Err()
}

// Usage returns the number and total size of backing files.
func (m *Manager) Usage() (files int, bytes int64, err error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to list attachment directory: %w", err)
	}
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files++
		bytes += info.Size()
	}
	return files, bytes, nil
}
