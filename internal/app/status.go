package app

import (
	"context"

	"github.com/entrybook/syncgw/internal/store/db"
)

// Status summarizes the store and the attachment directory.
type Status struct {
	Database   string              `json:"database" yaml:"database"`
	Migrations []db.MigrationState `json:"migrations" yaml:"migrations"`
	Tables     []db.TableCount     `json:"tables" yaml:"tables"`

	// LinkedInstances counts generated recurrence instances, which
	// collection reads never show.
	LinkedInstances int64 `json:"linked_instances" yaml:"linked_instances"`

	AttachmentDir   string `json:"attachment_dir" yaml:"attachment_dir"`
	AttachmentFiles int    `json:"attachment_files" yaml:"attachment_files"`
	AttachmentBytes int64  `json:"attachment_bytes" yaml:"attachment_bytes"`
}

// Status collects the current Status.
func (a *App) Status(ctx context.Context) (*Status, error) {
	migrations, err := a.Store.MigrationStatus(ctx)
	if err != nil {
		return nil, err
	}
	tables, err := a.Store.TableCounts(ctx)
	if err != nil {
		return nil, err
	}
	linked, err := a.Store.LinkedInstanceCount(ctx)
	if err != nil {
		return nil, err
	}
	files, size, err := a.Files.Usage()
	if err != nil {
		return nil, err
	}
	return &Status{
		Database:        a.Store.Path(),
		Migrations:      migrations,
		Tables:          tables,
		LinkedInstances: linked,
		AttachmentDir:   a.Files.Dir(),
		AttachmentFiles: files,
		AttachmentBytes: size,
	}, nil
}
