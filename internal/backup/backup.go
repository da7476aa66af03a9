// Package backup exports an account's data and replays it into an account
// through the gateway.
//
// An export holds collections, entries that are not linked instances, and
// the child rows of those entries. Linked instances are regenerated on
// import. Managed attachment files travel inline as base64 payloads.
package backup

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/entrybook/syncgw/internal/gateway"
	"github.com/entrybook/syncgw/internal/gateway/query"
	"github.com/entrybook/syncgw/internal/store/schema"
)

// Format selects the dump encoding.
type Format string

const (
	FormatJSONL Format = "jsonl"
	FormatYAML  Format = "yaml"
)

// ParseFormat accepts "jsonl", "json" and "yaml".
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "jsonl", "json", "":
		return FormatJSONL, nil
	case "yaml", "yml":
		return FormatYAML, nil
	}
	return "", fmt.Errorf("unknown backup format %q", s)
}

// Record is one exported row.
type Record struct {
	Table  schema.TableName `json:"table" yaml:"table"`
	ID     int64            `json:"id" yaml:"id"`
	Values map[string]any   `json:"values" yaml:"values"`
}

// Gateway is the subset of the gateway a backup needs.
type Gateway interface {
	Query(ctx context.Context, req gateway.Request, f query.Filter) ([]gateway.Row, error)
	BulkInsert(ctx context.Context, req gateway.Request, raws []map[string]any) ([]int64, error)
	Update(ctx context.Context, req gateway.Request, raw map[string]any, f query.Filter) (int64, error)
	OpenAttachment(ctx context.Context, req gateway.Request, writable bool) (*os.File, error)
}

// Stats counts the records an export wrote or an import stored.
type Stats struct {
	Records int                      `json:"records" yaml:"records"`
	Skipped int                      `json:"skipped" yaml:"skipped"`
	ByTable map[schema.TableName]int `json:"by_table" yaml:"by_table"`
}

func (s *Stats) add(t schema.TableName, n int) {
	if s.ByTable == nil {
		s.ByTable = make(map[schema.TableName]int)
	}
	s.ByTable[t] += n
	s.Records += n
}

const ownedByStoredEntry = "entry_id IN (SELECT id FROM entry WHERE recur_linkedinstance = 0)"

// Export writes every record of req's account to w.
func Export(ctx context.Context, gw Gateway, req gateway.Request, w io.Writer, format Format) (Stats, error) {
	var (
		stats   Stats
		records []Record
	)

	collect := func(t *schema.Table, f query.Filter) error {
		req.Path = string(t.Name)
		rows, err := gw.Query(ctx, req, f)
		if err != nil {
			return fmt.Errorf("failed to export %s: %w", t.Name, err)
		}
		for _, row := range rows {
			rec, err := toRecord(ctx, gw, req, t, row)
			if err != nil {
				return err
			}
			records = append(records, rec)
		}
		stats.add(t.Name, len(rows))
		return nil
	}

	if err := collect(schema.Collection, query.Filter{SortOrder: "id"}); err != nil {
		return stats, err
	}
	// Masters (NULL recur_original_id sorts first) before the exceptions
	// that point at them.
	if err := collect(schema.Entry, query.Filter{SortOrder: "recur_original_id, id"}); err != nil {
		return stats, err
	}
	for _, t := range schema.Children() {
		if err := collect(t, query.Filter{Selection: ownedByStoredEntry, SortOrder: "id"}); err != nil {
			return stats, err
		}
	}

	if err := encode(w, format, records); err != nil {
		return stats, fmt.Errorf("failed to write backup: %w", err)
	}
	return stats, nil
}

func toRecord(ctx context.Context, gw Gateway, req gateway.Request, t *schema.Table, row gateway.Row) (Record, error) {
	id, _ := row[string(schema.ColID)].(int64)
	values := make(map[string]any, len(row))
	for k, v := range row {
		if b, ok := v.([]byte); ok {
			v = base64.StdEncoding.EncodeToString(b)
		}
		if v != nil {
			values[k] = v
		}
	}
	delete(values, string(schema.ColID))
	if t == schema.Collection {
		delete(values, string(schema.ColAccountName))
		delete(values, string(schema.ColAccountType))
	}

	if t == schema.Attachment && values[string(schema.ColURI)] != nil {
		if err := inlineAttachment(ctx, gw, req, id, values); err != nil {
			return Record{}, err
		}
	}
	return Record{Table: t.Name, ID: id, Values: values}, nil
}

// inlineAttachment replaces a managed URI with the file's content.
func inlineAttachment(ctx context.Context, gw Gateway, req gateway.Request, id int64, values map[string]any) error {
	req.Path = fmt.Sprintf("%s/%d", schema.TableAttachment, id)
	f, err := gw.OpenAttachment(ctx, req, false)
	switch {
	case errors.Is(err, gateway.ErrInvalidRequest):
		// External URI, exported as is.
		return nil
	case errors.Is(err, gateway.ErrNotFound):
		delete(values, string(schema.ColURI))
		delete(values, string(schema.ColFileSize))
		return nil
	case err != nil:
		return fmt.Errorf("failed to read attachment %d: %w", id, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return fmt.Errorf("failed to read attachment %d: %w", id, err)
	}
	delete(values, string(schema.ColURI))
	delete(values, string(schema.ColFileSize))
	values[string(schema.ColBinary)] = base64.StdEncoding.EncodeToString(data)
	return nil
}
