package backup

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"slices"

	"github.com/entrybook/syncgw/internal/gateway"
	"github.com/entrybook/syncgw/internal/gateway/query"
	"github.com/entrybook/syncgw/internal/store/schema"
)

// Import replays the records read from r into req's account and returns
// what was stored. Ids are reassigned and references between records
// follow them. Records whose owner was not stored are skipped, as are rows
// the store rejects.
//
// Recurrence fields are applied last, so regenerated instances copy the
// imported child rows and restored exceptions are preserved.
func Import(ctx context.Context, gw Gateway, req gateway.Request, r io.Reader, format Format) (Stats, error) {
	records, err := decode(r, format)
	if err != nil {
		return Stats{}, err
	}

	byTable := make(map[schema.TableName][]Record)
	for _, rec := range records {
		if _, ok := schema.Lookup(rec.Table); !ok {
			return Stats{}, fmt.Errorf("backup record %d names unknown table %q", rec.ID, rec.Table)
		}
		byTable[rec.Table] = append(byTable[rec.Table], rec)
	}

	im := &importer{
		gw:       gw,
		req:      req,
		ids:      make(map[schema.TableName]map[int64]int64),
		deferred: make(map[int64]map[string]any),
	}

	if err := im.insert(ctx, schema.Collection, byTable[schema.TableCollection], nil); err != nil {
		return im.stats, err
	}

	var masters, exceptions []Record
	for _, rec := range byTable[schema.TableEntry] {
		if rec.Values[string(schema.ColRecurOriginalID)] != nil {
			exceptions = append(exceptions, rec)
		} else {
			masters = append(masters, rec)
		}
	}
	if err := im.insert(ctx, schema.Entry, masters, holdRecurrence); err != nil {
		return im.stats, err
	}
	if err := im.insert(ctx, schema.Entry, exceptions, nil); err != nil {
		return im.stats, err
	}

	for _, t := range schema.Children() {
		if err := im.insert(ctx, t, byTable[t.Name], nil); err != nil {
			return im.stats, err
		}
	}

	return im.stats, im.applyRecurrence(ctx)
}

type importer struct {
	gw    Gateway
	req   gateway.Request
	stats Stats

	// old id -> new id, per table
	ids map[schema.TableName]map[int64]int64

	// recurrence values held back per new master id
	deferred map[int64]map[string]any
}

// holdRecurrence removes the recurrence fields from values and returns
// them, or nil when there are none.
func holdRecurrence(values map[string]any) map[string]any {
	var held map[string]any
	for _, c := range []schema.ColumnID{schema.ColRRule, schema.ColExDate, schema.ColRDate} {
		v, ok := values[string(c)]
		if !ok {
			continue
		}
		delete(values, string(c))
		if v == nil {
			continue
		}
		if held == nil {
			held = make(map[string]any)
		}
		held[string(c)] = v
	}
	return held
}

func (im *importer) insert(ctx context.Context, t *schema.Table, recs []Record, hold func(map[string]any) map[string]any) error {
	var (
		batch []map[string]any
		olds  []int64
		helds []map[string]any
	)
	for _, rec := range recs {
		values := maps.Clone(rec.Values)
		if values == nil {
			values = make(map[string]any)
		}
		if !im.remap(t, values) {
			im.stats.Skipped++
			continue
		}
		var held map[string]any
		if hold != nil {
			held = hold(values)
		}
		batch = append(batch, values)
		olds = append(olds, rec.ID)
		helds = append(helds, held)
	}
	if len(batch) == 0 {
		return nil
	}

	req := im.req
	req.Path = string(t.Name)
	ids, err := im.gw.BulkInsert(ctx, req, batch)
	if err != nil {
		return fmt.Errorf("failed to import %s: %w", t.Name, err)
	}

	if im.ids[t.Name] == nil {
		im.ids[t.Name] = make(map[int64]int64)
	}
	stored := 0
	for i, id := range ids {
		if id == 0 {
			im.stats.Skipped++
			continue
		}
		im.ids[t.Name][olds[i]] = id
		if helds[i] != nil {
			im.deferred[id] = helds[i]
		}
		stored++
	}
	im.stats.add(t.Name, stored)
	return nil
}

// remap rewrites the references of values to the new ids. It reports false
// when a referenced row was not imported.
func (im *importer) remap(t *schema.Table, values map[string]any) bool {
	refs := map[schema.ColumnID]schema.TableName{}
	switch t {
	case schema.Collection:
	case schema.Entry:
		refs[t.Owner] = schema.TableCollection
		if values[string(schema.ColRecurOriginalID)] != nil {
			refs[schema.ColRecurOriginalID] = schema.TableEntry
		}
	default:
		refs[t.Owner] = schema.TableEntry
	}

	for col, table := range refs {
		old, ok := toID(values[string(col)])
		if !ok {
			return false
		}
		id, ok := im.ids[table][old]
		if !ok {
			return false
		}
		values[string(col)] = id
	}
	return true
}

func (im *importer) applyRecurrence(ctx context.Context) error {
	for _, id := range slices.Sorted(maps.Keys(im.deferred)) {
		req := im.req
		req.Path = fmt.Sprintf("%s/%d", schema.TableEntry, id)
		if _, err := im.gw.Update(ctx, req, im.deferred[id], query.Filter{}); err != nil {
			return fmt.Errorf("failed to restore recurrence of entry %d: %w", id, err)
		}
	}
	return nil
}

func toID(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case uint64:
		return int64(n), true
	case float64:
		return int64(n), n == float64(int64(n))
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	}
	return 0, false
}
