package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/fgalloway/chanserv/pkg/lookup"
	"github.com/fgalloway/chanserv/pkg/model"
	"github.com/fgalloway/chanserv/pkg/store"
)

// lookupCacheSize bounds each identity cache. Entries past the bound are
// evicted least-recently-used; absent channels are cached as misses.
const lookupCacheSize = 1000

// Index resolves channel identity against the channels table through three
// bounded read-through caches, one per key shape. Cached entries may lag
// renames until evicted.
type Index struct {
	store *Store

	byName *lookup.Cache[string, model.ChannelSummary]
	byUUID *lookup.Cache[uuid.UUID, model.ChannelSummary]
	byID   *lookup.Cache[int64, model.ChannelSummary]
}

// NewIndex creates an Index sharing the store's connection.
func NewIndex(s *Store) (*Index, error) {
	idx := &Index{store: s}

	var err error
	idx.byName, err = lookup.New(lookupCacheSize, idx.loadByName)
	if err != nil {
		return nil, err
	}
	idx.byUUID, err = lookup.New(lookupCacheSize, idx.loadByUUID)
	if err != nil {
		return nil, err
	}
	idx.byID, err = lookup.New(lookupCacheSize, idx.loadByID)
	if err != nil {
		return nil, err
	}
	return idx, nil
}

var _ store.ChannelIndex = (*Index)(nil)

// LookupByName resolves a channel by name, case-insensitively.
func (idx *Index) LookupByName(name string) (*model.ChannelSummary, error) {
	return fromCache(idx.byName.Get(strings.ToLower(name)))
}

func (idx *Index) LookupByUUID(id uuid.UUID) (*model.ChannelSummary, error) {
	return fromCache(idx.byUUID.Get(id))
}

func (idx *Index) LookupByID(id int64) (*model.ChannelSummary, error) {
	return fromCache(idx.byID.Get(id))
}

// Close is a no-op; the underlying connection belongs to the store.
func (idx *Index) Close() error {
	return nil
}

func fromCache(summary model.ChannelSummary, found bool, err error) (*model.ChannelSummary, error) {
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return &summary, nil
}

func (idx *Index) loadByName(name string) (model.ChannelSummary, bool, error) {
	return idx.loadOne("SELECT id, uuid, name, alias FROM channels WHERE lower(name) = ?", name)
}

func (idx *Index) loadByUUID(id uuid.UUID) (model.ChannelSummary, bool, error) {
	return idx.loadOne("SELECT id, uuid, name, alias FROM channels WHERE uuid = ?", id.String())
}

func (idx *Index) loadByID(id int64) (model.ChannelSummary, bool, error) {
	return idx.loadOne("SELECT id, uuid, name, alias FROM channels WHERE id = ?", id)
}

func (idx *Index) loadOne(query string, arg any) (model.ChannelSummary, bool, error) {
	var summary model.ChannelSummary
	db, err := idx.store.conn.DB()
	if err != nil {
		return summary, false, err
	}

	var uuidStr string
	err = db.QueryRowContext(context.Background(), query, arg).
		Scan(&summary.ID, &uuidStr, &summary.Name, &summary.Alias)
	if err == sql.ErrNoRows {
		return summary, false, nil
	}
	if err != nil {
		return summary, false, fmt.Errorf("sqlstore: index lookup: %w", err)
	}
	parsed, err := uuid.Parse(uuidStr)
	if err != nil {
		return summary, false, fmt.Errorf("sqlstore: index lookup: %w", err)
	}
	summary.UUID = parsed
	return summary, true, nil
}

// Search lists channels matching the term. SearchAll ignores the term;
// SearchContains matches names containing it, case-insensitively. A limit
// of zero or less means no limit.
func (idx *Index) Search(term string, mode store.SearchMode, limit int) ([]model.ChannelSummary, error) {
	db, err := idx.store.conn.DB()
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = -1
	}

	ctx := context.Background()
	var rows *sql.Rows
	switch mode {
	case store.SearchAll:
		rows, err = db.QueryContext(ctx, "SELECT id, uuid, name, alias FROM channels ORDER BY id LIMIT ?", limit)
	case store.SearchContains:
		rows, err = db.QueryContext(ctx,
			"SELECT id, uuid, name, alias FROM channels WHERE name LIKE '%' || ? || '%' ORDER BY id LIMIT ?",
			term, limit)
	default:
		return nil, fmt.Errorf("sqlstore: unknown search mode %d", mode)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlstore: search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var results []model.ChannelSummary
	for rows.Next() {
		var summary model.ChannelSummary
		var uuidStr string
		if err := rows.Scan(&summary.ID, &uuidStr, &summary.Name, &summary.Alias); err != nil {
			return nil, fmt.Errorf("sqlstore: scan search result: %w", err)
		}
		parsed, err := uuid.Parse(uuidStr)
		if err != nil {
			return nil, fmt.Errorf("sqlstore: scan search result: %w", err)
		}
		summary.UUID = parsed
		results = append(results, summary)
	}
	if results == nil {
		results = []model.ChannelSummary{}
	}
	return results, rows.Err()
}
