package filestore

import (
	"errors"
	"os"
	"strings"

	"github.com/google/uuid"

	"github.com/fgalloway/chanserv/pkg/lookup"
	"github.com/fgalloway/chanserv/pkg/model"
	"github.com/fgalloway/chanserv/pkg/store"
)

const lookupCacheSize = 1000

// Index resolves channel identity over the document directory. Name and
// UUID lookups scan the directory once and are then served from bounded
// caches.
type Index struct {
	store *Store

	byName *lookup.Cache[string, model.ChannelSummary]
	byUUID *lookup.Cache[uuid.UUID, model.ChannelSummary]
	byID   *lookup.Cache[int64, model.ChannelSummary]
}

// NewIndex creates an Index over the store's directory.
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

// Search is not supported by the file backend and always returns an empty
// result set.
func (idx *Index) Search(term string, mode store.SearchMode, limit int) ([]model.ChannelSummary, error) {
	return []model.ChannelSummary{}, nil
}

// Close is a no-op; the directory belongs to the store.
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

func (idx *Index) loadByID(id int64) (model.ChannelSummary, bool, error) {
	details, err := idx.store.ChannelDetails(id)
	if errors.Is(err, store.ErrNotFound) {
		return model.ChannelSummary{}, false, nil
	}
	if err != nil {
		return model.ChannelSummary{}, false, err
	}
	return summarize(details), true, nil
}

func (idx *Index) loadByName(name string) (model.ChannelSummary, bool, error) {
	return idx.scan(func(d *model.ChannelDetails) bool {
		return strings.ToLower(d.Name) == name
	})
}

func (idx *Index) loadByUUID(id uuid.UUID) (model.ChannelSummary, bool, error) {
	return idx.scan(func(d *model.ChannelDetails) bool {
		return d.UUID == id
	})
}

// scan walks the document directory until match accepts a channel. A file
// that disappears or fails to parse mid-scan is skipped.
func (idx *Index) scan(match func(*model.ChannelDetails) bool) (model.ChannelSummary, bool, error) {
	entries, err := os.ReadDir(idx.store.dir)
	if err != nil {
		return model.ChannelSummary{}, false, err
	}
	for _, entry := range entries {
		id, ok := idFromFileName(entry.Name())
		if !ok {
			continue
		}
		details, err := idx.store.ChannelDetails(id)
		if err != nil {
			continue
		}
		if match(details) {
			return summarize(details), true, nil
		}
	}
	return model.ChannelSummary{}, false, nil
}

func summarize(d *model.ChannelDetails) model.ChannelSummary {
	return model.ChannelSummary{ID: d.ID, UUID: d.UUID, Name: d.Name, Alias: d.Alias}
}
