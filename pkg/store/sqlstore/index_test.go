package sqlstore_test

import (
	"testing"

	"github.com/google/uuid"

	"github.com/fgalloway/chanserv/pkg/store"
	"github.com/fgalloway/chanserv/pkg/store/sqlstore"
)

func newTestIndex(t *testing.T, s *sqlstore.Store) *sqlstore.Index {
	t.Helper()
	idx, err := sqlstore.NewIndex(s)
	if err != nil {
		t.Fatalf("NewIndex: %v", err)
	}
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func TestLookupByNameIsCaseInsensitive(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore(t)
	ch := mustCreate(t, s, "General", 1)
	idx := newTestIndex(t, s)

	for _, name := range []string{"General", "general", "GENERAL"} {
		summary, err := idx.LookupByName(name)
		if err != nil {
			t.Fatalf("LookupByName(%s): %v", name, err)
		}
		if summary == nil || summary.ID != ch {
			t.Errorf("LookupByName(%s) = %+v, want channel %d", name, summary, ch)
		}
	}
}

func TestLookupByUUIDAndID(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore(t)
	ch := mustCreate(t, s, "General", 1)
	idx := newTestIndex(t, s)

	details, err := s.ChannelDetails(ch)
	if err != nil {
		t.Fatalf("ChannelDetails: %v", err)
	}

	byUUID, err := idx.LookupByUUID(details.UUID)
	if err != nil {
		t.Fatalf("LookupByUUID: %v", err)
	}
	if byUUID == nil || byUUID.ID != ch {
		t.Errorf("LookupByUUID = %+v, want channel %d", byUUID, ch)
	}

	byID, err := idx.LookupByID(ch)
	if err != nil {
		t.Fatalf("LookupByID: %v", err)
	}
	if byID == nil || byID.Name != "General" {
		t.Errorf("LookupByID = %+v, want name General", byID)
	}

	missing, err := idx.LookupByUUID(uuid.New())
	if err != nil {
		t.Fatalf("LookupByUUID(random): %v", err)
	}
	if missing != nil {
		t.Errorf("LookupByUUID(random) = %+v, want nil", missing)
	}
}

func TestLookupCachesNegativeResults(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore(t)
	idx := newTestIndex(t, s)

	summary, err := idx.LookupByName("latecomer")
	if err != nil {
		t.Fatalf("LookupByName: %v", err)
	}
	if summary != nil {
		t.Fatalf("LookupByName before create = %+v, want nil", summary)
	}

	// The miss is memoized: creating the channel afterwards is not visible
	// through the same cache entry.
	mustCreate(t, s, "Latecomer", 1)
	summary, err = idx.LookupByName("latecomer")
	if err != nil {
		t.Fatalf("LookupByName: %v", err)
	}
	if summary != nil {
		t.Errorf("LookupByName served a fresh row past a cached miss: %+v", summary)
	}
}

func TestSearch(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore(t)
	idx := newTestIndex(t, s)
	mustCreate(t, s, "General", 1)
	mustCreate(t, s, "General Two", 1)
	mustCreate(t, s, "Lounge", 1)

	all, err := idx.Search("", store.SearchAll, 0)
	if err != nil {
		t.Fatalf("Search(all): %v", err)
	}
	if len(all) != 3 {
		t.Errorf("Search(all) returned %d results, want 3", len(all))
	}

	limited, err := idx.Search("", store.SearchAll, 2)
	if err != nil {
		t.Fatalf("Search(all, limit): %v", err)
	}
	if len(limited) != 2 {
		t.Errorf("Search(all, limit 2) returned %d results, want 2", len(limited))
	}

	matches, err := idx.Search("general", store.SearchContains, 0)
	if err != nil {
		t.Fatalf("Search(contains): %v", err)
	}
	if len(matches) != 2 {
		t.Errorf("Search(contains general) returned %d results, want 2", len(matches))
	}

	none, err := idx.Search("nothing-here", store.SearchContains, 0)
	if err != nil {
		t.Fatalf("Search(contains): %v", err)
	}
	if len(none) != 0 {
		t.Errorf("Search(contains nothing-here) returned %d results, want 0", len(none))
	}
}
