// Package filestore implements the channel store on one YAML document per
// channel. Mutations are applied to the in-memory document immediately and
// the document is marked save-pending; CommitChanges writes pending
// documents back to disk. Documents not touched for a while fall out of the
// read cache and are reloaded on demand.
package filestore

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"gopkg.in/yaml.v3"

	"github.com/fgalloway/chanserv/pkg/model"
	"github.com/fgalloway/chanserv/pkg/store"
)

const (
	docCacheSize = 1000
	docCacheTTL  = 5 * time.Minute

	fileExt = ".yaml"
)

// channelDoc is the on-disk document for one channel. The UUID is stored
// in its canonical string form.
type channelDoc struct {
	Details    docDetails        `yaml:"details"`
	Members    map[int64]int64   `yaml:"members"`
	Bans       []int64           `yaml:"bans"`
	Groups     []model.Group     `yaml:"groups"`
	RankNames  map[byte]string   `yaml:"rank_names"`
	Attributes map[string]string `yaml:"attributes"`
}

type docDetails struct {
	ID            int64  `yaml:"id"`
	UUID          string `yaml:"uuid"`
	Name          string `yaml:"name"`
	Alias         string `yaml:"alias,omitempty"`
	Description   string `yaml:"description,omitempty"`
	Owner         int64  `yaml:"owner"`
	TrackMessages bool   `yaml:"track_messages,omitempty"`
}

func toDocDetails(d model.ChannelDetails) docDetails {
	return docDetails{
		ID:            d.ID,
		UUID:          d.UUID.String(),
		Name:          d.Name,
		Alias:         d.Alias,
		Description:   d.Description,
		Owner:         d.Owner,
		TrackMessages: d.TrackMessages,
	}
}

func (d docDetails) model() (model.ChannelDetails, error) {
	parsed, err := uuid.Parse(d.UUID)
	if err != nil {
		return model.ChannelDetails{}, fmt.Errorf("filestore: channel %d has a bad uuid: %w", d.ID, err)
	}
	return model.ChannelDetails{
		ID:            d.ID,
		UUID:          parsed,
		Name:          d.Name,
		Alias:         d.Alias,
		Description:   d.Description,
		Owner:         d.Owner,
		TrackMessages: d.TrackMessages,
	}, nil
}

// Store is the file-backed store.ChannelStore. Because mutations land in
// the live document at once, coalescing happens through the document
// itself; only the disk write is deferred to the commit cycle.
type Store struct {
	dir string

	mu     sync.Mutex
	nextID int64
	// dirty holds documents with unwritten changes. They are referenced
	// here, not just in the cache, so an eviction cannot drop a pending
	// save.
	dirty map[int64]*channelDoc
	cache *expirable.LRU[int64, *channelDoc]
}

// New opens a store over dir, creating it if needed.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("filestore: create directory: %w", err)
	}
	s := &Store{
		dir:   dir,
		dirty: make(map[int64]*channelDoc),
		cache: expirable.NewLRU[int64, *channelDoc](docCacheSize, nil, docCacheTTL),
	}
	maxID, err := s.scanMaxID()
	if err != nil {
		return nil, err
	}
	s.nextID = maxID + 1
	return s, nil
}

var _ store.ChannelStore = (*Store)(nil)

func (s *Store) scanMaxID() (int64, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, fmt.Errorf("filestore: scan directory: %w", err)
	}
	var maxID int64
	for _, entry := range entries {
		id, ok := idFromFileName(entry.Name())
		if !ok {
			continue
		}
		if id > maxID {
			maxID = id
		}
	}
	return maxID, nil
}

func idFromFileName(name string) (int64, bool) {
	if !strings.HasSuffix(name, fileExt) {
		return 0, false
	}
	id, err := strconv.ParseInt(strings.TrimSuffix(name, fileExt), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func (s *Store) path(channelID int64) string {
	return filepath.Join(s.dir, strconv.FormatInt(channelID, 10)+fileExt)
}

// loadDoc returns the live document for channelID, reading it from disk if
// it is in neither the dirty set nor the cache. Caller holds s.mu.
func (s *Store) loadDoc(channelID int64) (*channelDoc, error) {
	if doc, ok := s.dirty[channelID]; ok {
		return doc, nil
	}
	if doc, ok := s.cache.Get(channelID); ok {
		return doc, nil
	}

	data, err := os.ReadFile(s.path(channelID))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("filestore: read channel %d: %w", channelID, err)
	}
	doc := &channelDoc{}
	if err := yaml.Unmarshal(data, doc); err != nil {
		return nil, fmt.Errorf("filestore: parse channel %d: %w", channelID, err)
	}
	if doc.Members == nil {
		doc.Members = make(map[int64]int64)
	}
	if doc.Attributes == nil {
		doc.Attributes = make(map[string]string)
	}
	s.cache.Add(channelID, doc)
	return doc, nil
}

// markDirty pins the document until the next successful flush. Caller
// holds s.mu.
func (s *Store) markDirty(channelID int64, doc *channelDoc) {
	s.dirty[channelID] = doc
}

func (s *Store) writeDoc(channelID int64, doc *channelDoc) error {
	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("filestore: encode channel %d: %w", channelID, err)
	}
	if err := os.WriteFile(s.path(channelID), data, 0o644); err != nil {
		return fmt.Errorf("filestore: write channel %d: %w", channelID, err)
	}
	return nil
}

// ---- Lifecycle ----

// CreateChannel writes the new channel's document immediately; channel
// creation is durable without waiting for a commit cycle.
func (s *Store) CreateChannel(details model.ChannelDetails) (int64, error) {
	if err := details.Validate(); err != nil {
		return 0, fmt.Errorf("filestore: create channel: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	details.ID = id
	if details.UUID == uuid.Nil {
		details.UUID = uuid.New()
	}
	doc := &channelDoc{
		Details:    toDocDetails(details),
		Members:    map[int64]int64{details.Owner: model.OwnerGroup},
		Bans:       []int64{},
		RankNames:  model.DefaultRankNames(),
		Attributes: make(map[string]string),
	}
	for _, g := range model.DefaultGroups() {
		g.ChannelID = id
		doc.Groups = append(doc.Groups, g)
	}

	if err := s.writeDoc(id, doc); err != nil {
		return 0, err
	}
	s.nextID++
	s.cache.Add(id, doc)
	return id, nil
}

// RemoveChannel deletes the channel's document, discarding any unflushed
// changes to it.
func (s *Store) RemoveChannel(channelID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.path(channelID))
	if errors.Is(err, fs.ErrNotExist) {
		return store.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("filestore: remove channel %d: %w", channelID, err)
	}
	delete(s.dirty, channelID)
	s.cache.Remove(channelID)
	return nil
}

// ---- Mutator ----

func (s *Store) AddMember(channelID, userID, groupID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.loadDoc(channelID)
	if err != nil {
		return err
	}
	if _, exists := doc.Members[userID]; exists {
		return nil
	}
	doc.Members[userID] = groupID
	s.markDirty(channelID, doc)
	return nil
}

func (s *Store) UpdateMember(channelID, userID, groupID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.loadDoc(channelID)
	if err != nil {
		return err
	}
	if _, exists := doc.Members[userID]; !exists {
		return nil
	}
	doc.Members[userID] = groupID
	s.markDirty(channelID, doc)
	return nil
}

func (s *Store) RemoveMember(channelID, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.loadDoc(channelID)
	if err != nil {
		return err
	}
	delete(doc.Members, userID)
	s.markDirty(channelID, doc)
	return nil
}

func (s *Store) AddBan(channelID, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.loadDoc(channelID)
	if err != nil {
		return err
	}
	for _, banned := range doc.Bans {
		if banned == userID {
			return nil
		}
	}
	doc.Bans = append(doc.Bans, userID)
	s.markDirty(channelID, doc)
	return nil
}

func (s *Store) RemoveBan(channelID, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.loadDoc(channelID)
	if err != nil {
		return err
	}
	for i, banned := range doc.Bans {
		if banned == userID {
			doc.Bans = append(doc.Bans[:i], doc.Bans[i+1:]...)
			s.markDirty(channelID, doc)
			return nil
		}
	}
	return nil
}

// AddGroup is unsupported; see UpdateGroup.
func (s *Store) AddGroup(channelID int64, group model.Group) error {
	return store.ErrUnsupported
}

// UpdateGroup upserts the group row in the document. An update for a group
// the channel has no row for creates the override entry.
func (s *Store) UpdateGroup(channelID int64, group model.Group) error {
	if err := group.Validate(); err != nil {
		return fmt.Errorf("filestore: update group: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.loadDoc(channelID)
	if err != nil {
		return err
	}
	group.ChannelID = channelID
	for i := range doc.Groups {
		if doc.Groups[i].ID == group.ID {
			doc.Groups[i] = group
			s.markDirty(channelID, doc)
			return nil
		}
	}
	doc.Groups = append(doc.Groups, group)
	s.markDirty(channelID, doc)
	return nil
}

// RemoveGroup is unsupported; see UpdateGroup.
func (s *Store) RemoveGroup(channelID, groupID int64) error {
	return store.ErrUnsupported
}

func (s *Store) UpdateDetails(channelID int64, details model.ChannelDetails) error {
	if err := details.Validate(); err != nil {
		return fmt.Errorf("filestore: update details: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.loadDoc(channelID)
	if err != nil {
		return err
	}
	next := toDocDetails(details)
	next.ID = doc.Details.ID
	next.UUID = doc.Details.UUID
	doc.Details = next
	s.markDirty(channelID, doc)
	return nil
}

func (s *Store) AddAttribute(channelID int64, key, value string) error {
	if err := validateAttribute(key, value); err != nil {
		return fmt.Errorf("filestore: add attribute: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.loadDoc(channelID)
	if err != nil {
		return err
	}
	if _, exists := doc.Attributes[key]; exists {
		return nil
	}
	doc.Attributes[key] = value
	s.markDirty(channelID, doc)
	return nil
}

func (s *Store) UpdateAttribute(channelID int64, key, value string) error {
	if err := validateAttribute(key, value); err != nil {
		return fmt.Errorf("filestore: update attribute: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.loadDoc(channelID)
	if err != nil {
		return err
	}
	if _, exists := doc.Attributes[key]; !exists {
		return nil
	}
	doc.Attributes[key] = value
	s.markDirty(channelID, doc)
	return nil
}

func (s *Store) ClearAttribute(channelID int64, key string) error {
	if err := model.ValidateAttributeKey(key); err != nil {
		return fmt.Errorf("filestore: clear attribute: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.loadDoc(channelID)
	if err != nil {
		return err
	}
	delete(doc.Attributes, key)
	s.markDirty(channelID, doc)
	return nil
}

func validateAttribute(key, value string) error {
	if err := model.ValidateAttributeKey(key); err != nil {
		return err
	}
	return model.ValidateAttributeValue(value)
}

// ---- Reader ----

func (s *Store) ChannelDetails(channelID int64) (*model.ChannelDetails, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.loadDoc(channelID)
	if err != nil {
		return nil, err
	}
	details, err := doc.Details.model()
	if err != nil {
		return nil, err
	}
	return &details, nil
}

func (s *Store) ChannelAttributes(channelID int64) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.loadDoc(channelID)
	if err != nil {
		return nil, err
	}
	attrs := make(map[string]string, len(doc.Attributes))
	for k, v := range doc.Attributes {
		attrs[k] = v
	}
	return attrs, nil
}

func (s *Store) ChannelMembers(channelID int64) (map[int64]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.loadDoc(channelID)
	if err != nil {
		return nil, err
	}
	members := make(map[int64]int64, len(doc.Members))
	for u, g := range doc.Members {
		members[u] = g
	}
	return members, nil
}

func (s *Store) ChannelBans(channelID int64) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.loadDoc(channelID)
	if err != nil {
		return nil, err
	}
	bans := make([]int64, len(doc.Bans))
	copy(bans, doc.Bans)
	sort.Slice(bans, func(i, j int) bool { return bans[i] < bans[j] })
	return bans, nil
}

func (s *Store) ChannelGroups(channelID int64) ([]model.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.loadDoc(channelID)
	if err != nil {
		return nil, err
	}
	groups := make([]model.Group, len(doc.Groups))
	copy(groups, doc.Groups)
	sort.Slice(groups, func(i, j int) bool { return groups[i].ID < groups[j].ID })
	return groups, nil
}

func (s *Store) ChannelRankNames(channelID int64) (map[byte]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.loadDoc(channelID)
	if err != nil {
		return nil, err
	}
	names := model.DefaultRankNames()
	for rank, name := range doc.RankNames {
		names[rank] = name
	}
	return names, nil
}

// ---- Commit ----

// CommitChanges writes every dirty document to disk. A document that fails
// to write is logged and dropped from the pending set; it is not retried.
func (s *Store) CommitChanges() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for channelID, doc := range s.dirty {
		if err := s.writeDoc(channelID, doc); err != nil {
			slog.Error("failed to save channel document", "channel", channelID, "err", err)
		}
		delete(s.dirty, channelID)
	}
	return nil
}

// Close flushes dirty documents and drops the cache.
func (s *Store) Close() error {
	if err := s.CommitChanges(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache.Purge()
	return nil
}
