package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/fgalloway/chanserv/pkg/codec"
	"github.com/fgalloway/chanserv/pkg/model"
	"github.com/fgalloway/chanserv/pkg/pending"
	"github.com/fgalloway/chanserv/pkg/store"
)

// Store is the SQLite store.Backend. Batch appliers run each item as its
// own statement; an item rejected by a constraint is logged and skipped,
// only a dead connection fails the phase.
type Store struct {
	conn *ConnManager
}

// New opens (or creates) the database at path and runs migrations. The
// connection is managed lazily afterwards and closed when idle.
func New(path string, idleTimeout time.Duration) (*Store, error) {
	s := &Store{}
	s.conn = NewConnManager(path, idleTimeout, migrate)

	// Open once now so a bad path or unreadable schema fails at startup
	// rather than on the first commit.
	if _, err := s.conn.DB(); err != nil {
		_ = s.conn.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

var _ store.Backend = (*Store)(nil)

func migrate(db *sql.DB) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS channels (
		id             INTEGER PRIMARY KEY AUTOINCREMENT,
		uuid           TEXT    NOT NULL UNIQUE,
		name           TEXT    NOT NULL,
		alias          TEXT    NOT NULL DEFAULT '',
		description    TEXT    NOT NULL DEFAULT '',
		owner          INTEGER NOT NULL,
		track_messages INTEGER NOT NULL DEFAULT 0,
		rank_names     BLOB,
		created_at     TEXT    NOT NULL DEFAULT (datetime('now'))
	);

	CREATE TABLE IF NOT EXISTS channel_members (
		channel_id INTEGER NOT NULL REFERENCES channels(id) ON DELETE CASCADE,
		user_id    INTEGER NOT NULL,
		group_id   INTEGER NOT NULL DEFAULT 1,
		PRIMARY KEY (channel_id, user_id)
	);

	CREATE TABLE IF NOT EXISTS channel_bans (
		channel_id INTEGER NOT NULL REFERENCES channels(id) ON DELETE CASCADE,
		user_id    INTEGER NOT NULL,
		PRIMARY KEY (channel_id, user_id)
	);

	CREATE TABLE IF NOT EXISTS channel_groups (
		channel_id  INTEGER NOT NULL REFERENCES channels(id) ON DELETE CASCADE,
		group_id    INTEGER NOT NULL,
		name        TEXT    NOT NULL,
		permissions BLOB,
		type        INTEGER NOT NULL DEFAULT 0,
		icon        TEXT    NOT NULL DEFAULT '',
		overrides   INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (channel_id, group_id)
	);

	CREATE TABLE IF NOT EXISTS channel_attributes (
		channel_id INTEGER NOT NULL REFERENCES channels(id) ON DELETE CASCADE,
		key        TEXT    NOT NULL,
		value      TEXT    NOT NULL DEFAULT '',
		PRIMARY KEY (channel_id, key)
	);
	`
	ctx := context.Background()
	if err := ensureSchemaMigrations(ctx, db); err != nil {
		return err
	}
	currentVersion, err := getSchemaVersion(ctx, db)
	if err != nil {
		return err
	}

	migrations := []struct {
		version    int
		statements []string
	}{
		{
			version:    1,
			statements: []string{schema},
		},
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		for _, stmt := range m.statements {
			if _, err := db.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("sqlstore: migrate: %w", err)
			}
		}
		if err := setSchemaVersion(ctx, db, m.version); err != nil {
			return err
		}
	}
	return nil
}

func ensureSchemaMigrations(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS schema_migrations (version INTEGER NOT NULL)"); err != nil {
		return fmt.Errorf("sqlstore: create schema_migrations: %w", err)
	}
	var count int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations").Scan(&count); err != nil {
		return fmt.Errorf("sqlstore: check schema_migrations: %w", err)
	}
	if count == 0 {
		if _, err := db.ExecContext(ctx, "INSERT INTO schema_migrations (version) VALUES (0)"); err != nil {
			return fmt.Errorf("sqlstore: init schema_migrations: %w", err)
		}
	}
	return nil
}

func getSchemaVersion(ctx context.Context, db *sql.DB) (int, error) {
	var version int
	if err := db.QueryRowContext(ctx, "SELECT version FROM schema_migrations LIMIT 1").Scan(&version); err != nil {
		return 0, fmt.Errorf("sqlstore: read schema version: %w", err)
	}
	return version, nil
}

func setSchemaVersion(ctx context.Context, db *sql.DB, version int) error {
	if _, err := db.ExecContext(ctx, "UPDATE schema_migrations SET version = ?", version); err != nil {
		return fmt.Errorf("sqlstore: update schema version: %w", err)
	}
	return nil
}

// ---- Lifecycle ----

// CreateChannel inserts the channel row, the owner's membership and the
// default group rows in one transaction and returns the assigned ID.
func (s *Store) CreateChannel(details model.ChannelDetails) (int64, error) {
	if err := details.Validate(); err != nil {
		return 0, fmt.Errorf("sqlstore: create channel: %w", err)
	}
	db, err := s.conn.DB()
	if err != nil {
		return 0, err
	}

	if details.UUID == uuid.Nil {
		details.UUID = uuid.New()
	}
	rankNames, err := codec.EncodeRankNames(model.DefaultRankNames())
	if err != nil {
		return 0, fmt.Errorf("sqlstore: create channel: %w", err)
	}

	ctx := context.Background()
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("sqlstore: create channel: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		"INSERT INTO channels (uuid, name, alias, description, owner, track_messages, rank_names) VALUES (?, ?, ?, ?, ?, ?, ?)",
		details.UUID.String(), details.Name, details.Alias, details.Description,
		details.Owner, boolToInt(details.TrackMessages), rankNames)
	if err != nil {
		return 0, fmt.Errorf("sqlstore: create channel: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("sqlstore: create channel: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO channel_members (channel_id, user_id, group_id) VALUES (?, ?, ?)",
		id, details.Owner, model.OwnerGroup); err != nil {
		return 0, fmt.Errorf("sqlstore: seed owner member: %w", err)
	}
	for _, g := range model.DefaultGroups() {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO channel_groups (channel_id, group_id, name, permissions, type, icon, overrides) VALUES (?, ?, ?, ?, ?, ?, ?)",
			id, g.ID, g.Name, codec.EncodePermissions(g.Permissions), int(g.Type), g.Icon, boolToInt(g.Overrides)); err != nil {
			return 0, fmt.Errorf("sqlstore: seed group %d: %w", g.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("sqlstore: create channel: %w", err)
	}
	return id, nil
}

// RemoveChannel deletes the channel and every dependent row in one
// transaction.
func (s *Store) RemoveChannel(channelID int64) error {
	db, err := s.conn.DB()
	if err != nil {
		return err
	}

	ctx := context.Background()
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlstore: remove channel: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, table := range []string{"channel_attributes", "channel_members", "channel_bans", "channel_groups"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE channel_id = ?", channelID); err != nil {
			return fmt.Errorf("sqlstore: remove channel: %w", err)
		}
	}
	res, err := tx.ExecContext(ctx, "DELETE FROM channels WHERE id = ?", channelID)
	if err != nil {
		return fmt.Errorf("sqlstore: remove channel: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlstore: remove channel: %w", err)
	}
	if affected == 0 {
		return store.ErrNotFound
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlstore: remove channel: %w", err)
	}
	return nil
}

// ---- Reader ----

func (s *Store) ChannelDetails(channelID int64) (*model.ChannelDetails, error) {
	db, err := s.conn.DB()
	if err != nil {
		return nil, err
	}

	d := &model.ChannelDetails{}
	var uuidStr string
	var trackInt int
	err = db.QueryRowContext(context.Background(),
		"SELECT id, uuid, name, alias, description, owner, track_messages FROM channels WHERE id = ?", channelID).
		Scan(&d.ID, &uuidStr, &d.Name, &d.Alias, &d.Description, &d.Owner, &trackInt)
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlstore: get channel details: %w", err)
	}
	d.TrackMessages = trackInt != 0
	parsed, err := uuid.Parse(uuidStr)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: get channel details: %w", err)
	}
	d.UUID = parsed
	return d, nil
}

func (s *Store) ChannelAttributes(channelID int64) (map[string]string, error) {
	db, err := s.checkChannel(channelID)
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(context.Background(),
		"SELECT key, value FROM channel_attributes WHERE channel_id = ?", channelID)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: get attributes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	attrs := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("sqlstore: scan attribute: %w", err)
		}
		attrs[key] = value
	}
	return attrs, rows.Err()
}

func (s *Store) ChannelMembers(channelID int64) (map[int64]int64, error) {
	db, err := s.checkChannel(channelID)
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(context.Background(),
		"SELECT user_id, group_id FROM channel_members WHERE channel_id = ?", channelID)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: get members: %w", err)
	}
	defer func() { _ = rows.Close() }()

	members := make(map[int64]int64)
	for rows.Next() {
		var userID, groupID int64
		if err := rows.Scan(&userID, &groupID); err != nil {
			return nil, fmt.Errorf("sqlstore: scan member: %w", err)
		}
		members[userID] = groupID
	}
	return members, rows.Err()
}

func (s *Store) ChannelBans(channelID int64) ([]int64, error) {
	db, err := s.checkChannel(channelID)
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(context.Background(),
		"SELECT user_id FROM channel_bans WHERE channel_id = ? ORDER BY user_id", channelID)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: get bans: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var bans []int64
	for rows.Next() {
		var userID int64
		if err := rows.Scan(&userID); err != nil {
			return nil, fmt.Errorf("sqlstore: scan ban: %w", err)
		}
		bans = append(bans, userID)
	}
	if bans == nil {
		bans = []int64{}
	}
	return bans, rows.Err()
}

func (s *Store) ChannelGroups(channelID int64) ([]model.Group, error) {
	db, err := s.checkChannel(channelID)
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(context.Background(),
		"SELECT group_id, name, permissions, type, icon, overrides FROM channel_groups WHERE channel_id = ? ORDER BY group_id", channelID)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: get groups: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var groups []model.Group
	for rows.Next() {
		g := model.Group{ChannelID: channelID}
		var permBlob []byte
		var typeInt, overridesInt int
		if err := rows.Scan(&g.ID, &g.Name, &permBlob, &typeInt, &g.Icon, &overridesInt); err != nil {
			return nil, fmt.Errorf("sqlstore: scan group: %w", err)
		}
		g.Type = model.GroupType(typeInt)
		g.Overrides = overridesInt != 0
		perms, err := codec.DecodePermissions(permBlob)
		if err != nil {
			slog.Warn("group permission blob unreadable, treating as empty",
				"channel", channelID, "group", g.ID, "err", err)
		}
		g.Permissions = perms
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

// ChannelRankNames decodes the channel's rank-name blob over the default
// table, so a partial or legacy blob still yields all twelve entries.
func (s *Store) ChannelRankNames(channelID int64) (map[byte]string, error) {
	db, err := s.conn.DB()
	if err != nil {
		return nil, err
	}

	var blob []byte
	err = db.QueryRowContext(context.Background(),
		"SELECT rank_names FROM channels WHERE id = ?", channelID).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlstore: get rank names: %w", err)
	}

	names := model.DefaultRankNames()
	decoded, err := codec.DecodeRankNames(blob)
	if err != nil {
		slog.Warn("rank name blob unreadable, using defaults", "channel", channelID, "err", err)
		return names, nil
	}
	for rank, name := range decoded {
		names[rank] = name
	}
	return names, nil
}

// checkChannel returns a live handle after verifying the channel row
// exists, so reads of dependent tables can tell "no rows" from "no
// channel".
func (s *Store) checkChannel(channelID int64) (*sql.DB, error) {
	db, err := s.conn.DB()
	if err != nil {
		return nil, err
	}
	var one int
	err = db.QueryRowContext(context.Background(),
		"SELECT 1 FROM channels WHERE id = ?", channelID).Scan(&one)
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlstore: check channel: %w", err)
	}
	return db, nil
}

// ---- BatchApplier ----

func (s *Store) ApplyMemberAdditions(additions map[pending.Key]int64) error {
	db, err := s.conn.DB()
	if err != nil {
		return err
	}
	ctx := context.Background()
	for key, groupID := range additions {
		if _, err := db.ExecContext(ctx,
			"INSERT INTO channel_members (channel_id, user_id, group_id) VALUES (?, ?, ?)",
			key.Channel, key.User, groupID); err != nil {
			slog.Warn("member addition rejected", "channel", key.Channel, "user", key.User, "err", err)
		}
	}
	return nil
}

func (s *Store) ApplyMemberUpdates(updates map[pending.Key]int64) error {
	db, err := s.conn.DB()
	if err != nil {
		return err
	}
	ctx := context.Background()
	for key, groupID := range updates {
		if _, err := db.ExecContext(ctx,
			"UPDATE channel_members SET group_id = ? WHERE channel_id = ? AND user_id = ?",
			groupID, key.Channel, key.User); err != nil {
			slog.Warn("member update rejected", "channel", key.Channel, "user", key.User, "err", err)
		}
	}
	return nil
}

func (s *Store) ApplyMemberRemovals(removals map[pending.Key]struct{}) error {
	db, err := s.conn.DB()
	if err != nil {
		return err
	}
	ctx := context.Background()
	for key := range removals {
		if _, err := db.ExecContext(ctx,
			"DELETE FROM channel_members WHERE channel_id = ? AND user_id = ?",
			key.Channel, key.User); err != nil {
			slog.Warn("member removal rejected", "channel", key.Channel, "user", key.User, "err", err)
		}
	}
	return nil
}

func (s *Store) ApplyBanAdditions(additions map[pending.Key]struct{}) error {
	db, err := s.conn.DB()
	if err != nil {
		return err
	}
	ctx := context.Background()
	for key := range additions {
		if _, err := db.ExecContext(ctx,
			"INSERT INTO channel_bans (channel_id, user_id) VALUES (?, ?)",
			key.Channel, key.User); err != nil {
			slog.Warn("ban addition rejected", "channel", key.Channel, "user", key.User, "err", err)
		}
	}
	return nil
}

func (s *Store) ApplyBanRemovals(removals map[pending.Key]struct{}) error {
	db, err := s.conn.DB()
	if err != nil {
		return err
	}
	ctx := context.Background()
	for key := range removals {
		if _, err := db.ExecContext(ctx,
			"DELETE FROM channel_bans WHERE channel_id = ? AND user_id = ?",
			key.Channel, key.User); err != nil {
			slog.Warn("ban removal rejected", "channel", key.Channel, "user", key.User, "err", err)
		}
	}
	return nil
}

func (s *Store) ApplyGroupUpdates(groups []model.Group) error {
	db, err := s.conn.DB()
	if err != nil {
		return err
	}
	ctx := context.Background()
	for _, g := range groups {
		// Upsert: an update for a group the channel has no row for creates
		// the override row.
		if _, err := db.ExecContext(ctx,
			`INSERT INTO channel_groups (channel_id, group_id, name, permissions, type, icon, overrides)
			 VALUES (?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT (channel_id, group_id) DO UPDATE SET
			   name = excluded.name, permissions = excluded.permissions,
			   type = excluded.type, icon = excluded.icon, overrides = excluded.overrides`,
			g.ChannelID, g.ID, g.Name, codec.EncodePermissions(g.Permissions),
			int(g.Type), g.Icon, boolToInt(g.Overrides)); err != nil {
			slog.Warn("group update rejected", "channel", g.ChannelID, "group", g.ID, "err", err)
		}
	}
	return nil
}

func (s *Store) ApplyDetailChanges(details map[int64]model.ChannelDetails) error {
	db, err := s.conn.DB()
	if err != nil {
		return err
	}
	ctx := context.Background()
	for channelID, d := range details {
		if _, err := db.ExecContext(ctx,
			"UPDATE channels SET name = ?, alias = ?, description = ?, owner = ?, track_messages = ? WHERE id = ?",
			d.Name, d.Alias, d.Description, d.Owner, boolToInt(d.TrackMessages), channelID); err != nil {
			slog.Warn("detail change rejected", "channel", channelID, "err", err)
		}
	}
	return nil
}

func (s *Store) ApplyAttrAdditions(additions map[pending.Key]string) error {
	db, err := s.conn.DB()
	if err != nil {
		return err
	}
	ctx := context.Background()
	for key, value := range additions {
		if _, err := db.ExecContext(ctx,
			"INSERT INTO channel_attributes (channel_id, key, value) VALUES (?, ?, ?)",
			key.Channel, key.Attr, value); err != nil {
			slog.Warn("attribute addition rejected", "channel", key.Channel, "key", key.Attr, "err", err)
		}
	}
	return nil
}

func (s *Store) ApplyAttrUpdates(updates map[pending.Key]string) error {
	db, err := s.conn.DB()
	if err != nil {
		return err
	}
	ctx := context.Background()
	for key, value := range updates {
		if _, err := db.ExecContext(ctx,
			"UPDATE channel_attributes SET value = ? WHERE channel_id = ? AND key = ?",
			value, key.Channel, key.Attr); err != nil {
			slog.Warn("attribute update rejected", "channel", key.Channel, "key", key.Attr, "err", err)
		}
	}
	return nil
}

func (s *Store) ApplyAttrRemovals(removals map[pending.Key]struct{}) error {
	db, err := s.conn.DB()
	if err != nil {
		return err
	}
	ctx := context.Background()
	for key := range removals {
		if _, err := db.ExecContext(ctx,
			"DELETE FROM channel_attributes WHERE channel_id = ? AND key = ?",
			key.Channel, key.Attr); err != nil {
			slog.Warn("attribute removal rejected", "channel", key.Channel, "key", key.Attr, "err", err)
		}
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
