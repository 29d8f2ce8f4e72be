// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS groups (
	id                   TEXT PRIMARY KEY,
	name                 TEXT NOT NULL DEFAULT '',
	game_server          TEXT NOT NULL,
	hard_mode            INTEGER NOT NULL DEFAULT 0,
	cycle                INTEGER NOT NULL,
	boss_slot            INTEGER NOT NULL,
	health               INTEGER NOT NULL,
	challenger           TEXT NOT NULL DEFAULT '',
	challenge_started_at INTEGER NOT NULL DEFAULT 0,
	challenge_comment    TEXT NOT NULL DEFAULT '',
	notification_mask    INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS challenges (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	group_id         TEXT NOT NULL,
	attacker_id      TEXT NOT NULL,
	battle_day       INTEGER NOT NULL,
	battle_second    INTEGER NOT NULL,
	cycle            INTEGER NOT NULL,
	boss_slot        INTEGER NOT NULL,
	health_remaining INTEGER NOT NULL,
	damage           INTEGER NOT NULL,
	is_continuation  INTEGER NOT NULL DEFAULT 0,
	comment          TEXT NOT NULL DEFAULT '{}'
);

CREATE INDEX IF NOT EXISTS idx_challenges_attacker_day
	ON challenges(group_id, attacker_id, battle_day);

CREATE TABLE IF NOT EXISTS subscriptions (
	group_id      TEXT NOT NULL,
	subscriber_id TEXT NOT NULL,
	target_slot   INTEGER NOT NULL,
	comment       TEXT NOT NULL DEFAULT '{}',
	PRIMARY KEY (group_id, subscriber_id, target_slot)
);

CREATE TABLE IF NOT EXISTS users (
	id            TEXT PRIMARY KEY,
	nickname      TEXT NOT NULL DEFAULT '',
	default_group TEXT NOT NULL DEFAULT '',
	authority     INTEGER NOT NULL DEFAULT 100
);

CREATE TABLE IF NOT EXISTS members (
	group_id TEXT NOT NULL,
	user_id  TEXT NOT NULL,
	role     INTEGER NOT NULL DEFAULT 100,
	PRIMARY KEY (group_id, user_id)
);
`

const groupColumns = `id, name, game_server, hard_mode, cycle, boss_slot, health,
	challenger, challenge_started_at, challenge_comment, notification_mask`

const challengeColumns = `id, group_id, attacker_id, battle_day, battle_second, cycle,
	boss_slot, health_remaining, damage, is_continuation, comment`

// SQLiteStore implements Store on an embedded SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite creates or opens a database at path and applies the schema.
// The database runs in WAL mode with a single writer connection.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", p, err)
		}
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	logrus.Infof("opened sqlite ledger at %s", path)
	return &SQLiteStore{db: db}, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func encodeTime(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func decodeTime(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}

func encodeComment(c map[string]string) (string, error) {
	if len(c) == 0 {
		return "{}", nil
	}
	data, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("failed to marshal comment: %w", err)
	}
	return string(data), nil
}

func decodeComment(s string) (map[string]string, error) {
	if s == "" || s == "{}" {
		return nil, nil
	}
	var c map[string]string
	if err := json.Unmarshal([]byte(s), &c); err != nil {
		return nil, fmt.Errorf("failed to unmarshal comment: %w", err)
	}
	return c, nil
}

func scanGroup(row rowScanner) (*Group, error) {
	var (
		g         Group
		startedAt int64
	)
	err := row.Scan(&g.ID, &g.Name, &g.GameServer, &g.HardMode, &g.Cycle, &g.BossSlot, &g.Health,
		&g.Challenger, &startedAt, &g.ChallengeComment, &g.NotificationMask)
	if err != nil {
		return nil, err
	}
	g.ChallengeStartedAt = decodeTime(startedAt)
	return &g, nil
}

func scanChallenge(row rowScanner) (*Challenge, error) {
	var (
		c       Challenge
		comment string
	)
	err := row.Scan(&c.ID, &c.GroupID, &c.AttackerID, &c.BattleDay, &c.BattleSecond, &c.Cycle,
		&c.BossSlot, &c.HealthRemaining, &c.Damage, &c.IsContinuation, &comment)
	if err != nil {
		return nil, err
	}
	if c.Comment, err = decodeComment(comment); err != nil {
		return nil, err
	}
	return &c, nil
}

// CreateGroup stores a new group, failing if it already exists.
func (s *SQLiteStore) CreateGroup(ctx context.Context, g *Group) error {
	res, err := s.db.ExecContext(ctx, `INSERT OR IGNORE INTO groups (`+groupColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		g.ID, g.Name, g.GameServer, g.HardMode, g.Cycle, g.BossSlot, g.Health,
		g.Challenger, encodeTime(g.ChallengeStartedAt), g.ChallengeComment, g.NotificationMask)
	if err != nil {
		return fmt.Errorf("failed to create group: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to create group: %w", err)
	}
	if n == 0 {
		return ErrAlreadyExists
	}
	return nil
}

// GetGroup retrieves a group by ID.
func (s *SQLiteStore) GetGroup(ctx context.Context, groupID string) (*Group, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+groupColumns+` FROM groups WHERE id = ?`, groupID)
	g, err := scanGroup(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get group: %w", err)
	}
	return g, nil
}

// ListGroups returns every stored group ordered by ID.
func (s *SQLiteStore) ListGroups(ctx context.Context) ([]*Group, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+groupColumns+` FROM groups ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list groups: %w", err)
	}
	defer rows.Close()

	var groups []*Group
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan group: %w", err)
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

// SaveGroup overwrites an existing group.
func (s *SQLiteStore) SaveGroup(ctx context.Context, g *Group) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		return saveGroupTx(ctx, tx, g)
	})
}

func saveGroupTx(ctx context.Context, tx *sql.Tx, g *Group) error {
	res, err := tx.ExecContext(ctx, `UPDATE groups SET name = ?, game_server = ?, hard_mode = ?,
		cycle = ?, boss_slot = ?, health = ?, challenger = ?, challenge_started_at = ?,
		challenge_comment = ?, notification_mask = ? WHERE id = ?`,
		g.Name, g.GameServer, g.HardMode, g.Cycle, g.BossSlot, g.Health, g.Challenger,
		encodeTime(g.ChallengeStartedAt), g.ChallengeComment, g.NotificationMask, g.ID)
	if err != nil {
		return fmt.Errorf("failed to save group: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to save group: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			logrus.Errorf("failed to roll back transaction: %v", rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// AppendChallenge stores c with the next insertion sequence and saves g.
func (s *SQLiteStore) AppendChallenge(ctx context.Context, g *Group, c *Challenge) error {
	comment, err := encodeComment(c.Comment)
	if err != nil {
		return err
	}

	var id int64
	err = s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `INSERT INTO challenges (group_id, attacker_id, battle_day,
			battle_second, cycle, boss_slot, health_remaining, damage, is_continuation, comment)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			c.GroupID, c.AttackerID, c.BattleDay, c.BattleSecond, c.Cycle, c.BossSlot,
			c.HealthRemaining, c.Damage, c.IsContinuation, comment)
		if err != nil {
			return fmt.Errorf("failed to insert challenge: %w", err)
		}
		if id, err = res.LastInsertId(); err != nil {
			return fmt.Errorf("failed to read challenge id: %w", err)
		}
		return saveGroupTx(ctx, tx, g)
	})
	if err != nil {
		return err
	}

	c.ID = id
	return nil
}

// RevertChallenge deletes one challenge and saves g.
func (s *SQLiteStore) RevertChallenge(ctx context.Context, g *Group, challengeID int64) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM challenges WHERE id = ? AND group_id = ?`, challengeID, g.ID); err != nil {
			return fmt.Errorf("failed to delete challenge: %w", err)
		}
		return saveGroupTx(ctx, tx, g)
	})
}

// ResetChallenges deletes every challenge of g and saves g.
func (s *SQLiteStore) ResetChallenges(ctx context.Context, g *Group) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM challenges WHERE group_id = ?`, g.ID); err != nil {
			return fmt.Errorf("failed to delete challenges: %w", err)
		}
		return saveGroupTx(ctx, tx, g)
	})
}

// LastChallenge returns the group's challenge with the highest sequence.
func (s *SQLiteStore) LastChallenge(ctx context.Context, groupID string) (*Challenge, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+challengeColumns+` FROM challenges
		WHERE group_id = ? ORDER BY id DESC LIMIT 1`, groupID)
	c, err := scanChallenge(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get last challenge: %w", err)
	}
	return c, nil
}

// ListChallenges returns matching challenges in insertion order.
func (s *SQLiteStore) ListChallenges(ctx context.Context, f ChallengeFilter) ([]*Challenge, error) {
	where := []string{"group_id = ?"}
	args := []any{f.GroupID}
	if f.AttackerID != "" {
		where = append(where, "attacker_id = ?")
		args = append(args, f.AttackerID)
	}
	if f.BattleDay != nil {
		where = append(where, "battle_day = ?")
		args = append(args, *f.BattleDay)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT `+challengeColumns+` FROM challenges
		WHERE `+strings.Join(where, " AND ")+` ORDER BY id`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list challenges: %w", err)
	}
	defer rows.Close()

	challenges := []*Challenge{}
	for rows.Next() {
		c, err := scanChallenge(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan challenge: %w", err)
		}
		challenges = append(challenges, c)
	}
	return challenges, rows.Err()
}

// AddSubscription stores sub, failing with ErrAlreadyExists on a duplicate.
func (s *SQLiteStore) AddSubscription(ctx context.Context, sub *Subscription, g *Group) error {
	comment, err := encodeComment(sub.Comment)
	if err != nil {
		return err
	}

	return s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO subscriptions
			(group_id, subscriber_id, target_slot, comment) VALUES (?, ?, ?, ?)`,
			sub.GroupID, sub.SubscriberID, sub.TargetSlot, comment)
		if err != nil {
			return fmt.Errorf("failed to add subscription: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to add subscription: %w", err)
		}
		if n == 0 {
			return ErrAlreadyExists
		}
		if g != nil {
			return saveGroupTx(ctx, tx, g)
		}
		return nil
	})
}

// RemoveSubscription deletes one subscription and returns the number of removed rows.
func (s *SQLiteStore) RemoveSubscription(ctx context.Context, groupID, subscriberID string, targetSlot int) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM subscriptions
		WHERE group_id = ? AND subscriber_id = ? AND target_slot = ?`, groupID, subscriberID, targetSlot)
	if err != nil {
		return 0, fmt.Errorf("failed to remove subscription: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to remove subscription: %w", err)
	}
	return int(n), nil
}

// ListSubscriptions returns the group's subscriptions ordered by slot then subscriber.
func (s *SQLiteStore) ListSubscriptions(ctx context.Context, groupID string) ([]*Subscription, error) {
	return s.querySubscriptions(ctx, s.db, `SELECT group_id, subscriber_id, target_slot, comment
		FROM subscriptions WHERE group_id = ?`, groupID)
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *SQLiteStore) querySubscriptions(ctx context.Context, q querier, query string, args ...any) ([]*Subscription, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}
	defer rows.Close()

	subs := []*Subscription{}
	for rows.Next() {
		var (
			sub     Subscription
			comment string
		)
		if err := rows.Scan(&sub.GroupID, &sub.SubscriberID, &sub.TargetSlot, &comment); err != nil {
			return nil, fmt.Errorf("failed to scan subscription: %w", err)
		}
		if sub.Comment, err = decodeComment(comment); err != nil {
			return nil, err
		}
		subs = append(subs, &sub)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sortSubscriptions(subs)
	return subs, nil
}

// TakeSubscriptions deletes and returns the subscriptions for slot or for any slot.
func (s *SQLiteStore) TakeSubscriptions(ctx context.Context, groupID string, slot int) ([]*Subscription, error) {
	var taken []*Subscription
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		taken, err = s.querySubscriptions(ctx, tx, `SELECT group_id, subscriber_id, target_slot, comment
			FROM subscriptions WHERE group_id = ? AND (target_slot = ? OR target_slot = 0)`, groupID, slot)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM subscriptions
			WHERE group_id = ? AND (target_slot = ? OR target_slot = 0)`, groupID, slot); err != nil {
			return fmt.Errorf("failed to delete subscriptions: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return taken, nil
}

// GetUser retrieves a user by ID.
func (s *SQLiteStore) GetUser(ctx context.Context, userID string) (*User, error) {
	var u User
	err := s.db.QueryRowContext(ctx, `SELECT id, nickname, default_group, authority FROM users WHERE id = ?`, userID).
		Scan(&u.ID, &u.Nickname, &u.DefaultGroup, &u.Authority)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &u, nil
}

// SaveUser creates or overwrites a user.
func (s *SQLiteStore) SaveUser(ctx context.Context, u *User) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO users (id, nickname, default_group, authority)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET nickname = excluded.nickname,
			default_group = excluded.default_group, authority = excluded.authority`,
		u.ID, u.Nickname, u.DefaultGroup, u.Authority)
	if err != nil {
		return fmt.Errorf("failed to save user: %w", err)
	}
	return nil
}

// AddMember records a membership, updating the role if it already exists.
func (s *SQLiteStore) AddMember(ctx context.Context, groupID, userID string, role int) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO members (group_id, user_id, role) VALUES (?, ?, ?)
		ON CONFLICT(group_id, user_id) DO UPDATE SET role = excluded.role`, groupID, userID, role)
	if err != nil {
		return fmt.Errorf("failed to add member: %w", err)
	}
	return nil
}

// RemoveMembers deletes memberships and returns how many existed.
func (s *SQLiteStore) RemoveMembers(ctx context.Context, groupID string, userIDs []string) (int, error) {
	if len(userIDs) == 0 {
		return 0, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(userIDs)), ",")
	args := make([]any, 0, len(userIDs)+1)
	args = append(args, groupID)
	for _, id := range userIDs {
		args = append(args, id)
	}

	res, err := s.db.ExecContext(ctx, `DELETE FROM members WHERE group_id = ? AND user_id IN (`+placeholders+`)`, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to remove members: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to remove members: %w", err)
	}
	return int(n), nil
}

// ListMembers returns the group's members ordered by user ID.
func (s *SQLiteStore) ListMembers(ctx context.Context, groupID string) ([]*Member, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT m.group_id, m.user_id, COALESCE(u.nickname, ''), m.role
		FROM members m LEFT JOIN users u ON u.id = m.user_id
		WHERE m.group_id = ? ORDER BY m.user_id`, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	defer rows.Close()

	members := []*Member{}
	for rows.Next() {
		var m Member
		if err := rows.Scan(&m.GroupID, &m.UserID, &m.Nickname, &m.Role); err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		members = append(members, &m)
	}
	return members, rows.Err()
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}
