// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

const (
	// redisKeyPrefix is the prefix for all clan battle keys
	redisKeyPrefix = "clan_battle:"
	// redisMaxTxRetries bounds optimistic transaction retries on WATCH conflicts
	redisMaxTxRetries = 5
)

// RedisStore implements Store using Redis.
//
// Groups and users are JSON strings, challenges live in a per-group hash
// indexed by a sorted set scored with a global insertion sequence,
// subscriptions and members are per-group hashes.
type RedisStore struct {
	client *redis.Client
	cfg    RedisStoreConfig
}

type RedisStoreConfig struct {
	// KeyPrefix overrides the default key prefix, mostly for tests sharing a server.
	KeyPrefix string
}

// NewRedisStore creates a new Redis-backed ledger.
func NewRedisStore(client *redis.Client, cfg RedisStoreConfig) *RedisStore {
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = redisKeyPrefix
	}
	return &RedisStore{
		client: client,
		cfg:    cfg,
	}
}

func (r *RedisStore) groupKey(groupID string) string {
	return fmt.Sprintf("%sgroup:%s", r.cfg.KeyPrefix, groupID)
}

func (r *RedisStore) groupIndexKey() string {
	return r.cfg.KeyPrefix + "groups"
}

func (r *RedisStore) challengeSeqKey() string {
	return r.cfg.KeyPrefix + "challenge_seq"
}

func (r *RedisStore) challengesKey(groupID string) string {
	return fmt.Sprintf("%schallenges:%s", r.cfg.KeyPrefix, groupID)
}

func (r *RedisStore) challengeIndexKey(groupID string) string {
	return fmt.Sprintf("%schallenge_index:%s", r.cfg.KeyPrefix, groupID)
}

func (r *RedisStore) subscriptionsKey(groupID string) string {
	return fmt.Sprintf("%ssubscriptions:%s", r.cfg.KeyPrefix, groupID)
}

func (r *RedisStore) userKey(userID string) string {
	return fmt.Sprintf("%suser:%s", r.cfg.KeyPrefix, userID)
}

func (r *RedisStore) membersKey(groupID string) string {
	return fmt.Sprintf("%smembers:%s", r.cfg.KeyPrefix, groupID)
}

func subscriptionField(subscriberID string, targetSlot int) string {
	return fmt.Sprintf("%s:%d", subscriberID, targetSlot)
}

// CreateGroup stores a new group, failing if it already exists.
func (r *RedisStore) CreateGroup(ctx context.Context, g *Group) error {
	data, err := json.Marshal(g)
	if err != nil {
		return fmt.Errorf("failed to marshal group: %w", err)
	}

	key := r.groupKey(g.ID)
	err = r.withWatch(ctx, func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return ErrAlreadyExists
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			pipe.SAdd(ctx, r.groupIndexKey(), g.ID)
			return nil
		})
		return err
	}, key)
	if errors.Is(err, ErrAlreadyExists) {
		return err
	}
	if err != nil {
		logrus.Errorf("failed to create group %s: %v", g.ID, err)
		return fmt.Errorf("failed to create group: %w", err)
	}

	logrus.Infof("created group %s on server %s", g.ID, g.GameServer)
	return nil
}

// GetGroup retrieves a group by ID.
func (r *RedisStore) GetGroup(ctx context.Context, groupID string) (*Group, error) {
	data, err := r.client.Get(ctx, r.groupKey(groupID)).Result()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		logrus.Errorf("failed to get group %s: %v", groupID, err)
		return nil, fmt.Errorf("failed to get group: %w", err)
	}

	var g Group
	if err := json.Unmarshal([]byte(data), &g); err != nil {
		return nil, fmt.Errorf("failed to unmarshal group: %w", err)
	}
	return &g, nil
}

// ListGroups returns every stored group ordered by ID.
func (r *RedisStore) ListGroups(ctx context.Context) ([]*Group, error) {
	ids, err := r.client.SMembers(ctx, r.groupIndexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list groups: %w", err)
	}
	sort.Strings(ids)

	groups := make([]*Group, 0, len(ids))
	for _, id := range ids {
		g, err := r.GetGroup(ctx, id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	return groups, nil
}

// SaveGroup overwrites an existing group.
func (r *RedisStore) SaveGroup(ctx context.Context, g *Group) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		return r.queueGroup(ctx, pipe, g)
	})
	if err != nil {
		logrus.Errorf("failed to save group %s: %v", g.ID, err)
		return fmt.Errorf("failed to save group: %w", err)
	}
	return nil
}

func (r *RedisStore) queueGroup(ctx context.Context, pipe redis.Pipeliner, g *Group) error {
	data, err := json.Marshal(g)
	if err != nil {
		return fmt.Errorf("failed to marshal group: %w", err)
	}
	pipe.Set(ctx, r.groupKey(g.ID), data, 0)
	pipe.SAdd(ctx, r.groupIndexKey(), g.ID)
	return nil
}

// AppendChallenge stores c with the next insertion sequence and saves g.
func (r *RedisStore) AppendChallenge(ctx context.Context, g *Group, c *Challenge) error {
	seq, err := r.client.Incr(ctx, r.challengeSeqKey()).Result()
	if err != nil {
		return fmt.Errorf("failed to allocate challenge id: %w", err)
	}

	stored := *c
	stored.ID = seq
	data, err := json.Marshal(&stored)
	if err != nil {
		return fmt.Errorf("failed to marshal challenge: %w", err)
	}

	id := strconv.FormatInt(seq, 10)
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, r.challengesKey(g.ID), id, data)
		pipe.ZAdd(ctx, r.challengeIndexKey(g.ID), &redis.Z{Score: float64(seq), Member: id})
		return r.queueGroup(ctx, pipe, g)
	})
	if err != nil {
		logrus.Errorf("failed to append challenge for group %s: %v", g.ID, err)
		return fmt.Errorf("failed to append challenge: %w", err)
	}

	c.ID = seq
	return nil
}

// RevertChallenge deletes one challenge and saves g.
func (r *RedisStore) RevertChallenge(ctx context.Context, g *Group, challengeID int64) error {
	id := strconv.FormatInt(challengeID, 10)
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HDel(ctx, r.challengesKey(g.ID), id)
		pipe.ZRem(ctx, r.challengeIndexKey(g.ID), id)
		return r.queueGroup(ctx, pipe, g)
	})
	if err != nil {
		logrus.Errorf("failed to revert challenge %d for group %s: %v", challengeID, g.ID, err)
		return fmt.Errorf("failed to revert challenge: %w", err)
	}
	return nil
}

// ResetChallenges deletes every challenge of g and saves g.
func (r *RedisStore) ResetChallenges(ctx context.Context, g *Group) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, r.challengesKey(g.ID), r.challengeIndexKey(g.ID))
		return r.queueGroup(ctx, pipe, g)
	})
	if err != nil {
		logrus.Errorf("failed to reset challenges for group %s: %v", g.ID, err)
		return fmt.Errorf("failed to reset challenges: %w", err)
	}
	return nil
}

// LastChallenge returns the group's challenge with the highest sequence.
func (r *RedisStore) LastChallenge(ctx context.Context, groupID string) (*Challenge, error) {
	ids, err := r.client.ZRevRange(ctx, r.challengeIndexKey(groupID), 0, 0).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read challenge index: %w", err)
	}
	if len(ids) == 0 {
		return nil, ErrNotFound
	}

	challenges, err := r.loadChallenges(ctx, groupID, ids)
	if err != nil {
		return nil, err
	}
	if len(challenges) == 0 {
		return nil, ErrNotFound
	}
	return challenges[0], nil
}

// ListChallenges returns matching challenges in insertion order.
func (r *RedisStore) ListChallenges(ctx context.Context, f ChallengeFilter) ([]*Challenge, error) {
	ids, err := r.client.ZRange(ctx, r.challengeIndexKey(f.GroupID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read challenge index: %w", err)
	}
	if len(ids) == 0 {
		return []*Challenge{}, nil
	}

	all, err := r.loadChallenges(ctx, f.GroupID, ids)
	if err != nil {
		return nil, err
	}

	matched := make([]*Challenge, 0, len(all))
	for _, c := range all {
		if f.match(c) {
			matched = append(matched, c)
		}
	}
	return matched, nil
}

func (r *RedisStore) loadChallenges(ctx context.Context, groupID string, ids []string) ([]*Challenge, error) {
	values, err := r.client.HMGet(ctx, r.challengesKey(groupID), ids...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load challenges: %w", err)
	}

	challenges := make([]*Challenge, 0, len(values))
	for i, v := range values {
		s, ok := v.(string)
		if !ok {
			logrus.Warnf("challenge %s of group %s is indexed but missing", ids[i], groupID)
			continue
		}
		var c Challenge
		if err := json.Unmarshal([]byte(s), &c); err != nil {
			return nil, fmt.Errorf("failed to unmarshal challenge %s: %w", ids[i], err)
		}
		challenges = append(challenges, &c)
	}
	return challenges, nil
}

// AddSubscription stores s, failing with ErrAlreadyExists on a duplicate.
func (r *RedisStore) AddSubscription(ctx context.Context, s *Subscription, g *Group) error {
	key := r.subscriptionsKey(s.GroupID)
	field := subscriptionField(s.SubscriberID, s.TargetSlot)
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal subscription: %w", err)
	}

	err = r.withWatch(ctx, func(tx *redis.Tx) error {
		exists, err := tx.HExists(ctx, key, field).Result()
		if err != nil {
			return err
		}
		if exists {
			return ErrAlreadyExists
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, field, data)
			if g != nil {
				return r.queueGroup(ctx, pipe, g)
			}
			return nil
		})
		return err
	}, key)
	if errors.Is(err, ErrAlreadyExists) {
		return err
	}
	if err != nil {
		logrus.Errorf("failed to add subscription for group %s: %v", s.GroupID, err)
		return fmt.Errorf("failed to add subscription: %w", err)
	}
	return nil
}

// RemoveSubscription deletes one subscription and returns the number of removed rows.
func (r *RedisStore) RemoveSubscription(ctx context.Context, groupID, subscriberID string, targetSlot int) (int, error) {
	n, err := r.client.HDel(ctx, r.subscriptionsKey(groupID), subscriptionField(subscriberID, targetSlot)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to remove subscription: %w", err)
	}
	return int(n), nil
}

// ListSubscriptions returns the group's subscriptions ordered by slot then subscriber.
func (r *RedisStore) ListSubscriptions(ctx context.Context, groupID string) ([]*Subscription, error) {
	values, err := r.client.HGetAll(ctx, r.subscriptionsKey(groupID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}
	return decodeSubscriptions(values)
}

// TakeSubscriptions deletes and returns the subscriptions for slot or for any slot.
func (r *RedisStore) TakeSubscriptions(ctx context.Context, groupID string, slot int) ([]*Subscription, error) {
	key := r.subscriptionsKey(groupID)
	var taken []*Subscription

	err := r.withWatch(ctx, func(tx *redis.Tx) error {
		values, err := tx.HGetAll(ctx, key).Result()
		if err != nil {
			return err
		}
		all, err := decodeSubscriptions(values)
		if err != nil {
			return err
		}

		taken = taken[:0]
		var fields []string
		for _, s := range all {
			if s.TargetSlot == slot || s.TargetSlot == 0 {
				taken = append(taken, s)
				fields = append(fields, subscriptionField(s.SubscriberID, s.TargetSlot))
			}
		}
		if len(fields) == 0 {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HDel(ctx, key, fields...)
			return nil
		})
		return err
	}, key)
	if err != nil {
		logrus.Errorf("failed to take subscriptions for group %s: %v", groupID, err)
		return nil, fmt.Errorf("failed to take subscriptions: %w", err)
	}
	return taken, nil
}

func decodeSubscriptions(values map[string]string) ([]*Subscription, error) {
	subs := make([]*Subscription, 0, len(values))
	for field, v := range values {
		var s Subscription
		if err := json.Unmarshal([]byte(v), &s); err != nil {
			return nil, fmt.Errorf("failed to unmarshal subscription %s: %w", field, err)
		}
		subs = append(subs, &s)
	}
	sortSubscriptions(subs)
	return subs, nil
}

// withWatch runs fn as an optimistic transaction, retrying on conflicts.
func (r *RedisStore) withWatch(ctx context.Context, fn func(tx *redis.Tx) error, keys ...string) error {
	var err error
	for i := 0; i < redisMaxTxRetries; i++ {
		err = r.client.Watch(ctx, fn, keys...)
		if err != redis.TxFailedErr {
			return err
		}
		logrus.Debugf("redis transaction conflict on %v (attempt %d/%d)", keys, i+1, redisMaxTxRetries)
	}
	return err
}

// GetUser retrieves a user by ID.
func (r *RedisStore) GetUser(ctx context.Context, userID string) (*User, error) {
	data, err := r.client.Get(ctx, r.userKey(userID)).Result()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	var u User
	if err := json.Unmarshal([]byte(data), &u); err != nil {
		return nil, fmt.Errorf("failed to unmarshal user: %w", err)
	}
	return &u, nil
}

// SaveUser creates or overwrites a user.
func (r *RedisStore) SaveUser(ctx context.Context, u *User) error {
	data, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("failed to marshal user: %w", err)
	}
	if err := r.client.Set(ctx, r.userKey(u.ID), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to save user: %w", err)
	}
	return nil
}

// AddMember records a membership, updating the role if it already exists.
func (r *RedisStore) AddMember(ctx context.Context, groupID, userID string, role int) error {
	if err := r.client.HSet(ctx, r.membersKey(groupID), userID, role).Err(); err != nil {
		return fmt.Errorf("failed to add member: %w", err)
	}
	return nil
}

// RemoveMembers deletes memberships and returns how many existed.
func (r *RedisStore) RemoveMembers(ctx context.Context, groupID string, userIDs []string) (int, error) {
	if len(userIDs) == 0 {
		return 0, nil
	}
	n, err := r.client.HDel(ctx, r.membersKey(groupID), userIDs...).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to remove members: %w", err)
	}
	return int(n), nil
}

// ListMembers returns the group's members ordered by user ID.
func (r *RedisStore) ListMembers(ctx context.Context, groupID string) ([]*Member, error) {
	roles, err := r.client.HGetAll(ctx, r.membersKey(groupID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}

	members := make([]*Member, 0, len(roles))
	for userID, roleStr := range roles {
		role, err := strconv.Atoi(roleStr)
		if err != nil {
			// Skip invalid entries
			continue
		}
		m := &Member{GroupID: groupID, UserID: userID, Role: role}
		u, err := r.GetUser(ctx, userID)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return nil, err
		}
		if u != nil {
			m.Nickname = u.Nickname
		}
		members = append(members, m)
	}

	sort.Slice(members, func(i, j int) bool {
		return members[i].UserID < members[j].UserID
	})
	return members, nil
}

// Ping checks the Redis connection.
func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close closes the underlying client.
func (r *RedisStore) Close() error {
	return r.client.Close()
}
