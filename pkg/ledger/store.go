// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

// Package ledger persists clan battle groups, challenge records,
// subscriptions and users.
//
// Every method that takes a *Group alongside another row writes both in a
// single transaction, so an operation is either fully persisted or not at all.
package ledger

import (
	"context"
)

// Store defines the durable storage the battle engine runs against.
type Store interface {
	CreateGroup(ctx context.Context, g *Group) error
	GetGroup(ctx context.Context, groupID string) (*Group, error)
	ListGroups(ctx context.Context) ([]*Group, error)
	SaveGroup(ctx context.Context, g *Group) error

	// AppendChallenge stores c with the next insertion sequence and saves g.
	AppendChallenge(ctx context.Context, g *Group, c *Challenge) error
	// RevertChallenge deletes one challenge and saves g.
	RevertChallenge(ctx context.Context, g *Group, challengeID int64) error
	// ResetChallenges deletes every challenge of g and saves g.
	ResetChallenges(ctx context.Context, g *Group) error
	// LastChallenge returns the group's challenge with the highest sequence.
	LastChallenge(ctx context.Context, groupID string) (*Challenge, error)
	// ListChallenges returns matching challenges in insertion order.
	ListChallenges(ctx context.Context, f ChallengeFilter) ([]*Challenge, error)

	// AddSubscription stores s, failing with ErrAlreadyExists on a duplicate.
	// A non-nil g is saved in the same transaction.
	AddSubscription(ctx context.Context, s *Subscription, g *Group) error
	RemoveSubscription(ctx context.Context, groupID, subscriberID string, targetSlot int) (int, error)
	ListSubscriptions(ctx context.Context, groupID string) ([]*Subscription, error)
	// TakeSubscriptions deletes and returns the subscriptions for slot or for any slot.
	TakeSubscriptions(ctx context.Context, groupID string, slot int) ([]*Subscription, error)

	GetUser(ctx context.Context, userID string) (*User, error)
	SaveUser(ctx context.Context, u *User) error
	AddMember(ctx context.Context, groupID, userID string, role int) error
	RemoveMembers(ctx context.Context, groupID string, userIDs []string) (int, error)
	ListMembers(ctx context.Context, groupID string) ([]*Member, error)

	Ping(ctx context.Context) error
	Close() error
}
