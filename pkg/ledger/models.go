// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package ledger

import (
	"sort"
	"time"
)

// Authority levels for users; a lower value is stronger.
const (
	AuthorityOwner  = 0
	AuthorityAdmin  = 10
	AuthorityMember = 100
)

// Group is the persisted battle state of one clan group.
type Group struct {
	ID                 string    `json:"id"`
	Name               string    `json:"name"`
	GameServer         string    `json:"gameServer"`
	HardMode           bool      `json:"hardMode"`
	Cycle              int       `json:"cycle"`
	BossSlot           int       `json:"bossSlot"`
	Health             int       `json:"health"`
	Challenger         string    `json:"challenger,omitempty"`
	ChallengeStartedAt time.Time `json:"challengeStartedAt"`
	ChallengeComment   string    `json:"challengeComment,omitempty"`
	NotificationMask   int       `json:"notificationMask"`
}

// Clone returns a copy that can be mutated without touching the original.
func (g *Group) Clone() *Group {
	c := *g
	return &c
}

// Challenge is one accounted attack. Rows are append-only.
type Challenge struct {
	ID              int64             `json:"id"`
	GroupID         string            `json:"groupId"`
	AttackerID      string            `json:"attackerId"`
	BattleDay       int               `json:"battleDay"`
	BattleSecond    int               `json:"battleSecond"`
	Cycle           int               `json:"cycle"`
	BossSlot        int               `json:"bossSlot"`
	HealthRemaining int               `json:"healthRemaining"`
	Damage          int               `json:"damage"`
	IsContinuation  bool              `json:"isContinuation"`
	Comment         map[string]string `json:"comment,omitempty"`
}

// IsDefeat reports whether the attack killed the boss.
func (c *Challenge) IsDefeat() bool {
	return c.HealthRemaining == 0
}

// ChallengeFilter selects challenges of one group.
// Empty AttackerID and nil BattleDay match everything.
type ChallengeFilter struct {
	GroupID    string
	AttackerID string
	BattleDay  *int
}

func (f ChallengeFilter) match(c *Challenge) bool {
	if c.GroupID != f.GroupID {
		return false
	}
	if f.AttackerID != "" && c.AttackerID != f.AttackerID {
		return false
	}
	if f.BattleDay != nil && c.BattleDay != *f.BattleDay {
		return false
	}
	return true
}

// Subscription asks for an alert when TargetSlot becomes active; 0 means any slot.
type Subscription struct {
	GroupID      string            `json:"groupId"`
	SubscriberID string            `json:"subscriberId"`
	TargetSlot   int               `json:"targetSlot"`
	Comment      map[string]string `json:"comment,omitempty"`
}

// User is a player known to the service.
type User struct {
	ID           string `json:"id"`
	Nickname     string `json:"nickname"`
	DefaultGroup string `json:"defaultGroup,omitempty"`
	Authority    int    `json:"authority"`
}

// Member is a user's membership in a group.
type Member struct {
	GroupID  string `json:"groupId"`
	UserID   string `json:"userId"`
	Nickname string `json:"nickname"`
	Role     int    `json:"role"`
}

func sortSubscriptions(subs []*Subscription) {
	sort.Slice(subs, func(i, j int) bool {
		if subs[i].TargetSlot != subs[j].TargetSlot {
			return subs[i].TargetSlot < subs[j].TargetSlot
		}
		return subs[i].SubscriberID < subs[j].SubscriberID
	})
}
