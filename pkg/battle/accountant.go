// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package battle

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/AccelByte/extend-clan-battle/pkg/ledger"
	"github.com/AccelByte/extend-clan-battle/pkg/stage"
)

// attempt is a challenge about to be recorded.
type attempt struct {
	attackerID     string
	battleDay      int
	battleSecond   int
	isContinuation bool
	comment        map[string]string
}

// prepareAttempt resolves the acting identity, the battle calendar and the
// quota. The caller holds the group mutex.
func (e *Engine) prepareAttempt(ctx context.Context, g *ledger.Group, reporter, onBehalfOf string, comment map[string]string) (*attempt, error) {
	a := &attempt{attackerID: reporter, comment: copyComment(comment)}
	if onBehalfOf != "" {
		a.comment["behalf"] = fmt.Sprintf("reported by %s", e.Nickname(ctx, reporter))
		a.attackerID = onBehalfOf
	}
	if err := e.ensureUser(ctx, a.attackerID, g.ID); err != nil {
		return nil, err
	}

	a.battleDay, a.battleSecond = BattleTime(stage.Server(g.GameServer), e.now())
	day := a.battleDay
	today, err := e.store.ListChallenges(ctx, ledger.ChallengeFilter{
		GroupID:    g.ID,
		AttackerID: a.attackerID,
		BattleDay:  &day,
	})
	if err != nil {
		return nil, &StoreError{Op: "list_challenges", Err: err}
	}

	counted := 0
	for _, c := range today {
		if !c.IsContinuation {
			counted++
		}
	}
	if counted >= DailyQuota {
		return nil, newError(InputError, "%s already reported %d challenges today", e.Nickname(ctx, a.attackerID), DailyQuota)
	}

	// one free follow-up after a kill, never a chain
	if n := len(today); n > 0 {
		last := today[n-1]
		a.isContinuation = last.IsDefeat() && !last.IsContinuation
	}
	return a, nil
}

func copyComment(comment map[string]string) map[string]string {
	c := make(map[string]string, len(comment)+1)
	for k, v := range comment {
		c[k] = v
	}
	return c
}

// ensureUser creates a user row for an attacker seen for the first time.
func (e *Engine) ensureUser(ctx context.Context, userID, groupID string) error {
	_, err := e.store.GetUser(ctx, userID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, ledger.ErrNotFound) {
		return &StoreError{Op: "get_user", Err: err}
	}
	u := &ledger.User{ID: userID, DefaultGroup: groupID, Authority: ledger.AuthorityMember}
	if err := e.store.SaveUser(ctx, u); err != nil {
		return &StoreError{Op: "save_user", Err: err}
	}
	return nil
}

func (e *Engine) record(g *ledger.Group, a *attempt, remaining, damage int) *ledger.Challenge {
	c := &ledger.Challenge{
		GroupID:         g.ID,
		AttackerID:      a.attackerID,
		BattleDay:       a.battleDay,
		BattleSecond:    a.battleSecond,
		Cycle:           g.Cycle,
		BossSlot:        g.BossSlot,
		HealthRemaining: remaining,
		Damage:          damage,
		IsContinuation:  a.isContinuation,
	}
	if len(a.comment) > 0 {
		c.Comment = a.comment
	}
	return c
}

// Damage records a non-lethal attack.
func (e *Engine) Damage(ctx context.Context, groupID, reporter string, amount int, onBehalfOf string, comment map[string]string) (status BossStatus, err error) {
	defer func() { e.observe("damage", err) }()

	if amount < 0 {
		return BossStatus{}, newError(InputError, "damage cannot be negative")
	}
	entry, err := e.lookup(groupID)
	if err != nil {
		return BossStatus{}, err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()

	if amount >= entry.state.Health {
		return BossStatus{}, newError(InputError, "damage exceeds remaining health, report a defeat instead")
	}

	next := entry.state.Clone()
	a, err := e.prepareAttempt(ctx, next, reporter, onBehalfOf, comment)
	if err != nil {
		return BossStatus{}, err
	}

	c := e.record(next, a, next.Health-amount, amount)
	next.Health -= amount
	next.Challenger = ""
	next.ChallengeComment = ""

	if err := e.store.AppendChallenge(ctx, next, c); err != nil {
		return BossStatus{}, &StoreError{Op: "damage", Err: err}
	}
	e.reports.DeletePrefix(groupID + "|")

	logrus.Infof("group %s: %s dealt %d damage to cycle %d boss %d", groupID, a.attackerID, amount, c.Cycle, c.BossSlot)
	msg := fmt.Sprintf("%s dealt %s damage to the boss", e.Nickname(ctx, a.attackerID), e.formatNumber(amount))
	return e.commit(entry, next, msg), nil
}

// Defeat records a lethal attack, advances to the next boss and fires the
// subscriptions waiting for it. The returned identities are to be alerted.
func (e *Engine) Defeat(ctx context.Context, groupID, reporter, onBehalfOf string, comment map[string]string) (status BossStatus, fired []string, err error) {
	defer func() { e.observe("defeat", err) }()

	entry, err := e.lookup(groupID)
	if err != nil {
		return BossStatus{}, nil, err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()

	next := entry.state.Clone()
	a, err := e.prepareAttempt(ctx, next, reporter, onBehalfOf, comment)
	if err != nil {
		return BossStatus{}, nil, err
	}

	dealt := next.Health
	c := e.record(next, a, 0, dealt)
	if next.BossSlot == stage.SlotsPerCycle {
		next.BossSlot = 1
		next.Cycle++
	} else {
		next.BossSlot++
	}
	next.Health = e.fullHealth(next)
	next.Challenger = ""
	next.ChallengeComment = ""

	if err := e.store.AppendChallenge(ctx, next, c); err != nil {
		return BossStatus{}, nil, &StoreError{Op: "defeat", Err: err}
	}
	e.reports.DeletePrefix(groupID + "|")

	logrus.Infof("group %s: %s defeated cycle %d boss %d", groupID, a.attackerID, c.Cycle, c.BossSlot)
	msg := fmt.Sprintf("%s dealt %s damage and defeated the boss", e.Nickname(ctx, a.attackerID), e.formatNumber(dealt))
	status = e.commit(entry, next, msg)

	fired = e.fireSubscriptions(ctx, groupID, next.BossSlot)
	return status, fired, nil
}

// Undo reverts the group's most recent challenge. Only its attacker may undo
// it unless privileged is set.
func (e *Engine) Undo(ctx context.Context, groupID, requester string, privileged bool) (status BossStatus, err error) {
	defer func() { e.observe("undo", err) }()

	entry, err := e.lookup(groupID)
	if err != nil {
		return BossStatus{}, err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()

	last, err := e.store.LastChallenge(ctx, groupID)
	if errors.Is(err, ledger.ErrNotFound) {
		return BossStatus{}, newError(GroupError, "group %s has no challenge to undo", groupID)
	}
	if err != nil {
		return BossStatus{}, &StoreError{Op: "undo", Err: err}
	}
	if last.AttackerID != requester && !privileged {
		return BossStatus{}, newError(UserError, "only %s or an admin may undo this challenge", e.Nickname(ctx, last.AttackerID))
	}

	next := entry.state.Clone()
	next.Cycle = last.Cycle
	next.BossSlot = last.BossSlot
	next.Health = last.HealthRemaining + last.Damage
	next.Challenger = ""
	next.ChallengeComment = ""

	if err := e.store.RevertChallenge(ctx, next, last.ID); err != nil {
		return BossStatus{}, &StoreError{Op: "undo", Err: err}
	}
	e.reports.DeletePrefix(groupID + "|")

	logrus.Infof("group %s: challenge %d by %s undone by %s", groupID, last.ID, last.AttackerID, requester)
	msg := fmt.Sprintf("the challenge by %s has been undone", e.Nickname(ctx, last.AttackerID))
	return e.commit(entry, next, msg), nil
}

// Modify overrides the boss position. Health is recomputed from the table
// when not given.
func (e *Engine) Modify(ctx context.Context, groupID string, req ModifyRequest) (status BossStatus, err error) {
	defer func() { e.observe("modify", err) }()

	if req.Cycle != nil && *req.Cycle < 1 {
		return BossStatus{}, newError(InputError, "cycle must be at least 1")
	}
	if req.BossSlot != nil && (*req.BossSlot < 1 || *req.BossSlot > stage.SlotsPerCycle) {
		return BossStatus{}, newError(InputError, "boss slot must be between 1 and %d", stage.SlotsPerCycle)
	}
	if req.Health != nil && *req.Health < 1 {
		return BossStatus{}, newError(InputError, "boss health must be at least 1")
	}

	entry, err := e.lookup(groupID)
	if err != nil {
		return BossStatus{}, err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()

	next := entry.state.Clone()
	if req.Cycle != nil {
		next.Cycle = *req.Cycle
	}
	if req.BossSlot != nil {
		next.BossSlot = *req.BossSlot
	}
	if req.Health != nil {
		next.Health = *req.Health
	} else {
		next.Health = e.fullHealth(next)
	}

	if err := e.store.SaveGroup(ctx, next); err != nil {
		return BossStatus{}, &StoreError{Op: "modify", Err: err}
	}

	logrus.Infof("group %s: boss modified to cycle %d boss %d health %d", groupID, next.Cycle, next.BossSlot, next.Health)
	return e.commit(entry, next, "boss status modified"), nil
}

// Restart resets the group to its first boss and deletes every challenge.
// It cannot be undone.
func (e *Engine) Restart(ctx context.Context, groupID string) (status BossStatus, err error) {
	defer func() { e.observe("restart", err) }()

	entry, err := e.lookup(groupID)
	if err != nil {
		return BossStatus{}, err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()

	next := entry.state.Clone()
	next.Cycle = 1
	next.BossSlot = 1
	next.Health = e.fullHealth(next)
	next.Challenger = ""
	next.ChallengeComment = ""

	if err := e.store.ResetChallenges(ctx, next); err != nil {
		return BossStatus{}, &StoreError{Op: "restart", Err: err}
	}
	e.reports.DeletePrefix(groupID + "|")

	logrus.Warnf("group %s: clan battle restarted, all challenges deleted", groupID)
	return e.commit(entry, next, "clan battle restarted"), nil
}
