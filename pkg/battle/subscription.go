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

// AnySlot subscribes to whichever boss comes next.
const AnySlot = 0

// Subscribe queues subscriber for an alert when targetSlot becomes active.
// Joining the any-slot queue while holding the challenge slot releases it.
func (e *Engine) Subscribe(ctx context.Context, groupID, subscriber string, targetSlot int, comment map[string]string) (err error) {
	defer func() { e.observe("subscribe", err) }()

	if targetSlot < AnySlot || targetSlot > stage.SlotsPerCycle {
		return newError(InputError, "boss slot must be between %d and %d", AnySlot, stage.SlotsPerCycle)
	}
	entry, err := e.lookup(groupID)
	if err != nil {
		return err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()

	sub := &ledger.Subscription{
		GroupID:      groupID,
		SubscriberID: subscriber,
		TargetSlot:   targetSlot,
		Comment:      comment,
	}

	var next *ledger.Group
	if targetSlot == AnySlot && entry.state.Challenger == subscriber {
		next = entry.state.Clone()
		next.Challenger = ""
		next.ChallengeComment = ""
	}

	if err := e.store.AddSubscription(ctx, sub, next); err != nil {
		if errors.Is(err, ledger.ErrAlreadyExists) {
			if targetSlot == AnySlot {
				return newError(UserError, "%s is already waiting for any boss", e.Nickname(ctx, subscriber))
			}
			return newError(UserError, "%s already subscribed to boss %d", e.Nickname(ctx, subscriber), targetSlot)
		}
		return &StoreError{Op: "subscribe", Err: err}
	}

	logrus.Infof("group %s: %s subscribed to boss %d", groupID, subscriber, targetSlot)
	if next != nil {
		e.commit(entry, next, fmt.Sprintf("%s stepped back to the queue", e.Nickname(ctx, subscriber)))
	}
	return nil
}

// Unsubscribe removes one subscription and returns how many rows were deleted.
func (e *Engine) Unsubscribe(ctx context.Context, groupID, subscriber string, targetSlot int) (n int, err error) {
	defer func() { e.observe("unsubscribe", err) }()

	if _, err := e.lookup(groupID); err != nil {
		return 0, err
	}
	n, err = e.store.RemoveSubscription(ctx, groupID, subscriber, targetSlot)
	if err != nil {
		return 0, &StoreError{Op: "unsubscribe", Err: err}
	}
	return n, nil
}

// Subscriptions lists the group's pending subscriptions.
func (e *Engine) Subscriptions(ctx context.Context, groupID string) ([]*ledger.Subscription, error) {
	if _, err := e.lookup(groupID); err != nil {
		return nil, err
	}
	subs, err := e.store.ListSubscriptions(ctx, groupID)
	if err != nil {
		return nil, &StoreError{Op: "list_subscriptions", Err: err}
	}
	return subs, nil
}

// fireSubscriptions takes every subscription for slot or any slot and
// returns the subscriber identities. The defeat that triggered it is already
// committed, so a ledger failure here is logged and yields no alerts.
func (e *Engine) fireSubscriptions(ctx context.Context, groupID string, slot int) []string {
	taken, err := e.store.TakeSubscriptions(ctx, groupID, slot)
	if err != nil {
		logrus.Errorf("group %s: failed to fire subscriptions for boss %d: %v", groupID, slot, err)
		return nil
	}

	fired := make([]string, 0, len(taken))
	for _, s := range taken {
		fired = append(fired, s.SubscriberID)
	}
	if len(fired) > 0 {
		logrus.Infof("group %s: boss %d reached, notifying %v", groupID, slot, fired)
	}
	return fired
}
