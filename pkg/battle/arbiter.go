// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package battle

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
)

// Apply claims the group's challenge slot for requester.
// The slot is advisory: it never gates Damage or Defeat.
func (e *Engine) Apply(ctx context.Context, groupID, requester, comment string) (status BossStatus, err error) {
	defer func() { e.observe("apply", err) }()

	entry, err := e.lookup(groupID)
	if err != nil {
		return BossStatus{}, err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()

	if holder := entry.state.Challenger; holder != "" {
		return BossStatus{}, newError(GroupError, "apply failed, %s is challenging the boss", e.Nickname(ctx, holder))
	}

	next := entry.state.Clone()
	next.Challenger = requester
	next.ChallengeStartedAt = e.now()
	next.ChallengeComment = comment

	if err := e.store.SaveGroup(ctx, next); err != nil {
		return BossStatus{}, &StoreError{Op: "apply", Err: err}
	}

	logrus.Infof("group %s: challenge slot claimed by %s", groupID, requester)
	msg := fmt.Sprintf("%s started challenging the boss", e.Nickname(ctx, requester))
	return e.commit(entry, next, msg), nil
}

// Cancel frees the challenge slot. The holder may always cancel; anyone else
// must wait OverrideWindow unless privileged is set.
func (e *Engine) Cancel(ctx context.Context, groupID, requester string, privileged bool) (status BossStatus, err error) {
	defer func() { e.observe("cancel", err) }()

	entry, err := e.lookup(groupID)
	if err != nil {
		return BossStatus{}, err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()

	holder := entry.state.Challenger
	if holder == "" {
		return BossStatus{}, newError(GroupError, "nobody is challenging the boss")
	}
	if holder != requester && !privileged {
		elapsed := e.now().Sub(entry.state.ChallengeStartedAt)
		if elapsed < OverrideWindow {
			return BossStatus{}, newError(GroupError, "cancel failed, %s started challenging %d seconds ago",
				e.Nickname(ctx, holder), int(elapsed.Seconds()))
		}
	}

	next := entry.state.Clone()
	next.Challenger = ""
	next.ChallengeComment = ""

	if err := e.store.SaveGroup(ctx, next); err != nil {
		return BossStatus{}, &StoreError{Op: "cancel", Err: err}
	}

	logrus.Infof("group %s: challenge slot of %s released by %s", groupID, holder, requester)
	return e.commit(entry, next, "the boss is open for applications"), nil
}
