// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package battle

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/AccelByte/extend-clan-battle/pkg/ledger"
	"github.com/AccelByte/extend-clan-battle/pkg/stage"
)

// Nickname returns the user's nickname, or the ID when none is known.
func (e *Engine) Nickname(ctx context.Context, userID string) string {
	name, err := e.nicknames.GetOrLoad(userID, func() (string, error) {
		u, err := e.store.GetUser(ctx, userID)
		if errors.Is(err, ledger.ErrNotFound) {
			return "", nil
		}
		if err != nil {
			return "", err
		}
		return u.Nickname, nil
	})
	if err != nil {
		logrus.Warnf("failed to look up nickname of %s: %v", userID, err)
	}
	if name == "" {
		return userID
	}
	return name
}

// Authority returns the strongest of the user's global authority and group role.
// Unknown users are plain members.
func (e *Engine) Authority(ctx context.Context, groupID, userID string) (int, error) {
	authority := ledger.AuthorityMember
	u, err := e.store.GetUser(ctx, userID)
	if err != nil && !errors.Is(err, ledger.ErrNotFound) {
		return 0, &StoreError{Op: "authority", Err: err}
	}
	if u != nil && u.Authority < authority {
		authority = u.Authority
	}

	members, err := e.Members(ctx, groupID)
	if err != nil {
		return 0, err
	}
	for _, m := range members {
		if m.UserID == userID && m.Role < authority {
			authority = m.Role
		}
	}
	return authority, nil
}

// Members lists the group's members.
func (e *Engine) Members(ctx context.Context, groupID string) ([]*ledger.Member, error) {
	if _, err := e.lookup(groupID); err != nil {
		return nil, err
	}
	members, err := e.members.GetOrLoad(groupID, func() ([]*ledger.Member, error) {
		return e.store.ListMembers(ctx, groupID)
	})
	if err != nil {
		return nil, &StoreError{Op: "list_members", Err: err}
	}
	return members, nil
}

// Report lists challenges ordered by attacker then insertion sequence.
func (e *Engine) Report(ctx context.Context, groupID string, q ReportQuery) ([]ReportEntry, error) {
	g, err := e.Group(groupID)
	if err != nil {
		return nil, err
	}

	key := fmt.Sprintf("%s|%s|", groupID, q.AttackerID)
	if q.BattleDay != nil {
		key += fmt.Sprint(*q.BattleDay)
	}
	report, err := e.reports.GetOrLoad(key, func() ([]ReportEntry, error) {
		challenges, err := e.store.ListChallenges(ctx, ledger.ChallengeFilter{
			GroupID:    groupID,
			AttackerID: q.AttackerID,
			BattleDay:  q.BattleDay,
		})
		if err != nil {
			return nil, err
		}
		return buildReport(stage.Server(g.GameServer), challenges), nil
	})
	if err != nil {
		return nil, &StoreError{Op: "report", Err: err}
	}
	return report, nil
}

func buildReport(server stage.Server, challenges []*ledger.Challenge) []ReportEntry {
	report := make([]ReportEntry, 0, len(challenges))
	for _, c := range challenges {
		report = append(report, ReportEntry{
			ID:              c.ID,
			AttackerID:      c.AttackerID,
			ChallengeTime:   WallClock(server, c.BattleDay, c.BattleSecond),
			BattleDay:       c.BattleDay,
			Cycle:           c.Cycle,
			BossSlot:        c.BossSlot,
			HealthRemaining: c.HealthRemaining,
			Damage:          c.Damage,
			IsContinuation:  c.IsContinuation,
			Comment:         c.Comment,
		})
	}
	sort.SliceStable(report, func(i, j int) bool {
		if report[i].AttackerID != report[j].AttackerID {
			return report[i].AttackerID < report[j].AttackerID
		}
		return report[i].ID < report[j].ID
	})
	return report
}
