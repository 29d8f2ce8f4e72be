// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package ledger

import (
	"context"
	"errors"
	"testing"
	"time"
)

// runStoreContract exercises behavior every Store backend must share.
func runStoreContract(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("group lifecycle", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		g := testGroup("g1")
		if err := s.CreateGroup(ctx, g); err != nil {
			t.Fatalf("CreateGroup() error = %v", err)
		}
		if err := s.CreateGroup(ctx, g); !errors.Is(err, ErrAlreadyExists) {
			t.Errorf("CreateGroup() duplicate error = %v, expected ErrAlreadyExists", err)
		}

		got, err := s.GetGroup(ctx, "g1")
		if err != nil {
			t.Fatalf("GetGroup() error = %v", err)
		}
		if got.GameServer != "jp" || got.Health != 6000000 || !got.ChallengeStartedAt.IsZero() {
			t.Errorf("GetGroup() = %+v, expected jp at 6000000 with no challenge", got)
		}

		started := time.Unix(1700000000, 0)
		got.Challenger = "alice"
		got.ChallengeStartedAt = started
		got.ChallengeComment = "on it"
		if err := s.SaveGroup(ctx, got); err != nil {
			t.Fatalf("SaveGroup() error = %v", err)
		}

		again, err := s.GetGroup(ctx, "g1")
		if err != nil {
			t.Fatalf("GetGroup() error = %v", err)
		}
		if again.Challenger != "alice" || !again.ChallengeStartedAt.Equal(started) || again.ChallengeComment != "on it" {
			t.Errorf("GetGroup() after save = %+v, expected alice's claim", again)
		}

		if _, err := s.GetGroup(ctx, "missing"); !errors.Is(err, ErrNotFound) {
			t.Errorf("GetGroup(missing) error = %v, expected ErrNotFound", err)
		}
	})

	t.Run("list groups ordered by id", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		for _, id := range []string{"b", "a", "c"} {
			if err := s.CreateGroup(ctx, testGroup(id)); err != nil {
				t.Fatalf("CreateGroup(%s) error = %v", id, err)
			}
		}
		groups, err := s.ListGroups(ctx)
		if err != nil {
			t.Fatalf("ListGroups() error = %v", err)
		}
		if len(groups) != 3 {
			t.Fatalf("ListGroups() = %d groups, expected 3", len(groups))
		}
		if groups[0].ID != "a" || groups[2].ID != "c" {
			t.Errorf("ListGroups() order = %s..%s, expected a..c", groups[0].ID, groups[2].ID)
		}
	})

	t.Run("challenges keep insertion order", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		g := testGroup("g1")
		if err := s.CreateGroup(ctx, g); err != nil {
			t.Fatalf("CreateGroup() error = %v", err)
		}
		if _, err := s.LastChallenge(ctx, "g1"); !errors.Is(err, ErrNotFound) {
			t.Errorf("LastChallenge() on empty group error = %v, expected ErrNotFound", err)
		}

		var ids []int64
		for i, attacker := range []string{"alice", "bob", "alice"} {
			g.Health -= 1000
			c := &Challenge{
				GroupID:         "g1",
				AttackerID:      attacker,
				BattleDay:       100 + i/2,
				BattleSecond:    3600 * i,
				Cycle:           1,
				BossSlot:        1,
				HealthRemaining: g.Health,
				Damage:          1000,
				Comment:         map[string]string{"note": attacker},
			}
			if err := s.AppendChallenge(ctx, g, c); err != nil {
				t.Fatalf("AppendChallenge() error = %v", err)
			}
			if c.ID == 0 {
				t.Fatal("AppendChallenge() did not assign an id")
			}
			ids = append(ids, c.ID)
		}
		if !(ids[0] < ids[1] && ids[1] < ids[2]) {
			t.Errorf("challenge ids = %v, expected increasing", ids)
		}

		saved, err := s.GetGroup(ctx, "g1")
		if err != nil {
			t.Fatalf("GetGroup() error = %v", err)
		}
		if saved.Health != 6000000-3000 {
			t.Errorf("Health = %d, expected %d", saved.Health, 6000000-3000)
		}

		all, err := s.ListChallenges(ctx, ChallengeFilter{GroupID: "g1"})
		if err != nil {
			t.Fatalf("ListChallenges() error = %v", err)
		}
		if len(all) != 3 {
			t.Fatalf("ListChallenges() = %d rows, expected 3", len(all))
		}
		if all[0].ID != ids[0] || all[1].AttackerID != "bob" || all[2].Comment["note"] != "alice" {
			t.Errorf("ListChallenges() = %+v, %+v, %+v, expected insertion order with comments", all[0], all[1], all[2])
		}

		day := 100
		alice, err := s.ListChallenges(ctx, ChallengeFilter{GroupID: "g1", AttackerID: "alice", BattleDay: &day})
		if err != nil {
			t.Fatalf("ListChallenges(alice, day 100) error = %v", err)
		}
		if len(alice) != 1 || alice[0].ID != ids[0] {
			t.Errorf("ListChallenges(alice, day 100) = %d rows, expected only challenge %d", len(alice), ids[0])
		}

		last, err := s.LastChallenge(ctx, "g1")
		if err != nil {
			t.Fatalf("LastChallenge() error = %v", err)
		}
		if last.ID != ids[2] {
			t.Errorf("LastChallenge() = %d, expected %d", last.ID, ids[2])
		}

		g.Health += 1000
		if err := s.RevertChallenge(ctx, g, last.ID); err != nil {
			t.Fatalf("RevertChallenge() error = %v", err)
		}
		last, err = s.LastChallenge(ctx, "g1")
		if err != nil {
			t.Fatalf("LastChallenge() error = %v", err)
		}
		if last.ID != ids[1] {
			t.Errorf("LastChallenge() after revert = %d, expected %d", last.ID, ids[1])
		}
		saved, err = s.GetGroup(ctx, "g1")
		if err != nil {
			t.Fatalf("GetGroup() error = %v", err)
		}
		if saved.Health != 6000000-2000 {
			t.Errorf("Health after revert = %d, expected %d", saved.Health, 6000000-2000)
		}

		g.Health = 6000000
		if err := s.ResetChallenges(ctx, g); err != nil {
			t.Fatalf("ResetChallenges() error = %v", err)
		}
		all, err = s.ListChallenges(ctx, ChallengeFilter{GroupID: "g1"})
		if err != nil {
			t.Fatalf("ListChallenges() error = %v", err)
		}
		if len(all) != 0 {
			t.Errorf("ListChallenges() after reset = %d rows, expected 0", len(all))
		}
	})

	t.Run("challenges are scoped to their group", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		g1, g2 := testGroup("g1"), testGroup("g2")
		for _, g := range []*Group{g1, g2} {
			if err := s.CreateGroup(ctx, g); err != nil {
				t.Fatalf("CreateGroup(%s) error = %v", g.ID, err)
			}
		}
		if err := s.AppendChallenge(ctx, g1, &Challenge{GroupID: "g1", AttackerID: "a", Cycle: 1, BossSlot: 1, HealthRemaining: 1, Damage: 1}); err != nil {
			t.Fatalf("AppendChallenge() error = %v", err)
		}

		list, err := s.ListChallenges(ctx, ChallengeFilter{GroupID: "g2"})
		if err != nil {
			t.Fatalf("ListChallenges(g2) error = %v", err)
		}
		if len(list) != 0 {
			t.Errorf("ListChallenges(g2) = %d rows, expected 0", len(list))
		}

		if err := s.ResetChallenges(ctx, g2); err != nil {
			t.Fatalf("ResetChallenges(g2) error = %v", err)
		}
		list, err = s.ListChallenges(ctx, ChallengeFilter{GroupID: "g1"})
		if err != nil {
			t.Fatalf("ListChallenges(g1) error = %v", err)
		}
		if len(list) != 1 {
			t.Errorf("ListChallenges(g1) = %d rows, expected 1", len(list))
		}
	})

	t.Run("subscriptions", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		if err := s.CreateGroup(ctx, testGroup("g1")); err != nil {
			t.Fatalf("CreateGroup() error = %v", err)
		}
		for _, sub := range []*Subscription{
			{GroupID: "g1", SubscriberID: "bob", TargetSlot: 3},
			{GroupID: "g1", SubscriberID: "alice", TargetSlot: 3},
			{GroupID: "g1", SubscriberID: "carol", TargetSlot: 0},
			{GroupID: "g1", SubscriberID: "dave", TargetSlot: 4},
		} {
			if err := s.AddSubscription(ctx, sub, nil); err != nil {
				t.Fatalf("AddSubscription(%s, %d) error = %v", sub.SubscriberID, sub.TargetSlot, err)
			}
		}

		err := s.AddSubscription(ctx, &Subscription{GroupID: "g1", SubscriberID: "bob", TargetSlot: 3}, nil)
		if !errors.Is(err, ErrAlreadyExists) {
			t.Errorf("AddSubscription() duplicate error = %v, expected ErrAlreadyExists", err)
		}

		subs, err := s.ListSubscriptions(ctx, "g1")
		if err != nil {
			t.Fatalf("ListSubscriptions() error = %v", err)
		}
		if len(subs) != 4 {
			t.Fatalf("ListSubscriptions() = %d, expected 4", len(subs))
		}
		if subs[0].SubscriberID != "carol" || subs[1].SubscriberID != "alice" || subs[2].SubscriberID != "bob" {
			t.Errorf("ListSubscriptions() order = %s, %s, %s, expected carol, alice, bob",
				subs[0].SubscriberID, subs[1].SubscriberID, subs[2].SubscriberID)
		}

		taken, err := s.TakeSubscriptions(ctx, "g1", 3)
		if err != nil {
			t.Fatalf("TakeSubscriptions() error = %v", err)
		}
		if len(taken) != 3 {
			t.Errorf("TakeSubscriptions(3) = %d, expected 3", len(taken))
		}

		subs, err = s.ListSubscriptions(ctx, "g1")
		if err != nil {
			t.Fatalf("ListSubscriptions() error = %v", err)
		}
		if len(subs) != 1 || subs[0].SubscriberID != "dave" {
			t.Errorf("ListSubscriptions() after take = %d, expected only dave", len(subs))
		}

		for _, expected := range []int{1, 0} {
			n, err := s.RemoveSubscription(ctx, "g1", "dave", 4)
			if err != nil {
				t.Fatalf("RemoveSubscription() error = %v", err)
			}
			if n != expected {
				t.Errorf("RemoveSubscription() = %d, expected %d", n, expected)
			}
		}
	})

	t.Run("subscription saves group atomically", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		g := testGroup("g1")
		if err := s.CreateGroup(ctx, g); err != nil {
			t.Fatalf("CreateGroup() error = %v", err)
		}

		g.Challenger = "alice"
		if err := s.AddSubscription(ctx, &Subscription{GroupID: "g1", SubscriberID: "alice", TargetSlot: 2}, g); err != nil {
			t.Fatalf("AddSubscription() error = %v", err)
		}
		saved, err := s.GetGroup(ctx, "g1")
		if err != nil {
			t.Fatalf("GetGroup() error = %v", err)
		}
		if saved.Challenger != "alice" {
			t.Errorf("Challenger = %q, expected alice", saved.Challenger)
		}

		g.Challenger = "bob"
		err = s.AddSubscription(ctx, &Subscription{GroupID: "g1", SubscriberID: "alice", TargetSlot: 2}, g)
		if !errors.Is(err, ErrAlreadyExists) {
			t.Fatalf("AddSubscription() duplicate error = %v, expected ErrAlreadyExists", err)
		}
		saved, err = s.GetGroup(ctx, "g1")
		if err != nil {
			t.Fatalf("GetGroup() error = %v", err)
		}
		if saved.Challenger != "alice" {
			t.Errorf("Challenger = %q, expected alice: a rejected subscription must not save the group", saved.Challenger)
		}
	})

	t.Run("users and members", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		if _, err := s.GetUser(ctx, "u1"); !errors.Is(err, ErrNotFound) {
			t.Errorf("GetUser(u1) error = %v, expected ErrNotFound", err)
		}

		for _, u := range []*User{
			{ID: "u1", Nickname: "Alice", Authority: AuthorityMember},
			{ID: "u1", Nickname: "Alicia", DefaultGroup: "g1", Authority: AuthorityAdmin},
		} {
			if err := s.SaveUser(ctx, u); err != nil {
				t.Fatalf("SaveUser() error = %v", err)
			}
		}
		u, err := s.GetUser(ctx, "u1")
		if err != nil {
			t.Fatalf("GetUser() error = %v", err)
		}
		if u.Nickname != "Alicia" || u.Authority != AuthorityAdmin {
			t.Errorf("GetUser() = %+v, expected the second save", u)
		}

		for _, m := range []struct {
			user string
			role int
		}{{"u2", AuthorityMember}, {"u1", AuthorityMember}, {"u1", AuthorityAdmin}} {
			if err := s.AddMember(ctx, "g1", m.user, m.role); err != nil {
				t.Fatalf("AddMember(%s) error = %v", m.user, err)
			}
		}

		members, err := s.ListMembers(ctx, "g1")
		if err != nil {
			t.Fatalf("ListMembers() error = %v", err)
		}
		if len(members) != 2 {
			t.Fatalf("ListMembers() = %d, expected 2", len(members))
		}
		if members[0].UserID != "u1" || members[0].Nickname != "Alicia" || members[0].Role != AuthorityAdmin {
			t.Errorf("members[0] = %+v, expected u1 Alicia as admin", members[0])
		}
		if members[1].Nickname != "" {
			t.Errorf("members[1].Nickname = %q, expected empty for a user without a row", members[1].Nickname)
		}

		n, err := s.RemoveMembers(ctx, "g1", []string{"u2", "ghost"})
		if err != nil || n != 1 {
			t.Errorf("RemoveMembers(u2, ghost) = %d, %v, expected 1", n, err)
		}
		n, err = s.RemoveMembers(ctx, "g1", nil)
		if err != nil || n != 0 {
			t.Errorf("RemoveMembers(nil) = %d, %v, expected 0", n, err)
		}

		members, err = s.ListMembers(ctx, "g1")
		if err != nil {
			t.Fatalf("ListMembers() error = %v", err)
		}
		if len(members) != 1 {
			t.Errorf("ListMembers() after remove = %d, expected 1", len(members))
		}
	})

	t.Run("health checker", func(t *testing.T) {
		s := newStore(t)
		if !NewHealthChecker("test", s).IsHealthy(context.Background()) {
			t.Error("IsHealthy() = false, expected true")
		}
	})
}

func testGroup(id string) *Group {
	return &Group{
		ID:               id,
		Name:             "clan " + id,
		GameServer:       "jp",
		Cycle:            1,
		BossSlot:         1,
		Health:           6000000,
		NotificationMask: 0x1f,
	}
}
