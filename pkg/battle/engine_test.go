// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package battle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"

	"github.com/AccelByte/extend-clan-battle/pkg/ledger"
	"github.com/AccelByte/extend-clan-battle/pkg/stage"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// failingStore fails group writes on demand.
type failingStore struct {
	ledger.Store
	fail bool
}

var errInjected = errors.New("injected failure")

func (s *failingStore) SaveGroup(ctx context.Context, g *ledger.Group) error {
	if s.fail {
		return errInjected
	}
	return s.Store.SaveGroup(ctx, g)
}

func (s *failingStore) AppendChallenge(ctx context.Context, g *ledger.Group, c *ledger.Challenge) error {
	if s.fail {
		return errInjected
	}
	return s.Store.AppendChallenge(ctx, g, c)
}

// blockingStore holds ListChallenges calls for the whole group until released.
type blockingStore struct {
	ledger.Store
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (s *blockingStore) ListChallenges(ctx context.Context, f ledger.ChallengeFilter) ([]*ledger.Challenge, error) {
	challenges, err := s.Store.ListChallenges(ctx, f)
	if f.AttackerID == "" {
		s.once.Do(func() { close(s.started) })
		<-s.release
	}
	return challenges, err
}

// setupTestEngine creates an engine over miniredis with one jp group "g1".
func setupTestEngine(t *testing.T) (*Engine, *fakeClock, *failingStore) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})

	store := &failingStore{Store: ledger.NewRedisStore(client, ledger.RedisStoreConfig{})}
	// 2024-03-01 12:00 JST, well inside a battle day
	clock := &fakeClock{now: time.Date(2024, 3, 1, 3, 0, 0, 0, time.UTC)}
	engine := NewEngine(store, Config{Now: clock.Now})

	if _, err := engine.CreateGroup(context.Background(), "g1", "jp", "test clan"); err != nil {
		t.Fatalf("CreateGroup() error = %v", err)
	}
	return engine, clock, store
}

func fullHealth(slot int) int {
	return stage.Default().FullHealth(stage.ServerJP, 1, slot, false)
}

func TestUnknownGroup(t *testing.T) {
	engine, _, _ := setupTestEngine(t)
	ctx := context.Background()

	if _, err := engine.Damage(ctx, "nope", "alice", 1, "", nil); !IsGroupError(err) {
		t.Errorf("Damage() error = %v, expected GroupError", err)
	}
	if _, err := engine.Apply(ctx, "nope", "alice", ""); !IsGroupError(err) {
		t.Errorf("Apply() error = %v, expected GroupError", err)
	}
	if _, err := engine.Status("nope"); !IsGroupError(err) {
		t.Errorf("Status() error = %v, expected GroupError", err)
	}
}

func TestCreateGroup(t *testing.T) {
	engine, _, _ := setupTestEngine(t)
	ctx := context.Background()

	if _, err := engine.CreateGroup(ctx, "g1", "jp", ""); !IsGroupError(err) {
		t.Errorf("duplicate CreateGroup() error = %v, expected GroupError", err)
	}
	if _, err := engine.CreateGroup(ctx, "g2", "eu", ""); !IsInputError(err) {
		t.Errorf("CreateGroup(eu) error = %v, expected InputError", err)
	}

	status, err := engine.Status("g1")
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if status.Cycle != 1 || status.BossSlot != 1 || status.Health != fullHealth(1) {
		t.Errorf("Status() = %+v, expected cycle 1 boss 1 at full health", status)
	}
}

func TestDamage_HealthBound(t *testing.T) {
	engine, _, _ := setupTestEngine(t)
	ctx := context.Background()
	full := fullHealth(1)

	tests := []struct {
		name   string
		amount int
	}{
		{name: "negative", amount: -1},
		{name: "equal to health", amount: full},
		{name: "above health", amount: full + 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := engine.Damage(ctx, "g1", "alice", tt.amount, "", nil); !IsInputError(err) {
				t.Errorf("Damage(%d) error = %v, expected InputError", tt.amount, err)
			}
		})
	}

	status, err := engine.Damage(ctx, "g1", "alice", 1000, "", nil)
	if err != nil {
		t.Fatalf("Damage() error = %v", err)
	}
	if status.Health != full-1000 {
		t.Errorf("Health = %d, expected %d", status.Health, full-1000)
	}
	if !strings.Contains(status.Message, "1,000") {
		t.Errorf("Message = %q, expected formatted damage", status.Message)
	}
}

func TestDamage_Quota(t *testing.T) {
	engine, clock, _ := setupTestEngine(t)
	ctx := context.Background()

	for i := 0; i < DailyQuota; i++ {
		if _, err := engine.Damage(ctx, "g1", "alice", 10, "", nil); err != nil {
			t.Fatalf("Damage() #%d error = %v", i+1, err)
		}
	}
	if _, err := engine.Damage(ctx, "g1", "alice", 10, "", nil); !IsInputError(err) {
		t.Errorf("4th Damage() error = %v, expected InputError", err)
	}
	if _, _, err := engine.Defeat(ctx, "g1", "alice", "", nil); !IsInputError(err) {
		t.Errorf("4th Defeat() error = %v, expected InputError", err)
	}

	// another attacker is unaffected
	if _, err := engine.Damage(ctx, "g1", "bob", 10, "", nil); err != nil {
		t.Errorf("Damage() by bob error = %v", err)
	}

	// the quota resets on the next battle day
	clock.Advance(24 * time.Hour)
	if _, err := engine.Damage(ctx, "g1", "alice", 10, "", nil); err != nil {
		t.Errorf("Damage() next day error = %v", err)
	}
}

func TestContinuation(t *testing.T) {
	engine, _, _ := setupTestEngine(t)
	ctx := context.Background()

	if _, _, err := engine.Defeat(ctx, "g1", "alice", "", nil); err != nil {
		t.Fatalf("Defeat() error = %v", err)
	}
	if _, err := engine.Damage(ctx, "g1", "alice", 10, "", nil); err != nil {
		t.Fatalf("Damage() error = %v", err)
	}
	if _, err := engine.Damage(ctx, "g1", "alice", 10, "", nil); err != nil {
		t.Fatalf("Damage() error = %v", err)
	}

	report, err := engine.Report(ctx, "g1", ReportQuery{AttackerID: "alice"})
	if err != nil {
		t.Fatalf("Report() error = %v", err)
	}
	if len(report) != 3 {
		t.Fatalf("len(report) = %d, expected 3", len(report))
	}
	expected := []bool{false, true, false}
	for i, want := range expected {
		if report[i].IsContinuation != want {
			t.Errorf("report[%d].IsContinuation = %v, expected %v", i, report[i].IsContinuation, want)
		}
	}

	// defeat + continuation + damage counts 2 against the quota, so one more is allowed
	if _, err := engine.Damage(ctx, "g1", "alice", 10, "", nil); err != nil {
		t.Errorf("third counted Damage() error = %v", err)
	}
	if _, err := engine.Damage(ctx, "g1", "alice", 10, "", nil); !IsInputError(err) {
		t.Errorf("fourth counted Damage() error = %v, expected InputError", err)
	}
}

func TestContinuation_NoChain(t *testing.T) {
	engine, _, _ := setupTestEngine(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, _, err := engine.Defeat(ctx, "g1", "alice", "", nil); err != nil {
			t.Fatalf("Defeat() #%d error = %v", i+1, err)
		}
	}
	if _, err := engine.Damage(ctx, "g1", "alice", 10, "", nil); err != nil {
		t.Fatalf("Damage() error = %v", err)
	}

	report, err := engine.Report(ctx, "g1", ReportQuery{AttackerID: "alice"})
	if err != nil {
		t.Fatalf("Report() error = %v", err)
	}
	// kill, continuation kill, then a counted attack
	expected := []bool{false, true, false}
	for i, want := range expected {
		if report[i].IsContinuation != want {
			t.Errorf("report[%d].IsContinuation = %v, expected %v", i, report[i].IsContinuation, want)
		}
	}
}

func TestDefeat_Rotation(t *testing.T) {
	engine, _, _ := setupTestEngine(t)
	ctx := context.Background()

	status, _, err := engine.Defeat(ctx, "g1", "alice", "", nil)
	if err != nil {
		t.Fatalf("Defeat() error = %v", err)
	}
	if status.Cycle != 1 || status.BossSlot != 2 || status.Health != fullHealth(2) {
		t.Errorf("after slot 1 defeat = %+v, expected cycle 1 boss 2 full health", status)
	}

	slot := 5
	if _, err := engine.Modify(ctx, "g1", ModifyRequest{BossSlot: &slot}); err != nil {
		t.Fatalf("Modify() error = %v", err)
	}
	status, _, err = engine.Defeat(ctx, "g1", "bob", "", nil)
	if err != nil {
		t.Fatalf("Defeat() error = %v", err)
	}
	if status.Cycle != 2 || status.BossSlot != 1 || status.Health != fullHealth(1) {
		t.Errorf("after slot 5 defeat = %+v, expected cycle 2 boss 1 full health", status)
	}
}

func TestDefeat_TierChange(t *testing.T) {
	engine, _, _ := setupTestEngine(t)
	ctx := context.Background()

	cycle, slot := 3, 5
	if _, err := engine.Modify(ctx, "g1", ModifyRequest{Cycle: &cycle, BossSlot: &slot}); err != nil {
		t.Fatalf("Modify() error = %v", err)
	}
	status, _, err := engine.Defeat(ctx, "g1", "alice", "", nil)
	if err != nil {
		t.Fatalf("Defeat() error = %v", err)
	}
	expected := stage.Default().FullHealth(stage.ServerJP, 4, 1, false)
	if status.Health != expected {
		t.Errorf("Health = %d, expected tier 1 value %d", status.Health, expected)
	}
}

func TestUndo(t *testing.T) {
	engine, _, _ := setupTestEngine(t)
	ctx := context.Background()

	if _, err := engine.Undo(ctx, "g1", "alice", false); !IsGroupError(err) {
		t.Errorf("Undo() on empty ledger error = %v, expected GroupError", err)
	}

	before, _ := engine.Status("g1")
	if _, err := engine.Damage(ctx, "g1", "alice", 500, "", nil); err != nil {
		t.Fatalf("Damage() error = %v", err)
	}
	if _, _, err := engine.Defeat(ctx, "g1", "alice", "", nil); err != nil {
		t.Fatalf("Defeat() error = %v", err)
	}

	if _, err := engine.Undo(ctx, "g1", "bob", false); !IsUserError(err) {
		t.Errorf("Undo() by bob error = %v, expected UserError", err)
	}

	status, err := engine.Undo(ctx, "g1", "alice", false)
	if err != nil {
		t.Fatalf("Undo() error = %v", err)
	}
	if status.Cycle != 1 || status.BossSlot != 1 || status.Health != before.Health-500 {
		t.Errorf("after undoing defeat = %+v, expected boss 1 at %d", status, before.Health-500)
	}

	status, err = engine.Undo(ctx, "g1", "admin", true)
	if err != nil {
		t.Fatalf("privileged Undo() error = %v", err)
	}
	if status != (BossStatus{Cycle: before.Cycle, BossSlot: before.BossSlot, Health: before.Health, Message: status.Message}) {
		t.Errorf("after undoing damage = %+v, expected %+v", status, before)
	}

	report, err := engine.Report(ctx, "g1", ReportQuery{})
	if err != nil {
		t.Fatalf("Report() error = %v", err)
	}
	if len(report) != 0 {
		t.Errorf("len(report) = %d, expected 0 after undoing everything", len(report))
	}
}

func TestModify(t *testing.T) {
	engine, _, _ := setupTestEngine(t)
	ctx := context.Background()

	zero, six, neg := 0, 6, -5
	tests := []struct {
		name string
		req  ModifyRequest
	}{
		{name: "cycle 0", req: ModifyRequest{Cycle: &zero}},
		{name: "slot 0", req: ModifyRequest{BossSlot: &zero}},
		{name: "slot 6", req: ModifyRequest{BossSlot: &six}},
		{name: "health 0", req: ModifyRequest{Health: &zero}},
		{name: "negative health", req: ModifyRequest{Health: &neg}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := engine.Modify(ctx, "g1", tt.req); !IsInputError(err) {
				t.Errorf("Modify() error = %v, expected InputError", err)
			}
		})
	}

	health := 1234
	status, err := engine.Modify(ctx, "g1", ModifyRequest{Health: &health})
	if err != nil || status.Health != 1234 {
		t.Errorf("Modify(health) = %+v, %v", status, err)
	}

	slot := 3
	status, err = engine.Modify(ctx, "g1", ModifyRequest{BossSlot: &slot})
	if err != nil || status.Health != fullHealth(3) {
		t.Errorf("Modify(slot) = %+v, %v, expected health recomputed to %d", status, err, fullHealth(3))
	}
}

func TestRestart(t *testing.T) {
	engine, _, _ := setupTestEngine(t)
	ctx := context.Background()

	if _, _, err := engine.Defeat(ctx, "g1", "alice", "", nil); err != nil {
		t.Fatalf("Defeat() error = %v", err)
	}
	if _, err := engine.Apply(ctx, "g1", "bob", ""); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	status, err := engine.Restart(ctx, "g1")
	if err != nil {
		t.Fatalf("Restart() error = %v", err)
	}
	if status.Cycle != 1 || status.BossSlot != 1 || status.Health != fullHealth(1) || status.Challenger != "" {
		t.Errorf("Restart() = %+v, expected a fresh group", status)
	}
	if _, err := engine.Undo(ctx, "g1", "alice", true); !IsGroupError(err) {
		t.Errorf("Undo() after restart error = %v, expected GroupError", err)
	}
}

func TestSlotArbitration(t *testing.T) {
	engine, clock, _ := setupTestEngine(t)
	ctx := context.Background()

	status, err := engine.Apply(ctx, "g1", "alice", "going in")
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if status.Challenger != "alice" {
		t.Errorf("Challenger = %q, expected alice", status.Challenger)
	}

	_, err = engine.Apply(ctx, "g1", "bob", "")
	if !IsGroupError(err) || !strings.Contains(err.Error(), "alice") {
		t.Errorf("second Apply() error = %v, expected GroupError naming alice", err)
	}

	clock.Advance(30 * time.Second)
	_, err = engine.Cancel(ctx, "g1", "bob", false)
	if !IsGroupError(err) || !strings.Contains(err.Error(), "30 seconds") {
		t.Errorf("early Cancel() error = %v, expected GroupError citing 30 seconds", err)
	}

	clock.Advance(OverrideWindow - 30*time.Second)
	status, err = engine.Cancel(ctx, "g1", "bob", false)
	if err != nil {
		t.Fatalf("Cancel() after override window error = %v", err)
	}
	if status.Challenger != "" {
		t.Errorf("Challenger = %q, expected empty", status.Challenger)
	}

	if _, err := engine.Cancel(ctx, "g1", "bob", false); !IsGroupError(err) {
		t.Errorf("Cancel() on free slot error = %v, expected GroupError", err)
	}
}

func TestSlotArbitration_HolderAndPrivileged(t *testing.T) {
	engine, _, _ := setupTestEngine(t)
	ctx := context.Background()

	if _, err := engine.Apply(ctx, "g1", "alice", ""); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if _, err := engine.Cancel(ctx, "g1", "alice", false); err != nil {
		t.Errorf("holder Cancel() error = %v", err)
	}

	if _, err := engine.Apply(ctx, "g1", "alice", ""); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if _, err := engine.Cancel(ctx, "g1", "admin", true); err != nil {
		t.Errorf("privileged Cancel() error = %v", err)
	}
}

func TestDamage_ReleasesSlot(t *testing.T) {
	engine, _, _ := setupTestEngine(t)
	ctx := context.Background()

	if _, err := engine.Apply(ctx, "g1", "alice", ""); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	// reporting is not gated by the slot
	status, err := engine.Damage(ctx, "g1", "bob", 10, "", nil)
	if err != nil {
		t.Fatalf("Damage() error = %v", err)
	}
	if status.Challenger != "" {
		t.Errorf("Challenger = %q, expected cleared by damage", status.Challenger)
	}
}

func TestSubscriptions(t *testing.T) {
	engine, _, _ := setupTestEngine(t)
	ctx := context.Background()

	if err := engine.Subscribe(ctx, "g1", "carol", AnySlot, nil); err != nil {
		t.Fatalf("Subscribe(any) error = %v", err)
	}
	if err := engine.Subscribe(ctx, "g1", "carol", AnySlot, nil); !IsUserError(err) {
		t.Errorf("duplicate Subscribe() error = %v, expected UserError", err)
	}
	if err := engine.Subscribe(ctx, "g1", "dave", 3, nil); err != nil {
		t.Fatalf("Subscribe(3) error = %v", err)
	}
	if err := engine.Subscribe(ctx, "g1", "erin", 2, nil); err != nil {
		t.Fatalf("Subscribe(2) error = %v", err)
	}
	if err := engine.Subscribe(ctx, "g1", "erin", 6, nil); !IsInputError(err) {
		t.Errorf("Subscribe(6) error = %v, expected InputError", err)
	}

	_, fired, err := engine.Defeat(ctx, "g1", "alice", "", nil)
	if err != nil {
		t.Fatalf("Defeat() error = %v", err)
	}
	if fmt.Sprint(fired) != "[carol erin]" {
		t.Errorf("fired = %v, expected [carol erin]", fired)
	}

	_, fired, err = engine.Defeat(ctx, "g1", "bob", "", nil)
	if err != nil {
		t.Fatalf("Defeat() error = %v", err)
	}
	if fmt.Sprint(fired) != "[dave]" {
		t.Errorf("fired = %v, expected [dave] only, each subscription fires once", fired)
	}

	subs, err := engine.Subscriptions(ctx, "g1")
	if err != nil {
		t.Fatalf("Subscriptions() error = %v", err)
	}
	if len(subs) != 0 {
		t.Errorf("len(subscriptions) = %d, expected 0", len(subs))
	}

	n, err := engine.Unsubscribe(ctx, "g1", "carol", AnySlot)
	if err != nil || n != 0 {
		t.Errorf("Unsubscribe() = %d, %v, expected 0 rows", n, err)
	}
}

func TestSubscribeAny_ReleasesOwnClaim(t *testing.T) {
	engine, _, _ := setupTestEngine(t)
	ctx := context.Background()

	if _, err := engine.Apply(ctx, "g1", "alice", ""); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	w, _ := engine.Watch("g1")

	if err := engine.Subscribe(ctx, "g1", "alice", AnySlot, nil); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	select {
	case <-w.Done():
		if w.Value().Challenger != "" {
			t.Errorf("published Challenger = %q, expected empty", w.Value().Challenger)
		}
	default:
		t.Error("expected a status publish when the claim is released")
	}

	// a specific slot subscription keeps the claim
	if _, err := engine.Apply(ctx, "g1", "bob", ""); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if err := engine.Subscribe(ctx, "g1", "bob", 4, nil); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	if status, _ := engine.Status("g1"); status.Challenger != "bob" {
		t.Errorf("Challenger = %q, expected bob", status.Challenger)
	}
}

func TestNotificationFreshness(t *testing.T) {
	engine, _, _ := setupTestEngine(t)
	ctx := context.Background()

	early, err := engine.Watch("g1")
	if err != nil {
		t.Fatalf("Watch() error = %v", err)
	}
	first, err := engine.Damage(ctx, "g1", "alice", 100, "", nil)
	if err != nil {
		t.Fatalf("Damage() error = %v", err)
	}
	late, _ := engine.Watch("g1")
	second, err := engine.Damage(ctx, "g1", "bob", 200, "", nil)
	if err != nil {
		t.Fatalf("Damage() error = %v", err)
	}

	<-early.Done()
	<-late.Done()
	if early.Value() != first {
		t.Errorf("early watcher saw %+v, expected %+v", early.Value(), first)
	}
	if late.Value() != second {
		t.Errorf("late watcher saw %+v, expected %+v", late.Value(), second)
	}
}

func TestWaitStatus(t *testing.T) {
	engine, _, _ := setupTestEngine(t)
	ctx := context.Background()

	_, changed, err := engine.WaitStatus(ctx, "g1", 10*time.Millisecond)
	if err != nil || changed {
		t.Errorf("WaitStatus() = changed %v, %v, expected timeout without error", changed, err)
	}

	result := make(chan BossStatus, 1)
	go func() {
		status, changed, err := engine.WaitStatus(ctx, "g1", 5*time.Second)
		if err != nil || !changed {
			t.Errorf("WaitStatus() = changed %v, %v", changed, err)
		}
		result <- status
	}()

	// give the waiter time to register before mutating
	time.Sleep(20 * time.Millisecond)
	expected, err := engine.Damage(ctx, "g1", "alice", 1, "", nil)
	if err != nil {
		t.Fatalf("Damage() error = %v", err)
	}
	if got := <-result; got != expected {
		t.Errorf("WaitStatus() = %+v, expected %+v", got, expected)
	}
}

func TestStoreFailure_NoPublish(t *testing.T) {
	engine, _, store := setupTestEngine(t)
	ctx := context.Background()

	before, _ := engine.Status("g1")
	w, _ := engine.Watch("g1")

	store.fail = true
	if _, err := engine.Damage(ctx, "g1", "alice", 100, "", nil); !IsStoreError(err) || !errors.Is(err, errInjected) {
		t.Errorf("Damage() error = %v, expected StoreError wrapping the injected failure", err)
	}
	if _, err := engine.Apply(ctx, "g1", "alice", ""); !IsStoreError(err) {
		t.Errorf("Apply() error = %v, expected StoreError", err)
	}
	store.fail = false

	after, _ := engine.Status("g1")
	if after != before {
		t.Errorf("state changed after failed writes: %+v, expected %+v", after, before)
	}
	select {
	case <-w.Done():
		t.Error("a failed operation must not publish")
	default:
	}
}

func TestOnBehalfOf(t *testing.T) {
	engine, _, _ := setupTestEngine(t)
	ctx := context.Background()

	if err := engine.BindGroup(ctx, "g1", "alice", "Alice"); err != nil {
		t.Fatalf("BindGroup() error = %v", err)
	}
	if _, err := engine.Damage(ctx, "g1", "alice", 10, "bob", map[string]string{"note": "proxy"}); err != nil {
		t.Fatalf("Damage() error = %v", err)
	}

	report, err := engine.Report(ctx, "g1", ReportQuery{})
	if err != nil {
		t.Fatalf("Report() error = %v", err)
	}
	if len(report) != 1 || report[0].AttackerID != "bob" {
		t.Fatalf("report = %+v, expected one entry for bob", report)
	}
	if report[0].Comment["behalf"] != "reported by Alice" || report[0].Comment["note"] != "proxy" {
		t.Errorf("Comment = %v", report[0].Comment)
	}
}

func TestReport_OrderAndFilter(t *testing.T) {
	engine, clock, _ := setupTestEngine(t)
	ctx := context.Background()

	for _, who := range []string{"bob", "alice", "bob"} {
		if _, err := engine.Damage(ctx, "g1", who, 10, "", nil); err != nil {
			t.Fatalf("Damage() error = %v", err)
		}
	}
	clock.Advance(24 * time.Hour)
	if _, err := engine.Damage(ctx, "g1", "alice", 10, "", nil); err != nil {
		t.Fatalf("Damage() error = %v", err)
	}

	report, err := engine.Report(ctx, "g1", ReportQuery{})
	if err != nil {
		t.Fatalf("Report() error = %v", err)
	}
	var order []string
	for _, r := range report {
		order = append(order, r.AttackerID)
	}
	if strings.Join(order, ",") != "alice,alice,bob,bob" {
		t.Errorf("order = %v, expected alice,alice,bob,bob", order)
	}

	day, _ := BattleTime(stage.ServerJP, clock.Now())
	today, err := engine.Report(ctx, "g1", ReportQuery{BattleDay: &day})
	if err != nil {
		t.Fatalf("Report() error = %v", err)
	}
	if len(today) != 1 {
		t.Errorf("len(today) = %d, expected 1", len(today))
	}
	if !today[0].ChallengeTime.Equal(clock.Now()) {
		t.Errorf("ChallengeTime = %v, expected %v", today[0].ChallengeTime, clock.Now())
	}
}

func TestMembersAndAuthority(t *testing.T) {
	engine, _, _ := setupTestEngine(t)
	ctx := context.Background()

	for _, id := range []string{"alice", "bob"} {
		if err := engine.BindGroup(ctx, "g1", id, strings.ToUpper(id)); err != nil {
			t.Fatalf("BindGroup() error = %v", err)
		}
	}
	members, err := engine.Members(ctx, "g1")
	if err != nil || len(members) != 2 {
		t.Fatalf("Members() = %v, %v, expected 2", members, err)
	}

	n, err := engine.DropMembers(ctx, "g1", []string{"bob"})
	if err != nil || n != 1 {
		t.Errorf("DropMembers() = %d, %v, expected 1", n, err)
	}
	members, _ = engine.Members(ctx, "g1")
	if len(members) != 1 {
		t.Errorf("len(members) = %d, expected 1 after drop", len(members))
	}

	authority, err := engine.Authority(ctx, "g1", "alice")
	if err != nil || authority != ledger.AuthorityMember {
		t.Errorf("Authority() = %d, %v, expected member", authority, err)
	}
	if got := engine.Nickname(ctx, "alice"); got != "ALICE" {
		t.Errorf("Nickname() = %q, expected ALICE", got)
	}
	if got := engine.Nickname(ctx, "stranger"); got != "stranger" {
		t.Errorf("Nickname() = %q, expected the id as fallback", got)
	}
}

func TestSettings(t *testing.T) {
	engine, _, _ := setupTestEngine(t)
	ctx := context.Background()

	if _, err := engine.ChangeGameServer(ctx, "g1", "mars"); !IsInputError(err) {
		t.Errorf("ChangeGameServer(mars) error = %v, expected InputError", err)
	}

	mask, hard := 0x03, true
	g, err := engine.UpdateSettings(ctx, "g1", Settings{NotificationMask: &mask, HardMode: &hard})
	if err != nil {
		t.Fatalf("UpdateSettings() error = %v", err)
	}
	if g.NotificationMask != 0x03 || !g.HardMode {
		t.Errorf("settings = %+v", g)
	}

	g, err = engine.ChangeGameServer(ctx, "g1", "cn")
	if err != nil || g.GameServer != "cn" {
		t.Errorf("ChangeGameServer(cn) = %+v, %v", g, err)
	}
}

func TestLoad(t *testing.T) {
	engine, _, store := setupTestEngine(t)
	ctx := context.Background()

	if _, err := engine.Damage(ctx, "g1", "alice", 42, "", nil); err != nil {
		t.Fatalf("Damage() error = %v", err)
	}

	fresh := NewEngine(store, Config{})
	if err := fresh.Load(ctx); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if ids := fresh.GroupIDs(); len(ids) != 1 || ids[0] != "g1" {
		t.Errorf("GroupIDs() = %v, expected [g1]", ids)
	}
	status, err := fresh.Status("g1")
	if err != nil || status.Health != fullHealth(1)-42 {
		t.Errorf("Status() = %+v, %v, expected persisted health", status, err)
	}
}

func TestConcurrentDamage(t *testing.T) {
	engine, _, _ := setupTestEngine(t)
	ctx := context.Background()

	if _, err := engine.CreateGroup(ctx, "g2", "tw", ""); err != nil {
		t.Fatalf("CreateGroup() error = %v", err)
	}

	const attackers = 8
	var wg sync.WaitGroup
	for i := 0; i < attackers; i++ {
		for _, group := range []string{"g1", "g2"} {
			wg.Add(1)
			go func(who, group string) {
				defer wg.Done()
				if _, err := engine.Damage(ctx, group, who, 100, "", nil); err != nil {
					t.Errorf("Damage() error = %v", err)
				}
			}(fmt.Sprintf("p%d", i), group)
		}
	}
	wg.Wait()

	status, _ := engine.Status("g1")
	if status.Health != fullHealth(1)-attackers*100 {
		t.Errorf("g1 Health = %d, expected %d", status.Health, fullHealth(1)-attackers*100)
	}
	report, _ := engine.Report(ctx, "g2", ReportQuery{})
	if len(report) != attackers {
		t.Errorf("g2 report has %d entries, expected %d", len(report), attackers)
	}
}

func TestSummary(t *testing.T) {
	engine, _, _ := setupTestEngine(t)
	ctx := context.Background()

	if err := engine.BindGroup(ctx, "g1", "alice", "Alice"); err != nil {
		t.Fatalf("BindGroup() error = %v", err)
	}
	if _, err := engine.Apply(ctx, "g1", "alice", ""); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	summary, err := engine.Summary(ctx, "g1")
	if err != nil {
		t.Fatalf("Summary() error = %v", err)
	}
	if !strings.Contains(summary, "cycle 1, boss 1") || !strings.Contains(summary, "Alice is challenging") {
		t.Errorf("Summary() = %q", summary)
	}
}

func TestReport_LoadRacingDamageIsNotCached(t *testing.T) {
	_, clock, inner := setupTestEngine(t)
	ctx := context.Background()

	store := &blockingStore{Store: inner, started: make(chan struct{}), release: make(chan struct{})}
	racing := NewEngine(store, Config{Now: clock.Now})
	if err := racing.Load(ctx); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	inFlight := make(chan []ReportEntry)
	go func() {
		report, err := racing.Report(ctx, "g1", ReportQuery{})
		if err != nil {
			t.Errorf("Report() error = %v", err)
		}
		inFlight <- report
	}()

	<-store.started
	if _, err := racing.Damage(ctx, "g1", "alice", 100, "", nil); err != nil {
		t.Fatalf("Damage() error = %v", err)
	}
	close(store.release)

	if report := <-inFlight; len(report) != 0 {
		t.Errorf("in-flight Report() len = %d, expected 0", len(report))
	}
	report, err := racing.Report(ctx, "g1", ReportQuery{})
	if err != nil {
		t.Fatalf("Report() error = %v", err)
	}
	if len(report) != 1 {
		t.Errorf("Report() after Damage len = %d, expected 1", len(report))
	}
}

func TestMembers_LoadRacingBindIsNotCached(t *testing.T) {
	engine, _, _ := setupTestEngine(t)
	ctx := context.Background()

	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = engine.members.GetOrLoad("g1", func() ([]*ledger.Member, error) {
			members, err := engine.store.ListMembers(ctx, "g1")
			close(started)
			<-release
			return members, err
		})
	}()

	<-started
	if err := engine.BindGroup(ctx, "g1", "carol", "Carol"); err != nil {
		t.Fatalf("BindGroup() error = %v", err)
	}
	close(release)
	<-done

	members, err := engine.Members(ctx, "g1")
	if err != nil {
		t.Fatalf("Members() error = %v", err)
	}
	found := false
	for _, m := range members {
		if m.UserID == "carol" {
			found = true
		}
	}
	if !found {
		t.Errorf("Members() = %d members without carol after BindGroup", len(members))
	}
}

func TestFollow(t *testing.T) {
	engine, _, _ := setupTestEngine(t)
	ctx := context.Background()

	if _, _, err := engine.Follow("missing"); !IsGroupError(err) {
		t.Errorf("Follow(missing) error = %v, expected GroupError", err)
	}

	first, err := engine.Damage(ctx, "g1", "alice", 100, "", nil)
	if err != nil {
		t.Fatalf("Damage() error = %v", err)
	}
	current, w, err := engine.Follow("g1")
	if err != nil {
		t.Fatalf("Follow() error = %v", err)
	}
	if current.Health != first.Health || current.Message != "" {
		t.Errorf("Follow() status = %+v, expected health %d and no message", current, first.Health)
	}
	select {
	case <-w.Done():
		t.Fatal("watch from Follow must not resolve with the status it was taken with")
	default:
	}

	second, err := engine.Damage(ctx, "g1", "bob", 200, "", nil)
	if err != nil {
		t.Fatalf("Damage() error = %v", err)
	}
	<-w.Done()
	if w.Value() != second {
		t.Errorf("watch saw %+v, expected %+v", w.Value(), second)
	}
}
