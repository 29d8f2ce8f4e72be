// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

// Package battle implements the per-group boss battle state machine.
//
// Every mutation takes the group's own mutex, works on a clone of the
// in-memory state, persists it, and only then swaps the clone in and
// publishes the resulting BossStatus. A ledger failure leaves the previous
// state untouched and publishes nothing. Privilege checks are the caller's
// concern: operations that allow an override take an explicit flag.
package battle

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/AccelByte/extend-clan-battle/pkg/cache"
	"github.com/AccelByte/extend-clan-battle/pkg/ledger"
	"github.com/AccelByte/extend-clan-battle/pkg/notify"
	"github.com/AccelByte/extend-clan-battle/pkg/stage"
)

const (
	// DailyQuota is the number of non-continuation challenges per attacker per battle day.
	DailyQuota = 3
	// OverrideWindow is how long a claim must be held before someone else may cancel it.
	OverrideWindow = 180 * time.Second
	// DefaultNotificationMask enables every alert for new groups.
	DefaultNotificationMask = 0x1ff
)

// OperationObserver is told the outcome of every engine operation.
type OperationObserver func(op string, err error)

// Config holds optional engine collaborators.
type Config struct {
	// Table defaults to the embedded stage table.
	Table *stage.Table
	// Now defaults to time.Now.
	Now func() time.Time
	// Waiters tracks readers blocked on a status change.
	Waiters prometheus.Gauge
	// Observer receives operation outcomes, usually for metrics.
	Observer OperationObserver
}

type groupEntry struct {
	mu    sync.Mutex
	state *ledger.Group
	hub   *notify.Hub[BossStatus]
}

// Engine owns the in-memory state of every initialized group.
type Engine struct {
	store    ledger.Store
	table    *stage.Table
	now      func() time.Time
	waiters  prometheus.Gauge
	observer OperationObserver
	printer  *message.Printer

	mu     sync.RWMutex
	groups map[string]*groupEntry

	nicknames *cache.TTL[string]
	members   *cache.TTL[[]*ledger.Member]
	reports   *cache.TTL[[]ReportEntry]
}

// NewEngine creates an engine with no groups loaded.
func NewEngine(store ledger.Store, cfg Config) *Engine {
	if cfg.Table == nil {
		cfg.Table = stage.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Engine{
		store:     store,
		table:     cfg.Table,
		now:       cfg.Now,
		waiters:   cfg.Waiters,
		observer:  cfg.Observer,
		printer:   message.NewPrinter(language.English),
		groups:    make(map[string]*groupEntry),
		nicknames: cache.New[string](128, time.Hour),
		members:   cache.New[[]*ledger.Member](16, time.Minute),
		reports:   cache.New[[]ReportEntry](64, time.Minute),
	}
}

// Load mirrors every stored group into memory.
func (e *Engine) Load(ctx context.Context) error {
	groups, err := e.store.ListGroups(ctx)
	if err != nil {
		return &StoreError{Op: "load", Err: err}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	for _, g := range groups {
		if _, ok := e.groups[g.ID]; ok {
			continue
		}
		e.groups[g.ID] = e.newEntry(g)
	}

	logrus.Infof("loaded %d groups", len(groups))
	return nil
}

func (e *Engine) newEntry(g *ledger.Group) *groupEntry {
	return &groupEntry{
		state: g,
		hub:   notify.NewHub(statusOf(g, ""), e.waiters),
	}
}

func (e *Engine) lookup(groupID string) (*groupEntry, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	entry, ok := e.groups[groupID]
	if !ok {
		return nil, errGroupNotInitialized(groupID)
	}
	return entry, nil
}

// GroupIDs lists initialized groups in order.
func (e *Engine) GroupIDs() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	ids := make([]string, 0, len(e.groups))
	for id := range e.groups {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func statusOf(g *ledger.Group, msg string) BossStatus {
	return BossStatus{
		Cycle:      g.Cycle,
		BossSlot:   g.BossSlot,
		Health:     g.Health,
		Challenger: g.Challenger,
		Message:    msg,
	}
}

// commit swaps in the persisted state and resolves the group's waiters.
// The caller holds entry.mu.
func (e *Engine) commit(entry *groupEntry, next *ledger.Group, msg string) BossStatus {
	entry.state = next
	status := statusOf(next, msg)
	entry.hub.Publish(status)
	return status
}

func (e *Engine) observe(op string, err error) {
	if e.observer != nil {
		e.observer(op, err)
	}
}

func (e *Engine) fullHealth(g *ledger.Group) int {
	return e.table.FullHealth(stage.Server(g.GameServer), g.Cycle, g.BossSlot, g.HardMode)
}

// FullHealth is the starting health of a boss for a group's server and mode.
func (e *Engine) FullHealth(g *ledger.Group, cycle, slot int) int {
	return e.table.FullHealth(stage.Server(g.GameServer), cycle, slot, g.HardMode)
}

func (e *Engine) formatNumber(n int) string {
	return e.printer.Sprintf("%d", n)
}

// CreateGroup initializes a group at cycle 1, slot 1.
func (e *Engine) CreateGroup(ctx context.Context, groupID, server, name string) (g *ledger.Group, err error) {
	defer func() { e.observe("create_group", err) }()

	gs, err := stage.ParseServer(server)
	if err != nil || !e.table.Supports(gs) {
		return nil, newError(InputError, "game server %s does not exist", server)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.groups[groupID]; ok {
		return nil, newError(GroupError, "group %s already exists", groupID)
	}

	g = &ledger.Group{
		ID:               groupID,
		Name:             name,
		GameServer:       string(gs),
		Cycle:            1,
		BossSlot:         1,
		NotificationMask: DefaultNotificationMask,
	}
	g.Health = e.fullHealth(g)

	if err := e.store.CreateGroup(ctx, g); err != nil {
		if errors.Is(err, ledger.ErrAlreadyExists) {
			return nil, newError(GroupError, "group %s already exists", groupID)
		}
		return nil, &StoreError{Op: "create_group", Err: err}
	}
	e.groups[groupID] = e.newEntry(g)

	logrus.Infof("created group %s on server %s", groupID, gs)
	return g.Clone(), nil
}

// BindGroup makes groupID the user's default group and records the membership.
func (e *Engine) BindGroup(ctx context.Context, groupID, userID, nickname string) (err error) {
	defer func() { e.observe("bind_group", err) }()

	if _, err := e.lookup(groupID); err != nil {
		return err
	}

	u, err := e.store.GetUser(ctx, userID)
	if errors.Is(err, ledger.ErrNotFound) {
		u = &ledger.User{ID: userID, Authority: ledger.AuthorityMember}
	} else if err != nil {
		return &StoreError{Op: "bind_group", Err: err}
	}
	u.DefaultGroup = groupID
	if nickname != "" {
		u.Nickname = nickname
	}
	if err := e.store.SaveUser(ctx, u); err != nil {
		return &StoreError{Op: "bind_group", Err: err}
	}
	if err := e.store.AddMember(ctx, groupID, userID, u.Authority); err != nil {
		return &StoreError{Op: "bind_group", Err: err}
	}

	e.nicknames.Delete(userID)
	e.members.Delete(groupID)
	return nil
}

// DropMembers removes memberships and returns how many were removed.
func (e *Engine) DropMembers(ctx context.Context, groupID string, userIDs []string) (n int, err error) {
	defer func() { e.observe("drop_members", err) }()

	if _, err := e.lookup(groupID); err != nil {
		return 0, err
	}
	n, err = e.store.RemoveMembers(ctx, groupID, userIDs)
	if err != nil {
		return 0, &StoreError{Op: "drop_members", Err: err}
	}
	e.members.Delete(groupID)
	return n, nil
}

// ChangeGameServer moves a group to another region's stage table.
func (e *Engine) ChangeGameServer(ctx context.Context, groupID, server string) (*ledger.Group, error) {
	return e.UpdateSettings(ctx, groupID, Settings{GameServer: &server})
}

// UpdateSettings changes group configuration. The current boss is left as is.
func (e *Engine) UpdateSettings(ctx context.Context, groupID string, s Settings) (g *ledger.Group, err error) {
	defer func() { e.observe("update_settings", err) }()

	if s.GameServer != nil {
		gs, err := stage.ParseServer(*s.GameServer)
		if err != nil || !e.table.Supports(gs) {
			return nil, newError(InputError, "game server %s does not exist", *s.GameServer)
		}
	}

	entry, err := e.lookup(groupID)
	if err != nil {
		return nil, err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()

	next := entry.state.Clone()
	if s.GameServer != nil {
		next.GameServer = *s.GameServer
	}
	if s.NotificationMask != nil {
		next.NotificationMask = *s.NotificationMask
	}
	if s.HardMode != nil {
		next.HardMode = *s.HardMode
	}
	if err := e.store.SaveGroup(ctx, next); err != nil {
		return nil, &StoreError{Op: "update_settings", Err: err}
	}
	entry.state = next

	logrus.Infof("updated settings of group %s", groupID)
	return next.Clone(), nil
}

// Group returns a snapshot of a group's state and settings.
func (e *Engine) Group(groupID string) (*ledger.Group, error) {
	entry, err := e.lookup(groupID)
	if err != nil {
		return nil, err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.state.Clone(), nil
}

// Status returns the current boss status without a message.
func (e *Engine) Status(groupID string) (BossStatus, error) {
	g, err := e.Group(groupID)
	if err != nil {
		return BossStatus{}, err
	}
	return statusOf(g, ""), nil
}

// Summary renders the boss status as a short human-readable text.
func (e *Engine) Summary(ctx context.Context, groupID string) (string, error) {
	g, err := e.Group(groupID)
	if err != nil {
		return "", err
	}
	summary := fmt.Sprintf("cycle %d, boss %d\nhealth %s", g.Cycle, g.BossSlot, e.formatNumber(g.Health))
	if g.Challenger != "" {
		summary += fmt.Sprintf("\n%s is challenging the boss", e.Nickname(ctx, g.Challenger))
	}
	return summary, nil
}

// Watch returns a handle on the group's next status change.
func (e *Engine) Watch(groupID string) (notify.Watch[BossStatus], error) {
	entry, err := e.lookup(groupID)
	if err != nil {
		return notify.Watch[BossStatus]{}, err
	}
	return entry.hub.Watch(), nil
}

// Follow returns the current status together with a watch on the change
// after it. The status carries no message, like Status.
func (e *Engine) Follow(groupID string) (BossStatus, notify.Watch[BossStatus], error) {
	entry, err := e.lookup(groupID)
	if err != nil {
		return BossStatus{}, notify.Watch[BossStatus]{}, err
	}
	status, w := entry.hub.Snapshot()
	status.Message = ""
	return status, w, nil
}

// WaitStatus blocks until the group changes or timeout elapses.
// On timeout it returns changed=false and no error.
func (e *Engine) WaitStatus(ctx context.Context, groupID string, timeout time.Duration) (BossStatus, bool, error) {
	entry, err := e.lookup(groupID)
	if err != nil {
		return BossStatus{}, false, err
	}
	return entry.hub.Wait(ctx, timeout)
}
