// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

// Package api turns JSON action payloads into engine operations.
//
// It owns everything the engine leaves to its callers: membership and
// authority checks, the notification mask, outward alerts and the mapping of
// engine errors to response codes. Transports only decode a payload, call
// Gateway.Handle and encode the Response.
package api

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/AccelByte/extend-clan-battle/pkg/alert"
	"github.com/AccelByte/extend-clan-battle/pkg/battle"
	"github.com/AccelByte/extend-clan-battle/pkg/ledger"
	"github.com/AccelByte/extend-clan-battle/pkg/stage"
)

const defaultLongPoll = 30 * time.Second

// Caller is the authenticated identity behind a request.
type Caller struct {
	UserID   string
	Nickname string
}

// Notifier accepts outward alerts. Delivery is the notifier's concern.
type Notifier interface {
	Dispatch(a alert.Alert)
}

// GatewayConfig tunes the gateway.
type GatewayConfig struct {
	// LongPoll bounds update_boss waits.
	LongPoll time.Duration
}

// request is one decoded action with its resolved context.
type request struct {
	caller    Caller
	group     *ledger.Group
	authority int
	payload   Payload
}

func (r *request) isAdmin() bool {
	return r.authority <= ledger.AuthorityAdmin
}

type handlerFunc func(ctx context.Context, r *request) (Response, error)

type route struct {
	adminOnly bool
	handle    handlerFunc
}

// Gateway dispatches actions for every group.
type Gateway struct {
	engine   *battle.Engine
	alerts   Notifier
	longPoll time.Duration
	routes   map[string]route
}

// NewGateway creates a gateway. alerts may be nil.
func NewGateway(engine *battle.Engine, alerts Notifier, cfg GatewayConfig) *Gateway {
	if cfg.LongPoll <= 0 {
		cfg.LongPoll = defaultLongPoll
	}
	g := &Gateway{
		engine:   engine,
		alerts:   alerts,
		longPoll: cfg.LongPoll,
	}
	g.routes = map[string]route{
		"get_member_list": {handle: g.memberList},
		"get_data":        {handle: g.data},
		"get_challenge":   {handle: g.challenges},
		"get_summary":     {handle: g.summary},
		"update_boss":     {handle: g.updateBoss},
		"addrecord":       {handle: g.addRecord},
		"undo":            {handle: g.undo},
		"apply":           {handle: g.apply},
		"cancelapply":     {handle: g.cancelApply},
		"get_subscribers": {handle: g.subscribers},
		"addsubscribe":    {handle: g.addSubscribe},
		"cancelsubscribe": {handle: g.cancelSubscribe},
		"modify":          {adminOnly: true, handle: g.modify},
		"send_remind":     {adminOnly: true, handle: g.remind},
		"drop_member":     {adminOnly: true, handle: g.dropMembers},
		"get_setting":     {adminOnly: true, handle: g.setting},
		"put_setting":     {adminOnly: true, handle: g.putSetting},
		"restart":         {adminOnly: true, handle: g.restart},
	}
	return g
}

// actions lists the supported action names in order, join included.
func (g *Gateway) actions() []string {
	names := make([]string, 0, len(g.routes)+1)
	for name := range g.routes {
		names = append(names, name)
	}
	names = append(names, "join")
	sort.Strings(names)
	return names
}

// Handle runs one action for caller in groupID.
func (g *Gateway) Handle(ctx context.Context, caller Caller, groupID string, p Payload) Response {
	group, err := g.engine.Group(groupID)
	if err != nil {
		return failure(CodeGroupNotExists, "group has not been created")
	}
	action, err := p.Action()
	if err != nil {
		return payloadFailure(err)
	}
	log := logrus.WithFields(logrus.Fields{"groupId": groupID, "userId": caller.UserID, "action": action})

	if action == "join" {
		resp, err := g.join(ctx, caller, group)
		return g.respond(log, resp, err)
	}

	rt, ok := g.routes[action]
	if !ok {
		return failure(CodeUnknownAction, fmt.Sprintf("unknown action %s, expected one of: %s", action, strings.Join(g.actions(), ", ")))
	}

	authority, err := g.engine.Authority(ctx, groupID, caller.UserID)
	if err != nil {
		return g.respond(log, Response{}, err)
	}
	member, err := g.isMember(ctx, groupID, caller.UserID)
	if err != nil {
		return g.respond(log, Response{}, err)
	}
	if !member && authority > ledger.AuthorityOwner {
		return failure(CodeInsufficientAuthority, "you are not a member of this group")
	}
	if rt.adminOnly && authority > ledger.AuthorityAdmin {
		return failure(CodeInsufficientAuthority, "insufficient authority")
	}

	r := &request{caller: caller, group: group, authority: authority, payload: p}
	resp, err := rt.handle(ctx, r)
	return g.respond(log, resp, err)
}

func (g *Gateway) isMember(ctx context.Context, groupID, userID string) (bool, error) {
	members, err := g.engine.Members(ctx, groupID)
	if err != nil {
		return false, err
	}
	for _, m := range members {
		if m.UserID == userID {
			return true, nil
		}
	}
	return false, nil
}

func (g *Gateway) respond(log *logrus.Entry, resp Response, err error) Response {
	if err == nil {
		return resp
	}

	var mk *missingKeyError
	var iv *invalidValueError
	var be *battle.Error
	switch {
	case errors.As(err, &mk), errors.As(err, &iv):
		return payloadFailure(err)
	case errors.As(err, &be):
		log.Debugf("rejected: %s", be.Reason)
		return failure(CodeDomainError, be.Reason)
	default:
		log.Errorf("action failed: %v", err)
		return failure(CodeServerError, "server error")
	}
}

func payloadFailure(err error) Response {
	var mk *missingKeyError
	if errors.As(err, &mk) {
		return failure(CodeMissingKey, err.Error())
	}
	return failure(CodeInvalidPayload, err.Error())
}

// notify sends an alert when bit is enabled in the group's mask.
// A zero bit always sends.
func (g *Gateway) notify(r *request, bit int, kind alert.Kind, msg string, mentions ...string) {
	if g.alerts == nil {
		return
	}
	if bit != 0 && !alert.Enabled(r.group.NotificationMask, bit) {
		return
	}
	g.alerts.Dispatch(alert.Alert{
		GroupID:  r.group.ID,
		Kind:     kind,
		Message:  msg,
		Mentions: mentions,
	})
}

func (g *Gateway) bossData(groupID string, s battle.BossStatus) *BossData {
	d := &BossData{
		Cycle:      s.Cycle,
		BossSlot:   s.BossSlot,
		Health:     s.Health,
		Challenger: s.Challenger,
	}
	if group, err := g.engine.Group(groupID); err == nil {
		d.FullHealth = g.engine.FullHealth(group, s.Cycle, s.BossSlot)
	}
	return d
}

func (g *Gateway) statusResponse(groupID string, s battle.BossStatus) Response {
	return Response{Code: CodeOK, Notice: s.Message, BossData: g.bossData(groupID, s)}
}

func groupData(group *ledger.Group) *GroupData {
	return &GroupData{
		GroupID:    group.ID,
		GroupName:  group.Name,
		GameServer: group.GameServer,
		HardMode:   group.HardMode,
	}
}

func (g *Gateway) join(ctx context.Context, caller Caller, group *ledger.Group) (Response, error) {
	if err := g.engine.BindGroup(ctx, group.ID, caller.UserID, caller.Nickname); err != nil {
		return Response{}, err
	}
	return Response{Code: CodeOK, Notice: fmt.Sprintf("joined group %s", group.ID), SelfID: caller.UserID}, nil
}

func (g *Gateway) memberList(ctx context.Context, r *request) (Response, error) {
	members, err := g.engine.Members(ctx, r.group.ID)
	if err != nil {
		return Response{}, err
	}
	views := make([]MemberView, 0, len(members))
	for _, m := range members {
		nickname := m.Nickname
		if nickname == "" {
			nickname = m.UserID
		}
		views = append(views, MemberView{UserID: m.UserID, Nickname: nickname, Role: m.Role})
	}
	return Response{Code: CodeOK, Members: views}, nil
}

func (g *Gateway) data(ctx context.Context, r *request) (Response, error) {
	return Response{
		Code:      CodeOK,
		BossData:  g.bossData(r.group.ID, battle.BossStatus{Cycle: r.group.Cycle, BossSlot: r.group.BossSlot, Health: r.group.Health, Challenger: r.group.Challenger}),
		GroupData: groupData(r.group),
		IsAdmin:   boolPtr(r.isAdmin()),
		SelfID:    r.caller.UserID,
	}, nil
}

func (g *Gateway) challenges(ctx context.Context, r *request) (Response, error) {
	var q battle.ReportQuery
	ts, err := r.payload.OptionalInt("ts")
	if err != nil {
		return Response{}, err
	}
	if ts != nil {
		day, _ := battle.BattleTime(stage.Server(r.group.GameServer), time.Unix(int64(*ts), 0))
		q.BattleDay = &day
	}
	if q.AttackerID, err = r.payload.ID("attacker"); err != nil {
		return Response{}, err
	}

	report, err := g.engine.Report(ctx, r.group.ID, q)
	if err != nil {
		return Response{}, err
	}
	return Response{Code: CodeOK, Challenges: report}, nil
}

func (g *Gateway) summary(ctx context.Context, r *request) (Response, error) {
	text, err := g.engine.Summary(ctx, r.group.ID)
	if err != nil {
		return Response{}, err
	}
	return Response{Code: CodeOK, Summary: text}, nil
}

func (g *Gateway) updateBoss(ctx context.Context, r *request) (Response, error) {
	status, changed, err := g.engine.WaitStatus(ctx, r.group.ID, g.longPoll)
	if err != nil {
		return Response{}, err
	}
	if !changed {
		return Response{Code: CodeNotChanged, Message: "not changed"}, nil
	}
	return g.statusResponse(r.group.ID, status), nil
}

func (g *Gateway) addRecord(ctx context.Context, r *request) (Response, error) {
	defeat, err := r.payload.Bool("defeat")
	if err != nil {
		return Response{}, err
	}
	behalf, err := r.payload.ID("behalf")
	if err != nil {
		return Response{}, err
	}
	comment, err := r.payload.StringMap("comment")
	if err != nil {
		return Response{}, err
	}

	if defeat {
		status, fired, err := g.engine.Defeat(ctx, r.group.ID, r.caller.UserID, behalf, comment)
		if err != nil {
			return Response{}, err
		}
		g.notify(r, alert.MaskReport, alert.KindReport, status.Message)
		if len(fired) > 0 {
			g.notify(r, 0, alert.KindBossReached, fmt.Sprintf("boss %d is up", status.BossSlot), fired...)
		}
		return g.statusResponse(r.group.ID, status), nil
	}

	damage, err := r.payload.Int("damage")
	if err != nil {
		return Response{}, err
	}
	status, err := g.engine.Damage(ctx, r.group.ID, r.caller.UserID, damage, behalf, comment)
	if err != nil {
		return Response{}, err
	}
	g.notify(r, alert.MaskReport, alert.KindReport, status.Message)
	return g.statusResponse(r.group.ID, status), nil
}

func (g *Gateway) undo(ctx context.Context, r *request) (Response, error) {
	status, err := g.engine.Undo(ctx, r.group.ID, r.caller.UserID, r.isAdmin())
	if err != nil {
		return Response{}, err
	}
	g.notify(r, alert.MaskUndo, alert.KindUndo, status.Message)
	return g.statusResponse(r.group.ID, status), nil
}

func (g *Gateway) apply(ctx context.Context, r *request) (Response, error) {
	comment, err := r.payload.OptionalString("comment")
	if err != nil {
		return Response{}, err
	}
	status, err := g.engine.Apply(ctx, r.group.ID, r.caller.UserID, comment)
	if err != nil {
		return Response{}, err
	}
	g.notify(r, alert.MaskApply, alert.KindApply, status.Message)
	return g.statusResponse(r.group.ID, status), nil
}

func (g *Gateway) cancelApply(ctx context.Context, r *request) (Response, error) {
	status, err := g.engine.Cancel(ctx, r.group.ID, r.caller.UserID, r.isAdmin())
	if err != nil {
		return Response{}, err
	}
	g.notify(r, alert.MaskCancelApply, alert.KindCancelApply, status.Message)
	return g.statusResponse(r.group.ID, status), nil
}

func (g *Gateway) subscribers(ctx context.Context, r *request) (Response, error) {
	subs, err := g.engine.Subscriptions(ctx, r.group.ID)
	if err != nil {
		return Response{}, err
	}
	views := make([]SubscriberView, 0, len(subs))
	for _, s := range subs {
		views = append(views, SubscriberView{
			BossSlot: s.TargetSlot,
			UserID:   s.SubscriberID,
			Nickname: g.engine.Nickname(ctx, s.SubscriberID),
			Comment:  s.Comment,
		})
	}
	return Response{Code: CodeOK, Subscribers: views}, nil
}

func (g *Gateway) addSubscribe(ctx context.Context, r *request) (Response, error) {
	slot, err := r.payload.Int("boss_num")
	if err != nil {
		return Response{}, err
	}
	comment, err := r.payload.StringMap("comment")
	if err != nil {
		return Response{}, err
	}
	if err := g.engine.Subscribe(ctx, r.group.ID, r.caller.UserID, slot, comment); err != nil {
		return Response{}, err
	}

	name := g.engine.Nickname(ctx, r.caller.UserID)
	if slot == battle.AnySlot {
		notice := fmt.Sprintf("%s joined the queue", name)
		g.notify(r, alert.MaskJoinQueue, alert.KindQueue, notice)
		return Response{Code: CodeOK, Notice: notice}, nil
	}
	notice := fmt.Sprintf("%s subscribed to boss %d", name, slot)
	g.notify(r, alert.MaskSubscribe, alert.KindSubscribe, notice)
	return Response{Code: CodeOK, Notice: notice}, nil
}

func (g *Gateway) cancelSubscribe(ctx context.Context, r *request) (Response, error) {
	slot, err := r.payload.Int("boss_num")
	if err != nil {
		return Response{}, err
	}
	n, err := g.engine.Unsubscribe(ctx, r.group.ID, r.caller.UserID, slot)
	if err != nil {
		return Response{}, err
	}
	if n == 0 {
		return Response{Code: CodeOK, Notice: "no record", Count: intPtr(0)}, nil
	}

	name := g.engine.Nickname(ctx, r.caller.UserID)
	if slot == battle.AnySlot {
		notice := fmt.Sprintf("%s left the queue", name)
		g.notify(r, alert.MaskLeaveQueue, alert.KindQueue, notice)
		return Response{Code: CodeOK, Notice: notice, Count: intPtr(n)}, nil
	}
	notice := fmt.Sprintf("%s unsubscribed from boss %d", name, slot)
	g.notify(r, alert.MaskUnsubscribe, alert.KindSubscribe, notice)
	return Response{Code: CodeOK, Notice: notice, Count: intPtr(n)}, nil
}

func (g *Gateway) modify(ctx context.Context, r *request) (Response, error) {
	var req battle.ModifyRequest
	var err error
	if req.Cycle, err = r.payload.OptionalInt("cycle"); err != nil {
		return Response{}, err
	}
	if req.BossSlot, err = r.payload.OptionalInt("boss_num"); err != nil {
		return Response{}, err
	}
	if req.Health, err = r.payload.OptionalInt("health"); err != nil {
		return Response{}, err
	}

	status, err := g.engine.Modify(ctx, r.group.ID, req)
	if err != nil {
		return Response{}, err
	}
	g.notify(r, alert.MaskModify, alert.KindModify, status.Message)
	return g.statusResponse(r.group.ID, status), nil
}

func (g *Gateway) remind(ctx context.Context, r *request) (Response, error) {
	users, err := r.payload.IDList("memberlist")
	if err != nil {
		return Response{}, err
	}
	msg, err := r.payload.OptionalString("message")
	if err != nil {
		return Response{}, err
	}
	if msg == "" {
		msg = "please report your challenges"
	}
	if len(users) > 0 {
		g.notify(r, 0, alert.KindRemind, msg, users...)
	}
	return Response{Code: CodeOK, Notice: fmt.Sprintf("reminded %d members", len(users)), Count: intPtr(len(users))}, nil
}

func (g *Gateway) dropMembers(ctx context.Context, r *request) (Response, error) {
	users, err := r.payload.IDList("memberlist")
	if err != nil {
		return Response{}, err
	}
	n, err := g.engine.DropMembers(ctx, r.group.ID, users)
	if err != nil {
		return Response{}, err
	}
	return Response{Code: CodeOK, Notice: fmt.Sprintf("removed %d members", n), Count: intPtr(n)}, nil
}

func (g *Gateway) setting(ctx context.Context, r *request) (Response, error) {
	return Response{
		Code:         CodeOK,
		GroupData:    groupData(r.group),
		Notification: intPtr(r.group.NotificationMask),
	}, nil
}

func (g *Gateway) putSetting(ctx context.Context, r *request) (Response, error) {
	var s battle.Settings
	server, err := r.payload.OptionalString("game_server")
	if err != nil {
		return Response{}, err
	}
	if server != "" {
		s.GameServer = &server
	}
	if s.NotificationMask, err = r.payload.OptionalInt("notification"); err != nil {
		return Response{}, err
	}
	if s.HardMode, err = r.payload.OptionalBool("hard_mode"); err != nil {
		return Response{}, err
	}

	group, err := g.engine.UpdateSettings(ctx, r.group.ID, s)
	if err != nil {
		return Response{}, err
	}
	return Response{
		Code:         CodeOK,
		Notice:       "settings saved",
		GroupData:    groupData(group),
		Notification: intPtr(group.NotificationMask),
	}, nil
}

func (g *Gateway) restart(ctx context.Context, r *request) (Response, error) {
	confirm, err := r.payload.Bool("confirm")
	if err != nil {
		return Response{}, err
	}
	if !confirm {
		return failure(CodeInvalidPayload, "restart must be confirmed"), nil
	}
	status, err := g.engine.Restart(ctx, r.group.ID)
	if err != nil {
		return Response{}, err
	}
	return g.statusResponse(r.group.ID, status), nil
}
