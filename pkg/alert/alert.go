// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

// Package alert delivers outward group messages, like subscription
// notices and reminders, to pluggable sinks on a best-effort basis.
package alert

import (
	"context"
)

// Notification mask bits selecting which transitions are announced.
const (
	MaskReport      = 0x01
	MaskUndo        = 0x02
	MaskApply       = 0x04
	MaskCancelApply = 0x08
	MaskJoinQueue   = 0x10
	MaskLeaveQueue  = 0x20
	MaskSubscribe   = 0x40
	MaskUnsubscribe = 0x80
	MaskModify      = 0x100
)

// Kind names the event an alert announces.
type Kind string

const (
	KindReport      Kind = "report"
	KindUndo        Kind = "undo"
	KindApply       Kind = "apply"
	KindCancelApply Kind = "cancel_apply"
	KindQueue       Kind = "queue"
	KindSubscribe   Kind = "subscribe"
	KindModify      Kind = "modify"
	// KindBossReached is sent to fired subscribers regardless of the mask.
	KindBossReached Kind = "boss_reached"
	KindRemind      Kind = "remind"
)

// Alert is one message for a group.
type Alert struct {
	GroupID  string   `json:"groupId"`
	Kind     Kind     `json:"kind"`
	Message  string   `json:"message"`
	Mentions []string `json:"mentions,omitempty"`
}

// Enabled reports whether mask selects bit.
func Enabled(mask, bit int) bool {
	return mask&bit != 0
}

// Sink delivers alerts somewhere outside the service.
type Sink interface {
	// Name returns unique sink identifier.
	Name() string

	// Send delivers one alert. Implementations must honour ctx cancellation.
	Send(ctx context.Context, a Alert) error
}
