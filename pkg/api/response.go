// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package api

import (
	"github.com/AccelByte/extend-clan-battle/pkg/battle"
)

// Response codes shared by every transport.
const (
	CodeOK                    = 0
	CodeNotChanged            = 1
	CodeDomainError           = 10
	CodeInsufficientAuthority = 11
	CodeGroupNotExists        = 20
	CodeInvalidPayload        = 30
	CodeMissingKey            = 31
	CodeUnknownAction         = 32
	CodeServerError           = 40
)

// Response is the result of one action.
type Response struct {
	Code    int    `json:"code"`
	Message string `json:"message,omitempty"`
	Notice  string `json:"notice,omitempty"`

	BossData     *BossData            `json:"bossData,omitempty"`
	GroupData    *GroupData           `json:"groupData,omitempty"`
	Members      []MemberView         `json:"members,omitempty"`
	Challenges   []battle.ReportEntry `json:"challenges,omitempty"`
	Subscribers  []SubscriberView     `json:"subscribers,omitempty"`
	Notification *int                 `json:"notification,omitempty"`
	IsAdmin      *bool                `json:"isAdmin,omitempty"`
	SelfID       string               `json:"selfId,omitempty"`
	Summary      string               `json:"summary,omitempty"`
	Count        *int                 `json:"count,omitempty"`
}

// BossData is the boss status with the full health of the current boss.
type BossData struct {
	Cycle      int    `json:"cycle"`
	BossSlot   int    `json:"bossSlot"`
	Health     int    `json:"health"`
	FullHealth int    `json:"fullHealth"`
	Challenger string `json:"challenger,omitempty"`
}

// GroupData describes group settings.
type GroupData struct {
	GroupID    string `json:"groupId"`
	GroupName  string `json:"groupName"`
	GameServer string `json:"gameServer"`
	HardMode   bool   `json:"hardMode"`
}

type MemberView struct {
	UserID   string `json:"userId"`
	Nickname string `json:"nickname"`
	Role     int    `json:"role"`
}

type SubscriberView struct {
	BossSlot int               `json:"boss"`
	UserID   string            `json:"userId"`
	Nickname string            `json:"nickname"`
	Comment  map[string]string `json:"comment,omitempty"`
}

func failure(code int, msg string) Response {
	return Response{Code: code, Message: msg}
}

func intPtr(n int) *int {
	return &n
}

func boolPtr(b bool) *bool {
	return &b
}
