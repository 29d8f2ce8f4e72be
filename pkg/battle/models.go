// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package battle

import (
	"time"
)

// BossStatus is published to observers after every mutation.
type BossStatus struct {
	Cycle      int    `json:"cycle"`
	BossSlot   int    `json:"bossSlot"`
	Health     int    `json:"health"`
	Challenger string `json:"challenger,omitempty"`
	Message    string `json:"message"`
}

// ModifyRequest is an administrative override. Nil fields are left alone,
// except Health which is recomputed from the stage table when nil.
type ModifyRequest struct {
	Cycle    *int
	BossSlot *int
	Health   *int
}

// Settings is a partial update of group configuration.
type Settings struct {
	GameServer       *string
	NotificationMask *int
	HardMode         *bool
}

// ReportQuery filters a report; zero values match everything.
type ReportQuery struct {
	AttackerID string
	BattleDay  *int
}

// ReportEntry is one challenge as shown to readers.
type ReportEntry struct {
	ID              int64             `json:"id"`
	AttackerID      string            `json:"attackerId"`
	ChallengeTime   time.Time         `json:"challengeTime"`
	BattleDay       int               `json:"battleDay"`
	Cycle           int               `json:"cycle"`
	BossSlot        int               `json:"bossSlot"`
	HealthRemaining int               `json:"healthRemaining"`
	Damage          int               `json:"damage"`
	IsContinuation  bool              `json:"isContinuation"`
	Comment         map[string]string `json:"comment,omitempty"`
}
