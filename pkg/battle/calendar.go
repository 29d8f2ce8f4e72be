// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package battle

import (
	"time"

	"github.com/AccelByte/extend-clan-battle/pkg/stage"
)

const (
	secondsPerDay = 24 * 60 * 60
	// rolloverHour is the local hour at which a new battle day starts.
	rolloverHour = 5
)

// serverOffset is the UTC offset of a game server's calendar.
func serverOffset(server stage.Server) int64 {
	switch server {
	case stage.ServerJP, stage.ServerKR:
		return 9 * 3600
	default:
		return 8 * 3600
	}
}

// BattleTime converts a wall-clock instant to the server's battle day and
// the second within that day.
func BattleTime(server stage.Server, t time.Time) (day, second int) {
	shifted := t.Unix() + serverOffset(server) - rolloverHour*3600
	d := shifted / secondsPerDay
	s := shifted % secondsPerDay
	if s < 0 {
		d--
		s += secondsPerDay
	}
	return int(d), int(s)
}

// WallClock is the inverse of BattleTime.
func WallClock(server stage.Server, day, second int) time.Time {
	unix := int64(day)*secondsPerDay + int64(second) - serverOffset(server) + rolloverHour*3600
	return time.Unix(unix, 0)
}
