// Copyright (c) 2023 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package common

import (
	"os"

	"github.com/google/uuid"
)

func GetEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}

	return fallback
}

// NewRequestID returns a random identifier for one request or connection.
// example: status_8f14e45f-ceea-467f-a9b3-3c5f1f8a2b7d
func NewRequestID(prefix string) string {
	if prefix == "" {
		return uuid.NewString()
	}
	return prefix + "_" + uuid.NewString()
}
