// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package ledger

import "errors"

var (
	// ErrNotFound indicates that the requested row does not exist.
	ErrNotFound = errors.New("ledger: not found")

	// ErrAlreadyExists indicates that a unique row is already stored.
	ErrAlreadyExists = errors.New("ledger: already exists")
)
