// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package alert

import "errors"

var (
	// ErrSinkNotFound indicates that a requested sink doesn't exist in the registry.
	ErrSinkNotFound = errors.New("sink not found in registry")

	// ErrSinkExists indicates that a sink with the same name is already registered.
	ErrSinkExists = errors.New("sink already registered")
)
