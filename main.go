// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package main

import (
	"os"

	"github.com/sirupsen/logrus"

	"github.com/AccelByte/extend-clan-battle/internal/cli"
)

func main() {
	logrus.SetFormatter(&logrus.JSONFormatter{})
	logrus.SetOutput(os.Stdout)

	if err := cli.NewRootCommand().Execute(); err != nil {
		logrus.Fatalf("clanbattle: %v", err)
	}
}
