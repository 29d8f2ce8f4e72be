// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package alert

import (
	"context"

	"github.com/sirupsen/logrus"
)

// LogSinkName is the registry name of the log sink.
const LogSinkName = "log"

// LogSink writes alerts to the structured log.
type LogSink struct {
	logger *logrus.Entry
}

func NewLogSink(logger *logrus.Logger) *LogSink {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &LogSink{logger: logger.WithField("sink", LogSinkName)}
}

func (s *LogSink) Name() string {
	return LogSinkName
}

func (s *LogSink) Send(ctx context.Context, a Alert) error {
	s.logger.WithFields(logrus.Fields{
		"groupId":  a.GroupID,
		"kind":     a.Kind,
		"mentions": a.Mentions,
	}).Info(a.Message)
	return nil
}
