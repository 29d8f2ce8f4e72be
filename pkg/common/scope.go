// Copyright (c) 2023 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package common

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"
)

const (
	traceIdLogField = "traceID"
	tracerName      = "clan-battle"
)

// Scope carries the span and logger of one request through the call chain.
type Scope struct {
	Ctx     context.Context
	TraceID string
	span    oteltrace.Span
	Log     *log.Entry
}

// NewScope starts a span named name as a child of whatever span ctx holds.
func NewScope(ctx context.Context, name string) *Scope {
	tracerCtx, span := otel.Tracer(tracerName).Start(ctx, name)
	traceID := span.SpanContext().TraceID().String()

	return &Scope{
		Ctx:     tracerCtx,
		TraceID: traceID,
		span:    span,
		Log:     log.WithField(traceIdLogField, traceID),
	}
}

// WithFields adds fields to both the logger and the span.
func (s *Scope) WithFields(fields log.Fields) *Scope {
	s.Log = s.Log.WithFields(fields)
	for k, v := range fields {
		s.SetAttribute(k, v)
	}
	return s
}

// Finish ends the span.
func (s *Scope) Finish() {
	s.span.End()
}

// RecordResult tags the span with an action's response code. A failed
// result also marks the span as errored and is logged.
func (s *Scope) RecordResult(code int, failed bool) {
	s.span.SetAttributes(attribute.Int("clanbattle.response_code", code))
	if !failed {
		return
	}
	s.Log.Warnf("action failed with code %d", code)
	s.TraceError(fmt.Errorf("action failed with code %d", code))
}

// TraceError records err and marks the span as failed.
func (s *Scope) TraceError(err error) {
	s.span.RecordError(err)
	s.span.SetStatus(codes.Error, err.Error())
}

// SetAttribute adds an attribute to the span based on the value type.
func (s *Scope) SetAttribute(key string, value any) {
	switch v := value.(type) {
	case bool:
		s.span.SetAttributes(attribute.Bool(key, v))
	case string:
		s.span.SetAttributes(attribute.String(key, v))
	case int:
		s.span.SetAttributes(attribute.Int(key, v))
	default:
		s.Log.Debugf("could not set a span attribute of type %T", value)
	}
}
