// Copyright (c) 2023 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package common

import (
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/zipkin"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

const defaultZipkinEndpoint = "http://localhost:9411/api/v2/spans"

// NewTracerProvider creates a batching tracer provider exporting to Zipkin.
// The collector is read from OTEL_EXPORTER_ZIPKIN_ENDPOINT.
func NewTracerProvider(serviceName, environment string, id int64) (*sdktrace.TracerProvider, error) {
	endpoint := GetEnv("OTEL_EXPORTER_ZIPKIN_ENDPOINT", defaultZipkinEndpoint)
	exporter, err := zipkin.New(endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to create zipkin exporter: %w", err)
	}

	res := resource.NewSchemaless(
		attribute.String("service.name", serviceName),
		attribute.String("environment", environment),
		attribute.Int64("ID", id),
	)

	return sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	), nil
}
