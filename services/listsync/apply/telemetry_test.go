// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package apply

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func spanAttr(attrs []attribute.KeyValue, key string) (attribute.Value, bool) {
	for _, kv := range attrs {
		if string(kv.Key) == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestApply_Telemetry(t *testing.T) {
	spans := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(spans))
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)
	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
		_ = mp.Shutdown(context.Background())
	})

	ctx := context.Background()
	app := New[string, string](NewMemoryList[string, string](), Config{}, nil)
	_, err := app.Apply(ctx, fruits(t, "apple"), ModeAnimated)
	require.NoError(t, err)
	_, err = app.Apply(ctx, fruits(t, "apple", "banana"), ModeAnimated)
	require.NoError(t, err)

	t.Run("one span per apply", func(t *testing.T) {
		ended := spans.Ended()
		require.Len(t, ended, 2)
		for _, s := range ended {
			assert.Equal(t, "Applicator.Apply", s.Name())
		}

		first, second := ended[0].Attributes(), ended[1].Attributes()
		mode, ok := spanAttr(first, "apply.mode")
		require.True(t, ok)
		assert.Equal(t, "reload", mode.AsString())

		mode, ok = spanAttr(second, "apply.mode")
		require.True(t, ok)
		assert.Equal(t, "animated", mode.AsString())
		ops, ok := spanAttr(second, "apply.ops")
		require.True(t, ok)
		assert.Equal(t, int64(1), ops.AsInt64())
	})

	t.Run("script size histogram", func(t *testing.T) {
		var rm metricdata.ResourceMetrics
		require.NoError(t, reader.Collect(ctx, &rm))

		var hist *metricdata.Histogram[int64]
		for _, sm := range rm.ScopeMetrics {
			for _, m := range sm.Metrics {
				if m.Name != "listsync_script_ops" {
					continue
				}
				h, ok := m.Data.(metricdata.Histogram[int64])
				require.True(t, ok, "unexpected data type %T", m.Data)
				hist = &h
			}
		}
		require.NotNil(t, hist, "listsync_script_ops not collected")

		var count uint64
		var sum int64
		for _, dp := range hist.DataPoints {
			count += dp.Count
			sum += dp.Sum
		}
		assert.Equal(t, uint64(2), count)
		assert.Equal(t, int64(1), sum)
	})
}
