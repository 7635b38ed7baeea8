/*
 * Copyright 2025 SREDiag Authors
 * Copyright 2023 CloudWeGo Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package prodcon

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

const instrumentationName = "github.com/srediag/prodcon-shm/pkg/prodcon"

const (
	roleProducer = "producer"
	roleConsumer = "consumer"
)

// observer fans session events out to OpenTelemetry and, optionally,
// Prometheus.
type observer struct {
	role     string
	identity string
	tracer   trace.Tracer
	ops      metric.Int64Counter
	recovers metric.Int64Counter
	wait     metric.Float64Histogram
	prom     *Metrics
}

func newObserver(cfg *Config, role string, id Identity) *observer {
	tracer := cfg.Tracer
	if tracer == nil {
		tracer = tracenoop.NewTracerProvider().Tracer(instrumentationName)
	}
	meter := cfg.Meter
	if meter == nil {
		meter = metricnoop.NewMeterProvider().Meter(instrumentationName)
	}
	o := &observer{
		role:     role,
		identity: id.Name,
		tracer:   tracer,
		prom:     cfg.Metrics,
	}
	var err error
	if o.ops, err = meter.Int64Counter("prodcon.operations",
		metric.WithDescription("Begin and End calls by role, operation and result.")); err != nil {
		o.ops = metricnoop.Int64Counter{}
	}
	if o.recovers, err = meter.Int64Counter("prodcon.stale_segment_recoveries",
		metric.WithDescription("Recovery attempts after a failed segment create.")); err != nil {
		o.recovers = metricnoop.Int64Counter{}
	}
	if o.wait, err = meter.Float64Histogram("prodcon.slot_wait",
		metric.WithDescription("Time spent blocked on the slot semaphore."),
		metric.WithUnit("s")); err != nil {
		o.wait = metricnoop.Float64Histogram{}
	}
	return o
}

func (o *observer) start(op string) trace.Span {
	_, span := o.tracer.Start(context.Background(), "prodcon."+o.role+"."+op,
		trace.WithAttributes(attribute.String("prodcon.identity", o.identity)))
	return span
}

func (o *observer) finish(span trace.Span, op string, err error) {
	result := "ok"
	if err != nil {
		result = KindOf(err).String()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
	o.ops.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("role", o.role),
		attribute.String("op", op),
		attribute.String("result", result),
	))
	if o.prom != nil {
		o.prom.transactions.WithLabelValues(o.role, op, result).Inc()
	}
}

func (o *observer) waited(d time.Duration) {
	o.wait.Record(context.Background(), d.Seconds(), metric.WithAttributes(attribute.String("role", o.role)))
	if o.prom != nil {
		o.prom.waitSeconds.WithLabelValues(o.role).Observe(d.Seconds())
	}
}

func (o *observer) recovered() {
	o.recovers.Add(context.Background(), 1)
	if o.prom != nil {
		o.prom.recoveries.Inc()
	}
}
