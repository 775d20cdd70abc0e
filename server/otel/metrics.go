// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package otel

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds OpenTelemetry metric instruments for the gate.
type Metrics struct {
	meter metric.Meter

	// Counters
	inboundTotal    metric.Int64Counter
	outboundTotal   metric.Int64Counter
	deferralsTotal  metric.Int64Counter
	requeuesTotal   metric.Int64Counter
	releasesTotal   metric.Int64Counter
	dropsTotal      metric.Int64Counter
	underflowsTotal metric.Int64Counter

	// UpDownCounters (gauges)
	retryPending     metric.Int64UpDownCounter
	tasksOutstanding metric.Int64UpDownCounter

	// Histograms
	deferralDuration metric.Float64Histogram
}

// NewMetrics creates a new Metrics instance with all instruments initialized.
func NewMetrics() (*Metrics, error) {
	m := &Metrics{
		meter: otel.Meter("fluxgate"),
	}

	var err error

	m.inboundTotal, err = m.meter.Int64Counter(
		"fluxgate.inbound.total",
		metric.WithDescription("Inbound messages observed, by class"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create inboundTotal counter: %w", err)
	}

	m.outboundTotal, err = m.meter.Int64Counter(
		"fluxgate.outbound.total",
		metric.WithDescription("Outbound delivery attempts evaluated, by class and decision"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create outboundTotal counter: %w", err)
	}

	m.deferralsTotal, err = m.meter.Int64Counter(
		"fluxgate.deferrals.total",
		metric.WithDescription("Deliveries withheld because retries were pending"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create deferralsTotal counter: %w", err)
	}

	m.requeuesTotal, err = m.meter.Int64Counter(
		"fluxgate.requeues.total",
		metric.WithDescription("Deferred deliveries scheduled again, by reason"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create requeuesTotal counter: %w", err)
	}

	m.releasesTotal, err = m.meter.Int64Counter(
		"fluxgate.releases.total",
		metric.WithDescription("Deferred deliveries republished into the broker"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create releasesTotal counter: %w", err)
	}

	m.dropsTotal, err = m.meter.Int64Counter(
		"fluxgate.drops.total",
		metric.WithDescription("Deferred deliveries abandoned, by reason"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create dropsTotal counter: %w", err)
	}

	m.underflowsTotal, err = m.meter.Int64Counter(
		"fluxgate.counter.underflows.total",
		metric.WithDescription("Retry deliveries observed with no matching inbound"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create underflowsTotal counter: %w", err)
	}

	m.retryPending, err = m.meter.Int64UpDownCounter(
		"fluxgate.retry.pending",
		metric.WithDescription("Retry messages currently pending delivery"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create retryPending gauge: %w", err)
	}

	m.tasksOutstanding, err = m.meter.Int64UpDownCounter(
		"fluxgate.tasks.outstanding",
		metric.WithDescription("Redelivery tasks currently scheduled"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create tasksOutstanding gauge: %w", err)
	}

	m.deferralDuration, err = m.meter.Float64Histogram(
		"fluxgate.deferral.duration.ms",
		metric.WithDescription("Time between first deferral and release in milliseconds"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create deferralDuration histogram: %w", err)
	}

	return m, nil
}

// RecordInbound records an inbound message of the given class.
func (m *Metrics) RecordInbound(class string) {
	m.inboundTotal.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("class", class),
	))
}

// RecordOutbound records an evaluated delivery attempt.
func (m *Metrics) RecordOutbound(class, decision string) {
	m.outboundTotal.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("class", class),
		attribute.String("decision", decision),
	))
}

// RecordDeferral records a delivery being withheld.
func (m *Metrics) RecordDeferral() {
	m.deferralsTotal.Add(context.Background(), 1)
}

// RecordRequeue records a deferred delivery going back on the timer.
func (m *Metrics) RecordRequeue(reason string) {
	m.requeuesTotal.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("reason", reason),
	))
}

// RecordRelease records a successful republish and how long the
// message spent deferred.
func (m *Metrics) RecordRelease(deferredMs float64) {
	ctx := context.Background()
	m.releasesTotal.Add(ctx, 1)
	m.deferralDuration.Record(ctx, deferredMs)
}

// RecordDrop records an abandoned message by reason.
func (m *Metrics) RecordDrop(reason string) {
	m.dropsTotal.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("reason", reason),
	))
}

// RecordUnderflow records a clamped counter decrement.
func (m *Metrics) RecordUnderflow() {
	m.underflowsTotal.Add(context.Background(), 1)
}

// AddRetryPending moves the pending-retries gauge.
func (m *Metrics) AddRetryPending(n int64) {
	m.retryPending.Add(context.Background(), n)
}

// AddTasksOutstanding moves the outstanding-tasks gauge.
func (m *Metrics) AddTasksOutstanding(n int64) {
	m.tasksOutstanding.Add(context.Background(), n)
}
