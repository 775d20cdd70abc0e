// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package gate

import (
	"sync/atomic"
	"time"
)

// Stats tracks gate activity using atomic counters.
type Stats struct {
	startTime time.Time

	inboundNormal atomic.Uint64
	inboundRetry  atomic.Uint64

	deferrals atomic.Uint64
	requeues  atomic.Uint64
	releases  atomic.Uint64
	drops     atomic.Uint64

	underflows atomic.Uint64

	cancelledTasks   atomic.Uint64
	discardedRetries atomic.Uint64
}

func NewStats() *Stats {
	return &Stats{startTime: time.Now()}
}

func (s *Stats) IncrementInboundNormal() { s.inboundNormal.Add(1) }
func (s *Stats) IncrementInboundRetry()  { s.inboundRetry.Add(1) }
func (s *Stats) IncrementDeferrals()     { s.deferrals.Add(1) }
func (s *Stats) IncrementRequeues()      { s.requeues.Add(1) }
func (s *Stats) IncrementReleases()      { s.releases.Add(1) }
func (s *Stats) IncrementDrops()         { s.drops.Add(1) }
func (s *Stats) IncrementUnderflows()    { s.underflows.Add(1) }

func (s *Stats) AddCancelledTasks(n uint64)   { s.cancelledTasks.Add(n) }
func (s *Stats) AddDiscardedRetries(n uint64) { s.discardedRetries.Add(n) }

func (s *Stats) GetInboundNormal() uint64    { return s.inboundNormal.Load() }
func (s *Stats) GetInboundRetry() uint64     { return s.inboundRetry.Load() }
func (s *Stats) GetDeferrals() uint64        { return s.deferrals.Load() }
func (s *Stats) GetRequeues() uint64         { return s.requeues.Load() }
func (s *Stats) GetReleases() uint64         { return s.releases.Load() }
func (s *Stats) GetDrops() uint64            { return s.drops.Load() }
func (s *Stats) GetUnderflows() uint64       { return s.underflows.Load() }
func (s *Stats) GetCancelledTasks() uint64   { return s.cancelledTasks.Load() }
func (s *Stats) GetDiscardedRetries() uint64 { return s.discardedRetries.Load() }
func (s *Stats) GetUptime() time.Duration    { return time.Since(s.startTime) }
