// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package wsclient

import (
	"sort"
	"sync"
	"time"
)

const (
	defaultMaxAttempts      = 30
	defaultFailingThreshold = 5
	defaultFastRetryLimit   = 10
	defaultFastDelay        = time.Second
	defaultSlowDelay        = 30 * time.Second
)

// ReconnectPolicy decides how a closed connection is retried.
type ReconnectPolicy struct {
	// MaxAttempts is the attempt number after which retrying stops.
	MaxAttempts int
	// FailingThreshold is the attempt number at which the endpoint is
	// reported as failing.
	FailingThreshold int
	// FastRetryLimit is the last attempt that waits FastDelay.
	FastRetryLimit int
	FastDelay      time.Duration
	SlowDelay      time.Duration
}

// DefaultReconnectPolicy retries the first attempt immediately, then every
// second up to the tenth attempt, then every 30 seconds up to 30 attempts.
func DefaultReconnectPolicy() ReconnectPolicy {
	return ReconnectPolicy{
		MaxAttempts:      defaultMaxAttempts,
		FailingThreshold: defaultFailingThreshold,
		FastRetryLimit:   defaultFastRetryLimit,
		FastDelay:        defaultFastDelay,
		SlowDelay:        defaultSlowDelay,
	}
}

// Delay returns how long to wait before the given attempt.
func (p ReconnectPolicy) Delay(attempt int) time.Duration {
	switch {
	case attempt <= 1:
		return 0
	case attempt <= p.FastRetryLimit:
		return p.FastDelay
	default:
		return p.SlowDelay
	}
}

// withDefaults fills unset fields from DefaultReconnectPolicy.
func (p ReconnectPolicy) withDefaults() ReconnectPolicy {
	d := DefaultReconnectPolicy()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = d.MaxAttempts
	}
	if p.FailingThreshold <= 0 {
		p.FailingThreshold = d.FailingThreshold
	}
	if p.FastRetryLimit <= 0 {
		p.FastRetryLimit = d.FastRetryLimit
	}
	if p.FastDelay < 0 {
		p.FastDelay = d.FastDelay
	}
	if p.SlowDelay < 0 {
		p.SlowDelay = d.SlowDelay
	}
	return p
}

// Timer is a scheduled call that can be cancelled.
type Timer interface {
	Stop() bool
}

// Scheduler runs fn after d. time.AfterFunc satisfies it once adapted by
// SchedulerFunc.
type Scheduler interface {
	AfterFunc(d time.Duration, fn func()) Timer
}

// SchedulerFunc adapts a function to a Scheduler.
type SchedulerFunc func(d time.Duration, fn func()) Timer

func (f SchedulerFunc) AfterFunc(d time.Duration, fn func()) Timer { return f(d, fn) }

// realScheduler uses the runtime timers.
var realScheduler = SchedulerFunc(func(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, fn)
})

// endpointSet is the set of entry points currently considered failing.
type endpointSet struct {
	mu   sync.Mutex
	urls map[string]struct{}
}

func (s *endpointSet) add(url string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.urls == nil {
		s.urls = make(map[string]struct{})
	}
	s.urls[url] = struct{}{}
}

func (s *endpointSet) remove(url string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.urls, url)
}

// snapshot returns the members in sorted order.
func (s *endpointSet) snapshot() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.urls))
	for u := range s.urls {
		out = append(out, u)
	}
	sort.Strings(out)
	return out
}
