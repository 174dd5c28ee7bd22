// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package wsclient

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestReconnectPolicyDelay(t *testing.T) {
	p := DefaultReconnectPolicy()
	assert.Equal(t, 30, p.MaxAttempts)
	assert.Equal(t, 5, p.FailingThreshold)

	assert.Equal(t, time.Duration(0), p.Delay(1))
	for attempt := 2; attempt <= 10; attempt++ {
		assert.Equal(t, time.Second, p.Delay(attempt), "attempt %d", attempt)
	}
	for attempt := 11; attempt <= 30; attempt++ {
		assert.Equal(t, 30*time.Second, p.Delay(attempt), "attempt %d", attempt)
	}
}

func TestReconnectPolicyWithDefaults(t *testing.T) {
	p := ReconnectPolicy{MaxAttempts: 3, FastDelay: -1}.withDefaults()
	assert.Equal(t, 3, p.MaxAttempts)
	assert.Equal(t, 5, p.FailingThreshold)
	assert.Equal(t, 10, p.FastRetryLimit)
	assert.Equal(t, time.Second, p.FastDelay)
	assert.Equal(t, time.Duration(0), p.SlowDelay)
}

func TestEndpointSetSnapshot(t *testing.T) {
	var s endpointSet
	assert.Empty(t, s.snapshot())

	s.add("https://b")
	s.add("https://a")
	s.add("https://b")
	assert.Equal(t, []string{"https://a", "https://b"}, s.snapshot())

	s.remove("https://b")
	s.remove("https://never")
	assert.Equal(t, []string{"https://a"}, s.snapshot())
}
