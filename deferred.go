// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package wsclient

import (
	"context"
	"encoding/json"
	"sync"
)

// Deferred is a result that is settled exactly once, either with a value or
// with an error. It bridges transport callbacks to callers that block on the
// outcome of a request.
type Deferred struct {
	once  sync.Once
	done  chan struct{}
	value json.RawMessage
	err   error
}

// NewDeferred returns an unsettled Deferred.
func NewDeferred() *Deferred {
	return &Deferred{done: make(chan struct{})}
}

// Resolve settles d with value. It reports whether this call settled d.
func (d *Deferred) Resolve(value json.RawMessage) bool {
	return d.settle(value, nil)
}

// Reject settles d with err. It reports whether this call settled d.
func (d *Deferred) Reject(err error) bool {
	return d.settle(nil, err)
}

func (d *Deferred) settle(value json.RawMessage, err error) bool {
	settled := false
	d.once.Do(func() {
		d.value = value
		d.err = err
		settled = true
		close(d.done)
	})
	return settled
}

// Done is closed once d is settled.
func (d *Deferred) Done() <-chan struct{} {
	return d.done
}

// Settled reports whether d has been resolved or rejected.
func (d *Deferred) Settled() bool {
	select {
	case <-d.done:
		return true
	default:
		return false
	}
}

// Wait blocks until d is settled or ctx is done.
func (d *Deferred) Wait(ctx context.Context) (json.RawMessage, error) {
	select {
	case <-d.done:
		return d.value, d.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
