// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package wsclient

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"
)

// fakeTransport is an in-memory Transport. Requests whose method has an
// entry in results are answered synchronously from Send.
type fakeTransport struct {
	Listeners

	mu         sync.Mutex
	connects   []string
	sent       []json.RawMessage
	connected  bool
	connectErr error
	sendErr    error
	results    map[string]string
	// gate, when set, holds every Connect until it is closed.
	gate chan struct{}
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{results: make(map[string]string)}
}

func (f *fakeTransport) Connect(_ context.Context, entryPoint string) error {
	f.mu.Lock()
	f.connects = append(f.connects, entryPoint)
	gate := f.gate
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	err := f.connectErr
	if err == nil {
		f.connected = true
	}
	f.mu.Unlock()

	if err != nil {
		f.Emit(EventInfo{Event: EventError, Err: err})
		f.Emit(EventInfo{Event: EventClose, Err: err})
		return err
	}
	f.Emit(EventInfo{Event: EventOpen})
	return nil
}

func (f *fakeTransport) Disconnect() error {
	f.drop()
	return nil
}

func (f *fakeTransport) Send(_ context.Context, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	f.mu.Lock()
	if f.sendErr != nil {
		err := f.sendErr
		f.mu.Unlock()
		return err
	}
	f.sent = append(f.sent, data)
	var reply string
	if req, ok := v.(Request); ok {
		if result, ok := f.results[req.Method]; ok {
			reply = `{"jsonrpc":"2.0","id":"` + req.ID + `","result":` + result + `}`
		}
	}
	f.mu.Unlock()

	if reply != "" {
		f.deliver(reply)
	}
	return nil
}

// deliver hands an inbound frame to the listeners.
func (f *fakeTransport) deliver(frame string) {
	f.Emit(EventInfo{Event: EventResponse, Frame: json.RawMessage(frame)})
}

// drop ends the current connection as if the server went away.
func (f *fakeTransport) drop() {
	f.mu.Lock()
	was := f.connected
	f.connected = false
	f.mu.Unlock()
	if was {
		f.Emit(EventInfo{Event: EventClose})
	}
}

func (f *fakeTransport) setConnectErr(err error) {
	f.mu.Lock()
	f.connectErr = err
	f.mu.Unlock()
}

// blockConnects makes later Connect calls wait until the returned channel
// is closed.
func (f *fakeTransport) blockConnects() chan struct{} {
	gate := make(chan struct{})
	f.mu.Lock()
	f.gate = gate
	f.mu.Unlock()
	return gate
}

func (f *fakeTransport) isConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeTransport) setResult(method, result string) {
	f.mu.Lock()
	f.results[method] = result
	f.mu.Unlock()
}

func (f *fakeTransport) connectURLs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.connects...)
}

func (f *fakeTransport) sentFrames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.sent))
	for i, s := range f.sent {
		out[i] = string(s)
	}
	return out
}

var errDialFailed = errors.New("dial failed")

// manualScheduler records scheduled calls and runs them on demand.
type manualScheduler struct {
	mu     sync.Mutex
	timers []*manualTimer
}

type manualTimer struct {
	s       *manualScheduler
	delay   time.Duration
	fn      func()
	stopped bool
	fired   bool
}

func (s *manualScheduler) AfterFunc(d time.Duration, fn func()) Timer {
	t := &manualTimer{s: s, delay: d, fn: fn}
	s.mu.Lock()
	s.timers = append(s.timers, t)
	s.mu.Unlock()
	return t
}

func (t *manualTimer) Stop() bool {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

// fire runs the oldest pending call and returns its delay.
func (s *manualScheduler) fire() (time.Duration, bool) {
	s.mu.Lock()
	var next *manualTimer
	for _, t := range s.timers {
		if !t.stopped && !t.fired {
			next = t
			break
		}
	}
	if next == nil {
		s.mu.Unlock()
		return 0, false
	}
	next.fired = true
	s.mu.Unlock()

	next.fn()
	return next.delay, true
}

// pending returns the number of calls that have neither fired nor been
// stopped.
func (s *manualScheduler) pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}
