// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package wsclient

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestDeferredFirstSettleWins(t *testing.T) {
	d := NewDeferred()
	if d.Settled() {
		t.Fatal("new deferred is settled")
	}
	if !d.Resolve(json.RawMessage(`1`)) {
		t.Fatal("first Resolve did not settle")
	}
	if d.Reject(errors.New("late")) {
		t.Fatal("Reject after Resolve settled again")
	}
	if d.Resolve(json.RawMessage(`2`)) {
		t.Fatal("second Resolve settled again")
	}

	got, err := d.Wait(context.Background())
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if string(got) != "1" {
		t.Errorf("got %s, want 1", got)
	}
}

func TestDeferredReject(t *testing.T) {
	d := NewDeferred()
	want := errors.New("boom")
	d.Reject(want)

	select {
	case <-d.Done():
	default:
		t.Fatal("Done not closed after Reject")
	}
	if _, err := d.Wait(context.Background()); !errors.Is(err, want) {
		t.Errorf("got %v, want %v", err, want)
	}
}

func TestDeferredWaitContext(t *testing.T) {
	d := NewDeferred()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if _, err := d.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("got %v, want deadline exceeded", err)
	}
	if d.Settled() {
		t.Error("timed out wait settled the deferred")
	}
}

func TestDeferredConcurrentSettle(t *testing.T) {
	d := NewDeferred()
	wins := make(chan bool, 10)
	for i := 0; i < 10; i++ {
		go func(i int) {
			wins <- d.Resolve(json.RawMessage(`1`))
		}(i)
	}
	n := 0
	for i := 0; i < 10; i++ {
		if <-wins {
			n++
		}
	}
	if n != 1 {
		t.Errorf("%d calls settled, want 1", n)
	}
}
