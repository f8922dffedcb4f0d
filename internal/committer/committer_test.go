package committer

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"vaultwatch/internal/model"
	"vaultwatch/internal/vault"
)

type fakeSubmitter struct {
	mu         sync.Mutex
	inFlight   int
	maxSeen    int
	calls      int
	failBefore int // fail this many attempts before succeeding
	delay      time.Duration
	order      []string
}

func (f *fakeSubmitter) Submit(ctx context.Context, vaultAddr, manager common.Address, reason string, metadata []byte) (vault.Confirmation, error) {
	f.mu.Lock()
	f.inFlight++
	if f.inFlight > f.maxSeen {
		f.maxSeen = f.inFlight
	}
	f.calls++
	call := f.calls
	f.order = append(f.order, reason)
	f.mu.Unlock()

	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	f.mu.Lock()
	f.inFlight--
	f.mu.Unlock()

	if call <= f.failBefore {
		return vault.Confirmation{}, fmt.Errorf("submit rejected")
	}
	return vault.Confirmation{
		ID:          uint64(call),
		TxHash:      fmt.Sprintf("0xtx%d", call),
		BlockNumber: 100 + uint64(call),
	}, nil
}

func collectAlerts() (func(model.Alert), func() []model.Alert) {
	var mu sync.Mutex
	var alerts []model.Alert
	publish := func(a model.Alert) {
		mu.Lock()
		alerts = append(alerts, a)
		mu.Unlock()
	}
	snapshot := func() []model.Alert {
		mu.Lock()
		defer mu.Unlock()
		out := make([]model.Alert, len(alerts))
		copy(out, alerts)
		return out
	}
	return publish, snapshot
}

func request(reason string) Request {
	return Request{
		Vault:      common.HexToAddress("0x1000000000000000000000000000000000000001"),
		Manager:    common.HexToAddress("0x2000000000000000000000000000000000000002"),
		Reason:     reason,
		DetectedAt: time.Unix(1_700_000_000, 0).UTC(),
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		if cond() {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("condition not reached")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestCommitsAreNeverConcurrent(t *testing.T) {
	sub := &fakeSubmitter{delay: 30 * time.Millisecond}
	publish, snapshot := collectAlerts()
	c := New(sub, publish, 16, 0, time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)

	for i := 0; i < 5; i++ {
		if err := c.Enqueue(ctx, request(fmt.Sprintf("violation %d", i))); err != nil {
			t.Fatalf("enqueue %d: %v", i, err)
		}
	}

	waitFor(t, func() bool { return len(snapshot()) == 5 })

	sub.mu.Lock()
	defer sub.mu.Unlock()
	if sub.maxSeen != 1 {
		t.Fatalf("expected at most one commit in flight, saw %d", sub.maxSeen)
	}
}

func TestCommitsPreserveSubmissionOrder(t *testing.T) {
	sub := &fakeSubmitter{}
	publish, snapshot := collectAlerts()
	c := New(sub, publish, 16, 0, time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)

	for i := 0; i < 3; i++ {
		if err := c.Enqueue(ctx, request(fmt.Sprintf("violation %d", i))); err != nil {
			t.Fatalf("enqueue %d: %v", i, err)
		}
	}

	waitFor(t, func() bool { return len(snapshot()) == 3 })

	alerts := snapshot()
	for i, alert := range alerts {
		want := fmt.Sprintf("violation %d", i)
		if alert.Reason != want {
			t.Fatalf("order broken at %d: %q != %q", i, alert.Reason, want)
		}
	}
}

func TestRetryThenConfirm(t *testing.T) {
	sub := &fakeSubmitter{failBefore: 2}
	publish, snapshot := collectAlerts()
	c := New(sub, publish, 16, 3, time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)

	if err := c.Enqueue(ctx, request("flaky")); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	waitFor(t, func() bool { return len(snapshot()) == 1 })

	alert := snapshot()[0]
	if alert.Category != model.CategoryViolation {
		t.Fatalf("category mismatch: %s", alert.Category)
	}
	if alert.TxRef == "" || alert.BlockRef == 0 {
		t.Fatalf("confirmed alert missing commit reference: %+v", alert)
	}
	if alert.Timestamp != request("flaky").DetectedAt.UnixMilli() {
		t.Fatalf("timestamp mismatch: %d", alert.Timestamp)
	}
}

func TestExhaustedRetriesPublishNothing(t *testing.T) {
	sub := &fakeSubmitter{failBefore: 100}
	publish, snapshot := collectAlerts()
	c := New(sub, publish, 16, 2, time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)

	if err := c.Enqueue(ctx, request("doomed")); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	// 1 initial + 2 retries.
	waitFor(t, func() bool {
		sub.mu.Lock()
		defer sub.mu.Unlock()
		return sub.calls == 3
	})
	time.Sleep(20 * time.Millisecond)

	if len(snapshot()) != 0 {
		t.Fatalf("failed commit must not be published")
	}

	// The worker recovers and serves the next request.
	sub.mu.Lock()
	sub.failBefore = 0
	sub.calls = 0
	sub.mu.Unlock()
	if err := c.Enqueue(ctx, request("next")); err != nil {
		t.Fatalf("enqueue after failure: %v", err)
	}
	waitFor(t, func() bool { return len(snapshot()) == 1 })
}

func TestEnqueueFailsFastWhenFull(t *testing.T) {
	c := New(&fakeSubmitter{}, nil, 1, 0, time.Millisecond, nil)

	ctx := context.Background()
	if err := c.Enqueue(ctx, request("first")); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	// No worker running, so the second request finds a full queue.
	if err := c.Enqueue(ctx, request("second")); err != ErrQueueFull {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
}
