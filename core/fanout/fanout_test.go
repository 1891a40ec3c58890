package fanout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/wanderloop/wanderloop/core/cancel"
)

func makeItems(payloads ...string) []Item[string] {
	items := make([]Item[string], len(payloads))
	for i, payload := range payloads {
		items[i] = Item[string]{Index: i, Kind: KindStop, Payload: payload}
	}
	return items
}

func TestRun_PreservesInputOrderDespiteCompletionOrder(t *testing.T) {
	items := makeItems("slow", "medium", "fast")

	outcomes, err := Run(context.Background(), items, 0, func(ctx context.Context, item Item[string]) (string, error) {
		// Later items finish first.
		time.Sleep(time.Duration(30-10*item.Index) * time.Millisecond)
		return strings.ToUpper(item.Payload), nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(outcomes) != len(items) {
		t.Fatalf("expected %d outcomes, got %d", len(items), len(outcomes))
	}

	values := make([]string, len(outcomes))
	for i, outcome := range outcomes {
		if outcome.Status != StatusOK {
			t.Errorf("outcome %d: unexpected status %q", i, outcome.Status)
		}
		if outcome.Index != i {
			t.Errorf("outcome %d carries index %d", i, outcome.Index)
		}
		values[i] = outcome.Value
	}

	if diff := cmp.Diff([]string{"SLOW", "MEDIUM", "FAST"}, values); diff != "" {
		t.Errorf("values out of order (-want +got):\n%s", diff)
	}
}

func TestRun_SingleFailureKeepsSiblingResults(t *testing.T) {
	items := makeItems("a", "b", "c", "d")
	boom := errors.New("synthesis refused")

	outcomes, err := Run(context.Background(), items, 0, func(ctx context.Context, item Item[string]) (string, error) {
		if item.Index == 2 {
			return "", boom
		}
		return item.Payload + "!", nil
	})
	if err != nil {
		t.Fatalf("item failure must not become a batch error, got %v", err)
	}

	if len(outcomes) != 4 {
		t.Fatalf("expected 4 outcomes, got %d", len(outcomes))
	}

	for i, outcome := range outcomes {
		if i == 2 {
			if outcome.Status != StatusFailed {
				t.Errorf("expected failed status for item 2, got %q", outcome.Status)
			}
			if !errors.Is(outcome.Err, boom) {
				t.Errorf("expected the task error, got %v", outcome.Err)
			}
			continue
		}
		if outcome.Status != StatusOK {
			t.Errorf("outcome %d: expected ok, got %q (%v)", i, outcome.Status, outcome.Err)
		}
	}

	ok, failed, cancelled := Tally(outcomes)
	if ok != 3 || failed != 1 || cancelled != 0 {
		t.Errorf("tally = (%d, %d, %d), want (3, 1, 0)", ok, failed, cancelled)
	}
}

func TestRun_RespectsConcurrencyLimit(t *testing.T) {
	const limit = 2
	var running, peak atomic.Int32

	items := makeItems("a", "b", "c", "d", "e", "f")

	_, err := Run(context.Background(), items, limit, func(ctx context.Context, item Item[string]) (string, error) {
		current := running.Add(1)
		for {
			observed := peak.Load()
			if current <= observed || peak.CompareAndSwap(observed, current) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		running.Add(-1)
		return item.Payload, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if peak.Load() > limit {
		t.Errorf("observed %d concurrent tasks, limit was %d", peak.Load(), limit)
	}
}

func TestRun_PreCancelledContextMarksEverythingCancelled(t *testing.T) {
	ctx, cancelRun := context.WithCancel(context.Background())
	cancelRun()

	outcomes, err := Run(ctx, makeItems("a", "b"), 0, func(ctx context.Context, item Item[string]) (string, error) {
		t.Error("task must not run under a cancelled context")
		return "", nil
	})

	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected batch-level cancellation error, got %v", err)
	}
	for i, outcome := range outcomes {
		if outcome.Status != StatusCancelled {
			t.Errorf("outcome %d: expected cancelled, got %q", i, outcome.Status)
		}
	}
}

func TestRun_TaskReturningCancellationIsMarkedCancelled(t *testing.T) {
	outcomes, err := Run(context.Background(), makeItems("a"), 0, func(ctx context.Context, item Item[string]) (string, error) {
		return "", fmt.Errorf("model call: %w", cancel.ErrCancelled)
	})
	if err != nil {
		t.Fatalf("unexpected batch error: %v", err)
	}

	if outcomes[0].Status != StatusCancelled {
		t.Errorf("expected cancelled, got %q", outcomes[0].Status)
	}
}

func TestRun_PanicBecomesFailedOutcome(t *testing.T) {
	outcomes, err := Run(context.Background(), makeItems("a", "b"), 0, func(ctx context.Context, item Item[string]) (string, error) {
		if item.Index == 0 {
			panic("bad payload")
		}
		return item.Payload, nil
	})
	if err != nil {
		t.Fatalf("unexpected batch error: %v", err)
	}

	if outcomes[0].Status != StatusFailed {
		t.Fatalf("expected failed, got %q", outcomes[0].Status)
	}
	if outcomes[0].Err == nil || !strings.Contains(outcomes[0].Err.Error(), "panic") {
		t.Errorf("expected a panic-derived error, got %v", outcomes[0].Err)
	}
	if outcomes[1].Status != StatusOK {
		t.Errorf("sibling item should survive the panic, got %q", outcomes[1].Status)
	}
}

func TestRun_EmptyInput(t *testing.T) {
	outcomes, err := Run(context.Background(), nil, 4, func(ctx context.Context, item Item[string]) (string, error) {
		return "", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(outcomes) != 0 {
		t.Errorf("expected no outcomes, got %d", len(outcomes))
	}
}
