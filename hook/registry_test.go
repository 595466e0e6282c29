package hook

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/caravanhq/caravan/id"
	"github.com/caravanhq/caravan/types"
)

type recordingHook struct {
	name    string
	events  []string
	failOn  string
	lastErr error
}

func (h *recordingHook) Name() string { return h.name }

func (h *recordingHook) OnPartyRegistered(_ context.Context, kind string, _ id.Address) error {
	h.events = append(h.events, "registered:"+kind)
	if h.failOn == "registered" {
		return errors.New("boom")
	}
	return nil
}

func (h *recordingHook) OnSale(_ context.Context, sale Sale) error {
	h.events = append(h.events, "sale")
	return nil
}

type shutdownOnlyHook struct{ shutdowns int }

func (h *shutdownOnlyHook) Name() string { return "shutdown-only" }
func (h *shutdownOnlyHook) OnShutdown(context.Context) error {
	h.shutdowns++
	return nil
}

func TestRegisterRejectsDuplicateNames(t *testing.T) {
	r := NewRegistry().WithLogger(slog.New(slog.DiscardHandler))

	if err := r.Register(&recordingHook{name: "audit"}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := r.Register(&recordingHook{name: "audit"}); err == nil {
		t.Error("expected duplicate registration error")
	}
	if r.Count() != 1 {
		t.Errorf("Count: got %d, want 1", r.Count())
	}
	if r.Get("audit") == nil {
		t.Error("Get returned nil for registered hook")
	}
	if r.Get("missing") != nil {
		t.Error("Get returned hook for unknown name")
	}
}

func TestEmitDispatchesOnlyToImplementers(t *testing.T) {
	r := NewRegistry().WithLogger(slog.New(slog.DiscardHandler))

	rec := &recordingHook{name: "recorder"}
	sd := &shutdownOnlyHook{}
	if err := r.Register(rec); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := r.Register(sd); err != nil {
		t.Fatalf("Register: %v", err)
	}

	ctx := context.Background()
	r.EmitPartyRegistered(ctx, "warehouse", id.NewAddress())
	r.EmitSale(ctx, Sale{Total: types.USD(100)})
	r.EmitShutdown(ctx)

	if len(rec.events) != 2 || rec.events[0] != "registered:warehouse" || rec.events[1] != "sale" {
		t.Errorf("recorder events: got %v", rec.events)
	}
	if sd.shutdowns != 1 {
		t.Errorf("shutdowns: got %d, want 1", sd.shutdowns)
	}
}

func TestEmitContinuesPastFailingHook(t *testing.T) {
	r := NewRegistry().WithLogger(slog.New(slog.DiscardHandler))

	failing := &recordingHook{name: "a-failing", failOn: "registered"}
	healthy := &recordingHook{name: "b-healthy"}
	if err := r.Register(failing); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := r.Register(healthy); err != nil {
		t.Fatalf("Register: %v", err)
	}

	r.EmitPartyRegistered(context.Background(), "manufacturer", id.NewAddress())

	if len(healthy.events) != 1 {
		t.Errorf("healthy hook not reached after failure: %v", healthy.events)
	}
}
