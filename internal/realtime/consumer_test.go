package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/IBM/sarama"

	"github.com/avelezdev/geolayers/internal/config"
	"github.com/avelezdev/geolayers/internal/model"
)

type fakeInvalidator struct {
	mu   sync.Mutex
	cats []model.Category
}

func (f *fakeInvalidator) InvalidateCategory(cat model.Category) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cats = append(f.cats, cat)
}

func (f *fakeInvalidator) seen() []model.Category {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.Category(nil), f.cats...)
}

func validEvent() ChangeEvent {
	return ChangeEvent{
		Version:  1,
		Op:       "update",
		Category: model.CategoryPeople,
		TS:       time.Now(),
	}
}

func TestChangeEvent_Validate(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*ChangeEvent)
		wantErr bool
	}{
		{"valid", func(*ChangeEvent) {}, false},
		{"bad version", func(e *ChangeEvent) { e.Version = 2 }, true},
		{"bad op", func(e *ChangeEvent) { e.Op = "upsert" }, true},
		{"bad category", func(e *ChangeEvent) { e.Category = "vehicles" }, true},
		{"missing ts", func(e *ChangeEvent) { e.TS = time.Time{} }, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ev := validEvent()
			tc.mutate(&ev)
			err := ev.Validate()
			if tc.wantErr && err == nil {
				t.Fatalf("expected error")
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestVersionDedupe(t *testing.T) {
	d := newVersionDedupe(16)

	if !d.shouldApply("people/1", 5) {
		t.Fatalf("first seq should apply")
	}
	if d.shouldApply("people/1", 5) {
		t.Fatalf("replayed seq should be skipped")
	}
	if d.shouldApply("people/1", 3) {
		t.Fatalf("older seq should be skipped")
	}
	if !d.shouldApply("people/1", 6) {
		t.Fatalf("newer seq should apply")
	}
	if !d.shouldApply("people/2", 1) {
		t.Fatalf("different key tracks independently")
	}
	// unnumbered events always pass
	if !d.shouldApply("people/1", 0) || !d.shouldApply("people/1", 0) {
		t.Fatalf("seq 0 must always apply")
	}
}

func msgFor(t *testing.T, ev ChangeEvent) *sarama.ConsumerMessage {
	t.Helper()
	b, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return &sarama.ConsumerMessage{Value: b, Timestamp: time.Now()}
}

func TestHandleMessage_InvalidatesCategory(t *testing.T) {
	inv := &fakeInvalidator{}
	r := NewRunner(config.RealtimeCfg{Enabled: true}, nil, inv)

	if err := r.handleMessage(context.Background(), msgFor(t, validEvent())); err != nil {
		t.Fatalf("handleMessage: %v", err)
	}
	got := inv.seen()
	if len(got) != 1 || got[0] != model.CategoryPeople {
		t.Fatalf("invalidated=%v want [people]", got)
	}
}

func TestHandleMessage_ReplayedSeqSkipped(t *testing.T) {
	inv := &fakeInvalidator{}
	r := NewRunner(config.RealtimeCfg{Enabled: true}, nil, inv)

	ev := validEvent()
	ev.FeatureID = float64(42)
	ev.Seq = 7

	if err := r.handleMessage(context.Background(), msgFor(t, ev)); err != nil {
		t.Fatalf("first: %v", err)
	}
	if err := r.handleMessage(context.Background(), msgFor(t, ev)); err != nil {
		t.Fatalf("replay: %v", err)
	}
	if got := inv.seen(); len(got) != 1 {
		t.Fatalf("replayed event must not re-invalidate, got %v", got)
	}
}

func TestHandleMessage_RejectsGarbage(t *testing.T) {
	inv := &fakeInvalidator{}
	r := NewRunner(config.RealtimeCfg{Enabled: true}, nil, inv)

	err := r.handleMessage(context.Background(), &sarama.ConsumerMessage{Value: []byte("{not json")})
	if err == nil {
		t.Fatalf("expected decode error")
	}

	bad := validEvent()
	bad.Op = "truncate"
	if err := r.handleMessage(context.Background(), msgFor(t, bad)); err == nil {
		t.Fatalf("expected validation error")
	}
	if got := inv.seen(); len(got) != 0 {
		t.Fatalf("bad events must not invalidate, got %v", got)
	}
}

func TestReadiness_DisabledIsReady(t *testing.T) {
	r := NewRunner(config.RealtimeCfg{Enabled: false}, nil, nil)
	ready, parts := r.Readiness()
	if !ready || parts != nil {
		t.Fatalf("disabled runner should report ready with no partitions")
	}
}

func TestStart_DisabledIsNoop(t *testing.T) {
	r := NewRunner(config.RealtimeCfg{Enabled: false}, nil, nil)
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	r.Stop()
}
