package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/IBM/sarama"

	"github.com/avelezdev/geolayers/internal/config"
	"github.com/avelezdev/geolayers/internal/model"
	"github.com/avelezdev/geolayers/internal/observability"
)

// CategoryInvalidator is what a consumed change event ultimately drives: drop
// cached payloads for the category and schedule a reload.
type CategoryInvalidator interface {
	InvalidateCategory(cat model.Category)
}

// Runner owns the Kafka consumer group for the change-notification topic.
type Runner struct {
	log      *slog.Logger
	cfg      config.RealtimeCfg
	inv      CategoryInvalidator
	ver      *versionDedupe
	assigned atomic.Bool
	assignMu sync.RWMutex
	assign   map[int32]struct{}
	wg       sync.WaitGroup
	cancel   context.CancelFunc
}

func NewRunner(cfg config.RealtimeCfg, logger *slog.Logger, inv CategoryInvalidator) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		log:    logger,
		cfg:    cfg,
		inv:    inv,
		ver:    newVersionDedupe(cfg.DedupeSize),
		assign: map[int32]struct{}{},
	}
}

// Start spins up the consume loop in the background. A disabled config is not
// an error; the service simply runs without realtime reloads.
func (r *Runner) Start(ctx context.Context) error {
	if !r.cfg.Enabled {
		r.log.Info("realtime consumer disabled")
		return nil
	}
	if r.inv == nil {
		return errors.New("realtime: invalidator dependency is required")
	}

	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_5_0_0
	cfg.Consumer.Group.Session.Timeout = r.cfg.SessionTimeout
	cfg.Consumer.Group.Heartbeat.Interval = r.cfg.Heartbeat
	cfg.Consumer.Group.Rebalance.Timeout = r.cfg.RebalanceTimeout
	if r.cfg.InitialOldest {
		cfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	} else {
		cfg.Consumer.Offsets.Initial = sarama.OffsetNewest
	}
	cfg.Consumer.Return.Errors = true

	group, err := sarama.NewConsumerGroup(splitBrokers(r.cfg.Brokers), r.cfg.GroupID, cfg)
	if err != nil {
		cancel()
		return fmt.Errorf("consumer group: %w", err)
	}

	h := &groupHandler{
		setup: func(sess sarama.ConsumerGroupSession) {
			claims := sess.Claims()
			r.assignMu.Lock()
			r.assigned.Store(true)
			r.assign = map[int32]struct{}{}
			for _, parts := range claims {
				for _, p := range parts {
					r.assign[p] = struct{}{}
				}
			}
			r.assignMu.Unlock()
		},
		cleanup: func(sarama.ConsumerGroupSession) {
			r.assignMu.Lock()
			r.assigned.Store(false)
			r.assign = map[int32]struct{}{}
			r.assignMu.Unlock()
		},
		process: r.handleMessage,
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer func() {
			if err := group.Close(); err != nil {
				r.log.Error("kafka consumer group close", "err", err)
			}
		}()

		for {
			if err := group.Consume(ctx, []string{r.cfg.Topic}, h); err != nil {
				r.log.Error("kafka consume error", "err", err)
				select {
				case <-time.After(2 * time.Second):
				case <-ctx.Done():
					return
				}
			}
			if ctx.Err() != nil {
				return
			}
		}
	}()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		for err := range group.Errors() {
			r.log.Error("kafka group error", "err", err)
		}
	}()

	r.log.Info("realtime consumer started",
		"topic", r.cfg.Topic, "group", r.cfg.GroupID, "brokers", r.cfg.Brokers)
	return nil
}

func (r *Runner) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
	r.log.Info("realtime consumer stopped")
}

// Readiness reports whether the group currently holds partition assignments.
func (r *Runner) Readiness() (ready bool, partitions []int32) {
	if !r.cfg.Enabled {
		return true, nil
	}
	if !r.assigned.Load() {
		return false, nil
	}
	r.assignMu.RLock()
	defer r.assignMu.RUnlock()
	for p := range r.assign {
		partitions = append(partitions, p)
	}
	return true, partitions
}

func (r *Runner) handleMessage(_ context.Context, msg *sarama.ConsumerMessage) error {
	if !msg.Timestamp.IsZero() {
		observability.SetRealtimeLagSeconds(time.Since(msg.Timestamp).Seconds())
	}

	var ev ChangeEvent
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		observability.IncRealtimeEvent("", err)
		return fmt.Errorf("decode: %w", err)
	}
	if err := ev.Validate(); err != nil {
		observability.IncRealtimeEvent(ev.Op, err)
		return fmt.Errorf("validate: %w", err)
	}

	if !r.ver.shouldApply(ev.dedupeKey(), ev.Seq) {
		r.log.Debug("skipping replayed event",
			"category", ev.Category, "op", ev.Op, "seq", ev.Seq)
		observability.IncRealtimeEvent(ev.Op, nil)
		return nil
	}

	r.inv.InvalidateCategory(ev.Category)
	observability.IncRealtimeEvent(ev.Op, nil)
	r.log.Debug("change event applied",
		"category", ev.Category, "op", ev.Op, "seq", ev.Seq)
	return nil
}

func splitBrokers(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

type groupHandler struct {
	setup   func(sarama.ConsumerGroupSession)
	cleanup func(sarama.ConsumerGroupSession)
	process func(context.Context, *sarama.ConsumerMessage) error
}

func (h *groupHandler) Setup(sess sarama.ConsumerGroupSession) error {
	if h.setup != nil {
		h.setup(sess)
	}
	return nil
}

func (h *groupHandler) Cleanup(sess sarama.ConsumerGroupSession) error {
	if h.cleanup != nil {
		h.cleanup(sess)
	}
	return nil
}

func (h *groupHandler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	ctx := sess.Context()
	for msg := range claim.Messages() {
		if err := h.process(ctx, msg); err != nil {
			return err
		}
		sess.MarkMessage(msg, "")
	}
	return nil
}
