// Package kafka consumes tile invalidation events from a Kafka topic.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/IBM/sarama"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/mohammed-shakir/vtile-cache/internal/core/config"
	"github.com/mohammed-shakir/vtile-cache/internal/core/observability"
	"github.com/mohammed-shakir/vtile-cache/internal/invalidation"
	mylog "github.com/mohammed-shakir/vtile-cache/internal/logger"
)

// Applier removes the cache entries an event covers.
type Applier interface {
	Apply(ctx context.Context, e invalidation.Event) (int, error)
}

type Runner struct {
	log      *slog.Logger
	cfg      config.Invalidation
	applier  Applier
	codecs   *invalidation.Codecs
	ms       *metricSet
	seq      *seqDedupe
	assigned atomic.Bool
	assignMu sync.RWMutex
	assign   map[int32]struct{}
	wg       sync.WaitGroup
	cancel   context.CancelFunc
}

type Options struct {
	Logger   *slog.Logger
	Register prometheus.Registerer
}

func New(cfg config.Invalidation, a Applier, opts Options) (*Runner, error) {
	if a == nil {
		return nil, errors.New("kafka runner: applier is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	cs, err := invalidation.NewCodecs()
	if err != nil {
		return nil, err
	}
	return &Runner{
		log:     opts.Logger,
		cfg:     cfg,
		applier: a,
		codecs:  cs,
		ms:      newMetricSet(opts.Register),
		seq:     newSeqDedupe(cfg.DedupeSize),
		assign:  map[int32]struct{}{},
	}, nil
}

func (r *Runner) saramaConfig() *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_5_0_0
	cfg.ClientID = "vtile-cache"
	cfg.Consumer.Group.Session.Timeout = r.cfg.SessionTimeout
	cfg.Consumer.Group.Heartbeat.Interval = r.cfg.Heartbeat
	cfg.Consumer.Group.Rebalance.Timeout = r.cfg.RebalanceTimeout
	if r.cfg.InitialOldest {
		cfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	} else {
		cfg.Consumer.Offsets.Initial = sarama.OffsetNewest
	}
	cfg.Consumer.Return.Errors = true
	return cfg
}

// Start joins the consumer group and consumes in the background until ctx
// is canceled or Stop is called.
func (r *Runner) Start(ctx context.Context) error {
	group, err := sarama.NewConsumerGroup(r.cfg.Brokers, r.cfg.GroupID, r.saramaConfig())
	if err != nil {
		return fmt.Errorf("consumer group: %w", err)
	}
	r.run(ctx, group)
	return nil
}

func (r *Runner) run(ctx context.Context, group sarama.ConsumerGroup) {
	ctx, cancel := context.WithCancel(mylog.WithComponent(ctx, "invalidation"))
	r.cancel = cancel

	h := &groupHandler{
		setup:   r.setAssignment,
		cleanup: func(sarama.ConsumerGroupSession) { r.clearAssignment() },
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

	r.log.Info("kafka invalidation runner started",
		"topic", r.cfg.Topic, "group", r.cfg.GroupID, "brokers", r.cfg.Brokers)
}

func (r *Runner) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
	r.log.Info("kafka invalidation runner stopped")
}

func (r *Runner) setAssignment(sess sarama.ConsumerGroupSession) {
	r.assignMu.Lock()
	defer r.assignMu.Unlock()
	r.assigned.Store(true)
	r.assign = map[int32]struct{}{}
	for _, parts := range sess.Claims() {
		for _, p := range parts {
			r.assign[p] = struct{}{}
		}
	}
}

func (r *Runner) clearAssignment() {
	r.assignMu.Lock()
	defer r.assignMu.Unlock()
	r.assigned.Store(false)
	r.assign = map[int32]struct{}{}
}

// Readiness reports ready once the group has assigned partitions.
func (r *Runner) Readiness() (ready bool, partitions []int32) {
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

func contentType(msg *sarama.ConsumerMessage) string {
	for _, h := range msg.Headers {
		if h != nil && string(h.Key) == "content-type" {
			return string(h.Value)
		}
	}
	return ""
}

// handleMessage never fails the claim on a bad event: a poison message is
// logged, counted and committed. Only store errors stop the claim so the
// message is redelivered.
func (r *Runner) handleMessage(ctx context.Context, msg *sarama.ConsumerMessage) error {
	start := time.Now()
	if !msg.Timestamp.IsZero() {
		r.ms.lag.Set(time.Since(msg.Timestamp).Seconds())
	}

	ev, err := r.codecs.Decode(contentType(msg), msg.Value)
	if err != nil {
		r.ms.msgs.WithLabelValues("invalid").Inc()
		observability.ObserveInvalidation("invalid", 0, err)
		r.log.WarnContext(ctx, "dropping invalidation message",
			"partition", msg.Partition, "offset", msg.Offset, "err", err)
		return nil
	}
	ctx = mylog.WithTileset(ctx, ev.Tileset)

	if ev.Seq > 0 && !r.seq.newer(ev.Tileset, ev.Seq) {
		r.ms.msgs.WithLabelValues("skip_seq").Inc()
		r.log.DebugContext(ctx, "stale invalidation skipped", "seq", ev.Seq)
		return nil
	}

	n, err := r.applier.Apply(ctx, ev)
	observability.ObserveInvalidation(string(ev.Op), n, err)
	r.ms.proc.WithLabelValues(string(ev.Op)).Observe(time.Since(start).Seconds())
	if err != nil {
		r.ms.msgs.WithLabelValues("error").Inc()
		if errors.Is(err, invalidation.ErrUnsupported) {
			r.log.ErrorContext(ctx, "cache backend cannot invalidate", "op", ev.Op, "err", err)
			return nil
		}
		return fmt.Errorf("apply %s %s: %w", ev.Op, ev.Tileset, err)
	}
	if ev.Seq > 0 {
		r.seq.commit(ev.Tileset, ev.Seq)
	}
	r.ms.msgs.WithLabelValues("ok").Inc()
	r.log.DebugContext(ctx, "invalidation applied", "op", ev.Op, "keys", n)
	return nil
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
