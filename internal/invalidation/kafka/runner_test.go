package kafka

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/mohammed-shakir/vtile-cache/internal/core/config"
	"github.com/mohammed-shakir/vtile-cache/internal/core/observability"
	"github.com/mohammed-shakir/vtile-cache/internal/invalidation"
)

type fakeApplier struct {
	mu     sync.Mutex
	events []invalidation.Event
	err    error
}

func (f *fakeApplier) Apply(_ context.Context, e invalidation.Event) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	f.events = append(f.events, e)
	return 2 * len(e.Tiles), nil
}

func (f *fakeApplier) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events)
}

type fakeSession struct {
	ctx    context.Context
	claims map[string][]int32
	marked []int64
}

func (s *fakeSession) Claims() map[string][]int32                      { return s.claims }
func (s *fakeSession) MemberID() string                                { return "m-1" }
func (s *fakeSession) GenerationID() int32                             { return 1 }
func (s *fakeSession) MarkOffset(string, int32, int64, string)         {}
func (s *fakeSession) Commit()                                         {}
func (s *fakeSession) ResetOffset(string, int32, int64, string)        {}
func (s *fakeSession) MarkMessage(m *sarama.ConsumerMessage, _ string) { s.marked = append(s.marked, m.Offset) }
func (s *fakeSession) Context() context.Context                        { return s.ctx }

type fakeClaim struct{ ch chan *sarama.ConsumerMessage }

func (c fakeClaim) Topic() string                            { return "tile-invalidation" }
func (c fakeClaim) Partition() int32                         { return 0 }
func (c fakeClaim) InitialOffset() int64                     { return 0 }
func (c fakeClaim) HighWaterMarkOffset() int64               { return 0 }
func (c fakeClaim) Messages() <-chan *sarama.ConsumerMessage { return c.ch }

func newRunner(t *testing.T, a Applier) *Runner {
	t.Helper()
	reg := prometheus.NewRegistry()
	observability.Init(reg)
	r, err := New(config.Invalidation{Topic: "tile-invalidation", DedupeSize: 16}, a, Options{
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		Register: reg,
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	return r
}

func message(t *testing.T, offset int64, c invalidation.Codec, e invalidation.Event) *sarama.ConsumerMessage {
	t.Helper()
	b, err := c.Encode(e)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	return &sarama.ConsumerMessage{
		Topic: "tile-invalidation", Offset: offset, Timestamp: time.Now().Add(-time.Second), Value: b,
		Headers: []*sarama.RecordHeader{{Key: []byte("content-type"), Value: []byte(c.ContentType())}},
	}
}

func tilesEvent(seq uint64) invalidation.Event {
	return invalidation.Event{
		Version: 1, Op: invalidation.OpTiles, Tileset: "roads",
		Tiles: []invalidation.TileRef{{Z: 1, X: 1, Y: 0}}, Seq: seq, TS: time.Now().UTC(),
	}
}

func TestNew_RequiresApplier(t *testing.T) {
	if _, err := New(config.Invalidation{}, nil, Options{}); err == nil {
		t.Fatalf("expected error without applier")
	}
}

func TestHandleMessage_AppliesEveryCodec(t *testing.T) {
	fa := &fakeApplier{}
	r := newRunner(t, fa)
	cb, _ := invalidation.NewCBOR()
	for i, c := range []invalidation.Codec{invalidation.JSON{}, invalidation.Msgpack{}, cb} {
		if err := r.handleMessage(context.Background(), message(t, int64(i), c, tilesEvent(0))); err != nil {
			t.Fatalf("%s: %v", c.ContentType(), err)
		}
	}
	if fa.count() != 3 {
		t.Fatalf("applied=%d want 3", fa.count())
	}
}

func TestHandleMessage_SkipsStaleSequence(t *testing.T) {
	fa := &fakeApplier{}
	r := newRunner(t, fa)
	ctx := context.Background()
	for i, seq := range []uint64{5, 5, 3, 6} {
		if err := r.handleMessage(ctx, message(t, int64(i), invalidation.JSON{}, tilesEvent(seq))); err != nil {
			t.Fatalf("seq %d: %v", seq, err)
		}
	}
	if fa.count() != 2 {
		t.Fatalf("applied=%d want 2 (seq 5 and 6)", fa.count())
	}

	other := tilesEvent(1)
	other.Tileset = "water"
	if err := r.handleMessage(ctx, message(t, 9, invalidation.JSON{}, other)); err != nil {
		t.Fatalf("other tileset: %v", err)
	}
	if fa.count() != 3 {
		t.Fatalf("sequence leaked across tilesets")
	}
}

func TestHandleMessage_PoisonMessageIsDropped(t *testing.T) {
	fa := &fakeApplier{}
	r := newRunner(t, fa)
	for _, msg := range []*sarama.ConsumerMessage{
		{Value: []byte(`{not json`)},
		{Value: []byte(`{"version":1,"op":"explode","tileset":"roads"}`)},
		{Value: []byte(`{}`), Headers: []*sarama.RecordHeader{{Key: []byte("content-type"), Value: []byte("text/xml")}}},
	} {
		if err := r.handleMessage(context.Background(), msg); err != nil {
			t.Fatalf("poison message returned %v", err)
		}
	}
	if fa.count() != 0 {
		t.Fatalf("applied=%d want 0", fa.count())
	}
}

func TestHandleMessage_StoreErrorRetriesSameSequence(t *testing.T) {
	fa := &fakeApplier{err: errors.New("redis down")}
	r := newRunner(t, fa)
	msg := message(t, 1, invalidation.JSON{}, tilesEvent(7))
	if err := r.handleMessage(context.Background(), msg); err == nil {
		t.Fatalf("expected apply error")
	}
	fa.err = nil
	if err := r.handleMessage(context.Background(), msg); err != nil {
		t.Fatalf("redelivery: %v", err)
	}
	if fa.count() != 1 {
		t.Fatalf("redelivered event not applied")
	}
}

func TestHandleMessage_UnsupportedBackendIsCommitted(t *testing.T) {
	fa := &fakeApplier{err: invalidation.ErrUnsupported}
	r := newRunner(t, fa)
	if err := r.handleMessage(context.Background(), message(t, 1, invalidation.JSON{}, tilesEvent(0))); err != nil {
		t.Fatalf("unsupported backend should not block the claim: %v", err)
	}
}

func TestConsumeClaim_MarksProcessedMessages(t *testing.T) {
	fa := &fakeApplier{}
	r := newRunner(t, fa)
	h := &groupHandler{setup: r.setAssignment, process: r.handleMessage}
	sess := &fakeSession{ctx: context.Background(), claims: map[string][]int32{"tile-invalidation": {0, 3}}}

	if err := h.Setup(sess); err != nil {
		t.Fatalf("setup: %v", err)
	}
	if ok, parts := r.Readiness(); !ok || len(parts) != 2 {
		t.Fatalf("ready=%v parts=%v", ok, parts)
	}

	ch := make(chan *sarama.ConsumerMessage, 2)
	ch <- message(t, 10, invalidation.JSON{}, tilesEvent(0))
	ch <- message(t, 11, invalidation.Msgpack{}, tilesEvent(0))
	close(ch)
	if err := h.ConsumeClaim(sess, fakeClaim{ch: ch}); err != nil {
		t.Fatalf("consume: %v", err)
	}
	if len(sess.marked) != 2 || sess.marked[1] != 11 {
		t.Fatalf("marked=%v", sess.marked)
	}

	r.clearAssignment()
	if ok, _ := r.Readiness(); ok {
		t.Fatalf("still ready after cleanup")
	}
}

func TestConsumeClaim_StopsOnApplyError(t *testing.T) {
	r := newRunner(t, &fakeApplier{err: errors.New("boom")})
	h := &groupHandler{process: r.handleMessage}
	sess := &fakeSession{ctx: context.Background()}

	ch := make(chan *sarama.ConsumerMessage, 1)
	ch <- message(t, 1, invalidation.JSON{}, tilesEvent(0))
	close(ch)
	if err := h.ConsumeClaim(sess, fakeClaim{ch: ch}); err == nil {
		t.Fatalf("expected error")
	}
	if len(sess.marked) != 0 {
		t.Fatalf("failed message was marked")
	}
}

func TestSeqDedupe_CommitIsMonotonic(t *testing.T) {
	d := newSeqDedupe(2)
	d.commit("roads", 9)
	d.commit("roads", 4)
	if d.newer("roads", 9) || !d.newer("roads", 10) {
		t.Fatalf("dedupe regressed")
	}
}
