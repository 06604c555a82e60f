package tilestream

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/rs/zerolog"
)

type sess struct {
	ctx    context.Context
	mu     sync.Mutex
	marked []int64
}

func (s *sess) Claims() map[string][]int32 { return nil }
func (s *sess) MemberID() string           { return "" }
func (s *sess) GenerationID() int32        { return 0 }
func (s *sess) MarkMessage(m *sarama.ConsumerMessage, _ string) {
	s.mu.Lock()
	s.marked = append(s.marked, m.Offset)
	s.mu.Unlock()
}
func (s *sess) ResetOffset(_ string, _ int32, _ int64, _ string) {}
func (s *sess) MarkOffset(_ string, _ int32, _ int64, _ string)  {}
func (s *sess) Context() context.Context                         { return s.ctx }
func (s *sess) Errors() <-chan error                             { return nil }
func (s *sess) Commit()                                          {}

type claim struct {
	part int32
	msgs chan *sarama.ConsumerMessage
}

func (c *claim) Topic() string                            { return "tile-events" }
func (c *claim) Partition() int32                         { return c.part }
func (c *claim) InitialOffset() int64                     { return 0 }
func (c *claim) HighWaterMarkOffset() int64               { return 0 }
func (c *claim) Messages() <-chan *sarama.ConsumerMessage { return c.msgs }

func loadBytes(id string, rev uint64) []byte {
	ev := Event{
		Version: 1, Op: OpLoad, Layer: "buildings", FeatureID: id, Revision: rev, TS: time.Now().UTC(),
		BBox: &BBox{X1: 18.06, Y1: 59.32, X2: 18.08, Y2: 59.34, SRID: "EPSG:4326"},
	}
	b, _ := json.Marshal(ev)
	return b
}

func newConsumerForTest(q *Queue) *Consumer {
	zl := zerolog.Nop()
	return NewConsumer(DefaultConfig("x", "tile-events", "g"), nil, &zl, q)
}

func TestConsumeClaim_QueuesInOrderAndMarksAfterWork(t *testing.T) {
	q := NewQueue(8)
	c := newConsumerForTest(q)
	g := &groupHandler{process: c.ProcessOne}

	s := &sess{ctx: t.Context()}
	ch := make(chan *sarama.ConsumerMessage, 3)
	ch <- &sarama.ConsumerMessage{Topic: "tile-events", Offset: 10, Value: loadBytes("b1", 1)}
	ch <- &sarama.ConsumerMessage{Topic: "tile-events", Offset: 11, Value: []byte("{not json")}
	ch <- &sarama.ConsumerMessage{Topic: "tile-events", Offset: 12, Value: loadBytes("b2", 1)}
	close(ch)

	if err := g.ConsumeClaim(s, &claim{msgs: ch}); err != nil {
		t.Fatalf("ConsumeClaim: %v", err)
	}
	if len(s.marked) != 3 || s.marked[0] != 10 || s.marked[2] != 12 {
		t.Fatalf("marked offsets=%v want [10 11 12]", s.marked)
	}
	if q.Len() != 2 {
		t.Fatalf("queued=%d want 2 (malformed message skipped)", q.Len())
	}
	first, _ := q.TryPop()
	second, _ := q.TryPop()
	if first.FeatureID != "b1" || second.FeatureID != "b2" {
		t.Fatalf("order = %s,%s", first.FeatureID, second.FeatureID)
	}
}

func TestProcessOne_SkipsInvalidEvents(t *testing.T) {
	q := NewQueue(1)
	c := newConsumerForTest(q)

	bad, _ := json.Marshal(Event{Version: 1, Op: OpLoad, Layer: "buildings", FeatureID: "b1", TS: time.Now()})
	if err := c.ProcessOne(context.Background(), &sarama.ConsumerMessage{Value: bad}); err != nil {
		t.Fatalf("ProcessOne: %v", err)
	}
	if q.Len() != 0 {
		t.Fatalf("invalid event was queued")
	}
}

func TestProcessOne_FullQueueDoesNotMark(t *testing.T) {
	q := NewQueue(1)
	c := newConsumerForTest(q)
	g := &groupHandler{process: c.ProcessOne}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	s := &sess{ctx: ctx}
	ch := make(chan *sarama.ConsumerMessage, 2)
	ch <- &sarama.ConsumerMessage{Offset: 1, Value: loadBytes("b1", 1)}
	ch <- &sarama.ConsumerMessage{Offset: 2, Value: loadBytes("b2", 1)}
	close(ch)

	if err := g.ConsumeClaim(s, &claim{msgs: ch}); err == nil {
		t.Fatalf("expected error when the queue stays full")
	}
	if len(s.marked) != 1 || s.marked[0] != 1 {
		t.Fatalf("marked=%v want [1]", s.marked)
	}
}

func TestSplitCSV(t *testing.T) {
	got := SplitCSV(" a:9092, ,b:9092,")
	if len(got) != 2 || got[0] != "a:9092" || got[1] != "b:9092" {
		t.Fatalf("SplitCSV=%v", got)
	}
	if cfg := DefaultConfig("", "", ""); cfg.Topic != "tile-events" || cfg.GroupID != "geotwin-viewer" || len(cfg.Brokers) != 0 {
		t.Fatalf("defaults=%+v", cfg)
	}
}

func TestStart_RequiresBrokers(t *testing.T) {
	c := NewConsumer(Config{}, nil, nil, NewQueue(1))
	if err := c.Start(context.Background()); err == nil {
		t.Fatalf("expected error without brokers")
	}
}
