package recorder

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/danmuck/hipotlink/internal/testutil/testlog"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func sampleRecord(channel string) FrameRecord {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	return FrameRecord{
		Channel:    channel,
		SentAt:     at,
		Sent:       Hex{0x7B, 0x09, 0x13, 0x01, 0x01, 0x01, 0x01, 0x1A, 0x7D},
		ReceivedAt: at.Add(30 * time.Millisecond),
		Received:   Hex{0x7B, 0x07, 0x13, 0x01, 0x00, 0x15, 0x7D},
		Outcome:    "ack cmd=0x13 status=0",
		OK:         true,
	}
}

func TestHexTextRoundTrip(t *testing.T) {
	testlog.Start(t)

	h := Hex{0x7B, 0x0a, 0xff}
	if got := h.String(); got != "7B 0A FF" {
		t.Fatalf("hex string: got=%q want=%q", got, "7B 0A FF")
	}
	var back Hex
	if err := back.UnmarshalText([]byte("7B 0A FF")); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !bytes.Equal(back, h) {
		t.Fatalf("round trip: got=% X want=% X", []byte(back), []byte(h))
	}
	if Hex(nil).String() != "" {
		t.Fatalf("empty hex should render empty")
	}
	if err := back.UnmarshalText([]byte("zz")); err == nil {
		t.Fatalf("expected error for invalid hex")
	}
}

func TestFrameRecordJSONUsesHex(t *testing.T) {
	testlog.Start(t)

	data, err := json.Marshal(sampleRecord("ch1"))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(data), `"sent":"7B 09 13 01 01 01 01 1A 7D"`) {
		t.Fatalf("sent bytes not hex encoded: %s", data)
	}
}

func TestMemoryRingKeepsNewest(t *testing.T) {
	testlog.Start(t)

	m := NewMemory(3)
	if _, ok := m.Last(); ok {
		t.Fatalf("empty ring should have no last record")
	}
	for _, ch := range []string{"a", "b", "c", "d", "e"} {
		m.Record(FrameRecord{Channel: ch})
	}
	if m.Len() != 3 {
		t.Fatalf("len: got=%d want=3", m.Len())
	}
	list := m.List()
	got := []string{list[0].Channel, list[1].Channel, list[2].Channel}
	if strings.Join(got, "") != "cde" {
		t.Fatalf("order: got=%v want=[c d e]", got)
	}
	last, ok := m.Last()
	if !ok || last.Channel != "e" {
		t.Fatalf("last: got=%q ok=%v want=e", last.Channel, ok)
	}
}

func TestMemoryPartialFill(t *testing.T) {
	testlog.Start(t)

	m := NewMemory(0)
	m.Record(FrameRecord{Channel: "x"})
	if m.Len() != 1 || m.List()[0].Channel != "x" {
		t.Fatalf("size clamp failed: %+v", m.List())
	}
}

func TestLogRecorderWritesOneLine(t *testing.T) {
	testlog.Start(t)

	var buf bytes.Buffer
	r := NewLog(zerolog.New(&buf))
	rec := sampleRecord("udp://10.0.0.5:20000 ch=1")
	rec.OK = false
	rec.Outcome = OutcomeNoReplyReceived
	r.Record(rec)

	line := buf.String()
	if strings.Count(line, "\n") != 1 {
		t.Fatalf("expected one log line, got %q", line)
	}
	for _, want := range []string{`"level":"warn"`, `"outcome":"no reply received"`, `"sent":"7B 09`} {
		if !strings.Contains(line, want) {
			t.Fatalf("log line missing %s: %s", want, line)
		}
	}
}

type fakePublisher struct {
	mu       sync.Mutex
	subjects []string
	payloads [][]byte
	err      error
}

func (p *fakePublisher) Publish(subject string, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subjects = append(p.subjects, subject)
	p.payloads = append(p.payloads, data)
	return p.err
}

func TestNATSPublishesPerChannelAndAll(t *testing.T) {
	testlog.Start(t)

	pub := &fakePublisher{}
	r := NewNATS(pub, "")
	r.Record(sampleRecord("udp://10.0.0.5:20000 ch=1"))

	if len(pub.subjects) != 2 {
		t.Fatalf("publish count: got=%d want=2", len(pub.subjects))
	}
	if pub.subjects[0] != "hipotlink.frames.udp___10_0_0_5_20000_ch_1" {
		t.Fatalf("channel subject: got=%q", pub.subjects[0])
	}
	if pub.subjects[1] != "hipotlink.frames.all" {
		t.Fatalf("fan subject: got=%q", pub.subjects[1])
	}
	var back FrameRecord
	if err := json.Unmarshal(pub.payloads[0], &back); err != nil {
		t.Fatalf("payload decode: %v", err)
	}
	if !bytes.Equal(back.Sent, sampleRecord("").Sent) {
		t.Fatalf("payload sent bytes: got=% X", []byte(back.Sent))
	}
}

func TestNATSPublishErrorIsSwallowed(t *testing.T) {
	testlog.Start(t)

	pub := &fakePublisher{err: errors.New("nats: connection closed")}
	NewNATS(pub, "custom").Record(sampleRecord("1"))
	if pub.subjects[0] != "custom.1" {
		t.Fatalf("custom prefix: got=%q", pub.subjects[0])
	}
}

func TestSubjectToken(t *testing.T) {
	testlog.Start(t)

	cases := map[string]string{
		"":           "unknown",
		"ch-1":       "ch-1",
		"a.b*c>":     "a_b_c_",
		" bench_02 ": "bench_02",
	}
	for in, want := range cases {
		if got := SubjectToken(in); got != want {
			t.Fatalf("SubjectToken(%q): got=%q want=%q", in, got, want)
		}
	}
}

type fakeList struct {
	pushes  map[string][][]byte
	trims   []int64
	pushErr error
}

func (f *fakeList) LPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd {
	if f.pushErr != nil {
		return redis.NewIntResult(0, f.pushErr)
	}
	if f.pushes == nil {
		f.pushes = map[string][][]byte{}
	}
	for _, v := range values {
		f.pushes[key] = append(f.pushes[key], v.([]byte))
	}
	return redis.NewIntResult(int64(len(f.pushes[key])), nil)
}

func (f *fakeList) LTrim(ctx context.Context, key string, start, stop int64) *redis.StatusCmd {
	f.trims = append(f.trims, stop)
	return redis.NewStatusResult("OK", nil)
}

func TestRedisPushesAndTrims(t *testing.T) {
	testlog.Start(t)

	store := &fakeList{}
	r := NewRedis(store, "", 10)
	r.Record(sampleRecord("bench-1"))

	key := "hipotlink:frames:bench-1"
	if r.Key("bench-1") != key {
		t.Fatalf("key: got=%q want=%q", r.Key("bench-1"), key)
	}
	if len(store.pushes[key]) != 1 {
		t.Fatalf("push count: got=%d want=1", len(store.pushes[key]))
	}
	if len(store.trims) != 1 || store.trims[0] != 9 {
		t.Fatalf("trim: got=%v want=[9]", store.trims)
	}
}

func TestRedisSkipsTrimWhenPushFails(t *testing.T) {
	testlog.Start(t)

	store := &fakeList{pushErr: errors.New("redis: connection refused")}
	NewRedis(store, "k", 0).Record(sampleRecord("1"))
	if len(store.trims) != 0 {
		t.Fatalf("trim should not run after failed push")
	}
}

func TestMultiFansOut(t *testing.T) {
	testlog.Start(t)

	a, b := NewMemory(4), NewMemory(4)
	Multi{a, nil, b, Nop{}}.Record(sampleRecord("1"))
	if a.Len() != 1 || b.Len() != 1 {
		t.Fatalf("fan-out: a=%d b=%d", a.Len(), b.Len())
	}
}
