package fetch

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hitoshi/rssroll/internal/model"
)

// mockChannelLister はChannelListerのテスト用モック。
type mockChannelLister struct {
	channels []*model.Channel
	err      error
}

func (m *mockChannelLister) List(_ context.Context) ([]*model.Channel, error) {
	return m.channels, m.err
}

// mockChannelFetcher はChannelFetcherのテスト用モック。
type mockChannelFetcher struct {
	mu       sync.Mutex
	order    []string
	runIDs   map[string]bool
	outcomes map[string]Outcome
	delay    time.Duration

	active    int32
	maxActive int32
}

func (m *mockChannelFetcher) Fetch(_ context.Context, runID string, ch *model.Channel) (Outcome, error) {
	n := atomic.AddInt32(&m.active, 1)
	defer atomic.AddInt32(&m.active, -1)
	for {
		cur := atomic.LoadInt32(&m.maxActive)
		if n <= cur || atomic.CompareAndSwapInt32(&m.maxActive, cur, n) {
			break
		}
	}
	if m.delay > 0 {
		time.Sleep(m.delay)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.order = append(m.order, ch.ID)
	if m.runIDs == nil {
		m.runIDs = make(map[string]bool)
	}
	m.runIDs[runID] = true

	if o, ok := m.outcomes[ch.ID]; ok {
		if o == OutcomeFetched || o == OutcomeNotModified {
			return o, nil
		}
		return o, errors.New("failed")
	}
	return OutcomeFetched, nil
}

func channels(ids ...string) []*model.Channel {
	out := make([]*model.Channel, 0, len(ids))
	for _, id := range ids {
		out = append(out, &model.Channel{ID: id, Link: "http://x/" + id})
	}
	return out
}

func TestScheduler_RunOnce_SequentialByDefault(t *testing.T) {
	fetcher := &mockChannelFetcher{delay: 5 * time.Millisecond}
	s := NewScheduler(&mockChannelLister{channels: channels("c1", "c2", "c3")}, fetcher, nil, newTestLogger(io.Discard), 0)

	summary, err := s.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce がエラーを返した: %v", err)
	}
	if summary.Channels != 3 || summary.Outcomes[OutcomeFetched] != 3 {
		t.Errorf("Summary: %+v", summary)
	}
	if fetcher.maxActive != 1 {
		t.Errorf("同時実行数: got %d, want 1", fetcher.maxActive)
	}
	if len(fetcher.order) != 3 || fetcher.order[0] != "c1" || fetcher.order[1] != "c2" || fetcher.order[2] != "c3" {
		t.Errorf("処理順: got %v, want [c1 c2 c3]", fetcher.order)
	}
}

func TestScheduler_RunOnce_BoundsConcurrency(t *testing.T) {
	fetcher := &mockChannelFetcher{delay: 20 * time.Millisecond}
	s := NewScheduler(&mockChannelLister{channels: channels("c1", "c2", "c3", "c4", "c5", "c6")}, fetcher, nil, newTestLogger(io.Discard), 2)

	if _, err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce がエラーを返した: %v", err)
	}
	if fetcher.maxActive > 2 {
		t.Errorf("同時実行数が上限を超えた: %d", fetcher.maxActive)
	}
	if len(fetcher.order) != 6 {
		t.Errorf("処理件数: got %d, want 6", len(fetcher.order))
	}
}

func TestScheduler_RunOnce_ChannelFailureDoesNotAbortBatch(t *testing.T) {
	fetcher := &mockChannelFetcher{outcomes: map[string]Outcome{
		"c1": OutcomeFetchFailed,
		"c2": OutcomeParseFailed,
		"c3": OutcomeNotModified,
	}}
	rec := &recordingMetrics{}
	s := NewScheduler(&mockChannelLister{channels: channels("c1", "c2", "c3", "c4")}, fetcher, rec, newTestLogger(io.Discard), 1)

	summary, err := s.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("チャンネル単位の失敗でRunOnceがエラーを返した: %v", err)
	}
	if len(fetcher.order) != 4 {
		t.Errorf("全チャンネルが処理されていない: %v", fetcher.order)
	}
	if summary.Failed() != 2 || summary.Outcomes[OutcomeNotModified] != 1 || summary.Outcomes[OutcomeFetched] != 1 {
		t.Errorf("Summary: %+v", summary.Outcomes)
	}
	if rec.runs != 1 {
		t.Errorf("RecordRun の呼び出し回数: got %d, want 1", rec.runs)
	}
}

// panickingFetcher は指定したチャンネルでpanicするChannelFetcher。
type panickingFetcher struct {
	panicOn string
	mu      sync.Mutex
	fetched []string
}

func (p *panickingFetcher) Fetch(_ context.Context, _ string, ch *model.Channel) (Outcome, error) {
	if ch.ID == p.panicOn {
		panic("broken feed")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fetched = append(p.fetched, ch.ID)
	return OutcomeFetched, nil
}

func TestScheduler_RunOnce_RecoversChannelPanic(t *testing.T) {
	for _, concurrency := range []int{1, 2} {
		fetcher := &panickingFetcher{panicOn: "c2"}
		rec := &recordingMetrics{}
		var buf bytes.Buffer
		s := NewScheduler(&mockChannelLister{channels: channels("c1", "c2", "c3")}, fetcher, rec, newTestLogger(&buf), concurrency)

		summary, err := s.RunOnce(context.Background())
		if err != nil {
			t.Fatalf("concurrency=%d: RunOnce がエラーを返した: %v", concurrency, err)
		}
		if len(fetcher.fetched) != 2 {
			t.Errorf("concurrency=%d: panic以外のチャンネルが処理されていない: %v", concurrency, fetcher.fetched)
		}
		if summary.Outcomes[OutcomePanicked] != 1 || summary.Failed() != 1 || summary.Outcomes[OutcomeFetched] != 2 {
			t.Errorf("concurrency=%d: Summary: %+v", concurrency, summary.Outcomes)
		}
		if len(rec.outcomes) != 1 || rec.outcomes[0] != string(OutcomePanicked) {
			t.Errorf("concurrency=%d: RecordChannel: got %v", concurrency, rec.outcomes)
		}
		if !strings.Contains(buf.String(), "broken feed") || !strings.Contains(buf.String(), `"channel_id":"c2"`) {
			t.Errorf("concurrency=%d: panicがログに出力されていない: %s", concurrency, buf.String())
		}
	}
}

func TestScheduler_RunOnce_SharesRunID(t *testing.T) {
	fetcher := &mockChannelFetcher{}
	s := NewScheduler(&mockChannelLister{channels: channels("c1", "c2")}, fetcher, nil, newTestLogger(io.Discard), 1)

	first, _ := s.RunOnce(context.Background())
	second, _ := s.RunOnce(context.Background())

	if first.RunID == "" || first.RunID == second.RunID {
		t.Errorf("RunID は巡回ごとに一意であるべき: %q, %q", first.RunID, second.RunID)
	}
	if len(fetcher.runIDs) != 2 {
		t.Errorf("各巡回のチャンネルは同じRunIDを共有するべき: %v", fetcher.runIDs)
	}
}

func TestScheduler_RunOnce_ListError(t *testing.T) {
	fetcher := &mockChannelFetcher{}
	s := NewScheduler(&mockChannelLister{err: errors.New("db down")}, fetcher, nil, newTestLogger(io.Discard), 1)

	if _, err := s.RunOnce(context.Background()); err == nil {
		t.Fatal("一覧取得の失敗でエラーが返されなかった")
	}
	if len(fetcher.order) != 0 {
		t.Error("一覧取得に失敗したのにチャンネルが処理された")
	}
}

func TestScheduler_RunOnce_NoChannels(t *testing.T) {
	s := NewScheduler(&mockChannelLister{}, &mockChannelFetcher{}, nil, newTestLogger(io.Discard), 1)

	summary, err := s.RunOnce(context.Background())
	if err != nil || summary.Channels != 0 {
		t.Errorf("summary=%+v err=%v", summary, err)
	}
}

func TestScheduler_RunOnce_CanceledContextStopsLaunching(t *testing.T) {
	fetcher := &mockChannelFetcher{}
	s := NewScheduler(&mockChannelLister{channels: channels("c1", "c2", "c3")}, fetcher, nil, newTestLogger(io.Discard), 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.RunOnce(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("context.Canceled を期待: got %v", err)
	}
	if len(fetcher.order) != 0 {
		t.Errorf("キャンセル済みのコンテキストでチャンネルが処理された: %v", fetcher.order)
	}
}

func TestScheduler_Start_StopsOnCancel(t *testing.T) {
	fetcher := &mockChannelFetcher{}
	s := NewScheduler(&mockChannelLister{channels: channels("c1")}, fetcher, nil, newTestLogger(io.Discard), 1)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Start(ctx, time.Hour)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for {
		fetcher.mu.Lock()
		n := len(fetcher.order)
		fetcher.mu.Unlock()
		if n > 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("起動直後の巡回が実行されなかった")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("キャンセル後にStartが終了しなかった")
	}
}
