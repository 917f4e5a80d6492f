// Package fetch はチャンネルの巡回処理を提供する。
// 1チャンネル分の取得と保存を行うFetcherと、全チャンネルを巡回するSchedulerを含む。
package fetch

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/rssroll/internal/metrics"
	"github.com/hitoshi/rssroll/internal/model"
)

// ChannelLister は巡回対象チャンネルの一覧を返すインターフェース。
type ChannelLister interface {
	List(ctx context.Context) ([]*model.Channel, error)
}

// ChannelFetcher は1チャンネル分の巡回を行うインターフェース。
type ChannelFetcher interface {
	Fetch(ctx context.Context, runID string, ch *model.Channel) (Outcome, error)
}

// Summary は巡回1回分の集計。
type Summary struct {
	RunID    string
	Channels int
	Outcomes map[Outcome]int
	Duration time.Duration
}

// Failed は失敗したチャンネル数を返す。
func (s Summary) Failed() int {
	return s.Outcomes[OutcomeFetchFailed] + s.Outcomes[OutcomeParseFailed] +
		s.Outcomes[OutcomeStoreFailed] + s.Outcomes[OutcomePanicked]
}

// Scheduler は全チャンネルの巡回と並列数の制御を行う。
// maxConcurrencyが1の場合、チャンネルは一覧の順に1件ずつ処理される。
type Scheduler struct {
	channels       ChannelLister
	fetcher        ChannelFetcher
	metrics        metrics.Recorder
	logger         *slog.Logger
	maxConcurrency int
}

// NewScheduler はSchedulerの新しいインスタンスを生成する。
// maxConcurrencyが0以下の場合は1を使用する。
func NewScheduler(
	channels ChannelLister,
	fetcher ChannelFetcher,
	recorder metrics.Recorder,
	logger *slog.Logger,
	maxConcurrency int,
) *Scheduler {
	if maxConcurrency <= 0 {
		maxConcurrency = 1
	}
	if recorder == nil {
		recorder = metrics.Nop{}
	}
	return &Scheduler{
		channels:       channels,
		fetcher:        fetcher,
		metrics:        recorder,
		logger:         logger,
		maxConcurrency: maxConcurrency,
	}
}

// Start はinterval間隔でRunOnceを繰り返す。起動直後に1回実行する。
// コンテキストがキャンセルされるまで実行を継続する。
func (s *Scheduler) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("巡回スケジューラを開始しました",
		slog.Duration("interval", interval),
		slog.Int("max_concurrency", s.maxConcurrency),
	)

	s.runLogged(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("巡回スケジューラを停止しました")
			return
		case <-ticker.C:
			s.runLogged(ctx)
		}
	}
}

func (s *Scheduler) runLogged(ctx context.Context) {
	if _, err := s.RunOnce(ctx); err != nil {
		s.logger.Error("巡回の実行に失敗しました", slog.String("error", err.Error()))
	}
}

// RunOnce は全チャンネルを1回巡回する。
// チャンネル単位の失敗はSummaryに集計するだけで、エラーを返すのは一覧の取得に失敗した場合のみ。
func (s *Scheduler) RunOnce(ctx context.Context) (Summary, error) {
	start := time.Now()
	summary := Summary{
		RunID:    uuid.New().String(),
		Outcomes: make(map[Outcome]int),
	}
	log := s.logger.With(slog.String("run_id", summary.RunID))

	channels, err := s.channels.List(ctx)
	if err != nil {
		return summary, fmt.Errorf("チャンネル一覧の取得に失敗: %w", err)
	}
	summary.Channels = len(channels)

	if len(channels) == 0 {
		log.Info("巡回対象のチャンネルはありません")
		return summary, nil
	}

	log.Info("巡回を開始します", slog.Int("channel_count", len(channels)))

	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		sem = make(chan struct{}, s.maxConcurrency)
	)

loop:
	for _, ch := range channels {
		if ctx.Err() != nil {
			break
		}
		select {
		case <-ctx.Done():
			break loop
		case sem <- struct{}{}:
		}

		wg.Add(1)
		go func(ch *model.Channel) {
			defer wg.Done()
			defer func() { <-sem }()

			outcome := s.fetchChannel(ctx, log, summary.RunID, ch)

			mu.Lock()
			summary.Outcomes[outcome]++
			mu.Unlock()
		}(ch)
	}

	wg.Wait()

	summary.Duration = time.Since(start)
	s.metrics.RecordRun(summary.Duration, summary.Channels)

	log.Info("巡回が完了しました",
		slog.Int("channel_count", summary.Channels),
		slog.Int("fetched", summary.Outcomes[OutcomeFetched]),
		slog.Int("not_modified", summary.Outcomes[OutcomeNotModified]),
		slog.Int("failed", summary.Failed()),
		slog.Float64("duration_ms", float64(summary.Duration.Milliseconds())),
	)

	return summary, ctx.Err()
}

// fetchChannel は1チャンネルを巡回する。panicは回復して失敗として扱い、他のチャンネルの巡回を続ける。
func (s *Scheduler) fetchChannel(ctx context.Context, log *slog.Logger, runID string, ch *model.Channel) (outcome Outcome) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Error("チャンネルの巡回中にpanicが発生しました",
				slog.String("channel_id", ch.ID),
				slog.String("link", ch.Link),
				slog.Any("panic", rec),
				slog.String("stack", string(debug.Stack())),
			)
			s.metrics.RecordChannel(metrics.OutcomePanicked)
			outcome = OutcomePanicked
		}
	}()

	outcome, _ = s.fetcher.Fetch(ctx, runID, ch)
	return outcome
}
