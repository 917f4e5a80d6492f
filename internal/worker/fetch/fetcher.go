package fetch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/rssroll/internal/item"
	"github.com/hitoshi/rssroll/internal/metrics"
	"github.com/hitoshi/rssroll/internal/model"
	"github.com/hitoshi/rssroll/internal/rss"
	"github.com/hitoshi/rssroll/internal/transport"
)

// Outcome は1チャンネル分の巡回結果。
type Outcome string

const (
	OutcomeFetched     Outcome = metrics.OutcomeFetched
	OutcomeNotModified Outcome = metrics.OutcomeNotModified
	OutcomeFetchFailed Outcome = metrics.OutcomeFetchFailed
	OutcomeParseFailed Outcome = metrics.OutcomeParseFailed
	OutcomeStoreFailed Outcome = metrics.OutcomeStoreFailed
	OutcomePanicked    Outcome = metrics.OutcomePanicked
)

// Ingester はパース済みフィードの記事を保存するインターフェース。
type Ingester interface {
	Ingest(ctx context.Context, channel *model.Channel, feed *rss.Feed) (item.Result, error)
}

// TitleUpdater はチャンネルタイトルを更新するインターフェース。
type TitleUpdater interface {
	UpdateTitle(ctx context.Context, channelID, title string) error
}

// Fetcher は1チャンネル分の取得、パース、記事保存を行う。
// 失敗はすべてこのチャンネル限りで、呼び出し側の巡回は継続する。
type Fetcher struct {
	transport transport.Fetcher
	ingester  Ingester
	titles    TitleUpdater
	metrics   metrics.Recorder
	logger    *slog.Logger
	timeout   time.Duration
}

// NewFetcher はFetcherの新しいインスタンスを生成する。
// timeoutは1チャンネルの取得から保存までの上限時間。
func NewFetcher(
	tr transport.Fetcher,
	ingester Ingester,
	titles TitleUpdater,
	recorder metrics.Recorder,
	logger *slog.Logger,
	timeout time.Duration,
) *Fetcher {
	if recorder == nil {
		recorder = metrics.Nop{}
	}
	return &Fetcher{
		transport: tr,
		ingester:  ingester,
		titles:    titles,
		metrics:   recorder,
		logger:    logger,
		timeout:   timeout,
	}
}

// Fetch はチャンネルを巡回する。
// 保存済みのModifiedが0でなければ条件付きGETを行い、304の場合はパースせずに終了する。
func (f *Fetcher) Fetch(ctx context.Context, runID string, ch *model.Channel) (Outcome, error) {
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	log := f.logger.With(
		slog.String("run_id", runID),
		slog.String("channel_id", ch.ID),
		slog.String("channel_url", ch.Link),
	)

	outcome, err := f.fetch(ctx, log, ch)
	f.metrics.RecordChannel(string(outcome))
	return outcome, err
}

func (f *Fetcher) fetch(ctx context.Context, log *slog.Logger, ch *model.Channel) (Outcome, error) {
	start := time.Now()

	res, err := f.transport.Fetch(ctx, ch.Link, ch.ModifiedTime())
	if err != nil {
		attrs := []any{slog.String("error", err.Error())}
		var statusErr *transport.StatusError
		if errors.As(err, &statusErr) {
			f.metrics.RecordHTTPStatus(statusErr.Code)
			attrs = append(attrs,
				slog.Int("http_status", statusErr.Code),
				slog.String("status_class", transport.ClassifyHTTPStatus(statusErr.Code).String()),
			)
		}
		log.Warn("フィードの取得に失敗しました", attrs...)
		return OutcomeFetchFailed, fmt.Errorf("フィード取得失敗: %w", err)
	}

	f.metrics.RecordHTTPStatus(res.Status)
	f.metrics.RecordFetchLatency(res.Duration)

	if res.NotModified() {
		log.Info("フィードは未変更です（304）",
			slog.Int("http_status", res.Status),
			slog.Float64("duration_ms", float64(res.Duration.Milliseconds())),
		)
		return OutcomeNotModified, nil
	}

	feed, err := rss.ParseBytes(res.Body)
	if err != nil {
		log.Warn("フィードのパースに失敗しました",
			slog.Int("http_status", res.Status),
			slog.String("error", err.Error()),
		)
		return OutcomeParseFailed, fmt.Errorf("フィードパース失敗: %w", err)
	}

	if feed.Title != "" && feed.Title != ch.Title {
		if err := f.titles.UpdateTitle(ctx, ch.ID, feed.Title); err != nil {
			log.Warn("チャンネルタイトルの更新に失敗しました", slog.String("error", err.Error()))
		} else {
			ch.Title = feed.Title
		}
	}

	result, err := f.ingester.Ingest(ctx, ch, feed)
	f.metrics.RecordItems(result.Inserted, result.Duplicates)
	if err != nil {
		log.Error("記事の保存に失敗しました",
			slog.Int("items_inserted", result.Inserted),
			slog.String("error", err.Error()),
		)
		return OutcomeStoreFailed, fmt.Errorf("記事保存失敗: %w", err)
	}

	log.Info("フィードの巡回が完了しました",
		slog.Int("http_status", res.Status),
		slog.String("version", feed.Version.String()),
		slog.Int("items_total", len(feed.Items)),
		slog.Int("items_inserted", result.Inserted),
		slog.Int("items_duplicate", result.Duplicates),
		slog.Int("items_no_url", result.NoURL),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)

	return OutcomeFetched, nil
}
