package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/rssroll/internal/model"
	"github.com/hitoshi/rssroll/internal/repository"
	"github.com/hitoshi/rssroll/internal/rss"
	"github.com/hitoshi/rssroll/internal/transport"
)

// URLDetector はフィードURL検出のインターフェース。
type URLDetector interface {
	DetectFeedURL(ctx context.Context, inputURL string) (string, error)
}

// Service はチャンネル登録のサービス層。
// 検出 → 重複確認 → 取得とパース → カテゴリ作成 → チャンネル保存の順に処理する。
type Service struct {
	detector   URLDetector
	fetcher    transport.Fetcher
	channels   repository.ChannelRepository
	categories repository.CategoryRepository
	logger     *slog.Logger
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	detector URLDetector,
	fetcher transport.Fetcher,
	channels repository.ChannelRepository,
	categories repository.CategoryRepository,
	logger *slog.Logger,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		detector:   detector,
		fetcher:    fetcher,
		channels:   channels,
		categories: categories,
		logger:     logger,
	}
}

// Register は入力URLからフィードを検出してチャンネルとして登録する。
// categoryが空でなければ、同名のカテゴリを（なければ作成して）割り当てる。
// 登録時点ではModifiedを0とし、最初の巡回で全記事を取り込む。
func (s *Service) Register(ctx context.Context, inputURL, category string) (*model.Channel, error) {
	feedURL, err := s.detector.DetectFeedURL(ctx, inputURL)
	if err != nil {
		return nil, err
	}

	existing, err := s.channels.FindByLink(ctx, feedURL)
	if err != nil {
		return nil, fmt.Errorf("チャンネルの検索に失敗しました: %w", err)
	}
	if existing != nil {
		return nil, model.NewChannelExistsError(feedURL)
	}

	res, err := s.fetcher.Fetch(ctx, feedURL, time.Time{})
	if err != nil {
		return nil, model.NewFetchFailedError(err.Error())
	}
	parsed, err := rss.ParseBytes(res.Body)
	if err != nil {
		return nil, model.NewParseFailedError(err.Error())
	}

	ch := &model.Channel{
		ID:    uuid.New().String(),
		Title: parsed.Title,
		Link:  feedURL,
	}
	if ch.Title == "" {
		ch.Title = feedURL
	}

	if category != "" {
		cat, err := s.categories.FindOrCreate(ctx, category)
		if err != nil {
			return nil, fmt.Errorf("カテゴリの作成に失敗しました: %w", err)
		}
		ch.CategoryID = cat.ID
	}

	if err := s.channels.Create(ctx, ch); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, model.NewChannelExistsError(feedURL)
		}
		return nil, fmt.Errorf("チャンネルの保存に失敗しました: %w", err)
	}

	s.logger.Info("チャンネルを登録しました",
		slog.String("channel_id", ch.ID),
		slog.String("channel_url", ch.Link),
		slog.String("version", parsed.Version.String()),
		slog.Int("items_total", len(parsed.Items)),
	)
	return ch, nil
}
