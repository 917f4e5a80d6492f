// Package item は取得した記事の重複判定と保存を提供する。
package item

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/rssroll/internal/model"
	"github.com/hitoshi/rssroll/internal/rss"
)

// ItemStore は記事の重複判定と保存のインターフェース。
type ItemStore interface {
	Exists(ctx context.Context, key model.DedupKey) (bool, error)
	Insert(ctx context.Context, item *model.Item) (bool, error)
}

// ChannelToucher はチャンネルの最終更新時刻を設定するインターフェース。
type ChannelToucher interface {
	Touch(ctx context.Context, channelID string, modified int64) error
}

// Sanitizer は保存前のタイトルと説明文を整えるインターフェース。
type Sanitizer interface {
	Title(raw string) string
	Description(rawHTML string) string
}

// Result は1チャンネル分の取り込み結果を表す。
type Result struct {
	Inserted   int // 新規に保存した記事数
	Duplicates int // 保存済みのため読み飛ばした記事数
	NoURL      int // URLがないため読み飛ばした記事数
}

// IngestService はパース済みの記事を重複判定して保存する。
type IngestService struct {
	items    ItemStore
	channels ChannelToucher
	// sanitizer がnilの場合はパース結果をそのまま保存する。
	sanitizer Sanitizer
	now       func() time.Time
}

// NewIngestService はIngestServiceを生成する。
func NewIngestService(items ItemStore, channels ChannelToucher, sanitizer Sanitizer) *IngestService {
	return &IngestService{
		items:     items,
		channels:  channels,
		sanitizer: sanitizer,
		now:       time.Now,
	}
}

// Ingest はfeedの記事を末尾から先頭へ順に処理する。
// パーサは記事を文書順の逆に並べるため、結果として文書順（古い記事から）に保存される。
//
// 各記事について (チャンネル, URL, 日付) の記事が保存済みなら読み飛ばし、
// なければ保存してチャンネルの最終更新時刻を現在時刻にする。
// ストレージのエラーが発生した場合はそのチャンネルの処理を中断してエラーを返す。
func (s *IngestService) Ingest(ctx context.Context, channel *model.Channel, feed *rss.Feed) (Result, error) {
	var res Result

	for i := len(feed.Items) - 1; i >= 0; i-- {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		parsed := feed.Items[i]
		if parsed.URL == "" {
			res.NoURL++
			slog.Debug("URLのない記事を読み飛ばしました",
				slog.String("channel_id", channel.ID),
				slog.String("title", parsed.Title),
			)
			continue
		}

		key := model.DedupKey{
			ChannelID: channel.ID,
			Link:      parsed.URL,
			PubDate:   parsed.Date.Unix(),
		}

		exists, err := s.items.Exists(ctx, key)
		if err != nil {
			return res, fmt.Errorf("記事の存在確認に失敗: %w", err)
		}
		if exists {
			res.Duplicates++
			continue
		}

		now := s.now()
		row := s.newItem(key, parsed, now)
		inserted, err := s.items.Insert(ctx, row)
		if err != nil {
			return res, fmt.Errorf("記事の保存に失敗: %w", err)
		}
		if !inserted {
			// 存在確認の後に別の処理が同じ記事を保存した
			res.Duplicates++
			continue
		}
		res.Inserted++

		if err := s.channels.Touch(ctx, channel.ID, now.Unix()); err != nil {
			return res, fmt.Errorf("チャンネル更新時刻の設定に失敗: %w", err)
		}
		channel.Modified = now.Unix()

		slog.Debug("記事を保存しました",
			slog.String("channel_id", channel.ID),
			slog.String("link", row.Link),
			slog.Int64("pubdate", row.PubDate),
		)
	}

	return res, nil
}

func (s *IngestService) newItem(key model.DedupKey, parsed rss.Item, now time.Time) *model.Item {
	title, desc := parsed.Title, parsed.Description
	if s.sanitizer != nil {
		title = s.sanitizer.Title(title)
		desc = s.sanitizer.Description(desc)
	}

	return &model.Item{
		ID:          uuid.New().String(),
		ChannelID:   key.ChannelID,
		Modified:    now.Unix(),
		Link:        key.Link,
		Title:       title,
		Description: desc,
		PubDate:     key.PubDate,
	}
}
