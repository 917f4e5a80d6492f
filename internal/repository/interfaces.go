// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"errors"

	"github.com/hitoshi/rssroll/internal/model"
)

// ErrConflict は一意制約により行が作成されなかったことを示す。
var ErrConflict = errors.New("repository: unique constraint conflict")

// ChannelRepository は巡回対象チャンネルの永続化インターフェース。
type ChannelRepository interface {
	// List は登録済みの全チャンネルを取得する。
	List(ctx context.Context) ([]*model.Channel, error)

	// FindByLink はフィードURLでチャンネルを検索する。見つからない場合はnilを返す。
	FindByLink(ctx context.Context, link string) (*model.Channel, error)

	// Create はチャンネルを作成する。同じURLが登録済みの場合はErrConflictを返す。
	Create(ctx context.Context, channel *model.Channel) error

	// Touch はチャンネルの最終更新時刻（エポック秒）を設定する。
	Touch(ctx context.Context, channelID string, modified int64) error

	// UpdateTitle はチャンネルのタイトルを更新する。
	UpdateTitle(ctx context.Context, channelID, title string) error
}

// ItemRepository は記事の永続化インターフェース。
// 記事は (chanid, link, pubdate) の組で一意になる。
type ItemRepository interface {
	// Exists は同じ重複判定キーの記事が保存済みかを返す。
	Exists(ctx context.Context, key model.DedupKey) (bool, error)

	// Insert は記事を保存する。
	// 同じキーの記事が既にある場合は何もせずfalseを返す。
	Insert(ctx context.Context, item *model.Item) (bool, error)

	// CountByChannel はチャンネルの保存済み記事数を返す。
	CountByChannel(ctx context.Context, channelID string) (int, error)
}

// CategoryRepository はカテゴリの永続化インターフェース。
type CategoryRepository interface {
	// FindOrCreate はタイトルでカテゴリを検索し、なければ作成する。
	FindOrCreate(ctx context.Context, title string) (*model.Category, error)
}
