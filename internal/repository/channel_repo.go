package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/rssroll/internal/database"
	"github.com/hitoshi/rssroll/internal/model"
)

// ChannelRepo はSQLデータベースを使用したチャンネルリポジトリ。
type ChannelRepo struct {
	db      *sql.DB
	dialect database.Dialect
}

// NewChannelRepo はChannelRepoを生成する。
func NewChannelRepo(db *database.DB) *ChannelRepo {
	return &ChannelRepo{db: db.DB, dialect: db.Dialect}
}

// List は登録済みの全チャンネルをURL順に取得する。
func (r *ChannelRepo) List(ctx context.Context) ([]*model.Channel, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, catid, title, link, modified FROM channels ORDER BY link`,
	)
	if err != nil {
		return nil, fmt.Errorf("チャンネル一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var channels []*model.Channel
	for rows.Next() {
		ch, err := scanChannel(rows)
		if err != nil {
			return nil, fmt.Errorf("チャンネルの読み取りに失敗しました: %w", err)
		}
		channels = append(channels, ch)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("チャンネル一覧の走査に失敗しました: %w", err)
	}

	return channels, nil
}

// FindByLink はフィードURLでチャンネルを検索する。見つからない場合はnilを返す。
func (r *ChannelRepo) FindByLink(ctx context.Context, link string) (*model.Channel, error) {
	row := r.db.QueryRowContext(ctx,
		r.dialect.Rebind(`SELECT id, catid, title, link, modified FROM channels WHERE link = $1`),
		link,
	)

	ch, err := scanChannel(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("URLによるチャンネルの検索に失敗しました: %w", err)
	}
	return ch, nil
}

// Create はチャンネルを作成する。同じURLが登録済みの場合はErrConflictを返す。
func (r *ChannelRepo) Create(ctx context.Context, ch *model.Channel) error {
	res, err := r.db.ExecContext(ctx,
		r.dialect.Rebind(`INSERT INTO channels (id, catid, title, link, modified)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (link) DO NOTHING`),
		ch.ID, nullString(ch.CategoryID), ch.Title, ch.Link, ch.Modified,
	)
	if err != nil {
		return fmt.Errorf("チャンネルの作成に失敗しました: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("チャンネル作成結果の取得に失敗しました: %w", err)
	}
	if n == 0 {
		return ErrConflict
	}
	return nil
}

// Touch はチャンネルの最終更新時刻（エポック秒）を設定する。
func (r *ChannelRepo) Touch(ctx context.Context, channelID string, modified int64) error {
	_, err := r.db.ExecContext(ctx,
		r.dialect.Rebind(`UPDATE channels SET modified = $1 WHERE id = $2`),
		modified, channelID,
	)
	if err != nil {
		return fmt.Errorf("チャンネル更新時刻の設定に失敗しました: %w", err)
	}
	return nil
}

// UpdateTitle はチャンネルのタイトルを更新する。
func (r *ChannelRepo) UpdateTitle(ctx context.Context, channelID, title string) error {
	_, err := r.db.ExecContext(ctx,
		r.dialect.Rebind(`UPDATE channels SET title = $1 WHERE id = $2`),
		title, channelID,
	)
	if err != nil {
		return fmt.Errorf("チャンネルタイトルの更新に失敗しました: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanChannel(row rowScanner) (*model.Channel, error) {
	ch := &model.Channel{}
	var catID sql.NullString
	if err := row.Scan(&ch.ID, &catID, &ch.Title, &ch.Link, &ch.Modified); err != nil {
		return nil, err
	}
	ch.CategoryID = nullStringValue(catID)
	return ch, nil
}
