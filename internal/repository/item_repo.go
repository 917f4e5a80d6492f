package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/rssroll/internal/database"
	"github.com/hitoshi/rssroll/internal/model"
)

// ItemRepo はSQLデータベースを使用した記事リポジトリ。
type ItemRepo struct {
	db      *sql.DB
	dialect database.Dialect
}

// NewItemRepo はItemRepoを生成する。
func NewItemRepo(db *database.DB) *ItemRepo {
	return &ItemRepo{db: db.DB, dialect: db.Dialect}
}

// Exists は同じ (chanid, link, pubdate) の記事が保存済みかを返す。
func (r *ItemRepo) Exists(ctx context.Context, key model.DedupKey) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx,
		r.dialect.Rebind(`SELECT 1 FROM items WHERE chanid = $1 AND link = $2 AND pubdate = $3`),
		key.ChannelID, key.Link, key.PubDate,
	).Scan(&one)

	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("記事の存在確認に失敗しました: %w", err)
	}
	return true, nil
}

// Insert は記事を保存する。
// 一意インデックスと衝突した場合は行を作らずfalseを返すため、
// Existsとの間に別プロセスが同じ記事を挿入しても重複しない。
func (r *ItemRepo) Insert(ctx context.Context, item *model.Item) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		r.dialect.Rebind(`INSERT INTO items (id, chanid, modified, link, title, description, pubdate)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (chanid, link, pubdate) DO NOTHING`),
		item.ID, item.ChannelID, item.Modified, item.Link, item.Title, item.Description, item.PubDate,
	)
	if err != nil {
		return false, fmt.Errorf("記事の保存に失敗しました: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("記事保存結果の取得に失敗しました: %w", err)
	}
	return n > 0, nil
}

// CountByChannel はチャンネルの保存済み記事数を返す。
func (r *ItemRepo) CountByChannel(ctx context.Context, channelID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		r.dialect.Rebind(`SELECT count(*) FROM items WHERE chanid = $1`),
		channelID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("記事数の取得に失敗しました: %w", err)
	}
	return count, nil
}
