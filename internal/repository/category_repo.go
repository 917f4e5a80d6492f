package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/hitoshi/rssroll/internal/database"
	"github.com/hitoshi/rssroll/internal/model"
)

// CategoryRepo はSQLデータベースを使用したカテゴリリポジトリ。
type CategoryRepo struct {
	db *database.DB
}

// NewCategoryRepo はCategoryRepoを生成する。
func NewCategoryRepo(db *database.DB) *CategoryRepo {
	return &CategoryRepo{db: db}
}

// FindOrCreate はタイトルでカテゴリを検索し、なければ作成する。
// 同時に作成された場合も一意制約により1行にまとまる。
func (r *CategoryRepo) FindOrCreate(ctx context.Context, title string) (*model.Category, error) {
	_, err := r.db.ExecContext(ctx,
		r.db.Dialect.Rebind(`INSERT INTO categories (id, title) VALUES ($1, $2) ON CONFLICT (title) DO NOTHING`),
		uuid.New().String(), title,
	)
	if err != nil {
		return nil, fmt.Errorf("カテゴリの作成に失敗しました: %w", err)
	}

	cat := &model.Category{}
	err = r.db.QueryRowContext(ctx,
		r.db.Dialect.Rebind(`SELECT id, title FROM categories WHERE title = $1`),
		title,
	).Scan(&cat.ID, &cat.Title)
	if err != nil {
		return nil, fmt.Errorf("カテゴリの取得に失敗しました: %w", err)
	}
	return cat, nil
}
