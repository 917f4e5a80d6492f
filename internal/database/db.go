package database

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Dialect は接続先データベースの種類を表す。
type Dialect int

const (
	// Postgres はlib/pqで接続するPostgreSQL。
	Postgres Dialect = iota
	// SQLite はmodernc.org/sqliteで接続する組み込みSQLite。
	SQLite
)

// String はDialectの名前を返す。
func (d Dialect) String() string {
	if d == SQLite {
		return "sqlite"
	}
	return "postgres"
}

// Rebind は$1形式のプレースホルダをDialectに合わせて書き換える。
// SQLiteでは?に置き換えるため、各プレースホルダは番号順に1回だけ現れる必要がある。
func (d Dialect) Rebind(query string) string {
	if d != SQLite {
		return query
	}

	var b strings.Builder
	b.Grow(len(query))
	for i := 0; i < len(query); i++ {
		c := query[i]
		if c == '$' && i+1 < len(query) && query[i+1] >= '0' && query[i+1] <= '9' {
			j := i + 1
			for j < len(query) && query[j] >= '0' && query[j] <= '9' {
				j++
			}
			b.WriteByte('?')
			i = j - 1
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}

// ParseURL はデータベースURLからDialectとドライバ用DSNを取り出す。
// postgres:// と postgresql:// はPostgreSQL、sqlite:// またはスキームのないパスはSQLiteとして扱う。
func ParseURL(databaseURL string) (Dialect, string, error) {
	switch {
	case databaseURL == "":
		return 0, "", fmt.Errorf("database URL is empty")
	case strings.HasPrefix(databaseURL, "postgres://"), strings.HasPrefix(databaseURL, "postgresql://"):
		return Postgres, databaseURL, nil
	case strings.HasPrefix(databaseURL, "sqlite://"):
		path := strings.TrimPrefix(databaseURL, "sqlite://")
		if path == "" {
			return 0, "", fmt.Errorf("sqlite database path is empty")
		}
		return SQLite, path, nil
	case strings.Contains(databaseURL, "://"):
		return 0, "", fmt.Errorf("unsupported database URL scheme: %s", databaseURL)
	default:
		return SQLite, databaseURL, nil
	}
}

// DB は接続済みの*sql.DBとそのDialectをまとめる。
type DB struct {
	*sql.DB
	Dialect Dialect
}

// Open はデータベース接続を開く。
// PostgreSQLの場合、sql.Openは接続を試行しないため、実際の接続確認にはdb.Ping()を使用すること。
// SQLiteの場合はWALモードと外部キー制約を有効にする。
func Open(databaseURL string) (*DB, error) {
	dialect, dsn, err := ParseURL(databaseURL)
	if err != nil {
		return nil, err
	}

	if dialect == Postgres {
		db, err := sql.Open("postgres", dsn)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		return &DB{DB: db, Dialect: Postgres}, nil
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLiteは書き込みを直列化する
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=" + strconv.Itoa(5000)); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	return &DB{DB: db, Dialect: SQLite}, nil
}
