package repository

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresAllowlistRepo はPostgreSQLを使用した許可リストリポジトリ。
type PostgresAllowlistRepo struct {
	db *sql.DB
}

// NewPostgresAllowlistRepo はPostgresAllowlistRepoを生成する。
func NewPostgresAllowlistRepo(db *sql.DB) *PostgresAllowlistRepo {
	return &PostgresAllowlistRepo{db: db}
}

// Exists は指定メールアドレスが許可リストに存在するかを返す。
func (r *PostgresAllowlistRepo) Exists(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM allowed_emails WHERE email = $1)`,
		email,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check allowlist: %w", err)
	}
	return exists, nil
}

// compile-time interface check
var _ AllowlistRepository = (*PostgresAllowlistRepo)(nil)
