package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/hitoshi/doorman/internal/model"
)

// PostgresDoubtRepo はPostgreSQLを使用した質問リポジトリ。
type PostgresDoubtRepo struct {
	db *sql.DB
}

// NewPostgresDoubtRepo はPostgresDoubtRepoを生成する。
func NewPostgresDoubtRepo(db *sql.DB) *PostgresDoubtRepo {
	return &PostgresDoubtRepo{db: db}
}

// Insert は質問を作成し、採番されたIDを返す。
func (r *PostgresDoubtRepo) Insert(ctx context.Context, authorID, question string, createdAt time.Time) (int64, error) {
	var id int64
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO doubts (author_id, question, resolved, created_at)
		 VALUES ($1, $2, false, $3)
		 RETURNING id`,
		authorID, question, createdAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert doubt: %w", err)
	}
	return id, nil
}

// FindByID は指定IDの質問を取得する。見つからない場合はnilを返す。
func (r *PostgresDoubtRepo) FindByID(ctx context.Context, id int64) (*model.Doubt, error) {
	d := &model.Doubt{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, author_id, question, resolved, resolved_by, resolved_at, created_at
		 FROM doubts WHERE id = $1`,
		id,
	).Scan(&d.ID, &d.AuthorID, &d.Question, &d.Resolved, &d.ResolvedBy, &d.ResolvedAt, &d.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find doubt by ID: %w", err)
	}

	return d, nil
}

// MarkResolved は指定IDの質問をresolved=trueにする。
// WHERE句でresolved=falseを条件に含めることで、resolved_by/resolved_atの
// 上書きを防ぐ。更新0件はfalseを返す（並行するresolveに先を越されたケース）。
func (r *PostgresDoubtRepo) MarkResolved(ctx context.Context, id int64, resolvedBy string, resolvedAt time.Time) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE doubts SET resolved = true, resolved_by = $2, resolved_at = $3
		 WHERE id = $1 AND resolved = false`,
		id, resolvedBy, resolvedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to mark doubt resolved: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// ListByAuthor は投稿者自身の質問一覧をID昇順で返す。
func (r *PostgresDoubtRepo) ListByAuthor(ctx context.Context, authorID string, filter model.DoubtFilter) ([]*model.Doubt, error) {
	query := `SELECT id, author_id, question, resolved, resolved_by, resolved_at, created_at
	          FROM doubts WHERE author_id = $1`
	switch filter {
	case model.DoubtFilterOpen:
		query += ` AND resolved = false`
	case model.DoubtFilterClosed:
		query += ` AND resolved = true`
	}
	query += ` ORDER BY id ASC`

	rows, err := r.db.QueryContext(ctx, query, authorID)
	if err != nil {
		return nil, fmt.Errorf("failed to list doubts: %w", err)
	}
	defer rows.Close()

	var doubts []*model.Doubt
	for rows.Next() {
		d := &model.Doubt{}
		if err := rows.Scan(&d.ID, &d.AuthorID, &d.Question, &d.Resolved, &d.ResolvedBy, &d.ResolvedAt, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan doubt: %w", err)
		}
		doubts = append(doubts, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate doubts: %w", err)
	}

	return doubts, nil
}

// CountsByAuthor は投稿者の質問数の内訳（total/open/closed）を返す。
// フィルタとは無関係に全件を対象に数える。
func (r *PostgresDoubtRepo) CountsByAuthor(ctx context.Context, authorID string) (model.DoubtCounts, error) {
	var counts model.DoubtCounts
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*),
		        COUNT(*) FILTER (WHERE resolved = false),
		        COUNT(*) FILTER (WHERE resolved = true)
		 FROM doubts WHERE author_id = $1`,
		authorID,
	).Scan(&counts.Total, &counts.Open, &counts.Closed)
	if err != nil {
		return model.DoubtCounts{}, fmt.Errorf("failed to count doubts: %w", err)
	}
	return counts, nil
}

// ListUnresolvedGroupedByAuthor は未解決質問を投稿者ごとにまとめて返す。
// グループはauthor_id昇順、グループ内のIDはID昇順。
func (r *PostgresDoubtRepo) ListUnresolvedGroupedByAuthor(ctx context.Context) ([]model.DoubtGroup, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT author_id, array_agg(id ORDER BY id ASC)
		 FROM doubts WHERE resolved = false
		 GROUP BY author_id
		 ORDER BY author_id ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list unresolved doubts: %w", err)
	}
	defer rows.Close()

	var groups []model.DoubtGroup
	for rows.Next() {
		var g model.DoubtGroup
		if err := rows.Scan(&g.AuthorID, pq.Array(&g.DoubtIDs)); err != nil {
			return nil, fmt.Errorf("failed to scan doubt group: %w", err)
		}
		groups = append(groups, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate doubt groups: %w", err)
	}

	return groups, nil
}

// compile-time interface check
var _ DoubtRepository = (*PostgresDoubtRepo)(nil)
