package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/doorman/internal/model"
)

// PostgresVerificationRepo はPostgreSQLを使用した照合状態リポジトリ。
type PostgresVerificationRepo struct {
	db *sql.DB
}

// NewPostgresVerificationRepo はPostgresVerificationRepoを生成する。
func NewPostgresVerificationRepo(db *sql.DB) *PostgresVerificationRepo {
	return &PostgresVerificationRepo{db: db}
}

// Upsert は照合行をdiscord_idをキーにUPSERTする。
// 既存行のemail・otp_code・otp_expires_atは丸ごと上書きされ、旧コードは即時無効になる。
// verifiedは既存の値を維持する。
func (r *PostgresVerificationRepo) Upsert(ctx context.Context, v *model.Verification) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO verifications (discord_id, email, otp_code, otp_expires_at, verified, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, false, $5, $5)
		 ON CONFLICT (discord_id) DO UPDATE SET
		   email = EXCLUDED.email,
		   otp_code = EXCLUDED.otp_code,
		   otp_expires_at = EXCLUDED.otp_expires_at,
		   updated_at = EXCLUDED.updated_at`,
		v.DiscordID, v.Email, v.OTPCode, v.OTPExpiresAt, v.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert verification: %w", err)
	}
	return nil
}

// FindByEmail は指定メールアドレスの照合行を取得する。見つからない場合はnilを返す。
func (r *PostgresVerificationRepo) FindByEmail(ctx context.Context, email string) (*model.Verification, error) {
	v := &model.Verification{}
	err := r.db.QueryRowContext(ctx,
		`SELECT discord_id, email, otp_code, otp_expires_at, verified, created_at, updated_at
		 FROM verifications WHERE email = $1`,
		email,
	).Scan(&v.DiscordID, &v.Email, &v.OTPCode, &v.OTPExpiresAt, &v.Verified, &v.CreatedAt, &v.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find verification by email: %w", err)
	}

	return v, nil
}

// FindByDiscordID は指定discord_idの照合行を取得する。見つからない場合はnilを返す。
func (r *PostgresVerificationRepo) FindByDiscordID(ctx context.Context, discordID string) (*model.Verification, error) {
	v := &model.Verification{}
	err := r.db.QueryRowContext(ctx,
		`SELECT discord_id, email, otp_code, otp_expires_at, verified, created_at, updated_at
		 FROM verifications WHERE discord_id = $1`,
		discordID,
	).Scan(&v.DiscordID, &v.Email, &v.OTPCode, &v.OTPExpiresAt, &v.Verified, &v.CreatedAt, &v.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find verification by discord id: %w", err)
	}

	return v, nil
}

// FindValidByIDAndCode はdiscord_idとコードが一致し、かつ期限内の行を取得する。
// 該当なしの場合はnilを返す。期限判定はSQL側の比較（otp_expires_at > $3）で行う。
func (r *PostgresVerificationRepo) FindValidByIDAndCode(ctx context.Context, discordID, code string, now time.Time) (*model.Verification, error) {
	v := &model.Verification{}
	err := r.db.QueryRowContext(ctx,
		`SELECT discord_id, email, otp_code, otp_expires_at, verified, created_at, updated_at
		 FROM verifications
		 WHERE discord_id = $1 AND otp_code = $2 AND otp_expires_at > $3`,
		discordID, code, now,
	).Scan(&v.DiscordID, &v.Email, &v.OTPCode, &v.OTPExpiresAt, &v.Verified, &v.CreatedAt, &v.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find verification by id and code: %w", err)
	}

	return v, nil
}

// MarkVerified は指定discord_idの行をverified=trueにする。冪等。
func (r *PostgresVerificationRepo) MarkVerified(ctx context.Context, discordID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE verifications SET verified = true, updated_at = now() WHERE discord_id = $1`,
		discordID,
	)
	if err != nil {
		return fmt.Errorf("failed to mark verified: %w", err)
	}
	return nil
}

// compile-time interface check
var _ VerificationRepository = (*PostgresVerificationRepo)(nil)
