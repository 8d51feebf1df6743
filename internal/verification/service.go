// Package verification はメール所有確認によるアカウント認証のドメインロジックを提供する。
//
// アカウントごとの状態遷移は 未登録 → コード発行済み → 認証済み の一方向。
// コードは6桁数字・有効期限5分（設定可変）・アカウントごとに常に1つで、
// 再発行すると旧コードは即時無効になる。
package verification

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hitoshi/doorman/internal/model"
	"github.com/hitoshi/doorman/internal/repository"
)

// MailSender はOTPコードのメール送信インターフェース。
type MailSender interface {
	// SendOTP は指定アドレスへOTPコードを送信する。内部リトライは行わない。
	SendOTP(ctx context.Context, to, code string) error
}

// RoleGranter は認証完了ロールの付与インターフェース。
type RoleGranter interface {
	// GrantRole は指定ギルドのメンバーへロールを名前で付与する。
	// ロールが存在しない場合は (false, nil) を返す（付与スキップ、エラーではない）。
	GrantRole(ctx context.Context, guildID, discordID, roleName string) (bool, error)
}

// ServiceConfig はServiceの設定を保持する。
type ServiceConfig struct {
	OTPTTL   time.Duration // OTPコードの有効期間
	RoleName string        // 認証完了時に付与するロール名
}

// Service はメール照合ワークフローのサービス層。
type Service struct {
	allowRepo repository.AllowlistRepository
	verifRepo repository.VerificationRepository
	mailer    MailSender
	roles     RoleGranter
	config    ServiceConfig

	now func() time.Time // テスト用に差し替え可能
}

// NewService はServiceの新しいインスタンスを生成する。
// OTPTTLが0以下の場合はデフォルト値5分を使用する。
// RoleNameが空の場合はデフォルト値"Member"を使用する。
func NewService(
	allowRepo repository.AllowlistRepository,
	verifRepo repository.VerificationRepository,
	mailer MailSender,
	roles RoleGranter,
	config ServiceConfig,
) *Service {
	if config.OTPTTL <= 0 {
		config.OTPTTL = 5 * time.Minute
	}
	if config.RoleName == "" {
		config.RoleName = "Member"
	}
	return &Service{
		allowRepo: allowRepo,
		verifRepo: verifRepo,
		mailer:    mailer,
		roles:     roles,
		config:    config,
		now:       time.Now,
	}
}

// RequestResult はRequestCodeの成功結果を表す。
type RequestResult struct {
	Email     string
	ExpiresAt time.Time
	TTL       time.Duration // 発行時点の有効期間。返信文の案内に使用する
}

// RequestCode はOTPコードを発行し、メールで送信する。
//
// 検証順序: メール形式 → 許可リスト → 別アカウントへの紐付け有無 → 自アカウントの認証状態。
// 認証済みアカウントからの別アドレス指定は拒否する（紐付けの変更は不可）。
// 許可リスト外と紐付け済みは同一のBotErrorを返し、アドレスの状況を漏らさない。
// 行の保存とメール送信は独立した2段階で、保存後の送信失敗は
// MAIL_DELIVERY_FAILED として返す（行はロールバックしない。再実行で上書きされる）。
func (s *Service) RequestCode(ctx context.Context, discordID, email string) (*RequestResult, error) {
	if !strings.Contains(email, "@") {
		return nil, model.NewInvalidEmailError()
	}

	allowed, err := s.allowRepo.Exists(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("許可リストの確認に失敗しました: %w", err)
	}
	if !allowed {
		return nil, model.NewNotAuthorizedError()
	}

	// 同一メールアドレスが別アカウントに紐付け済みの場合は拒否する。
	// 紐付け先の上書きを許すと、次の照合成功がどのアカウントを認証するかが
	// 発行者側の操作で静かにすり替わってしまう。
	existing, err := s.verifRepo.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("照合状態の取得に失敗しました: %w", err)
	}
	if existing != nil && existing.DiscordID != discordID {
		return nil, model.NewNotAuthorizedError()
	}

	// 認証済みアカウントは紐付けアドレスを変更できない。
	// UPSERTはverifiedを維持するため、変更を許すとOTPを一度も消費していない
	// アドレスが認証済みとして行に載ってしまう。
	own, err := s.verifRepo.FindByDiscordID(ctx, discordID)
	if err != nil {
		return nil, fmt.Errorf("照合状態の取得に失敗しました: %w", err)
	}
	if own != nil && own.Verified && own.Email != email {
		return nil, model.NewNotAuthorizedError()
	}

	code, err := GenerateOTP()
	if err != nil {
		return nil, fmt.Errorf("OTPコードの生成に失敗しました: %w", err)
	}

	now := s.now()
	expiresAt := now.Add(s.config.OTPTTL)

	v := &model.Verification{
		DiscordID:    discordID,
		Email:        email,
		OTPCode:      code,
		OTPExpiresAt: expiresAt,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.verifRepo.Upsert(ctx, v); err != nil {
		return nil, fmt.Errorf("照合状態の保存に失敗しました: %w", err)
	}

	if err := s.mailer.SendOTP(ctx, email, code); err != nil {
		// 行は保存済みのためコードは有効なまま。再実行で新コードに上書きされる。
		slog.Error("OTPメールの送信に失敗しました",
			slog.String("discord_id", discordID),
			slog.String("error", err.Error()),
		)
		return nil, model.NewMailDeliveryFailedError()
	}

	slog.Info("OTPコードを発行しました",
		slog.String("discord_id", discordID),
		slog.Time("expires_at", expiresAt),
	)

	return &RequestResult{Email: email, ExpiresAt: expiresAt, TTL: s.config.OTPTTL}, nil
}

// ConsumeResult はConsumeCodeの成功結果を表す。
// RoleGrantedがfalseの場合は認証自体は成功しているが、
// ロール付与がスキップまたは失敗した縮退成功を表す。
type ConsumeResult struct {
	Email       string
	RoleGranted bool
}

// ConsumeCode はOTPコードを照合し、アカウントを認証済みにする。
//
// コード不一致と期限切れは区別せずINVALID_OR_EXPIREDを返す。
// ロール付与は認証確定後のベストエフォート副作用で、
// 失敗しても認証は成立する（結果のRoleGrantedで縮退を通知する）。
func (s *Service) ConsumeCode(ctx context.Context, discordID, guildID, code string) (*ConsumeResult, error) {
	v, err := s.verifRepo.FindValidByIDAndCode(ctx, discordID, code, s.now())
	if err != nil {
		return nil, fmt.Errorf("照合状態の取得に失敗しました: %w", err)
	}
	if v == nil {
		return nil, model.NewInvalidOrExpiredError()
	}

	if err := s.verifRepo.MarkVerified(ctx, discordID); err != nil {
		return nil, fmt.Errorf("認証済みフラグの更新に失敗しました: %w", err)
	}

	granted := false
	if s.roles != nil {
		granted, err = s.roles.GrantRole(ctx, guildID, discordID, s.config.RoleName)
		if err != nil {
			slog.Error("ロール付与に失敗しました",
				slog.String("discord_id", discordID),
				slog.String("guild_id", guildID),
				slog.String("role", s.config.RoleName),
				slog.String("error", err.Error()),
			)
			granted = false
		}
	}

	slog.Info("アカウントを認証しました",
		slog.String("discord_id", discordID),
		slog.Bool("role_granted", granted),
	)

	return &ConsumeResult{Email: v.Email, RoleGranted: granted}, nil
}
