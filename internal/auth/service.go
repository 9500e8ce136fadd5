// Package auth は上流APIへのログイン、トークン状態、BFFのセッション管理を提供する。
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/gamehub/internal/model"
	"github.com/hitoshi/gamehub/internal/repository"
)

// Authenticator は上流APIの認証エンドポイントを抽象化する。
type Authenticator interface {
	Login(ctx context.Context, username, password string) (*LoginResult, error)
	Profile(ctx context.Context, accessToken string) (*model.User, error)
}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	SessionMaxAge int // セッション有効期間（秒）
}

// Service はBFFのログインセッションに関するビジネスロジックを提供する。
// 上流のトークンはsessionsテーブルにだけ保存し、ブラウザにはセッションIDを返す。
type Service struct {
	upstream    Authenticator
	sessionRepo repository.SessionRepository
	config      ServiceConfig
	logger      *slog.Logger
	now         func() time.Time
}

// NewService はServiceを生成する。
func NewService(
	upstream Authenticator,
	sessionRepo repository.SessionRepository,
	config ServiceConfig,
	logger *slog.Logger,
) *Service {
	return &Service{
		upstream:    upstream,
		sessionRepo: sessionRepo,
		config:      config,
		logger:      logger,
		now:         time.Now,
	}
}

// Login は上流APIでログインし、セッションを発行する。
// セッションの期限はSessionMaxAgeとトークンのexpのうち早い方。
func (s *Service) Login(ctx context.Context, username, password string) (*model.Session, *model.User, error) {
	result, err := s.upstream.Login(ctx, username, password)
	if err != nil {
		return nil, nil, err
	}

	now := s.now()
	if !TokenValid(result.AccessToken, now) {
		s.logger.Warn("received an expired or malformed access token", slog.String("username", username))
		return nil, nil, model.NewServerError(model.EndpointAuth, errors.New("invalid access token"))
	}

	sessionID, err := generateSessionID()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate session ID: %w", err)
	}

	expiresAt := now.Add(time.Duration(s.config.SessionMaxAge) * time.Second)
	if exp, _ := TokenExpiry(result.AccessToken); !exp.IsZero() && exp.Before(expiresAt) {
		expiresAt = exp
	}

	user := result.User
	if user.Username == "" {
		user.Username = username
	}
	session := &model.Session{
		ID:           sessionID,
		AccessToken:  result.AccessToken,
		RefreshToken: result.RefreshToken,
		Username:     user.Username,
		IsSubscribed: user.IsSubscribed,
		ExpiresAt:    expiresAt,
		CreatedAt:    now,
	}
	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, nil, fmt.Errorf("failed to save session: %w", err)
	}

	s.logger.Info("user logged in",
		slog.String("username", user.Username),
		slog.Bool("is_subscribed", user.IsSubscribed),
	)
	return session, &user, nil
}

// Logout はセッションを破棄する。
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return model.NewInvalidArgumentError("セッションIDが指定されていません")
	}

	if err := s.sessionRepo.DeleteByID(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	s.logger.Info("user logged out")
	return nil
}

// FindSession はセッションIDからセッションを取得する。未登録や期限切れの場合はnil。
func (s *Service) FindSession(ctx context.Context, sessionID string) (*model.Session, error) {
	if sessionID == "" {
		return nil, nil
	}
	session, err := s.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	return session, nil
}

// CurrentUser はセッションの持ち主のプロフィールを上流から取り直す。
// 上流が401を返した場合はセッションを削除してUnauthenticatedを返す。
// 上流に到達できない場合はセッションに保存済みの情報で応答する。
func (s *Service) CurrentUser(ctx context.Context, session *model.Session) (*model.User, error) {
	if session == nil {
		return nil, model.NewUnauthenticatedError()
	}

	user, err := s.upstream.Profile(ctx, session.AccessToken)
	if errors.Is(err, model.ErrUnauthenticated) {
		if delErr := s.sessionRepo.DeleteByID(ctx, session.ID); delErr != nil {
			s.logger.Error("failed to delete rejected session", slog.String("error", delErr.Error()))
		}
		return nil, err
	}
	if err != nil {
		s.logger.Warn("profile refresh failed, using stored session",
			slog.String("username", session.Username),
			slog.String("error", err.Error()),
		)
		return &model.User{Username: session.Username, IsSubscribed: session.IsSubscribed}, nil
	}

	if user.IsSubscribed != session.IsSubscribed {
		if err := s.sessionRepo.UpdateSubscription(ctx, session.ID, user.IsSubscribed); err != nil {
			return nil, fmt.Errorf("failed to update subscription: %w", err)
		}
		session.IsSubscribed = user.IsSubscribed
	}
	return user, nil
}

// Credentials はセッションからリクエスト単位のTokenStateを組み立てる。
// ゲートウェイが401でClearした場合はセッションも削除する。
func (s *Service) Credentials(session *model.Session) *TokenState {
	state := NewTokenState()
	state.now = s.now
	if session == nil {
		return state
	}
	state.Set(session.AccessToken, session.RefreshToken, &model.User{
		Username:     session.Username,
		IsSubscribed: session.IsSubscribed,
	})
	sessionID := session.ID
	state.OnClear(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.sessionRepo.DeleteByID(ctx, sessionID); err != nil {
			s.logger.Error("failed to delete session after 401", slog.String("error", err.Error()))
		}
	})
	return state
}

// generateSessionID は暗号的に安全なセッションIDを生成する。
func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
