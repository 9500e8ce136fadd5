package auth

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hitoshi/gamehub/internal/model"
	"github.com/hitoshi/gamehub/internal/repository"
)

// signedToken はexpを持つテスト用JWTを生成する。exp がゼロ値ならexpを含めない。
func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	claims := jwt.RegisteredClaims{Subject: "user-1"}
	if !exp.IsZero() {
		claims.ExpiresAt = jwt.NewNumericDate(exp)
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("テスト用トークンの生成に失敗: %v", err)
	}
	return token
}

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

type mockSessionRepo struct {
	createFn             func(ctx context.Context, session *model.Session) error
	findByIDFn           func(ctx context.Context, id string) (*model.Session, error)
	updateSubscriptionFn func(ctx context.Context, id string, isSubscribed bool) error
	deleteByIDFn         func(ctx context.Context, id string) error
}

func (m *mockSessionRepo) Create(ctx context.Context, session *model.Session) error {
	if m.createFn != nil {
		return m.createFn(ctx, session)
	}
	return nil
}

func (m *mockSessionRepo) FindByID(ctx context.Context, id string) (*model.Session, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockSessionRepo) UpdateSubscription(ctx context.Context, id string, isSubscribed bool) error {
	if m.updateSubscriptionFn != nil {
		return m.updateSubscriptionFn(ctx, id, isSubscribed)
	}
	return nil
}

func (m *mockSessionRepo) DeleteByID(ctx context.Context, id string) error {
	if m.deleteByIDFn != nil {
		return m.deleteByIDFn(ctx, id)
	}
	return nil
}

func (m *mockSessionRepo) DeleteByUsername(_ context.Context, _ string) error { return nil }

func (m *mockSessionRepo) DeleteExpired(_ context.Context, _ time.Time) (int64, error) {
	return 0, nil
}

type mockAuthenticator struct {
	loginFn   func(ctx context.Context, username, password string) (*LoginResult, error)
	profileFn func(ctx context.Context, accessToken string) (*model.User, error)
}

func (m *mockAuthenticator) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	if m.loginFn != nil {
		return m.loginFn(ctx, username, password)
	}
	return nil, model.NewInvalidCredentialsError()
}

func (m *mockAuthenticator) Profile(ctx context.Context, accessToken string) (*model.User, error) {
	if m.profileFn != nil {
		return m.profileFn(ctx, accessToken)
	}
	return nil, model.NewUnauthenticatedError()
}

var _ repository.SessionRepository = (*mockSessionRepo)(nil)
var _ Authenticator = (*mockAuthenticator)(nil)
var _ Authenticator = (*Client)(nil)
