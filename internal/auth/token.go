package auth

import (
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hitoshi/gamehub/internal/model"
)

// TokenExpiry はアクセストークンの exp を署名検証せずに取り出す。
// 署名の検証は上流APIが行うため、ここでは期限切れの判定にだけ使う。
// exp を持たないトークンは ok=true かつゼロ値を返す。
func TokenExpiry(token string) (time.Time, bool) {
	if strings.Count(token, ".") != 2 {
		return time.Time{}, false
	}
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, true
	}
	return claims.ExpiresAt.Time, true
}

// TokenValid はトークンが3セグメントのJWTで、期限内かを返す。
func TokenValid(token string, now time.Time) bool {
	if token == "" {
		return false
	}
	exp, ok := TokenExpiry(token)
	if !ok {
		return false
	}
	return exp.IsZero() || exp.After(now)
}

// TokenState は1ブラウザ分のログイン状態を保持する。
// ゲートウェイから401を受けた際は Clear で破棄される。
type TokenState struct {
	mu           sync.RWMutex
	accessToken  string
	refreshToken string
	user         *model.User
	now          func() time.Time
	onClear      func()
}

// NewTokenState は未ログインのTokenStateを生成する。
func NewTokenState() *TokenState {
	return &TokenState{now: time.Now}
}

// Set はトークンとプロフィールを設定する。
func (s *TokenState) Set(accessToken, refreshToken string, user *model.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accessToken = accessToken
	s.refreshToken = refreshToken
	if user != nil {
		u := *user
		s.user = &u
	} else {
		s.user = nil
	}
}

// OnClear はトークン破棄時に呼ぶ関数を設定する。
func (s *TokenState) OnClear(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onClear = fn
}

// AccessToken はアクセストークンを返す。
func (s *TokenState) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accessToken
}

// RefreshToken はリフレッシュトークンを返す。
func (s *TokenState) RefreshToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.refreshToken
}

// IsAuthenticated はトークンがあり期限内かを返す。
func (s *TokenState) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return TokenValid(s.accessToken, s.now())
}

// IsSubscribed はログイン中かつ有料会員かを返す。
func (s *TokenState) IsSubscribed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return TokenValid(s.accessToken, s.now()) && s.user != nil && s.user.IsSubscribed
}

// CurrentUser はキャッシュ済みのプロフィールを返す。未ログインの場合はnil。
func (s *TokenState) CurrentUser() *model.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return nil
	}
	u := *s.user
	return &u
}

// Clear はトークンとプロフィールを破棄する。
func (s *TokenState) Clear() {
	s.mu.Lock()
	s.accessToken = ""
	s.refreshToken = ""
	s.user = nil
	fn := s.onClear
	s.mu.Unlock()

	if fn != nil {
		fn()
	}
}
