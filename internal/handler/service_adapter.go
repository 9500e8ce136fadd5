package handler

import (
	"github.com/hitoshi/gamehub/internal/auth"
	"github.com/hitoshi/gamehub/internal/gateway"
	"github.com/hitoshi/gamehub/internal/model"
)

// AuthCredentialsAdapter は auth.Service を CredentialsProvider に適合させるアダプタ。
type AuthCredentialsAdapter struct {
	svc *auth.Service
}

// NewAuthCredentialsAdapter はAuthCredentialsAdapterを生成する。
func NewAuthCredentialsAdapter(svc *auth.Service) *AuthCredentialsAdapter {
	return &AuthCredentialsAdapter{svc: svc}
}

// Credentials はセッションからリクエスト単位の認証情報を組み立てる。
func (a *AuthCredentialsAdapter) Credentials(session *model.Session) gateway.Credentials {
	return a.svc.Credentials(session)
}
