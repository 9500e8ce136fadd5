// Package model はドメインモデルを定義する。
package model

import "time"

// User は上流APIが返すログインユーザーのプロフィール。
type User struct {
	ID                string     `json:"_id"`
	Username          string     `json:"username"`
	Email             string     `json:"email,omitempty"`
	IsSubscribed      bool       `json:"isSubscribed"`
	PremiumExpiryDate *time.Time `json:"premiumExpiryDate,omitempty"`
}

// Session はブラウザごとのログインセッションを表す。
// 上流APIのトークンはサーバー側にだけ保持し、ブラウザにはセッションIDのみを渡す。
type Session struct {
	ID           string
	AccessToken  string
	RefreshToken string
	Username     string
	IsSubscribed bool
	ExpiresAt    time.Time
	CreatedAt    time.Time
}
