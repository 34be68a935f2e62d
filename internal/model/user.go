// Package model はドメインモデルを定義する。
package model

import "time"

// User はサービス利用ユーザーを表す。
// IDはIdPが発行したsubクレームをそのまま使う。
type User struct {
	ID        string
	Email     string
	Name      *string // 未設定の場合はnil
	CreatedAt time.Time
	UpdatedAt time.Time
}
