package model

import "time"

type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

// ユーザー（認証側が管理。ここでは参照のみ）
type User struct {
	ID           int64  `gorm:"primaryKey;autoIncrement"`
	Email        string `gorm:"uniqueIndex;not null"`
	Role         Role   `gorm:"type:varchar(20);not null;default:'USER'"`
	TokenVersion int    `gorm:"not null;default:0"`
	IsActive     bool   `gorm:"not null;default:true"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
