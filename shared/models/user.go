package models

import (
	"time"

	"github.com/google/uuid"
)

// User is the row an authenticated identity resolves to
type User struct {
	CognitoID   string     `json:"cognito_id" gorm:"column:cognito_id;type:varchar(255);primaryKey"`
	Email       string     `json:"email" gorm:"column:email;type:varchar(255);index"`
	Name        string     `json:"nome" gorm:"column:nome"`
	AvatarURL   string     `json:"avatar_url" gorm:"column:avatar_url"`
	CompanyID   uuid.UUID  `json:"empresa_id" gorm:"column:empresa_id;type:uuid;index"`
	IsMaster    bool       `json:"is_master" gorm:"column:is_master;default:false"`
	CreatedAt   time.Time  `json:"created_at" gorm:"column:created_at;default:CURRENT_TIMESTAMP"`
	LastLoginAt *time.Time `json:"last_login_at" gorm:"column:last_login_at"`
}

func (User) TableName() string {
	return "usuarios"
}
