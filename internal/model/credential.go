package model

import "time"

// CloudAccount 用户录入的云账号, Provider 为 aws / aliyun 等
type CloudAccount struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID    int64     `gorm:"not null;index" json:"user_id"`
	Name      string    `gorm:"size:128" json:"name"`
	Provider  string    `gorm:"size:32;not null" json:"provider"`
	Config    JSONMap   `json:"config"`
	IsActive  bool      `gorm:"not null" json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (CloudAccount) TableName() string { return "cloud_accounts" }

// UserProviderConfig 用户在某个云厂商下的默认配置
type UserProviderConfig struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID    int64     `gorm:"not null;index" json:"user_id"`
	Provider  string    `gorm:"size:32;not null" json:"provider"`
	Config    JSONMap   `json:"config"`
	IsActive  bool      `gorm:"not null" json:"is_active"`
	IsDefault bool      `gorm:"not null" json:"is_default"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (UserProviderConfig) TableName() string { return "user_provider_configs" }

type AIConfig struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID    int64     `gorm:"not null;index" json:"user_id"`
	Provider  string    `gorm:"size:32" json:"provider"`
	Model     string    `gorm:"size:64" json:"model"`
	APIKey    string    `gorm:"size:256" json:"-"`
	BaseURL   string    `gorm:"size:256" json:"base_url"`
	Enabled   bool      `gorm:"not null" json:"enabled"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (AIConfig) TableName() string { return "ai_configs" }
