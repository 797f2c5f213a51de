package domain

import "time"

// AccessCode 一次性访问码。兑换后 Used 不可回退。
type AccessCode struct {
	ID        string     `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Code      string     `json:"code" gorm:"type:varchar(16);uniqueIndex;not null"`
	CreatedAt time.Time  `json:"created_at" gorm:"index"`
	ExpiresAt time.Time  `json:"expires_at" gorm:"index"`
	Used      bool       `json:"used" gorm:"default:false;index"`
	UsedAt    *time.Time `json:"used_at"`
	CreatedBy string     `json:"created_by,omitempty" gorm:"type:varchar(255)"`
}

// TableName 指定表名
func (AccessCode) TableName() string { return "access_codes" }

// IsExpired 判断访问码在 now 时刻是否已过期
func (c *AccessCode) IsExpired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}
