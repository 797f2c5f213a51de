package domain

import (
	"time"
)

// Mailbox 绑定到会话的临时邮箱地址。创建后只读，过期时间与会话一致。
type Mailbox struct {
	ID        string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Address   string    `json:"email_address" gorm:"type:varchar(255);uniqueIndex;not null"`
	SessionID string    `json:"-" gorm:"type:varchar(36);index;not null"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at" gorm:"index"`
}

// TableName 指定表名
func (Mailbox) TableName() string { return "mailboxes" }

// IsExpired 判断邮箱在 now 时刻是否已过期
func (m *Mailbox) IsExpired(now time.Time) bool {
	return now.After(m.ExpiresAt)
}
