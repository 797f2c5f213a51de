package domain

import "time"

// Message 投递到临时邮箱的一封邮件。
type Message struct {
	ID          string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	ToAddress   string    `json:"to_email" gorm:"type:varchar(255);index;not null"`
	FromAddress string    `json:"from_email" gorm:"type:varchar(255)"`
	Subject     string    `json:"subject" gorm:"type:varchar(500)"`
	Body        string    `json:"body" gorm:"type:text"`
	ReceivedAt  time.Time `json:"received_at" gorm:"index"`
	IsRead      bool      `json:"is_read" gorm:"default:false"`
}

// TableName 指定表名
func (Message) TableName() string { return "messages" }
