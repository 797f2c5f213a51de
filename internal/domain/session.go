package domain

import "time"

// Role 会话角色
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Session 从已验证令牌中还原出的会话，不落库。
//
// 用户会话的 Subject 是访问码 ID，ExpiresAt 与访问码过期时间一致；
// 管理员会话的 Subject 是管理员 ID。
type Session struct {
	Subject   string
	Role      Role
	Email     string
	Username  string
	ExpiresAt time.Time
}
