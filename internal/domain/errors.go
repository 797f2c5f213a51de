package domain

import "errors"

// 业务错误分类。服务层用 %w 包装，传输层用 errors.Is 判定。
var (
	// ErrNotFound 访问码、邮箱或邮件不存在
	ErrNotFound = errors.New("not found")
	// ErrAlreadyUsed 访问码已被兑换
	ErrAlreadyUsed = errors.New("already used")
	// ErrExpired 访问码、会话或邮箱已过期
	ErrExpired = errors.New("expired")
	// ErrInvalid 令牌签名或结构无效
	ErrInvalid = errors.New("invalid")
	// ErrUnauthorized 凭证错误
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden 角色不符
	ErrForbidden = errors.New("forbidden")
	// ErrInvalidInput 请求参数不合法
	ErrInvalidInput = errors.New("invalid input")
)

// Error 带客户端可见消息的业务错误，Kind 为上面的分类之一
type Error struct {
	Kind    error
	Message string
}

// NewError 创建业务错误
func NewError(kind error, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func (e *Error) Error() string { return e.Message }

// Unwrap 支持 errors.Is(err, ErrNotFound) 等判定
func (e *Error) Unwrap() error { return e.Kind }
