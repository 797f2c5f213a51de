package httptransport

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"codemail/backend/internal/domain"
)

// 通用错误消息
const (
	MsgInvalidRequest = "Invalid request"
	MsgInternalError  = "Internal server error"
)

// ErrorResponse 错误响应结构
type ErrorResponse struct {
	Error string `json:"error"`
}

// MessageResponse 仅含提示信息的响应
type MessageResponse struct {
	Message string `json:"message"`
}

// statusOverrides 按接口覆盖默认状态码
type statusOverrides map[error]int

// statusFor 将业务错误分类映射为 HTTP 状态码
func statusFor(err error, overrides statusOverrides) int {
	for kind, status := range overrides {
		if errors.Is(err, kind) {
			return status
		}
	}

	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrAlreadyUsed),
		errors.Is(err, domain.ErrExpired),
		errors.Is(err, domain.ErrInvalid),
		errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// messageFor 返回客户端可见的错误消息，未分类的错误不暴露细节
func messageFor(err error, status int) string {
	var de *domain.Error
	if errors.As(err, &de) {
		return de.Message
	}
	if status == http.StatusInternalServerError {
		return MsgInternalError
	}
	return err.Error()
}

// writeError 写出 {"error": "..."} 响应
func writeError(c *gin.Context, log *zap.Logger, err error, overrides statusOverrides) {
	status := statusFor(err, overrides)
	if status == http.StatusInternalServerError {
		log.Error("request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
	}
	c.JSON(status, ErrorResponse{Error: messageFor(err, status)})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: msg})
}
