package httptransport

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"codemail/backend/internal/domain"
	"codemail/backend/internal/middleware"
	"codemail/backend/internal/service"
)

// MessageHandler 处理邮件读取、删除与模拟投递
type MessageHandler struct {
	messages *service.MessageService
	log      *zap.Logger
}

// NewMessageHandler 创建邮件处理器
func NewMessageHandler(messages *service.MessageService, log *zap.Logger) *MessageHandler {
	return &MessageHandler{messages: messages, log: log}
}

type mockEmailRequest struct {
	ToEmail   string `json:"to_email" binding:"required"`
	FromEmail string `json:"from_email"`
	Subject   string `json:"subject"`
	Body      string `json:"body"`
}

type mockEmailResponse struct {
	Message string `json:"message"`
	ID      string `json:"id"`
}

// List 列出当前会话所有邮箱的邮件，最新的在前
// @Summary 邮件列表
// @Tags 邮件
// @Produce json
// @Security BearerAuth
// @Success 200 {array} domain.Message
// @Failure 401 {object} ErrorResponse
// @Router /api/messages [get]
func (h *MessageHandler) List(c *gin.Context) {
	session, _ := middleware.GetSession(c)

	messages, err := h.messages.ListForSession(c.Request.Context(), session.Subject)
	if err != nil {
		writeError(c, h.log, err, nil)
		return
	}
	if messages == nil {
		messages = []domain.Message{}
	}
	c.JSON(http.StatusOK, messages)
}

// Get 读取邮件并标记为已读
// @Summary 邮件详情
// @Tags 邮件
// @Produce json
// @Security BearerAuth
// @Param id path string true "邮件ID"
// @Success 200 {object} domain.Message
// @Failure 401 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/messages/{id} [get]
func (h *MessageHandler) Get(c *gin.Context) {
	session, _ := middleware.GetSession(c)

	message, err := h.messages.Get(c.Request.Context(), c.Param("id"), session.Subject)
	if err != nil {
		writeError(c, h.log, err, nil)
		return
	}
	c.JSON(http.StatusOK, message)
}

// Delete 删除邮件
// @Summary 删除邮件
// @Tags 邮件
// @Produce json
// @Security BearerAuth
// @Param id path string true "邮件ID"
// @Success 200 {object} MessageResponse
// @Failure 401 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/messages/{id} [delete]
func (h *MessageHandler) Delete(c *gin.Context) {
	session, _ := middleware.GetSession(c)

	if err := h.messages.Delete(c.Request.Context(), c.Param("id"), session.Subject); err != nil {
		writeError(c, h.log, err, nil)
		return
	}
	c.JSON(http.StatusOK, MessageResponse{Message: "deleted"})
}

// MockEmail 模拟投递一封邮件，供内部测试使用
// @Summary 模拟投递
// @Tags 邮件
// @Accept json
// @Produce json
// @Param request body mockEmailRequest true "邮件内容"
// @Success 200 {object} mockEmailResponse
// @Failure 400 {object} ErrorResponse "邮箱已过期"
// @Failure 404 {object} ErrorResponse "邮箱不存在"
// @Router /api/mock-email [post]
func (h *MessageHandler) MockEmail(c *gin.Context) {
	var req mockEmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, MsgInvalidRequest)
		return
	}

	message, err := h.messages.Deliver(c.Request.Context(), service.DeliverInput{
		To:      req.ToEmail,
		From:    req.FromEmail,
		Subject: req.Subject,
		Body:    req.Body,
	})
	if err != nil {
		writeError(c, h.log, err, nil)
		return
	}
	c.JSON(http.StatusOK, mockEmailResponse{Message: "Email received", ID: message.ID})
}
