package httptransport

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"codemail/backend/internal/domain"
	"codemail/backend/internal/middleware"
	"codemail/backend/internal/service"
)

// MailboxHandler 处理会话邮箱
type MailboxHandler struct {
	mailboxes *service.MailboxService
	log       *zap.Logger
}

// NewMailboxHandler 创建邮箱处理器
func NewMailboxHandler(mailboxes *service.MailboxService, log *zap.Logger) *MailboxHandler {
	return &MailboxHandler{mailboxes: mailboxes, log: log}
}

// Generate 为当前会话创建新邮箱
// @Summary 生成临时邮箱
// @Description 新邮箱的过期时间与会话一致
// @Tags 邮箱
// @Produce json
// @Security BearerAuth
// @Success 200 {object} domain.Mailbox
// @Failure 401 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Router /api/email/generate [post]
func (h *MailboxHandler) Generate(c *gin.Context) {
	session, _ := middleware.GetSession(c)

	mailbox, err := h.mailboxes.CreateForSession(c.Request.Context(), session)
	if err != nil {
		writeError(c, h.log, err, nil)
		return
	}
	c.JSON(http.StatusOK, mailbox)
}

// List 列出当前会话的邮箱
// @Summary 邮箱列表
// @Tags 邮箱
// @Produce json
// @Security BearerAuth
// @Success 200 {array} domain.Mailbox
// @Failure 401 {object} ErrorResponse
// @Router /api/emails [get]
func (h *MailboxHandler) List(c *gin.Context) {
	session, _ := middleware.GetSession(c)

	mailboxes, err := h.mailboxes.ListForSession(c.Request.Context(), session.Subject)
	if err != nil {
		writeError(c, h.log, err, nil)
		return
	}
	if mailboxes == nil {
		mailboxes = []domain.Mailbox{}
	}
	c.JSON(http.StatusOK, mailboxes)
}
