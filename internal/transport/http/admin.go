package httptransport

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"codemail/backend/internal/domain"
	"codemail/backend/internal/middleware"
	"codemail/backend/internal/service"
)

// AdminHandler 处理访问码管理与统计
type AdminHandler struct {
	codes *service.CodeService
	admin *service.AdminService
	log   *zap.Logger
}

// NewAdminHandler 创建管理处理器
func NewAdminHandler(codes *service.CodeService, admin *service.AdminService, log *zap.Logger) *AdminHandler {
	return &AdminHandler{codes: codes, admin: admin, log: log}
}

type generateCodeRequest struct {
	ExpiryHours int `json:"expiry_hours"`
}

// GenerateCode 签发访问码，未指定有效期时使用默认值
// @Summary 签发访问码
// @Tags 管理
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body generateCodeRequest false "有效期（小时）"
// @Success 200 {object} domain.AccessCode
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Router /api/admin/generate-code [post]
func (h *AdminHandler) GenerateCode(c *gin.Context) {
	var req generateCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		badRequest(c, MsgInvalidRequest)
		return
	}

	session, _ := middleware.GetSession(c)
	code, err := h.codes.Issue(c.Request.Context(), req.ExpiryHours, session.Username)
	if err != nil {
		writeError(c, h.log, err, nil)
		return
	}
	c.JSON(http.StatusOK, code)
}

// ListCodes 列出全部访问码，最新的在前
// @Summary 访问码列表
// @Tags 管理
// @Produce json
// @Security BearerAuth
// @Success 200 {array} domain.AccessCode
// @Failure 401 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Router /api/admin/codes [get]
func (h *AdminHandler) ListCodes(c *gin.Context) {
	codes, err := h.codes.List(c.Request.Context())
	if err != nil {
		writeError(c, h.log, err, nil)
		return
	}
	if codes == nil {
		codes = []domain.AccessCode{}
	}
	c.JSON(http.StatusOK, codes)
}

// RevokeCode 吊销访问码
// @Summary 吊销访问码
// @Tags 管理
// @Produce json
// @Security BearerAuth
// @Param id path string true "访问码ID"
// @Success 200 {object} MessageResponse
// @Failure 401 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/admin/codes/{id} [delete]
func (h *AdminHandler) RevokeCode(c *gin.Context) {
	if err := h.codes.Revoke(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, h.log, err, nil)
		return
	}
	c.JSON(http.StatusOK, MessageResponse{Message: "revoked"})
}

// Stats 统计数据
// @Summary 统计
// @Tags 管理
// @Produce json
// @Security BearerAuth
// @Success 200 {object} domain.Statistics
// @Failure 401 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Router /api/admin/stats [get]
func (h *AdminHandler) Stats(c *gin.Context) {
	stats, err := h.admin.Stats(c.Request.Context())
	if err != nil {
		writeError(c, h.log, err, nil)
		return
	}
	c.JSON(http.StatusOK, stats)
}
