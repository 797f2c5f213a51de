package httptransport

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"codemail/backend/internal/domain"
	"codemail/backend/internal/service"
)

// verifyCodeStatus 兑换接口中未知访问码也返回 400
var verifyCodeStatus = statusOverrides{domain.ErrNotFound: http.StatusBadRequest}

// AuthHandler 处理访问码兑换与管理员登录
type AuthHandler struct {
	sessions *service.SessionService
	admin    *service.AdminService
	log      *zap.Logger
}

// NewAuthHandler 创建认证处理器
func NewAuthHandler(sessions *service.SessionService, admin *service.AdminService, log *zap.Logger) *AuthHandler {
	return &AuthHandler{sessions: sessions, admin: admin, log: log}
}

type verifyCodeRequest struct {
	Code string `json:"code" binding:"required"`
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type loginResponse struct {
	Token    string `json:"token"`
	Username string `json:"username"`
}

// VerifyCode 兑换访问码
// @Summary 兑换访问码
// @Description 兑换一次性访问码，返回用户会话令牌和首个临时邮箱
// @Tags 会话
// @Accept json
// @Produce json
// @Param request body verifyCodeRequest true "访问码"
// @Success 200 {object} service.RedeemResult
// @Failure 400 {object} ErrorResponse "访问码无效、已使用或已过期"
// @Router /api/verify-code [post]
func (h *AuthHandler) VerifyCode(c *gin.Context) {
	var req verifyCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, MsgInvalidRequest)
		return
	}

	result, err := h.sessions.Redeem(c.Request.Context(), req.Code)
	if err != nil {
		writeError(c, h.log, err, verifyCodeStatus)
		return
	}
	c.JSON(http.StatusOK, result)
}

// AdminLogin 管理员登录
// @Summary 管理员登录
// @Tags 管理
// @Accept json
// @Produce json
// @Param request body loginRequest true "凭据"
// @Success 200 {object} loginResponse
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse "用户名或密码错误"
// @Router /api/admin/login [post]
func (h *AuthHandler) AdminLogin(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, MsgInvalidRequest)
		return
	}

	result, err := h.admin.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		writeError(c, h.log, err, nil)
		return
	}
	c.JSON(http.StatusOK, loginResponse{Token: result.Token, Username: result.Username})
}
