package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/qs3c/quota_relay/internal/api/middleware"
	"github.com/qs3c/quota_relay/internal/bot"
	"github.com/qs3c/quota_relay/internal/model"
	"github.com/qs3c/quota_relay/internal/model/dto"
	"github.com/qs3c/quota_relay/internal/pkg/response"
	"github.com/qs3c/quota_relay/internal/service"
)

const defaultCommandLimit = 20

// AdminHandler 管理端接口，路由上已挂 AdminOnly
type AdminHandler struct {
	router         *bot.Router
	paymentService *service.PaymentService
	accountService *service.AccountService
}

func NewAdminHandler(router *bot.Router, paymentService *service.PaymentService, accountService *service.AccountService) *AdminHandler {
	return &AdminHandler{
		router:         router,
		paymentService: paymentService,
		accountService: accountService,
	}
}

// Grant 直接授予会员
// POST /api/v1/admin/grants
func (h *AdminHandler) Grant(c *gin.Context) {
	adminID, _ := middleware.GetUserID(c)

	var req dto.GrantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	res, err := h.router.Grant(c.Request.Context(), adminID, req.UserID, req.Days)
	if err != nil {
		respondError(c, err, res)
		return
	}
	response.Success(c, res)
}

// ListPayments 待处理的购买请求
// GET /api/v1/admin/payments
func (h *AdminHandler) ListPayments(c *gin.Context) {
	requests, err := h.paymentService.ListPending(c.Request.Context())
	if err != nil {
		respondError(c, err, nil)
		return
	}
	response.SuccessList(c, len(requests), requests)
}

// GetPayment 单个待处理请求
// GET /api/v1/admin/payments/:id
func (h *AdminHandler) GetPayment(c *gin.Context) {
	req, err := h.paymentService.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err, nil)
		return
	}
	response.Success(c, req)
}

// ResolvePayment 确认或拒绝购买请求
// POST /api/v1/admin/payments/:id/resolve
func (h *AdminHandler) ResolvePayment(c *gin.Context) {
	adminID, _ := middleware.GetUserID(c)

	var req dto.ResolvePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	res, err := h.router.Resolve(c.Request.Context(), adminID, c.Param("id"), model.PaymentAction(req.Action))
	if err != nil {
		respondError(c, err, res)
		return
	}
	response.Success(c, res)
}

// RecentCommands 用户最近的计数命令
// GET /api/v1/admin/accounts/:user_id/commands?limit=20
func (h *AdminHandler) RecentCommands(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Param("user_id"), 10, 64)
	if err != nil || userID <= 0 {
		response.ParamError(c, "invalid user_id")
		return
	}

	limit := defaultCommandLimit
	if raw := c.Query("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit <= 0 || limit > 100 {
			response.ParamError(c, "limit must be between 1 and 100")
			return
		}
	}

	logs, err := h.accountService.RecentCommands(c.Request.Context(), userID, limit)
	if err != nil {
		respondError(c, err, nil)
		return
	}
	response.SuccessList(c, len(logs), logs)
}
