package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/qs3c/quota_relay/internal/api/middleware"
	"github.com/qs3c/quota_relay/internal/pkg/response"
	"github.com/qs3c/quota_relay/internal/service"
)

type QuotaHandler struct {
	quotaService *service.QuotaService
	adminUserID  int64
}

func NewQuotaHandler(quotaService *service.QuotaService, adminUserID int64) *QuotaHandler {
	return &QuotaHandler{
		quotaService: quotaService,
		adminUserID:  adminUserID,
	}
}

// GetQuota 查询用户额度，只能查自己，管理员可查任何人
// GET /api/v1/accounts/:user_id/quota
func (h *QuotaHandler) GetQuota(c *gin.Context) {
	callerID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	userID, err := strconv.ParseInt(c.Param("user_id"), 10, 64)
	if err != nil || userID <= 0 {
		response.ParamError(c, "invalid user_id")
		return
	}
	if callerID != userID && (h.adminUserID == 0 || callerID != h.adminUserID) {
		response.PermissionError(c, "")
		return
	}

	info, err := h.quotaService.GetQuotaInfo(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err, nil)
		return
	}

	response.Success(c, info)
}
