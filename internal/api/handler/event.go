package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/qs3c/quota_relay/internal/bot"
	"github.com/qs3c/quota_relay/internal/model/dto"
	"github.com/qs3c/quota_relay/internal/pkg/response"
)

// EventHandler 聊天网关同步投递事件，返回需要发送的通知
type EventHandler struct {
	router *bot.Router
}

func NewEventHandler(router *bot.Router) *EventHandler {
	return &EventHandler{router: router}
}

// Command 处理一条文本消息
// POST /api/v1/events
func (h *EventHandler) Command(c *gin.Context) {
	var ev dto.CommandEvent
	if err := c.ShouldBindJSON(&ev); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	res, err := h.router.HandleCommand(c.Request.Context(), &ev)
	if err != nil {
		respondError(c, err, res)
		return
	}

	// 被拦截时用额度码返回，网关据此删除原消息
	if res.Outcome == bot.OutcomeBlocked {
		response.ErrorWithData(c, response.CodeQuotaExceeded, "", res)
		return
	}
	response.Success(c, res)
}

// Callback 处理内联按钮回调
// POST /api/v1/callbacks
func (h *EventHandler) Callback(c *gin.Context) {
	var cb dto.CallbackEvent
	if err := c.ShouldBindJSON(&cb); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	res, err := h.router.HandleCallback(c.Request.Context(), &cb)
	if err != nil {
		respondError(c, err, res)
		return
	}
	response.Success(c, res)
}
