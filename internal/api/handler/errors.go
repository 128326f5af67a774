package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/qs3c/quota_relay/internal/pkg/response"
	"github.com/qs3c/quota_relay/internal/service"
)

// respondError 把服务层错误映射为响应码，data 可带回已生成的通知
func respondError(c *gin.Context, err error, data interface{}) {
	_ = c.Error(err)

	switch {
	case errors.Is(err, service.ErrInvalidArgument):
		response.ErrorWithData(c, response.CodeParamError, err.Error(), data)
	case errors.Is(err, service.ErrUnauthorized):
		response.ErrorWithData(c, response.CodePermissionDenied, "", data)
	case errors.Is(err, service.ErrNotFound):
		response.ErrorWithData(c, response.CodeResourceNotFound, "", data)
	case errors.Is(err, service.ErrStorageFailure):
		response.ErrorWithData(c, response.CodeStorageFailure, "", data)
	default:
		response.ErrorWithData(c, response.CodeServerError, "", data)
	}
}
