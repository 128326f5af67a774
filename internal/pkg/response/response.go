package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// 错误码定义
const (
	CodeSuccess          = 0
	CodeParamError       = 1000
	CodeAuthFailed       = 1001
	CodePermissionDenied = 1002
	CodeResourceNotFound = 1003
	CodeQuotaExceeded    = 1004
	CodeDuplicateAction  = 1005
	CodeServerError      = 5000
	CodeStorageFailure   = 5001
)

var codeMessages = map[int]string{
	CodeSuccess:          "success",
	CodeParamError:       "invalid parameter",
	CodeAuthFailed:       "authentication failed",
	CodePermissionDenied: "admin only",
	CodeResourceNotFound: "not found",
	CodeQuotaExceeded:    "daily limit reached",
	CodeDuplicateAction:  "already handled",
	CodeServerError:      "internal server error",
	CodeStorageFailure:   "storage unavailable, try again later",
}

// Response 统一响应结构，HTTP 状态码始终为 200
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data"`
}

// ListData 列表数据
type ListData struct {
	Total int         `json:"total"`
	Items interface{} `json:"items"`
}

func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    CodeSuccess,
		Message: codeMessages[CodeSuccess],
		Data:    data,
	})
}

// SuccessList 列表成功响应
func SuccessList(c *gin.Context, total int, items interface{}) {
	Success(c, ListData{Total: total, Items: items})
}

// Error 错误响应，message 为空时使用错误码的默认消息
func Error(c *gin.Context, code int, message string) {
	if message == "" {
		message = codeMessages[code]
	}
	c.JSON(http.StatusOK, Response{
		Code:    code,
		Message: message,
		Data:    nil,
	})
}

// ErrorWithData 错误响应同时带回数据（例如被拦截时的重置时间）
func ErrorWithData(c *gin.Context, code int, message string, data interface{}) {
	if message == "" {
		message = codeMessages[code]
	}
	c.JSON(http.StatusOK, Response{
		Code:    code,
		Message: message,
		Data:    data,
	})
}

func ParamError(c *gin.Context, message string) {
	Error(c, CodeParamError, message)
}

func AuthError(c *gin.Context, message string) {
	Error(c, CodeAuthFailed, message)
}

func PermissionError(c *gin.Context, message string) {
	Error(c, CodePermissionDenied, message)
}

func NotFoundError(c *gin.Context, message string) {
	Error(c, CodeResourceNotFound, message)
}

func DuplicateError(c *gin.Context, message string) {
	Error(c, CodeDuplicateAction, message)
}

// StorageError 存储不可用，调用方可重试
func StorageError(c *gin.Context, message string) {
	Error(c, CodeStorageFailure, message)
}

func ServerError(c *gin.Context, message string) {
	Error(c, CodeServerError, message)
}
