package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Response 统一的API响应结构
type Response struct {
	Code   int         `json:"code"`
	Msg    string      `json:"msg"`
	Reason string      `json:"reason,omitempty"` // 机器可读的失败原因
	Data   interface{} `json:"data,omitempty"`
}

// Success 返回成功响应
func Success(c *gin.Context, msg string, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code: 0,
		Msg:  msg,
		Data: data,
	})
}

// Fail 返回失败响应
func Fail(c *gin.Context, msg string, data interface{}) {
	c.JSON(http.StatusBadRequest, Response{
		Code: -1,
		Msg:  msg,
		Data: data,
	})
}

// FailWithReason 返回带机器可读原因码的失败响应
func FailWithReason(c *gin.Context, status int, reason, msg string) {
	c.JSON(status, Response{
		Code:   -1,
		Msg:    msg,
		Reason: reason,
	})
}
