package response

import (
	"net/http"

	"SafeCircle/pkg/errors"

	"github.com/gin-gonic/gin"
)

// OK 写入 {"success": true}，extra 中的字段并入响应
func OK(c *gin.Context, extra gin.H) {
	body := gin.H{"success": true}
	for k, v := range extra {
		body[k] = v
	}
	c.JSON(http.StatusOK, body)
}

// Error 按错误码映射状态，未分类错误为 500
func Error(c *gin.Context, err error) {
	c.JSON(errors.HTTPStatus(err), gin.H{"error": errors.GetMessage(err)})
}

// Fail 直接指定状态与消息
func Fail(c *gin.Context, status int, msg string) {
	c.JSON(status, gin.H{"error": msg})
}
