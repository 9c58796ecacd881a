package response

import (
	"net/http"

	"mallledger/pkg/errno"

	"github.com/gin-gonic/gin"
)

type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    errno.CodeOK,
		Message: "success",
		Data:    data,
	})
}

func Error(c *gin.Context, status, code int, message string) {
	c.JSON(status, Response{
		Code:    code,
		Message: message,
	})
}

func ParamError(c *gin.Context, message string) {
	Error(c, http.StatusBadRequest, errno.CodeParamError, message)
}

// Fail 按错误类型映射状态码和业务码
func Fail(c *gin.Context, err error) {
	status, code, message := errno.Decode(err)
	if status >= http.StatusInternalServerError {
		message = "服务器内部错误"
	}
	Error(c, status, code, message)
}
