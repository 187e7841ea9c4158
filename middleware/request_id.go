package middleware

import (
	"github.com/TIANLI0/SignKit/utils"
	"github.com/gin-gonic/gin"
	"github.com/gofrs/uuid"
	"go.uber.org/zap"
)

const (
	RequestIDHeader = "X-Request-ID"
	RequestIDKey    = "request_id"
)

// RequestID 为每个请求分配 ID，客户端已带上时沿用
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			u, err := uuid.NewV4()
			if err != nil {
				utils.Logger.Warn("failed to generate request id", zap.Error(err))
			} else {
				id = u.String()
			}
		}
		if id != "" {
			c.Set(RequestIDKey, id)
			c.Header(RequestIDHeader, id)
		}
		c.Next()
	}
}
