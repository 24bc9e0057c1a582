package middleware

import (
	"net"

	"github.com/gin-gonic/gin"
)

// AllowPrivateIP bypasses the limiter for loopback and private-range clients.
func AllowPrivateIP() AllowFunc {
	return func(c *gin.Context) bool {
		parsed := net.ParseIP(ipFromCtx(c))
		if parsed == nil {
			return false
		}
		return parsed.IsLoopback() || parsed.IsPrivate()
	}
}

// AllowPrivateIPIf returns AllowPrivateIP when enabled, nil otherwise.
func AllowPrivateIPIf(enabled bool) AllowFunc {
	if !enabled {
		return nil
	}
	return AllowPrivateIP()
}
