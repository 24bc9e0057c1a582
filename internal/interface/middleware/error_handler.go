package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/oksasatya/go-signup-flow/pkg/response"
)

// StatusFunc maps an error attached to the context to an HTTP status and a
// message that is safe to show.
type StatusFunc func(err error) (int, string)

// ErrorHandler is the host error layer. It logs errors attached with c.Error
// and writes an error envelope when no handler has written a response.
func ErrorHandler(logger *logrus.Logger, statusFn StatusFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}
		err := c.Errors.Last().Err
		status, msg := http.StatusInternalServerError, "internal server error"
		if statusFn != nil {
			status, msg = statusFn(err)
		}
		entry := logger.WithFields(logrus.Fields{
			"request_id": c.GetString("request_id"),
			"path":       c.Request.URL.Path,
			"status":     status,
		}).WithError(err)
		if status >= http.StatusInternalServerError {
			entry.Error("request failed")
		} else {
			entry.Debug("request rejected")
		}

		if c.Writer.Written() {
			return
		}
		resp := response.Error[any](c, status, msg, msg)
		response.Write(c, resp)
	}
}
