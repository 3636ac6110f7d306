package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/opscribe/opscribe/pkg/apperrors"
	"github.com/opscribe/opscribe/pkg/logger"
)

// ErrorHandler converts gin errors into a uniform JSON response and logs
// them through the local channel. Logging failures downstream of here never
// alter the response; this boundary only handles business-pipeline errors.
func ErrorHandler(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		err := c.Errors.Last().Err
		var appErr *apperrors.AppError
		if !errors.As(err, &appErr) {
			appErr = apperrors.New(apperrors.ErrInternal, err.Error(), err)
		}

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.String("code", string(appErr.Type)),
			zap.String("client_ip", c.ClientIP()),
			zap.String("transaction_id", ResolveTransactionID(c)),
		}

		if appErr.HTTPStatus >= http.StatusInternalServerError {
			log.LogError(appErr, "request failed", fields...)
		} else {
			log.Warn(appErr.Message, fields...)
		}

		if !c.Writer.Written() {
			c.JSON(appErr.HTTPStatus, appErr)
		}
	}
}
