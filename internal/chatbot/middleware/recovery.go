package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"github.com/kart-io/logger"

	"github.com/ray729alp/mqa-chatbot/internal/model"
)

// catchAllAnswer is the guidance clients render when a request dies
// unexpectedly.
const catchAllAnswer = "An error occurred while processing your request. Please try again."

// Recovery converts a handler panic into the catch-all JSON shape. The chat
// contract keeps HTTP 200 even for internal failures; clients inspect the
// error field.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				stack := debug.Stack()
				logger.Errorw("panic recovered",
					"panic", r,
					"stack_trace", string(stack),
					"path", c.Request.URL.Path,
					"method", c.Request.Method,
				)

				c.AbortWithStatusJSON(http.StatusOK, model.PredictError{
					Error:  fmt.Sprintf("%v", r),
					Answer: catchAllAnswer,
				})
			}
		}()

		c.Next()
	}
}
