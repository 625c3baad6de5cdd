package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

const corsMaxAgeSeconds = 86400

var (
	corsAllowMethods = strings.Join([]string{
		http.MethodGet,
		http.MethodPost,
		http.MethodOptions,
	}, ", ")

	corsAllowHeaders = strings.Join([]string{
		"Origin",
		"Content-Type",
		"Accept",
		HeaderXRequestID,
	}, ", ")
)

// CORS returns a middleware that answers cross-origin requests for the
// configured origins. Origins must be explicit scheme://host[:port] values
// or "*"; requests from other origins pass through without CORS headers.
// The chat widget is normally served from the same origin, so the router
// only installs this when origins are configured.
func CORS(origins []string) gin.HandlerFunc {
	maxAge := strconv.Itoa(corsMaxAgeSeconds)

	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		allowed := ""
		for _, o := range origins {
			if o == "*" || o == origin {
				allowed = o
				break
			}
		}
		if allowed == "" {
			c.Next()
			return
		}

		c.Header("Access-Control-Allow-Origin", allowed)

		if c.Request.Method == http.MethodOptions {
			c.Header("Access-Control-Allow-Methods", corsAllowMethods)
			c.Header("Access-Control-Allow-Headers", corsAllowHeaders)
			c.Header("Access-Control-Max-Age", maxAge)
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
