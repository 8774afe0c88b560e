package ops

import (
	"net/http"
	"strings"
	"time"

	"leadchat_backend/platform/logger"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/time/rate"
)

func requestLogger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.HTTPRequest(c.Request.Method, c.FullPath(), c.Writer.Status(),
			float64(time.Since(start).Microseconds())/1000, c.ClientIP())
	}
}

// rateLimit applies one shared limiter to the ops group. The surface is
// operator-only, so a small global budget is enough.
func rateLimit(log *logger.Logger) gin.HandlerFunc {
	limiter := rate.NewLimiter(rate.Limit(10), 20)
	return func(c *gin.Context) {
		if !limiter.Allow() {
			log.RateLimitExceeded(c.ClientIP(), c.FullPath())
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}

// bearerAuth validates an HS256 bearer token. In development an empty
// secret disables auth so the surface is reachable without tooling.
func bearerAuth(secret, env string, log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secret == "" && env == "development" {
			c.Next()
			return
		}

		header := c.GetHeader("Authorization")
		raw, found := strings.CutPrefix(header, "Bearer ")
		if !found || raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}

		token, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return []byte(secret), nil
		})
		if err != nil || !token.Valid {
			log.Warn("rejected ops token", "clientIp", c.ClientIP(), "path", c.FullPath())
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Next()
	}
}
