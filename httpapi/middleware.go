package httpapi

import (
	"strings"
	"time"

	nopw "github.com/MrEthical07/goNoPassword"
	"github.com/gin-contrib/cors"
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	requestIDKey    = "requestID"
	requestIDHeader = "X-Request-ID"
	requestIDChars  = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"
)

// RequestID sets a request ID on the gin context, the request context and the
// response. An incoming X-Request-ID header is reused when present.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" || len(id) > 64 {
			var err error
			id, err = gonanoid.Generate(requestIDChars, 16)
			if err != nil {
				id = gonanoid.Must()
			}
		}

		c.Set(requestIDKey, id)
		c.Header(requestIDHeader, id)

		ctx := nopw.WithRequestID(c.Request.Context(), id)
		ctx = nopw.WithClientIP(ctx, c.ClientIP())
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// requestLogger logs every request except redemptions, whose path carries
// the code; those are logged by the handler with the code redacted.
func requestLogger(logger *zap.Logger, loginPath string) gin.HandlerFunc {
	return ginzap.GinzapWithConfig(logger, &ginzap.Config{
		TimeFormat: time.RFC3339,
		UTC:        true,
		Skipper: func(c *gin.Context) bool {
			if c.Request.Method == "HEAD" {
				return true
			}
			return c.Request.Method == "GET" && strings.HasPrefix(c.Request.URL.Path, loginPath+"/")
		},
		Context: func(c *gin.Context) []zapcore.Field {
			fields := []zapcore.Field{}
			if v := c.GetString(requestIDKey); v != "" {
				fields = append(fields, zap.String("request_id", v))
			}
			return fields
		},
	})
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", requestIDHeader},
		ExposeHeaders:    []string{"Content-Length", requestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	return cors.New(cfg)
}
