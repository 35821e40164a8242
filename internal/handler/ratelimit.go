package handler

import (
	"fmt"
	"net/http"
	"time"

	"novel-fork/internal/middleware"
	"novel-fork/internal/models"

	ratelimit "github.com/JGLTechnologies/gin-rate-limit"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// NewRedisRateStore - общее для всех реплик хранилище счётчиков лимита.
func NewRedisRateStore(client *redis.Client, limit uint) ratelimit.Store {
	return ratelimit.RedisStore(&ratelimit.RedisOptions{
		RedisClient: client,
		Rate:        time.Minute,
		Limit:       limit,
	})
}

// NewGenerationRateLimiter ограничивает обращения к генератору по пользователю
// (или по IP, если пользователь ещё не известен).
func NewGenerationRateLimiter(store ratelimit.Store, logger *zap.Logger) gin.HandlerFunc {
	return ratelimit.RateLimiter(store, &ratelimit.Options{
		ErrorHandler: func(c *gin.Context, info ratelimit.Info) {
			logger.Warn("Rate limit exceeded",
				zap.String("clientIP", c.ClientIP()),
				zap.Time("resetTime", info.ResetTime),
				zap.String("path", c.Request.URL.Path),
			)
			c.AbortWithStatusJSON(http.StatusTooManyRequests, models.ErrorResponse{
				Code:    models.ErrCodeTooManyRequests,
				Message: "Too many requests. Try again in " + time.Until(info.ResetTime).Round(time.Second).String(),
			})
		},
		KeyFunc: func(c *gin.Context) string {
			if userID, ok := middleware.UserID(c); ok {
				return fmt.Sprintf("generation:%s", userID)
			}
			return "generation-ip:" + c.ClientIP()
		},
	})
}
