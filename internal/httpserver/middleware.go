package httpserver

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"crowdfundin/internal/handler"
	"crowdfundin/internal/model"
	"crowdfundin/pkg/logger"
	"crowdfundin/pkg/metrics"
	"crowdfundin/pkg/rbac"
	"crowdfundin/pkg/trace"
	"crowdfundin/pkg/util"
)

// UserFinder 认证时确认用户仍然存在并读取最新角色
type UserFinder interface {
	FindByID(ctx context.Context, id uuid.UUID) (*model.User, error)
}

func unauthorized(c *gin.Context, message, reason string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": message, "reason": reason})
}

func AuthMiddleware(jwtSecret string, users UserFinder, l *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := util.ExtractToken(c.Request)
		if token == "" {
			unauthorized(c, "Not authorized, no token", "missing_token")
			return
		}

		userID, err := util.ParseJWT(token, jwtSecret)
		if errors.Is(err, util.ErrTokenExpired) {
			unauthorized(c, "Token expired, please log in again", "token_expired")
			return
		}
		if err != nil {
			unauthorized(c, "Not authorized, token failed", "invalid_token")
			return
		}

		u, err := users.FindByID(c.Request.Context(), userID)
		if errors.Is(err, model.ErrNotFound) {
			unauthorized(c, "User not found", "user_not_found")
			return
		}
		if err != nil {
			logger.WithTrace(c.Request.Context(), l).Error("Failed to load user for token", zap.Error(err))
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"message": "Internal server error"})
			return
		}

		handler.SetActor(c, model.Actor{ID: u.ID, Role: u.Role})
		c.Next()
	}
}

// RequirePermission 中间件：要求用户具有指定权限
func RequirePermission(permission rbac.Permission) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := handler.ActorFrom(c)
		if !ok {
			unauthorized(c, "Not authorized, no token", "missing_token")
			return
		}
		if err := rbac.CheckPermission(actor.Role, permission); err != nil {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"message": "Access denied"})
			return
		}
		c.Next()
	}
}

// TraceMiddleware 透传或生成 X-Trace-ID
func TraceMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := c.GetHeader(trace.HeaderName())
		if traceID == "" {
			traceID = trace.GenerateTraceID()
		}
		c.Request = c.Request.WithContext(trace.WithContext(c.Request.Context(), traceID))
		c.Header(trace.HeaderName(), traceID)
		c.Next()
	}
}

// MetricsMiddleware 以路由模板作为 path 标签，避免基数膨胀
func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		metrics.RecordHTTPRequestDuration(c.Request.Method, path, strconv.Itoa(c.Writer.Status()), time.Since(start))
	}
}

// AccessLog 结构化访问日志
func AccessLog(l *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", status),
			zap.Duration("took", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}
		log := logger.WithTrace(c.Request.Context(), l)
		if status >= http.StatusInternalServerError {
			log.Error("request", fields...)
			return
		}
		log.Info("request", fields...)
	}
}
