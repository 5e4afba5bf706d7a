package handler

import (
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"crowdfundin/internal/model"
	"crowdfundin/internal/payment"
	"crowdfundin/internal/repository/query"
	"crowdfundin/pkg/logger"
	"crowdfundin/pkg/rbac"
)

const actorKey = "actor"

// SetActor 由认证中间件写入当前用户
func SetActor(c *gin.Context, a model.Actor) {
	c.Set(actorKey, a)
}

// ActorFrom 读取认证中间件写入的用户
func ActorFrom(c *gin.Context) (model.Actor, bool) {
	v, ok := c.Get(actorKey)
	if !ok {
		return model.Actor{}, false
	}
	a, ok := v.(model.Actor)
	return a, ok
}

// mustActor 未认证时直接返回 401
func mustActor(c *gin.Context) (model.Actor, bool) {
	a, ok := ActorFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "Not authorized", "reason": "missing_token"})
		return model.Actor{}, false
	}
	return a, true
}

var registerOnce sync.Once

// UseJSONFieldNames 让校验错误使用 json/form 字段名
func UseJSONFieldNames() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			for _, tag := range []string{"json", "form"} {
				name, _, _ := strings.Cut(fld.Tag.Get(tag), ",")
				if name == "-" {
					return ""
				}
				if name != "" {
					return name
				}
			}
			return fld.Name
		})
	})
}

// 400：不会产生任何写入的业务错误
var badRequestMessages = []struct {
	err     error
	message string
}{
	{model.ErrInvalidSignature, "Invalid payment signature"},
	{model.ErrAlreadyProcessed, "Donation already processed"},
	{model.ErrOrderMismatch, "Payment order does not match this donation"},
	{model.ErrCampaignNotAcceptingDonations, "Campaign is not accepting donations"},
	{model.ErrCampaignEnded, "Campaign deadline has passed"},
	{model.ErrAlreadyReported, "You have already reported this comment"},
	{model.ErrParentMismatch, "Parent comment belongs to another campaign"},
	{model.ErrEmailTaken, "User already exists with this email"},
}

// respondError 把 service 错误映射为 HTTP 响应；subject 用于 404 文案
func respondError(c *gin.Context, l *zap.Logger, err error, subject string) {
	var ve *model.ValidationError
	if errors.As(err, &ve) {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Validation errors", "errors": ve.Fields})
		return
	}
	for _, m := range badRequestMessages {
		if errors.Is(err, m.err) {
			c.JSON(http.StatusBadRequest, gin.H{"message": m.message})
			return
		}
	}

	var denied *rbac.PermissionDeniedError
	var gwErr *payment.GatewayError
	switch {
	case errors.Is(err, model.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, gin.H{"message": "Invalid credentials"})
	case errors.As(err, &denied), errors.Is(err, model.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"message": "Not authorized to perform this action"})
	case errors.Is(err, model.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"message": subject + " not found"})
	case errors.Is(err, model.ErrInvalidTransition):
		c.JSON(http.StatusConflict, gin.H{"message": "Invalid status transition"})
	case errors.Is(err, model.ErrGatewayNotConfigured):
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Payment gateway not configured"})
	case errors.Is(err, model.ErrGatewayUnavailable):
		logger.WithTrace(c.Request.Context(), l).Warn("Payment gateway unavailable", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"message": "Payment gateway unavailable, please try again later"})
	case errors.As(err, &gwErr):
		logger.WithTrace(c.Request.Context(), l).Warn("Payment gateway rejected request", zap.Error(err))
		if gwErr.StatusCode == http.StatusUnauthorized {
			c.JSON(http.StatusInternalServerError, gin.H{"message": "Payment gateway configuration error. Please contact administrator."})
			return
		}
		c.JSON(http.StatusBadGateway, gin.H{"message": "Payment gateway error: " + gwErr.Description})
	default:
		logger.WithTrace(c.Request.Context(), l).Error("Request failed",
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Internal server error"})
	}
}

// bindError 处理 ShouldBind* 的错误
func bindError(c *gin.Context, err error) {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid request body"})
		return
	}
	fields := make([]model.FieldError, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, model.FieldError{Field: fe.Field(), Message: fieldMessage(fe)})
	}
	c.JSON(http.StatusBadRequest, gin.H{"message": "Validation errors", "errors": fields})
}

func fieldMessage(fe validator.FieldError) string {
	name := fe.Field()
	isString := fe.Kind() == reflect.String
	switch fe.Tag() {
	case "required":
		return name + " is required"
	case "email":
		return "Please enter a valid email"
	case "uuid":
		return "Valid " + name + " is required"
	case "min":
		if isString {
			return fmt.Sprintf("%s must be at least %s characters", name, fe.Param())
		}
		return fmt.Sprintf("%s must be at least %s", name, fe.Param())
	case "max":
		if isString {
			return fmt.Sprintf("%s cannot exceed %s characters", name, fe.Param())
		}
		return fmt.Sprintf("%s cannot exceed %s", name, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", name, strings.ReplaceAll(fe.Param(), " ", ", "))
	default:
		return name + " is invalid"
	}
}

// uuidParam 路径参数不是合法 UUID 时按 404 处理
func uuidParam(c *gin.Context, name, subject string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"message": subject + " not found"})
		return uuid.Nil, false
	}
	return id, true
}

func pageFrom(c *gin.Context, defaultLimit int) query.Page {
	page, _ := strconv.Atoi(c.Query("page"))
	limit, _ := strconv.Atoi(c.Query("limit"))
	return query.NormalizePage(page, limit, defaultLimit, 100)
}

// optionalUUID 空串为 nil，非法值返回校验错误
func optionalUUID(raw, field string) (*uuid.UUID, error) {
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, model.NewValidationError(field, "Valid "+field+" is required")
	}
	return &id, nil
}
