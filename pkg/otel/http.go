package otel

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

type httpInstruments struct {
	duration     metric.Float64Histogram
	responseSize metric.Int64Histogram
}

func newHTTPInstruments(meter metric.Meter) (*httpInstruments, error) {
	duration, err := meter.Float64Histogram(
		"http.server.duration",
		metric.WithDescription("HTTP server request duration"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	responseSize, err := meter.Int64Histogram(
		"http.server.response.size",
		metric.WithDescription("HTTP server response size"),
		metric.WithUnit("bytes"),
	)
	if err != nil {
		return nil, err
	}

	return &httpInstruments{duration: duration, responseSize: responseSize}, nil
}

// GinMiddleware Gin 框架的 HTTP 追踪中间件
func GinMiddleware(serviceName string) gin.HandlerFunc {
	propagator := otel.GetTextMapPropagator()
	tracer := Tracer()
	// 没有配置 MeterProvider 时使用全局 noop meter
	instruments, _ := newHTTPInstruments(otel.Meter(serviceName))

	return func(c *gin.Context) {
		// 从请求头中提取 trace context
		ctx := propagator.Extract(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		ctx, span := tracer.Start(ctx, c.Request.Method+" "+route,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				semconv.HTTPMethodKey.String(c.Request.Method),
				semconv.HTTPRouteKey.String(route),
				attribute.String("http.user_agent", c.Request.UserAgent()),
			),
		)
		defer span.End()

		c.Request = c.Request.WithContext(ctx)

		start := time.Now()
		c.Next()
		duration := time.Since(start)

		statusCode := c.Writer.Status()
		span.SetAttributes(semconv.HTTPStatusCodeKey.Int(statusCode))

		if instruments != nil {
			attrs := metric.WithAttributes(
				semconv.HTTPMethodKey.String(c.Request.Method),
				semconv.HTTPRouteKey.String(route),
				semconv.HTTPStatusCodeKey.Int(statusCode),
			)
			instruments.duration.Record(ctx, float64(duration.Milliseconds()), attrs)
			instruments.responseSize.Record(ctx, int64(c.Writer.Size()), attrs)
		}

		if statusCode >= 500 {
			span.SetStatus(codes.Error, "HTTP "+strconv.Itoa(statusCode))
		}
	}
}
