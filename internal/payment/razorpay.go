package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"crowdfundin/internal/config"
	"crowdfundin/internal/model"
	"crowdfundin/pkg/circuitbreaker"
	"crowdfundin/pkg/metrics"
	"crowdfundin/pkg/trace"
)

// OrderRequest POST /v1/orders 的请求体，Amount 为最小货币单位
type OrderRequest struct {
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Receipt  string            `json:"receipt"`
	Notes    map[string]string `json:"notes,omitempty"`
}

type Order struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
	Status   string `json:"status"`
}

// GatewayError 网关返回的 4xx 业务错误，不计入熔断
type GatewayError struct {
	StatusCode  int
	Code        string
	Description string
}

func (e *GatewayError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("payment gateway error %d: %s", e.StatusCode, e.Description)
	}
	return fmt.Sprintf("payment gateway error %d", e.StatusCode)
}

type errorBody struct {
	Error struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	} `json:"error"`
}

// Client Razorpay 兼容的网关客户端，请求经过熔断器
type Client struct {
	cfg        config.RazorpayConfig
	httpClient *http.Client
	cb         *circuitbreaker.CircuitBreaker
	logger     *zap.Logger
}

func NewClient(cfg config.RazorpayConfig, logger *zap.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	cbConfig := circuitbreaker.Config{
		FailureThreshold:    3,
		SuccessThreshold:    2,
		Timeout:             30 * time.Second,
		HalfOpenMaxRequests: 2,
		OnStateChange: func(from, to circuitbreaker.State) {
			logger.Warn("Payment gateway circuit breaker state changed",
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
		// 4xx 是请求本身的问题，不代表网关故障
		IsFailure: func(err error) bool {
			var gwErr *GatewayError
			return !errors.As(err, &gwErr)
		},
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
		cb:         circuitbreaker.NewCircuitBreaker(cbConfig),
		logger:     logger,
	}
}

func (c *Client) KeyID() string {
	return c.cfg.KeyID
}

func (c *Client) Currency() string {
	return c.cfg.Currency
}

// CreateOrder 创建网关订单。未配置 key 时返回 model.ErrGatewayNotConfigured，
// 网关不可用或熔断打开时返回包装了 model.ErrGatewayUnavailable 的错误
func (c *Client) CreateOrder(ctx context.Context, req OrderRequest) (*Order, error) {
	if !c.cfg.Configured() {
		return nil, model.ErrGatewayNotConfigured
	}

	var order Order
	err := c.cb.Execute(func() error {
		start := time.Now()
		status := "success"
		defer func() {
			metrics.RecordGatewayCallLatency("/v1/orders", status, time.Since(start))
		}()

		b, err := json.Marshal(req)
		if err != nil {
			status = "error"
			return err
		}
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/v1/orders", bytes.NewReader(b))
		if err != nil {
			status = "error"
			return err
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.SetBasicAuth(c.cfg.KeyID, c.cfg.KeySecret)
		if traceID := trace.FromContext(ctx); traceID != "" {
			httpReq.Header.Set(trace.HeaderName(), traceID)
		}

		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			status = "error"
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 {
			status = "5xx"
			return fmt.Errorf("payment gateway 5xx: %d", resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK {
			status = strconv.Itoa(resp.StatusCode)
			return decodeGatewayError(resp)
		}
		return json.NewDecoder(resp.Body).Decode(&order)
	})
	if err != nil {
		var gwErr *GatewayError
		if errors.As(err, &gwErr) {
			return nil, gwErr
		}
		c.logger.Error("Payment gateway call failed", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", model.ErrGatewayUnavailable, err)
	}
	return &order, nil
}

func decodeGatewayError(resp *http.Response) error {
	gwErr := &GatewayError{StatusCode: resp.StatusCode}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var eb errorBody
	if json.Unmarshal(body, &eb) == nil {
		gwErr.Code = eb.Error.Code
		gwErr.Description = eb.Error.Description
	}
	return gwErr
}
