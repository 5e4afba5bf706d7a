package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/smtp"
	"strconv"
	"time"

	"go.uber.org/zap"

	"crowdfundin/internal/config"
)

type Message struct {
	To      string
	Subject string
	HTML    string
}

// Mailer 发送单封邮件
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// NewMailer 根据 provider 选择实现：smtp | resend | log
func NewMailer(cfg config.EmailConfig, logger *zap.Logger) (Mailer, error) {
	switch cfg.Provider {
	case "smtp":
		if cfg.SMTPHost == "" {
			return nil, fmt.Errorf("email.smtp_host is required for smtp provider")
		}
		return &SMTPMailer{cfg: cfg}, nil
	case "resend":
		if cfg.ResendAPIKey == "" {
			return nil, fmt.Errorf("email.resend_api_key is required for resend provider")
		}
		return &ResendMailer{
			apiKey:     cfg.ResendAPIKey,
			from:       cfg.From,
			endpoint:   "https://api.resend.com/emails",
			httpClient: &http.Client{Timeout: 10 * time.Second},
		}, nil
	case "", "log":
		return &LogMailer{logger: logger}, nil
	default:
		return nil, fmt.Errorf("unknown email provider %q", cfg.Provider)
	}
}

type SMTPMailer struct {
	cfg config.EmailConfig
}

func (m *SMTPMailer) Send(_ context.Context, msg Message) error {
	port := m.cfg.SMTPPort
	if port == 0 {
		port = 587
	}
	addr := m.cfg.SMTPHost + ":" + strconv.Itoa(port)

	body := "From: " + m.cfg.From + "\r\n" +
		"To: " + msg.To + "\r\n" +
		"Subject: " + msg.Subject + "\r\n" +
		"MIME-Version: 1.0\r\n" +
		"Content-Type: text/html; charset=\"UTF-8\"\r\n" +
		"\r\n" +
		msg.HTML

	var auth smtp.Auth
	if m.cfg.SMTPUser != "" {
		auth = smtp.PlainAuth("", m.cfg.SMTPUser, m.cfg.SMTPPassword, m.cfg.SMTPHost)
	}
	if err := smtp.SendMail(addr, auth, m.cfg.From, []string{msg.To}, []byte(body)); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

type resendRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
}

type ResendMailer struct {
	apiKey     string
	from       string
	endpoint   string
	httpClient *http.Client
}

func (m *ResendMailer) Send(ctx context.Context, msg Message) error {
	b, err := json.Marshal(resendRequest{
		From:    m.from,
		To:      []string{msg.To},
		Subject: msg.Subject,
		HTML:    msg.HTML,
	})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.endpoint, bytes.NewReader(b))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+m.apiKey)

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("mail provider returned status %d", resp.StatusCode)
	}
	return nil
}

// LogMailer 开发环境使用，只记录日志
type LogMailer struct {
	logger *zap.Logger
}

func (m *LogMailer) Send(_ context.Context, msg Message) error {
	m.logger.Info("Email (log provider)",
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
	)
	return nil
}
