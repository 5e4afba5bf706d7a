package notify

import (
	"context"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"crowdfundin/internal/model"
	"crowdfundin/pkg/metrics"
)

// Result 群发结果
type Result struct {
	Sent   int `json:"sent"`
	Failed int `json:"failed"`
}

// BuildFunc 为单个收件人生成邮件
type BuildFunc func(r model.Recipient) (Message, error)

// Notifier 有并发上限的群发；单个收件人失败只计数，不重试
type Notifier struct {
	mailer      Mailer
	concurrency int
	logger      *zap.Logger
}

func NewNotifier(mailer Mailer, concurrency int, logger *zap.Logger) *Notifier {
	if concurrency <= 0 {
		concurrency = 8
	}
	return &Notifier{mailer: mailer, concurrency: concurrency, logger: logger}
}

// Send 发送单封邮件并记录指标
func (n *Notifier) Send(ctx context.Context, kind string, msg Message) error {
	if err := n.mailer.Send(ctx, msg); err != nil {
		metrics.IncrementEmailSent(kind, "failed")
		return err
	}
	metrics.IncrementEmailSent(kind, "success")
	return nil
}

// FanOut 并发发送给所有收件人；ctx 取消后未开始的发送计为失败
func (n *Notifier) FanOut(ctx context.Context, kind string, recipients []model.Recipient, build BuildFunc) Result {
	var sent, failed atomic.Int64

	g := new(errgroup.Group)
	g.SetLimit(n.concurrency)
	for _, rc := range recipients {
		g.Go(func() error {
			if ctx.Err() != nil {
				failed.Add(1)
				return nil
			}
			msg, err := build(rc)
			if err == nil {
				err = n.Send(ctx, kind, msg)
			}
			if err != nil {
				failed.Add(1)
				n.logger.Warn("Failed to send notification email",
					zap.String("kind", kind),
					zap.String("to", rc.Email),
					zap.Error(err),
				)
				return nil
			}
			sent.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	return Result{Sent: int(sent.Load()), Failed: int(failed.Load())}
}
