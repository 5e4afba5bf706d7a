package notify

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"crowdfundin/internal/config"
	"crowdfundin/internal/model"
)

type fakeMailer struct {
	mu     sync.Mutex
	sent   []Message
	failTo map[string]bool
}

func (m *fakeMailer) Send(_ context.Context, msg Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failTo[msg.To] {
		return errors.New("mail provider returned status 500")
	}
	m.sent = append(m.sent, msg)
	return nil
}

func TestFanOutCountsFailures(t *testing.T) {
	mailer := &fakeMailer{failTo: map[string]bool{"b@example.com": true}}
	n := NewNotifier(mailer, 2, zap.NewNop())

	recipients := []model.Recipient{
		{Name: "A", Email: "a@example.com"},
		{Name: "B", Email: "b@example.com"},
		{Name: "C", Email: "c@example.com"},
	}
	res := n.FanOut(context.Background(), "milestone", recipients, func(r model.Recipient) (Message, error) {
		return Milestone(r.Email, r.Name, "Clean Water", 50, "http://x/campaigns/1", decimal.NewFromInt(500), decimal.NewFromInt(1000))
	})

	if res.Sent != 2 || res.Failed != 1 {
		t.Fatalf("result = %+v, want sent=2 failed=1", res)
	}
	if len(mailer.sent) != 2 {
		t.Errorf("mailer got %d messages, want 2", len(mailer.sent))
	}
}

func TestFanOutCancelledContext(t *testing.T) {
	mailer := &fakeMailer{}
	n := NewNotifier(mailer, 1, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := n.FanOut(ctx, "update", []model.Recipient{{Email: "a@example.com"}}, func(r model.Recipient) (Message, error) {
		return Message{To: r.Email}, nil
	})
	if res.Sent != 0 || res.Failed != 1 {
		t.Errorf("result = %+v, want sent=0 failed=1", res)
	}
}

func TestTemplatesEscapeUserContent(t *testing.T) {
	msg, err := CampaignUpdate("a@example.com", "", "Title", "<script>x</script>", "http://x", decimal.NewFromInt(250), decimal.NewFromInt(1000))
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(msg.HTML, "<script>") {
		t.Error("update body must be escaped")
	}
	if !strings.Contains(msg.HTML, "Hi Supporter") {
		t.Error("empty donor name should fall back to Supporter")
	}
	if !strings.Contains(msg.HTML, "(25%)") {
		t.Errorf("missing progress percent in %q", msg.HTML)
	}
}

func TestNewMailer(t *testing.T) {
	if _, err := NewMailer(config.EmailConfig{Provider: "log"}, zap.NewNop()); err != nil {
		t.Errorf("log provider: %v", err)
	}
	if _, err := NewMailer(config.EmailConfig{Provider: "smtp"}, zap.NewNop()); err == nil {
		t.Error("smtp without host should fail")
	}
	if _, err := NewMailer(config.EmailConfig{Provider: "pigeon"}, zap.NewNop()); err == nil {
		t.Error("unknown provider should fail")
	}
}
