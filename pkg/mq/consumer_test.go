package mq

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

func TestDecide(t *testing.T) {
	transient := fmt.Errorf("send: %w", context.DeadlineExceeded)

	tests := []struct {
		name    string
		err     error
		attempt int64
		want    ackAction
	}{
		{"success", nil, 0, actionAck},
		{"retryable first attempt", transient, 1, actionRequeue},
		{"retryable at limit", transient, 3, actionRequeue},
		{"retryable over limit", transient, 4, actionDeadLetter},
		{"non-retryable", errors.New("bad payload"), 1, actionDeadLetter},
		{"unique violation", &pgconn.PgError{Code: "23505"}, 1, actionDeadLetter},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, _ := decide(tt.err, tt.attempt, 3)
			if got != tt.want {
				t.Errorf("decide() = %v, want %v", got, tt.want)
			}
		})
	}
}

func closedDeliveries() <-chan amqp091.Delivery {
	ch := make(chan amqp091.Delivery)
	close(ch)
	return ch
}

func TestDrainReportsBrokerClose(t *testing.T) {
	c := &Consumer{queue: amqp091.Queue{Name: "donation.confirmed.email.q"}, logger: zap.NewNop()}

	err := c.drain(context.Background(), closedDeliveries())
	if err == nil {
		t.Fatal("closed delivery channel with live context should be an error")
	}
}

func TestDrainCleanShutdown(t *testing.T) {
	t.Run("context cancelled", func(t *testing.T) {
		c := &Consumer{queue: amqp091.Queue{Name: "q"}, logger: zap.NewNop()}
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if err := c.drain(ctx, closedDeliveries()); err != nil {
			t.Errorf("drain() = %v, want nil", err)
		}
	})

	t.Run("stopped", func(t *testing.T) {
		c := &Consumer{queue: amqp091.Queue{Name: "q"}, logger: zap.NewNop()}
		c.Stop()
		if err := c.drain(context.Background(), closedDeliveries()); err != nil {
			t.Errorf("drain() = %v, want nil", err)
		}
	})
}
