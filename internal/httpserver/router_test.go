package httpserver

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"crowdfundin/internal/handler"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func newTestRouter(ping pingFunc) *Router {
	l := zap.NewNop()
	h := Handlers{
		Auth:         handler.NewAuthHandler(nil, l),
		Campaign:     handler.NewCampaignHandler(nil, l),
		Donation:     handler.NewDonationHandler(nil, l),
		Comment:      handler.NewCommentHandler(nil, l),
		Complaint:    handler.NewComplaintHandler(nil, l),
		Notification: handler.NewNotificationHandler(nil, l),
		Admin:        handler.NewAdminHandler(nil, nil, nil, l),
	}
	return NewRouter(h, knownUsers(), secret, ping, "crowdfund-test", l)
}

func TestHealthEndpoints(t *testing.T) {
	ready := newTestRouter(func(context.Context) error { return nil })
	notReady := newTestRouter(func(context.Context) error { return errors.New("no db") })

	tests := []struct {
		name   string
		router *Router
		path   string
		want   int
	}{
		{"healthz", ready, "/healthz", http.StatusOK},
		{"readyz", ready, "/readyz", http.StatusOK},
		{"readyz without db", notReady, "/readyz", http.StatusServiceUnavailable},
		{"metrics", ready, "/metrics", http.StatusOK},
		{"admin requires token", ready, "/api/admin/stats", http.StatusUnauthorized},
		{"my donations requires token", ready, "/api/donations/my-donations", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			tt.router.Engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tt.path, nil))
			if w.Code != tt.want {
				t.Errorf("GET %s = %d, want %d", tt.path, w.Code, tt.want)
			}
		})
	}
}
