// Package push delivers notifications to partner devices over Firebase
// Cloud Messaging.
package push

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"golang.org/x/sync/errgroup"
	fcm "google.golang.org/api/fcm/v1"
	goption "google.golang.org/api/option"

	"pairledger/internal/metrics"
)

// Sender fans a notification out to a set of device tokens. Delivery is
// best effort; implementations report how many sends failed.
type Sender interface {
	Send(ctx context.Context, tokens []string, title, body string) error
}

type FCMSender struct {
	svc         *fcm.Service
	parent      string
	concurrency int
	log         *slog.Logger
}

// NewFCMSender creates a sender for the given Firebase project using
// Service Account credentials.
// Uses GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or
// GOOGLE_APPLICATION_CREDENTIALS.
func NewFCMSender(ctx context.Context, projectID string, concurrency int, log *slog.Logger) (*FCMSender, error) {
	if projectID == "" {
		return nil, errors.New("missing FCM project id")
	}
	if concurrency <= 0 {
		concurrency = 4
	}

	credentialsJSON, err := loadCredentials()
	if err != nil {
		return nil, err
	}

	svc, err := fcm.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(fcm.FirebaseMessagingScope))
	if err != nil {
		return nil, fmt.Errorf("create fcm service: %w", err)
	}

	return &FCMSender{
		svc:         svc,
		parent:      "projects/" + projectID,
		concurrency: concurrency,
		log:         log,
	}, nil
}

func loadCredentials() ([]byte, error) {
	inline := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"))
	file := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"))
	if inline == "" && file == "" {
		file = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	switch {
	case inline != "":
		return []byte(inline), nil
	case file != "":
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		return data, nil
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}
}

// Send pushes the notification to every token with bounded concurrency.
// Individual token failures are logged and counted, not fatal; an error
// is returned only when no token could be delivered to.
func (s *FCMSender) Send(ctx context.Context, tokens []string, title, body string) error {
	if len(tokens) == 0 {
		return nil
	}

	var (
		g, gctx = errgroup.WithContext(ctx)
		sent    = make([]bool, len(tokens))
	)
	g.SetLimit(s.concurrency)

	for i, token := range tokens {
		g.Go(func() error {
			req := &fcm.SendMessageRequest{
				Message: &fcm.Message{
					Token: token,
					Notification: &fcm.Notification{
						Title: title,
						Body:  body,
					},
				},
			}
			_, err := s.svc.Projects.Messages.Send(s.parent, req).Context(gctx).Do()
			if err != nil {
				metrics.PushNotificationsTotal.WithLabelValues("error").Inc()
				s.log.WarnContext(gctx, "Push delivery failed", "error", err)
				return nil
			}
			metrics.PushNotificationsTotal.WithLabelValues("ok").Inc()
			sent[i] = true
			return nil
		})
	}
	g.Wait()

	delivered := 0
	for _, ok := range sent {
		if ok {
			delivered++
		}
	}
	s.log.InfoContext(ctx, "Push fan-out finished",
		"tokens", len(tokens),
		"delivered", delivered)
	if delivered == 0 {
		return fmt.Errorf("all %d push deliveries failed", len(tokens))
	}
	return nil
}

// NoopSender drops notifications. Used when FCM is not configured so the
// rest of the reaction pipeline still runs.
type NoopSender struct {
	log *slog.Logger
}

func NewNoopSender(log *slog.Logger) *NoopSender {
	return &NoopSender{log: log}
}

func (s *NoopSender) Send(ctx context.Context, tokens []string, title, body string) error {
	s.log.DebugContext(ctx, "Push disabled, dropping notification",
		"tokens", len(tokens),
		"title", title)
	return nil
}
