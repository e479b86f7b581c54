package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"

	"attendance-backend/internal/model"
	"attendance-backend/internal/scoring"
	"attendance-backend/internal/store"
)

// NotificationSender defines the interface for sending a web push notification.
type NotificationSender interface {
	Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// WebPushSender is a real implementation of NotificationSender using the webpush library.
type WebPushSender struct{}

// Send sends a notification using the webpush library.
func (s *WebPushSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return webpush.SendNotification(payload, sub, options)
}

// Message is the JSON payload delivered to the service worker.
type Message struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	Level string `json:"level"`
}

// WorkerPool manages a pool of workers for sending warning notifications.
type WorkerPool struct {
	size    int
	jobs    chan scoring.WarningChange
	store   store.Store
	webpush *webpush.Options
	sender  NotificationSender
	logger  *slog.Logger
}

// NewWorkerPool creates a new worker pool.
func NewWorkerPool(size int, s store.Store, webpushOptions *webpush.Options, logger *slog.Logger) *WorkerPool {
	return &WorkerPool{
		size:    size,
		jobs:    make(chan scoring.WarningChange, size*16), // Buffered channel
		store:   s,
		webpush: webpushOptions,
		sender:  &WebPushSender{}, // Use the real sender by default
		logger:  logger,
	}
}

// Start launches the worker goroutines.
func (wp *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < wp.size; i++ {
		go wp.worker(ctx, i)
	}
}

// worker is the actual worker goroutine.
func (wp *WorkerPool) worker(ctx context.Context, id int) {
	wp.logger.Debug("notification worker started", "worker", id)
	for {
		select {
		case change := <-wp.jobs:
			wp.sendNotificationsForChange(ctx, change)
		case <-ctx.Done():
			wp.logger.Debug("notification worker shutting down", "worker", id)
			return
		}
	}
}

// Dispatch queues a job without blocking. When the queue is full, or the
// workers have stopped, the notification is logged and dropped; it reports
// whether the job was queued.
func (wp *WorkerPool) Dispatch(change scoring.WarningChange) bool {
	select {
	case wp.jobs <- change:
		return true
	default:
		wp.logger.Warn("notification queue is full, dropping warning change",
			slog.Int64("participant_id", change.ParticipantID),
			slog.String("level", string(change.To)))
		return false
	}
}

// NotifyWarningChange queues a notification for the participant.
func (wp *WorkerPool) NotifyWarningChange(change scoring.WarningChange) {
	wp.Dispatch(change)
}

// Jobs returns the jobs channel for testing.
func (wp *WorkerPool) Jobs() chan scoring.WarningChange {
	return wp.jobs
}

// Compose builds the notification shown for a warning change.
func Compose(change scoring.WarningChange) Message {
	var body string
	switch change.To {
	case model.WarningReminder:
		body = "You scored below the minimum for two months in a row. This is a reminder to join more gatherings."
	case model.WarningDiscipline:
		body = "Your score stayed below the minimum again. You are now under disciplinary review."
	case model.WarningRemoval:
		body = "Your score stayed below the minimum again. You are scheduled for removal."
	case model.WarningNone:
		panic("notification: escalation never lowers a level to none")
	default:
		panic(fmt.Sprintf("notification: unknown warning level %q", change.To))
	}
	return Message{
		Title: fmt.Sprintf("Warning level: %s", change.To),
		Body:  fmt.Sprintf("%s (this month: %d points, last month: %d points)", body, change.MonthlyPoints, change.PreviousPoints),
		Level: string(change.To),
	}
}

// sendNotificationsForChange fetches the participant's subscriptions and notifies each of them.
func (wp *WorkerPool) sendNotificationsForChange(ctx context.Context, change scoring.WarningChange) {
	subscriptions, err := wp.store.ListSubscriptions(ctx, change.ParticipantID)
	if err != nil {
		wp.logger.ErrorContext(ctx, "failed to fetch subscriptions",
			slog.Int64("participant_id", change.ParticipantID), slog.Any("error", err))
		return
	}

	if len(subscriptions) == 0 {
		return
	}

	payload, err := json.Marshal(Compose(change))
	if err != nil {
		wp.logger.ErrorContext(ctx, "failed to encode notification", slog.Any("error", err))
		return
	}

	wp.logger.InfoContext(ctx, "sending warning notifications",
		slog.Int64("participant_id", change.ParticipantID), slog.Int("subscriptions", len(subscriptions)))
	for _, sub := range subscriptions {
		wp.sendNotification(ctx, sub, payload)
	}
}

// sendNotification sends a single web push notification.
func (wp *WorkerPool) sendNotification(ctx context.Context, sub model.PushSubscription, payload []byte) {
	// Manually construct the webpush.Subscription object
	wpSub := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256DH,
			Auth:   sub.Auth,
		},
	}

	resp, err := wp.sender.Send(payload, wpSub, wp.webpush)
	if err != nil {
		wp.logger.WarnContext(ctx, "failed to send notification", slog.String("endpoint", sub.Endpoint), slog.Any("error", err))
		return
	}
	defer resp.Body.Close()

	// Handle expired subscriptions
	if resp.StatusCode == http.StatusGone {
		wp.logger.InfoContext(ctx, "subscription expired, deleting", slog.String("endpoint", sub.Endpoint))
		if err := wp.store.DeleteSubscription(ctx, sub.Endpoint); err != nil {
			wp.logger.ErrorContext(ctx, "failed to delete expired subscription", slog.String("endpoint", sub.Endpoint), slog.Any("error", err))
		}
	}
}
