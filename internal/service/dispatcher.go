package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/quocanhngo/guardian/internal/metrics"
	"github.com/quocanhngo/guardian/internal/model"
	"github.com/quocanhngo/guardian/pkg/notification"
	"go.uber.org/zap"
)

//go:generate mockgen -destination=mocks/mock_push_sender.go -package=mocks github.com/quocanhngo/guardian/internal/service PushSender

// LivePublisher delivers a message to every live client in an elder's room
type LivePublisher interface {
	PublishToElder(ctx context.Context, elderID uuid.UUID, event *model.WSEvent) error
}

// CaregiverDirectory resolves the caregiver set of an elder, push tokens included
type CaregiverDirectory interface {
	FindWithCaregivers(ctx context.Context, elderID uuid.UUID) (*model.Elder, error)
}

// NotificationStore persists inbox rows
type NotificationStore interface {
	Create(ctx context.Context, n *model.Notification) error
	MarkSent(ctx context.Context, id uuid.UUID, sentAt time.Time) error
}

// PushSender delivers a batch of push messages and reports per-token results
type PushSender interface {
	Send(ctx context.Context, msgs []notification.PushMessage) ([]notification.PushResult, error)
}

// TokenRemover drops push tokens the provider no longer accepts
type TokenRemover interface {
	RemovePushToken(ctx context.Context, token string) error
}

// Alert is one persisted event ready for fan-out
type Alert struct {
	Event *model.Event
	Live  *model.WSEvent
	Title string
	Body  string
	// Durable is false for live-only alerts: no inbox rows, no push
	Durable bool
}

// Dispatcher fans an event out to the live channel and to caregivers
type Dispatcher struct {
	live          LivePublisher
	caregivers    CaregiverDirectory
	notifications NotificationStore
	push          PushSender
	tokens        TokenRemover
	pushTimeout   time.Duration
	metrics       *metrics.Collector
	logger        *zap.Logger
	now           func() time.Time
}

func NewDispatcher(
	live LivePublisher,
	caregivers CaregiverDirectory,
	notifications NotificationStore,
	push PushSender,
	tokens TokenRemover,
	pushTimeout time.Duration,
	collector *metrics.Collector,
	logger *zap.Logger,
) *Dispatcher {
	if pushTimeout <= 0 {
		pushTimeout = 10 * time.Second
	}
	return &Dispatcher{
		live:          live,
		caregivers:    caregivers,
		notifications: notifications,
		push:          push,
		tokens:        tokens,
		pushTimeout:   pushTimeout,
		metrics:       collector,
		logger:        logger.Named("dispatcher"),
		now:           time.Now,
	}
}

// Dispatch runs the live publish and the durable notification path
// concurrently. A failure in one never stops the other; both are joined
// into a single *FanoutError.
func (d *Dispatcher) Dispatch(ctx context.Context, alert Alert) error {
	var (
		wg                 sync.WaitGroup
		liveErr, notifyErr error
	)

	wg.Add(1)
	go func() {
		defer wg.Done()
		liveErr = d.publishLive(ctx, alert.Event.ElderID, alert.Live)
	}()

	if alert.Durable {
		wg.Add(1)
		go func() {
			defer wg.Done()
			notifyErr = d.notifyCaregivers(ctx, alert)
		}()
	}

	wg.Wait()

	if err := errors.Join(liveErr, notifyErr); err != nil {
		return &FanoutError{EventID: alert.Event.ID, Err: err}
	}
	return nil
}

// Live publishes a message that has no event behind it
func (d *Dispatcher) Live(ctx context.Context, elderID uuid.UUID, msg *model.WSEvent) error {
	if err := d.publishLive(ctx, elderID, msg); err != nil {
		return &FanoutError{Err: err}
	}
	return nil
}

func (d *Dispatcher) publishLive(ctx context.Context, elderID uuid.UUID, msg *model.WSEvent) error {
	if msg == nil {
		return nil
	}
	if err := d.live.PublishToElder(ctx, elderID, msg); err != nil {
		return fmt.Errorf("live publish %s: %w", msg.Type, err)
	}
	d.metrics.Inc(metrics.LiveMessagesPublished)
	return nil
}

// notifyCaregivers resolves recipients once, then handles each caregiver in
// its own goroutine. Push attempts share one deadline.
func (d *Dispatcher) notifyCaregivers(ctx context.Context, alert Alert) error {
	elder, err := d.caregivers.FindWithCaregivers(ctx, alert.Event.ElderID)
	if err != nil {
		return fmt.Errorf("resolve caregivers: %w", err)
	}

	pushCtx, cancel := context.WithTimeout(ctx, d.pushTimeout)
	defer cancel()

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, cg := range elder.Caregivers {
		wg.Add(1)
		go func(cg model.ElderCaregiver) {
			defer wg.Done()
			if err := d.notifyOne(ctx, pushCtx, alert, cg); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		}(cg)
	}
	wg.Wait()

	return errors.Join(errs...)
}

// notifyOne always creates the inbox row; push failures are logged, not returned.
func (d *Dispatcher) notifyOne(ctx, pushCtx context.Context, alert Alert, cg model.ElderCaregiver) error {
	n := &model.Notification{
		UserID:  cg.UserID,
		EventID: alert.Event.ID,
		Type:    alert.Event.Type,
		Title:   alert.Title,
		Message: alert.Body,
	}
	if err := d.notifications.Create(ctx, n); err != nil {
		return fmt.Errorf("create notification for %s: %w", cg.UserID, err)
	}
	d.metrics.Inc(metrics.NotificationsCreated)

	tokens := cg.User.PushTokens
	if len(tokens) == 0 || d.push == nil {
		return nil
	}

	data := map[string]string{
		"type":     string(alert.Event.Type),
		"eventId":  alert.Event.ID.String(),
		"elderId":  alert.Event.ElderID.String(),
		"severity": string(alert.Event.Severity),
	}
	msgs := make([]notification.PushMessage, 0, len(tokens))
	for _, t := range tokens {
		msgs = append(msgs, notification.PushMessage{
			Token: t.Token,
			Title: alert.Title,
			Body:  alert.Body,
			Data:  data,
		})
	}

	results, err := d.push.Send(pushCtx, msgs)
	if err != nil {
		d.metrics.Inc(metrics.PushFailed)
		d.logger.Warn("Push delivery failed",
			zap.String("user_id", cg.UserID.String()),
			zap.String("event_id", alert.Event.ID.String()),
			zap.Error(err))
		return nil
	}

	delivered := false
	for _, r := range results {
		if r.Success {
			delivered = true
			continue
		}
		d.metrics.Inc(metrics.PushFailed)
		if r.Unregistered && d.tokens != nil {
			if err := d.tokens.RemovePushToken(ctx, r.Token); err != nil {
				d.logger.Warn("Failed to remove stale push token", zap.Error(err))
			}
		}
	}
	if !delivered {
		return nil
	}

	d.metrics.Inc(metrics.PushDelivered)
	if err := d.notifications.MarkSent(ctx, n.ID, d.now().UTC()); err != nil {
		return fmt.Errorf("mark notification %s sent: %w", n.ID, err)
	}
	return nil
}
