package push

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dukerupert/nudge/internal/metrics"
	"github.com/dukerupert/nudge/internal/model"
)

// SubscriptionStore is the device registry the dispatcher reads and prunes.
type SubscriptionStore interface {
	ListByUser(ctx context.Context, userID int64) ([]model.PushSubscription, error)
	DeleteByEndpoint(ctx context.Context, endpoint string) error
}

// NotificationStore persists the durable in-app copy.
type NotificationStore interface {
	Create(ctx context.Context, userID int64, title, body, notifType, url, data string) (*model.Notification, error)
}

// Publisher forwards a freshly written notification to a user's live sessions.
type Publisher interface {
	PublishNotification(userID int64, n *model.Notification)
}

// Message is what a caller wants a user to see.
type Message struct {
	Title string
	Body  string
	Type  string
	URL   string
	Tag   string
	Data  map[string]any
}

// Report summarises one Send.
type Report struct {
	NotificationID int64 `json:"notification_id"`
	Devices        int   `json:"devices"`
	Delivered      int   `json:"delivered"`
	Pruned         int   `json:"pruned"`
	Failed         int   `json:"failed"`
}

type DispatcherConfig struct {
	Concurrency int
	Timeout     time.Duration
	Icon        string
	Badge       string
}

// Dispatcher writes a durable notification for every message and fans it out
// to the user's devices. Push is best-effort; the notification row is not.
type Dispatcher struct {
	provider  Provider
	subs      SubscriptionStore
	notifs    NotificationStore
	publisher Publisher
	cfg       DispatcherConfig
	logger    *slog.Logger
	wg        sync.WaitGroup
}

// NewDispatcher creates a dispatcher. provider may be nil when push is not
// configured, in which case only the durable notification is written.
func NewDispatcher(provider Provider, subs SubscriptionStore, notifs NotificationStore, cfg DispatcherConfig, logger *slog.Logger) *Dispatcher {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	return &Dispatcher{
		provider: provider,
		subs:     subs,
		notifs:   notifs,
		cfg:      cfg,
		logger:   logger,
	}
}

// SetPublisher attaches a live-session publisher.
func (d *Dispatcher) SetPublisher(p Publisher) {
	d.publisher = p
}

// Send persists the notification and then delivers it to every device,
// waiting for the fan-out to finish. Only a persistence failure is returned.
func (d *Dispatcher) Send(ctx context.Context, userID int64, msg Message) (Report, error) {
	n, err := d.persist(ctx, userID, msg)
	if err != nil {
		return Report{}, err
	}
	report := d.fanOut(ctx, userID, msg, n.ID)
	report.NotificationID = n.ID
	return report, nil
}

// Notify persists the notification synchronously and delivers it in the
// background, so the caller never waits on the push provider.
func (d *Dispatcher) Notify(ctx context.Context, userID int64, msg Message) (*model.Notification, error) {
	n, err := d.persist(ctx, userID, msg)
	if err != nil {
		return nil, err
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.fanOut(context.WithoutCancel(ctx), userID, msg, n.ID)
	}()
	return n, nil
}

// Close waits for background deliveries to finish.
func (d *Dispatcher) Close() {
	d.wg.Wait()
}

func (d *Dispatcher) persist(ctx context.Context, userID int64, msg Message) (*model.Notification, error) {
	data, err := json.Marshal(d.data(msg, 0))
	if err != nil {
		return nil, fmt.Errorf("marshal notification data: %w", err)
	}

	n, err := d.notifs.Create(ctx, userID, msg.Title, msg.Body, msg.Type, msg.URL, string(data))
	if err != nil {
		return nil, fmt.Errorf("persist notification: %w", err)
	}
	metrics.NotificationsCreatedTotal.WithLabelValues(msg.Type).Inc()

	if d.publisher != nil {
		d.publisher.PublishNotification(userID, n)
	}
	return n, nil
}

func (d *Dispatcher) data(msg Message, notificationID int64) map[string]any {
	data := make(map[string]any, len(msg.Data)+3)
	for k, v := range msg.Data {
		data[k] = v
	}
	data["url"] = msg.URL
	data["type"] = msg.Type
	if notificationID != 0 {
		data["notification_id"] = notificationID
	}
	return data
}

func (d *Dispatcher) payload(msg Message, notificationID int64) Payload {
	tag := msg.Tag
	if tag == "" {
		tag = fmt.Sprintf("%s-%d", msg.Type, notificationID)
	}
	return Payload{
		Title: msg.Title,
		Body:  msg.Body,
		Icon:  d.cfg.Icon,
		Badge: d.cfg.Badge,
		Tag:   tag,
		Data:  d.data(msg, notificationID),
	}
}

func (d *Dispatcher) fanOut(ctx context.Context, userID int64, msg Message, notificationID int64) Report {
	var report Report
	if d.provider == nil {
		return report
	}

	subs, err := d.subs.ListByUser(ctx, userID)
	if err != nil {
		d.logger.Error("list push subscriptions", "user_id", userID, "error", err)
		return report
	}
	report.Devices = len(subs)
	if len(subs) == 0 {
		return report
	}

	payload := d.payload(msg, notificationID)
	var delivered, pruned, failed atomic.Int64

	var g errgroup.Group
	g.SetLimit(d.cfg.Concurrency)
	for i := range subs {
		sub := &subs[i]
		g.Go(func() error {
			callCtx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
			defer cancel()

			err := d.provider.Send(callCtx, sub, payload)
			switch {
			case err == nil:
				delivered.Add(1)
				metrics.PushDeliveriesTotal.WithLabelValues("delivered").Inc()
			case errors.Is(err, ErrExpired):
				pruned.Add(1)
				metrics.PushDeliveriesTotal.WithLabelValues("pruned").Inc()
				if err := d.subs.DeleteByEndpoint(ctx, sub.Endpoint); err != nil {
					d.logger.Error("prune push subscription", "subscription_id", sub.ID, "error", err)
				} else {
					d.logger.Info("pruned expired push subscription", "subscription_id", sub.ID, "user_id", userID)
				}
			default:
				failed.Add(1)
				metrics.PushDeliveriesTotal.WithLabelValues("failed").Inc()
				d.logger.Warn("push delivery failed", "subscription_id", sub.ID, "user_id", userID, "error", err)
			}
			return nil
		})
	}
	g.Wait()

	report.Delivered = int(delivered.Load())
	report.Pruned = int(pruned.Load())
	report.Failed = int(failed.Load())
	return report
}
