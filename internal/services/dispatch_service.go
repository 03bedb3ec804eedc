// internal/services/dispatch_service.go
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/javajoker/dealer-contracts/internal/config"
	"github.com/javajoker/dealer-contracts/internal/models"
)

const (
	defaultQueueSize = 256
	enqueueTimeout   = 3 * time.Second
)

var (
	ErrQueueFull         = errors.New("notification queue is full")
	ErrDispatcherStopped = errors.New("notification dispatcher is stopped")
)

// Dispatcher queues notifications so delivery never runs inside a contract transition.
type Dispatcher interface {
	Enqueue(ctx context.Context, msg Message) error
	Start(ctx context.Context)
	Stop()
}

// deliveryWorker sends one message with retries and records the outcome.
type deliveryWorker struct {
	db          *gorm.DB
	notifier    Notifier
	maxAttempts int
	backoff     time.Duration
}

func (w *deliveryWorker) record(ctx context.Context, msg *Message) error {
	delivery := models.NotificationDelivery{
		TenantID:    msg.TenantID,
		ContractID:  msg.ContractID,
		SignatureID: msg.SignatureID,
		Kind:        string(msg.Payload.Kind()),
		Channel:     msg.Channel,
		Recipient:   msg.Recipient,
		Status:      models.DeliveryStatusQueued,
	}
	if err := w.db.WithContext(ctx).Create(&delivery).Error; err != nil {
		return fmt.Errorf("failed to record notification delivery: %w", err)
	}
	msg.DeliveryID = delivery.ID
	return nil
}

// abandon marks a recorded delivery failed without sending it.
func (w *deliveryWorker) abandon(ctx context.Context, msg Message, cause error) {
	if msg.DeliveryID == uuid.Nil {
		return
	}
	if err := w.db.WithContext(context.WithoutCancel(ctx)).
		Model(&models.NotificationDelivery{}).
		Where("id = ?", msg.DeliveryID).
		Updates(map[string]interface{}{
			"status":     models.DeliveryStatusFailed,
			"last_error": cause.Error(),
		}).Error; err != nil {
		logrus.WithError(err).WithField("delivery_id", msg.DeliveryID).Error("Failed to update notification delivery")
	}
}

func (w *deliveryWorker) deliver(ctx context.Context, msg Message) {
	log := logrus.WithFields(logrus.Fields{
		"delivery_id": msg.DeliveryID,
		"contract_id": msg.ContractID,
		"channel":     msg.Channel,
		"kind":        msg.Payload.Kind(),
	})

	var (
		result  *DeliveryResult
		lastErr error
		attempt int
	)
	for attempt = 1; attempt <= w.maxAttempts; attempt++ {
		result, lastErr = w.notifier.Send(ctx, msg)
		if lastErr == nil {
			break
		}
		log.WithError(lastErr).WithField("attempt", attempt).Warn("Notification delivery failed")
		if attempt == w.maxAttempts || ctx.Err() != nil {
			break
		}
		select {
		case <-ctx.Done():
		case <-time.After(w.backoff * time.Duration(attempt)):
		}
	}
	if attempt > w.maxAttempts {
		attempt = w.maxAttempts
	}

	updates := map[string]interface{}{"attempts": attempt}
	if lastErr != nil {
		updates["status"] = models.DeliveryStatusFailed
		updates["last_error"] = lastErr.Error()
		log.WithError(lastErr).Error("Notification abandoned")
	} else {
		updates["status"] = models.DeliveryStatusSent
		if result != nil {
			updates["provider_message_id"] = result.ProviderMessageID
		}
	}

	if msg.DeliveryID == uuid.Nil {
		return
	}
	if err := w.db.WithContext(context.WithoutCancel(ctx)).
		Model(&models.NotificationDelivery{}).
		Where("id = ?", msg.DeliveryID).
		Updates(updates).Error; err != nil {
		log.WithError(err).Error("Failed to update notification delivery")
	}
}

// MemoryDispatcher runs deliveries on in-process workers. Enqueue never waits
// for room in the queue.
type MemoryDispatcher struct {
	worker  *deliveryWorker
	queue   chan Message
	workers int
	wg      sync.WaitGroup

	mu      sync.RWMutex
	stopped bool
}

func NewMemoryDispatcher(db *gorm.DB, notifier Notifier, cfg config.DispatchConfig) *MemoryDispatcher {
	workers := cfg.Workers
	if workers < 1 {
		workers = 1
	}
	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	queueSize := cfg.QueueSize
	if queueSize < 1 {
		queueSize = defaultQueueSize
	}
	return &MemoryDispatcher{
		worker: &deliveryWorker{
			db:          db,
			notifier:    notifier,
			maxAttempts: attempts,
			backoff:     time.Second,
		},
		queue:   make(chan Message, queueSize),
		workers: workers,
	}
}

// SetBackoff shortens the retry delay; used by tests.
func (d *MemoryDispatcher) SetBackoff(backoff time.Duration) {
	d.worker.backoff = backoff
}

// Enqueue records the delivery and hands it to a worker. A full queue marks
// the delivery failed instead of waiting.
func (d *MemoryDispatcher) Enqueue(ctx context.Context, msg Message) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.stopped {
		return ErrDispatcherStopped
	}

	if err := d.worker.record(ctx, &msg); err != nil {
		return err
	}
	select {
	case d.queue <- msg:
		return nil
	default:
		d.worker.abandon(ctx, msg, ErrQueueFull)
		return ErrQueueFull
	}
}

func (d *MemoryDispatcher) Start(ctx context.Context) {
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			for msg := range d.queue {
				d.worker.deliver(ctx, msg)
			}
		}()
	}
}

// Stop drains the queue and waits for in-flight deliveries.
func (d *MemoryDispatcher) Stop() {
	d.mu.Lock()
	if !d.stopped {
		d.stopped = true
		close(d.queue)
	}
	d.mu.Unlock()
	d.wg.Wait()
}

// RedisDispatcher pushes deliveries onto a Redis list shared by every API instance.
type RedisDispatcher struct {
	worker  *deliveryWorker
	client  *redis.Client
	key     string
	workers int
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func NewRedisDispatcher(db *gorm.DB, client *redis.Client, notifier Notifier, cfg config.DispatchConfig) *RedisDispatcher {
	workers := cfg.Workers
	if workers < 1 {
		workers = 1
	}
	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	return &RedisDispatcher{
		worker: &deliveryWorker{
			db:          db,
			notifier:    notifier,
			maxAttempts: attempts,
			backoff:     time.Second,
		},
		client:  client,
		key:     cfg.QueueKey,
		workers: workers,
	}
}

func (d *RedisDispatcher) Enqueue(ctx context.Context, msg Message) error {
	if err := d.worker.record(ctx, &msg); err != nil {
		return err
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode notification: %w", err)
	}

	pushCtx, cancel := context.WithTimeout(ctx, enqueueTimeout)
	defer cancel()
	if err := d.client.LPush(pushCtx, d.key, payload).Err(); err != nil {
		d.worker.abandon(ctx, msg, err)
		return fmt.Errorf("failed to enqueue notification: %w", err)
	}
	return nil
}

func (d *RedisDispatcher) Start(ctx context.Context) {
	ctx, d.cancel = context.WithCancel(ctx)
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			d.consume(ctx)
		}()
	}
}

func (d *RedisDispatcher) consume(ctx context.Context) {
	for ctx.Err() == nil {
		res, err := d.client.BRPop(ctx, 5*time.Second, d.key).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || ctx.Err() != nil {
				continue
			}
			logrus.WithError(err).Warn("Notification queue read failed")
			time.Sleep(time.Second)
			continue
		}
		if len(res) != 2 {
			continue
		}

		var msg Message
		if err := json.Unmarshal([]byte(res[1]), &msg); err != nil {
			logrus.WithError(err).Error("Dropping malformed notification")
			continue
		}
		d.worker.deliver(ctx, msg)
	}
}

func (d *RedisDispatcher) Stop() {
	if d.cancel != nil {
		d.cancel()
	}
	d.wg.Wait()
}

// NewDispatcher builds the queue selected by DISPATCH_DRIVER.
func NewDispatcher(db *gorm.DB, notifier Notifier, cfg *config.Config) (Dispatcher, error) {
	switch cfg.Dispatch.Driver {
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		return NewRedisDispatcher(db, client, notifier, cfg.Dispatch), nil
	case "memory", "":
		return NewMemoryDispatcher(db, notifier, cfg.Dispatch), nil
	default:
		return nil, fmt.Errorf("unsupported dispatch driver %q", cfg.Dispatch.Driver)
	}
}
