package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"
	"gorm.io/gorm"

	"embroidery-telemetry-backend/internal/model"
)

// AlertSender defines the interface for sending a web push alert.
type AlertSender interface {
	Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// WebPushSender is the real implementation backed by the webpush library.
type WebPushSender struct{}

// Send sends an alert using the webpush library.
func (s *WebPushSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return webpush.SendNotification(payload, sub, options)
}

// threadBreakAlert is the JSON body pushed to subscribed browsers.
type threadBreakAlert struct {
	Type         string `json:"type"`
	MachineUID   string `json:"machineUid"`
	ThreadBreaks int64  `json:"threadBreaks"`
	Message      string `json:"message"`
}

// WorkerPool fans thread-break alerts out to web push subscribers. Jobs are
// internal machine IDs dispatched by the ingestion gateway.
type WorkerPool struct {
	size    int
	jobs    chan int64
	db      *gorm.DB
	webpush *webpush.Options
	sender  AlertSender
}

// NewWorkerPool creates a new worker pool.
func NewWorkerPool(size int, db *gorm.DB, webpushOptions *webpush.Options) *WorkerPool {
	return &WorkerPool{
		size:    size,
		jobs:    make(chan int64, size),
		db:      db,
		webpush: webpushOptions,
		sender:  &WebPushSender{},
	}
}

// Start launches the worker goroutines.
func (wp *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < wp.size; i++ {
		go wp.worker(ctx, i)
	}
}

func (wp *WorkerPool) worker(ctx context.Context, id int) {
	log.Printf("Alert worker %d started", id)
	for {
		select {
		case machineID := <-wp.jobs:
			wp.sendAlertsForMachine(ctx, machineID)
		case <-ctx.Done():
			log.Printf("Alert worker %d shutting down", id)
			return
		}
	}
}

// Dispatch queues a thread-break alert for a machine.
func (wp *WorkerPool) Dispatch(machineID int64) {
	wp.jobs <- machineID
}

// Jobs returns the jobs channel for testing.
func (wp *WorkerPool) Jobs() chan int64 {
	return wp.jobs
}

// sendAlertsForMachine fetches the machine's subscribers and pushes the alert.
func (wp *WorkerPool) sendAlertsForMachine(ctx context.Context, machineID int64) {
	var subscriptions []model.PushSubscription
	err := wp.db.WithContext(ctx).
		Joins("JOIN subscription_machine_mapping smm ON smm.push_subscription_endpoint = push_subscriptions.endpoint").
		Where("smm.machine_id = ?", machineID).
		Find(&subscriptions).Error
	if err != nil {
		log.Printf("Error fetching subscriptions for machine %d: %v", machineID, err)
		return
	}

	if len(subscriptions) == 0 {
		return
	}

	var machine model.Machine
	if err := wp.db.WithContext(ctx).First(&machine, machineID).Error; err != nil {
		log.Printf("Error fetching machine %d for alert: %v", machineID, err)
		return
	}

	alert := threadBreakAlert{
		Type:         "thread_break",
		MachineUID:   machine.UID,
		ThreadBreaks: machine.ThreadBreakCount,
		Message:      fmt.Sprintf("Thread break on machine %s (%d total)", machine.UID, machine.ThreadBreakCount),
	}
	payload, err := json.Marshal(alert)
	if err != nil {
		log.Printf("Error marshalling alert for machine %d: %v", machineID, err)
		return
	}

	log.Printf("Sending %d thread-break alerts for machine %s", len(subscriptions), machine.UID)
	for _, sub := range subscriptions {
		wp.sendAlert(ctx, sub, payload)
	}
}

// sendAlert sends a single web push message.
func (wp *WorkerPool) sendAlert(ctx context.Context, sub model.PushSubscription, payload []byte) {
	wpSub := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256DH,
			Auth:   sub.Auth,
		},
	}

	resp, err := wp.sender.Send(payload, wpSub, wp.webpush)
	if err != nil {
		log.Printf("Error sending alert to %s: %v", sub.Endpoint, err)
		return
	}
	defer resp.Body.Close()

	// Expired subscriptions are pruned on the spot.
	if resp.StatusCode == http.StatusGone {
		log.Printf("Subscription for endpoint %s is expired. Deleting.", sub.Endpoint)
		if err := wp.db.WithContext(ctx).Delete(&sub).Error; err != nil {
			log.Printf("Failed to delete expired subscription %s: %v", sub.Endpoint, err)
		}
	}
}
