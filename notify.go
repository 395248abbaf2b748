package authcore

import (
	"context"
	"sync"
)

// Notification is a fire-and-forget request to the email collaborator.
// Delivery, templating, and retries are its problem, not ours.
type Notification struct {
	UserID string
	Email  string
	Kind   NotificationKind
}

// NotificationKind names the security events users are told about.
type NotificationKind string

const (
	// NotifyMfaEnabled is sent after MFA setup confirmation.
	NotifyMfaEnabled NotificationKind = "mfa_enabled"
	// NotifyMfaDisabled is sent after MFA is disabled.
	NotifyMfaDisabled NotificationKind = "mfa_disabled"
	// NotifyPasswordChanged is sent after a password change or reset.
	NotifyPasswordChanged NotificationKind = "password_changed"
)

// Notifier is the external email dispatcher.
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

// notifyQueue enqueues notifications onto a buffered channel drained by one
// goroutine, so the auth path never waits on mail infrastructure. A full
// buffer drops the notification; these mails are best effort.
type notifyQueue struct {
	notifier  Notifier
	ch        chan Notification
	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

func newNotifyQueue(cfg NotifyConfig, notifier Notifier) *notifyQueue {
	if !cfg.Enabled || notifier == nil {
		return nil
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}

	q := &notifyQueue{
		notifier: notifier,
		ch:       make(chan Notification, cfg.BufferSize),
		done:     make(chan struct{}),
	}

	q.wg.Add(1)
	go q.run()

	return q
}

func (q *notifyQueue) run() {
	defer q.wg.Done()

	for {
		select {
		case n := <-q.ch:
			q.notifier.Notify(context.Background(), n)
		case <-q.done:
			for {
				select {
				case n := <-q.ch:
					q.notifier.Notify(context.Background(), n)
				default:
					return
				}
			}
		}
	}
}

func (q *notifyQueue) Enqueue(n Notification) {
	if q == nil {
		return
	}
	select {
	case q.ch <- n:
	case <-q.done:
	default:
	}
}

func (q *notifyQueue) Close() {
	if q == nil {
		return
	}
	q.closeOnce.Do(func() {
		close(q.done)
		q.wg.Wait()
	})
}
