// Package notify raises desktop notifications when the timer changes phase
// on its own, so a user in another window notices the break.
package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/godbus/dbus/v5"

	"flowbar/backend/internal/model"
	"flowbar/backend/internal/surface"
)

const (
	notificationsService = "org.freedesktop.Notifications"
	notificationsPath    = "/org/freedesktop/Notifications"
	notifyMethod         = notificationsService + ".Notify"

	expireTimeoutMs = int32(10000)
)

// caller is the slice of dbus.BusObject the notifier needs.
type caller interface {
	Call(method string, flags dbus.Flags, args ...interface{}) *dbus.Call
}

type message struct {
	summary string
	body    string
	icon    string
}

// Desktop delivers phase changes over the session bus. Notify only queues;
// Run performs the D-Bus calls.
type Desktop struct {
	appName string
	logger  *slog.Logger
	queue   chan message
	dial    func() (caller, func(), error)
}

func NewDesktop(appName string, logger *slog.Logger) *Desktop {
	if logger == nil {
		logger = slog.Default()
	}
	return &Desktop{
		appName: appName,
		logger:  logger.With("component", "notify.desktop"),
		queue:   make(chan message, 8),
		dial:    dialSessionBus,
	}
}

func dialSessionBus() (caller, func(), error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, nil, fmt.Errorf("connect session bus: %w", err)
	}
	return conn.Object(notificationsService, notificationsPath), func() { _ = conn.Close() }, nil
}

func (d *Desktop) Notify(_ context.Context, effect surface.Effect) {
	msg, ok := messageFor(effect)
	if !ok {
		return
	}
	select {
	case d.queue <- msg:
	default:
		d.logger.Warn("notification queue full, dropping", "summary", msg.summary)
	}
}

// Run delivers queued notifications until ctx is done. The bus connection
// is opened on first use and reopened after a failure.
func (d *Desktop) Run(ctx context.Context) error {
	var (
		obj       caller
		closeConn func()
	)
	defer func() {
		if closeConn != nil {
			closeConn()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-d.queue:
			if obj == nil {
				var err error
				obj, closeConn, err = d.dial()
				if err != nil {
					d.logger.Warn("desktop notifications unavailable", "error", err)
					continue
				}
			}
			if err := d.send(obj, msg); err != nil {
				d.logger.Warn("failed to send notification", "summary", msg.summary, "error", err)
				closeConn()
				obj, closeConn = nil, nil
				continue
			}
			d.logger.Debug("notification sent", "summary", msg.summary)
		}
	}
}

func (d *Desktop) send(obj caller, msg message) error {
	call := obj.Call(notifyMethod, 0,
		d.appName,
		uint32(0),
		msg.icon,
		msg.summary,
		msg.body,
		[]string{},
		map[string]dbus.Variant{
			"urgency": dbus.MakeVariant(byte(1)),
		},
		expireTimeoutMs,
	)
	if call.Err != nil {
		return fmt.Errorf("notify: %w", call.Err)
	}
	return nil
}

// messageFor picks the automatic phase changes worth a notification.
func messageFor(effect surface.Effect) (message, bool) {
	if effect.Kind != surface.KindPhase {
		return message{}, false
	}
	switch {
	case effect.Previous == model.StateFocus && effect.State == model.StateBreak:
		return message{
			summary: "Focus session complete",
			body:    fmt.Sprintf("Take a break. Next focus in %s.", effect.Text),
			icon:    "appointment-soon",
		}, true
	case effect.Previous == model.StateBreak && effect.State == model.StateFocus:
		return message{
			summary: "Break is over",
			body:    fmt.Sprintf("Back to focus for %s.", effect.Text),
			icon:    "appointment-new",
		}, true
	}
	return message{}, false
}
