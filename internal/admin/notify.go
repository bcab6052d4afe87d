// ABOUTME: Announces adb key changes to the caller's notification group
// ABOUTME: Publishing never affects the response; failures are logged

package admin

import (
	"context"
	"errors"
	"fmt"

	"github.com/2389/devicefarm-gateway/internal/auth"
	"github.com/2389/devicefarm-gateway/internal/bus"
)

// ErrNoGroup is returned when a notification has nowhere to go.
var ErrNoGroup = errors.New("no notification group")

// KeyNotifier announces that the set of authorized adb keys changed.
type KeyNotifier interface {
	NotifyAdbKeysUpdated(ctx context.Context, group string) error
}

// BusNotifier publishes AdbKeysUpdatedMessage envelopes on a bus.
type BusNotifier struct {
	pub bus.Publisher
}

// NewBusNotifier creates a notifier publishing to pub.
func NewBusNotifier(pub bus.Publisher) *BusNotifier {
	return &BusNotifier{pub: pub}
}

// NotifyAdbKeysUpdated implements KeyNotifier.
func (n *BusNotifier) NotifyAdbKeysUpdated(ctx context.Context, group string) error {
	if group == "" {
		return ErrNoGroup
	}
	env, err := bus.NewEnvelope(group, bus.TypeAdbKeysUpdated, bus.AdbKeysUpdatedMessage{})
	if err != nil {
		return err
	}
	if err := n.pub.Publish(ctx, env); err != nil {
		return fmt.Errorf("publishing %s: %w", bus.TypeAdbKeysUpdated, err)
	}
	return nil
}

// notifyKeysUpdated runs after a key was inserted or removed.
func (s *Service) notifyKeysUpdated(ctx context.Context, caller *auth.AuthContext) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.NotifyAdbKeysUpdated(ctx, caller.Group); err != nil {
		s.logger.Warn("adb keys update notification failed",
			"caller", caller.Email,
			"group", caller.Group,
			"error", err)
	}
}
