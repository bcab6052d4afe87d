// Package bus delivers notifications from the control plane to device
// providers.
//
// Messages are wrapped in an Envelope, encoded with Core Deterministic CBOR
// and fanned out to every subscriber of the envelope's channel. A channel
// is normally a user's group, so only the processes serving that user hear
// about changes to their adb keys.
//
//	b := bus.NewBroadcaster(cfg.Bus.BufferSize, logger)
//	frames, _ := b.Subscribe(ctx, user.Group)
//	for frame := range frames {
//		env, err := bus.Decode(frame)
//		...
//	}
//
// Delivery is best effort. A subscriber whose buffer is full misses frames.
package bus
