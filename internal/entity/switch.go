package entity

import (
	"context"

	"github.com/micro-ha/moodo-bridge/addon/internal/model"
)

// ShuffleIsOn reports the shuffle toggle state.
func ShuffleIsOn(box model.Box) bool { return box.Shuffle }

// IntervalIsOn reports the interval toggle state.
func IntervalIsOn(box model.Box) bool { return box.Interval }

// SetShuffle toggles shuffle mode.
func (c *Controller) SetShuffle(ctx context.Context, deviceKey int, on bool) error {
	patch := model.BoxPatch{Shuffle: boolPtr(on)}
	return c.write(deviceKey, patch, func() error {
		if on {
			_, err := c.client.EnableShuffle(ctx, deviceKey)
			return err
		}
		_, err := c.client.DisableShuffle(ctx, deviceKey)
		return err
	})
}

// SetInterval toggles interval mode, optionally selecting a type on enable.
func (c *Controller) SetInterval(ctx context.Context, deviceKey int, on bool, intervalType *int) error {
	patch := model.BoxPatch{Interval: boolPtr(on)}
	if on && intervalType != nil {
		patch.IntervalType = intervalType
	}
	return c.write(deviceKey, patch, func() error {
		if on {
			_, err := c.client.EnableInterval(ctx, deviceKey, intervalType)
			return err
		}
		_, err := c.client.DisableInterval(ctx, deviceKey)
		return err
	})
}
