package entity

import (
	"context"

	"github.com/micro-ha/moodo-bridge/addon/internal/model"
	"github.com/micro-ha/moodo-bridge/addon/internal/moodo"
)

// FanIsOn reports whether the device's main fan is running.
func FanIsOn(box model.Box) bool {
	return box.BoxStatus == model.BoxStatusOn
}

// FanPercentage returns the displayed fan speed. The overall volume already
// uses a 0-100 range, so the percentage is the volume while on.
func FanPercentage(box model.Box) int {
	if !FanIsOn(box) {
		return 0
	}
	return clampPercent(box.FanVolume)
}

// TurnOnOptions are the optional parameters of a power-on intent.
type TurnOnOptions struct {
	Percentage      *int
	DurationMinutes *int
	FavoriteID      *string
}

// TurnOnFan powers the device on, optionally at a given percentage, for a
// limited duration, or straight into a preset.
func (c *Controller) TurnOnFan(ctx context.Context, deviceKey int, on TurnOnOptions) error {
	patch := model.BoxPatch{BoxStatus: intPtr(model.BoxStatusOn)}
	opts := moodo.PowerOnOptions{
		DurationMinutes: on.DurationMinutes,
		FavoriteID:      on.FavoriteID,
	}
	if on.Percentage != nil {
		volume := clampPercent(*on.Percentage)
		patch.FanVolume = &volume
		opts.FanVolume = &volume
	}
	if on.FavoriteID != nil {
		patch.FavoriteIDApplied = on.FavoriteID
	}
	return c.write(deviceKey, patch, func() error {
		_, err := c.client.PowerOn(ctx, deviceKey, opts)
		return err
	})
}

// TurnOffFan powers the device off.
func (c *Controller) TurnOffFan(ctx context.Context, deviceKey int) error {
	patch := model.BoxPatch{BoxStatus: intPtr(model.BoxStatusOff)}
	return c.write(deviceKey, patch, func() error {
		_, err := c.client.PowerOff(ctx, deviceKey)
		return err
	})
}

// SetFanPercentage sets the overall intensity; zero powers the device off.
func (c *Controller) SetFanPercentage(ctx context.Context, deviceKey, percentage int) error {
	if percentage == 0 {
		return c.TurnOffFan(ctx, deviceKey)
	}
	volume := clampPercent(percentage)
	patch := model.BoxPatch{FanVolume: &volume}
	return c.write(deviceKey, patch, func() error {
		_, err := c.client.SetFanVolume(ctx, deviceKey, volume)
		return err
	})
}

func clampPercent(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
