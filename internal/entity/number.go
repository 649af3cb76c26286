package entity

import (
	"context"

	"github.com/micro-ha/moodo-bridge/addon/internal/model"
	"github.com/micro-ha/moodo-bridge/addon/internal/moodo"
)

// SlotSpeed returns the fan speed of one capsule slot.
func SlotSpeed(box model.Box, slotID int) int {
	if slot, ok := box.Slot(slotID); ok {
		return slot.FanSpeed
	}
	return 0
}

// SlotAvailable reports whether the slot's intensity slider may be moved.
func SlotAvailable(box model.Box, slotID int) bool {
	if !box.IsOnline {
		return false
	}
	if slot, ok := box.Slot(slotID); ok {
		return slot.SliderMovable()
	}
	return true
}

// SetSlotSpeed sets one slot's fan speed. The backend only accepts bulk
// writes, so the current speeds of the other slots are sent along.
func (c *Controller) SetSlotSpeed(ctx context.Context, deviceKey, slotID, value int) error {
	box, ok := c.store.Box(deviceKey)
	if !ok {
		return ErrUnknownDevice
	}
	value = clampPercent(value)

	slots := make(map[int]moodo.SlotSpeed, model.SlotCount)
	for _, slot := range box.Settings {
		slots[slot.SlotID] = moodo.SlotSpeed{FanSpeed: slot.FanSpeed, FanActive: slot.FanActive}
	}
	slots[slotID] = moodo.SlotSpeed{FanSpeed: value, FanActive: value > 0}

	updated := make([]model.SlotSetting, len(box.Settings))
	copy(updated, box.Settings)
	for i, slot := range updated {
		if slot.SlotID == slotID {
			updated[i].FanSpeed = value
			updated[i].FanActive = value > 0
			break
		}
	}

	patch := model.BoxPatch{Settings: updated}
	return c.write(deviceKey, patch, func() error {
		_, err := c.client.SetFanSpeeds(ctx, deviceKey, slots, nil, nil)
		return err
	})
}
