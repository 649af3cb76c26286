package entity

import (
	"math"

	"github.com/micro-ha/moodo-bridge/addon/internal/model"
)

// BatteryLevel returns the displayed battery percentage. The backend
// reports 0 for a fully charged battery while on the charger; display 100
// in that case.
func BatteryLevel(box model.Box) int {
	if box.IsBatteryCharging && box.BatteryLevelPercent == 0 {
		return 100
	}
	return box.BatteryLevelPercent
}

// AdapterStatus returns "on" or "off". A charging battery implies the
// adapter is connected regardless of the raw flag.
func AdapterStatus(box model.Box) string {
	if box.IsBatteryCharging || box.IsAdapterOn {
		return "on"
	}
	return "off"
}

// ChargingStatus returns "charging" or "not_charging".
func ChargingStatus(box model.Box) string {
	if box.IsBatteryCharging {
		return "charging"
	}
	return "not_charging"
}

// BatterySensorAvailable reports whether battery telemetry applies to the
// device class at all.
func BatterySensorAvailable(box model.Box) bool {
	return box.IsOnline && box.HasBattery
}

// CapsuleTitle returns the display name of the capsule in one slot.
func CapsuleTitle(box model.Box, slotID int) string {
	if slot, ok := box.Slot(slotID); ok && slot.CapsuleInfo.Title != "" {
		return slot.CapsuleInfo.Title
	}
	return "Empty"
}

// FragranceLeft returns the remaining-fragrance percentage of one slot,
// preferring the measured value over the manual usage setting.
func FragranceLeft(box model.Box, slotID int) (int, bool) {
	slot, ok := box.Slot(slotID)
	if !ok {
		return 0, false
	}
	if slot.FragranceLeftPercent != nil {
		return int(math.Round(*slot.FragranceLeftPercent)), true
	}
	if slot.SlotManualUsagePct != nil {
		return int(math.Round(*slot.SlotManualUsagePct)), true
	}
	return 0, false
}
