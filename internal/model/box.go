package model

import "sort"

const (
	BoxStatusOff = 0
	BoxStatusOn  = 1

	BoxModeDiffuser = "diffuser"
	BoxModePurifier = "purifier"

	SlotCount = 4
)

// CapsuleInfo describes the scent cartridge installed in a slot.
type CapsuleInfo struct {
	Title     string `json:"title"`
	Color     string `json:"color"`
	IsDigital bool   `json:"is_digital"`
}

// SlotSetting is the per-bay state of one of the four capsule slots.
type SlotSetting struct {
	SlotID               int         `json:"slot_id"`
	FanSpeed             int         `json:"fan_speed"`
	FanActive            bool        `json:"fan_active"`
	CapsuleTypeCode      string      `json:"capsule_type_code"`
	CapsuleInfo          CapsuleInfo `json:"capsule_info"`
	FragranceLeftPercent *float64    `json:"fragrance_left_percent,omitempty"`
	SlotManualUsagePct   *float64    `json:"slot_manual_usage_percent,omitempty"`
	IsFanSliderMovable   *bool       `json:"is_fan_slider_movable,omitempty"`
}

// SliderMovable reports whether the slot intensity may be changed.
// The backend omits the flag for older firmware; that means movable.
func (s SlotSetting) SliderMovable() bool {
	if s.IsFanSliderMovable == nil {
		return true
	}
	return *s.IsFanSliderMovable
}

// Box is one diffuser device as reported by the vendor backend.
type Box struct {
	DeviceKey               int           `json:"device_key"`
	ID                      string        `json:"id"`
	Name                    string        `json:"name"`
	BoxVersion              int           `json:"box_version"`
	IsOnline                bool          `json:"is_online"`
	BoxStatus               int           `json:"box_status"`
	FanVolume               int           `json:"fan_volume"`
	BoxMode                 string        `json:"box_mode"`
	Shuffle                 bool          `json:"shuffle"`
	Interval                bool          `json:"interval"`
	IntervalType            int           `json:"interval_type"`
	CanIntervalTurnOn       bool          `json:"can_interval_turn_on"`
	IsDiffuserModeAvailable *bool         `json:"is_diffuser_mode_available,omitempty"`
	IsPurifierModeAvailable *bool         `json:"is_purifier_mode_available,omitempty"`
	FavoriteIDApplied       string        `json:"favorite_id_applied"`
	Settings                []SlotSetting `json:"settings"`
	HasBattery              bool          `json:"has_battery"`
	BatteryLevelPercent     int           `json:"battery_level_percent"`
	IsBatteryCharging       bool          `json:"is_battery_charging"`
	IsAdapterOn             bool          `json:"is_adapter_on"`
}

// Slot returns the settings entry for one slot id.
func (b Box) Slot(slotID int) (SlotSetting, bool) {
	for _, setting := range b.Settings {
		if setting.SlotID == slotID {
			return setting, true
		}
	}
	return SlotSetting{}, false
}

// InstalledCapsuleCodes returns the capsule type codes currently installed,
// sorted so callers can compare sets independent of slot order.
func (b Box) InstalledCapsuleCodes() []string {
	codes := make([]string, 0, len(b.Settings))
	for _, setting := range b.Settings {
		if setting.CapsuleTypeCode != "" {
			codes = append(codes, setting.CapsuleTypeCode)
		}
	}
	sort.Strings(codes)
	return codes
}

// BoxPatch is a partial field set for an optimistic in-place update.
// Nil fields are left untouched; a non-nil Settings replaces all slots.
type BoxPatch struct {
	BoxStatus         *int
	FanVolume         *int
	BoxMode           *string
	Shuffle           *bool
	Interval          *bool
	IntervalType      *int
	FavoriteIDApplied *string
	Settings          []SlotSetting
}

// Apply shallow-merges the patch into the box.
func (b *Box) Apply(p BoxPatch) {
	if p.BoxStatus != nil {
		b.BoxStatus = *p.BoxStatus
	}
	if p.FanVolume != nil {
		b.FanVolume = *p.FanVolume
	}
	if p.BoxMode != nil {
		b.BoxMode = *p.BoxMode
	}
	if p.Shuffle != nil {
		b.Shuffle = *p.Shuffle
	}
	if p.Interval != nil {
		b.Interval = *p.Interval
	}
	if p.IntervalType != nil {
		b.IntervalType = *p.IntervalType
	}
	if p.FavoriteIDApplied != nil {
		b.FavoriteIDApplied = *p.FavoriteIDApplied
	}
	if p.Settings != nil {
		b.Settings = p.Settings
	}
}

// IntervalType describes one entry of the interval-type catalog.
type IntervalType struct {
	Type            int    `json:"type"`
	Keyword         string `json:"keyword"`
	DurationMinutes int    `json:"duration_minutes"`
}

// FavoriteSetting is one slot of a preset's required configuration.
type FavoriteSetting struct {
	CapsuleTypeCode string `json:"capsule_type_code"`
	FanSpeed        int    `json:"fan_speed"`
	FanActive       bool   `json:"fan_active"`
}

// Favorite is a named preset tied to a specific capsule combination.
type Favorite struct {
	ID       string            `json:"id"`
	Title    string            `json:"title"`
	Settings []FavoriteSetting `json:"settings"`
}

// RequiredCapsuleCodes returns the capsule type codes the preset needs,
// sorted for order-independent comparison against installed capsules.
func (f Favorite) RequiredCapsuleCodes() []string {
	codes := make([]string, 0, len(f.Settings))
	for _, setting := range f.Settings {
		if setting.CapsuleTypeCode != "" {
			codes = append(codes, setting.CapsuleTypeCode)
		}
	}
	sort.Strings(codes)
	return codes
}
