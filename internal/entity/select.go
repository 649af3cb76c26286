package entity

import (
	"context"
	"fmt"
	"sort"

	"github.com/micro-ha/moodo-bridge/addon/internal/model"
)

// BoxModeOptions lists the operating modes the device supports. Missing
// availability flags fall back to the diffuser default; a device reporting
// neither mode still offers both.
func BoxModeOptions(box model.Box) []string {
	modes := []string{}
	if box.IsDiffuserModeAvailable == nil || *box.IsDiffuserModeAvailable {
		modes = append(modes, model.BoxModeDiffuser)
	}
	if box.IsPurifierModeAvailable != nil && *box.IsPurifierModeAvailable {
		modes = append(modes, model.BoxModePurifier)
	}
	if len(modes) == 0 {
		modes = []string{model.BoxModeDiffuser, model.BoxModePurifier}
	}
	return modes
}

// SelectBoxMode switches between diffuser and purifier mode.
func (c *Controller) SelectBoxMode(ctx context.Context, deviceKey int, mode string) error {
	if mode != model.BoxModeDiffuser && mode != model.BoxModePurifier {
		return fmt.Errorf("%w: %q", ErrUnknownOption, mode)
	}
	patch := model.BoxPatch{BoxMode: strPtr(mode)}
	return c.write(deviceKey, patch, func() error {
		_, err := c.client.SetBoxMode(ctx, deviceKey, mode)
		return err
	})
}

// IntervalTypeOptions lists interval-type keywords in catalog order.
func IntervalTypeOptions(types map[int]model.IntervalType) []string {
	ids := make([]int, 0, len(types))
	for id := range types {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	options := make([]string, 0, len(ids))
	for _, id := range ids {
		options = append(options, types[id].Keyword)
	}
	return options
}

// CurrentIntervalType returns the keyword of the device's selected interval
// type, empty when unknown.
func CurrentIntervalType(box model.Box, types map[int]model.IntervalType) string {
	if t, ok := types[box.IntervalType]; ok {
		return t.Keyword
	}
	return ""
}

// SelectIntervalType enables interval mode with the type named by keyword.
func (c *Controller) SelectIntervalType(ctx context.Context, deviceKey int, keyword string) error {
	var typeID *int
	for id, t := range c.store.IntervalTypes() {
		if t.Keyword == keyword {
			id := id
			typeID = &id
			break
		}
	}
	if typeID == nil {
		return fmt.Errorf("%w: %q", ErrUnknownOption, keyword)
	}
	patch := model.BoxPatch{Interval: boolPtr(true), IntervalType: typeID}
	return c.write(deviceKey, patch, func() error {
		_, err := c.client.EnableInterval(ctx, deviceKey, typeID)
		return err
	})
}

// ActivePresetTitle returns the title of the applied preset, the raw id if
// the catalog has no entry for it, or "None" when nothing is applied.
func ActivePresetTitle(box model.Box, favorites map[string]model.Favorite) string {
	if box.FavoriteIDApplied == "" {
		return "None"
	}
	if favorite, ok := favorites[box.FavoriteIDApplied]; ok && favorite.Title != "" {
		return favorite.Title
	}
	return box.FavoriteIDApplied
}

// ApplyPreset applies one of the device's available presets. The optimistic
// patch also carries the preset's per-slot fan settings matched by capsule
// code, so sliders move before the backend confirms.
func (c *Controller) ApplyPreset(ctx context.Context, deviceKey int, favoriteID string) error {
	box, ok := c.store.Box(deviceKey)
	if !ok {
		return ErrUnknownDevice
	}
	favorite, ok := c.store.AvailableFavorites(deviceKey)[favoriteID]
	if !ok {
		return fmt.Errorf("%w: preset %q", ErrUnknownOption, favoriteID)
	}

	byCapsule := make(map[string]model.FavoriteSetting, len(favorite.Settings))
	for _, setting := range favorite.Settings {
		byCapsule[setting.CapsuleTypeCode] = setting
	}
	updated := make([]model.SlotSetting, len(box.Settings))
	copy(updated, box.Settings)
	for i, slot := range updated {
		if match, ok := byCapsule[slot.CapsuleTypeCode]; ok {
			updated[i].FanSpeed = match.FanSpeed
			updated[i].FanActive = match.FanActive
		}
	}

	patch := model.BoxPatch{
		FavoriteIDApplied: strPtr(favoriteID),
		Settings:          updated,
	}
	return c.write(deviceKey, patch, func() error {
		_, err := c.client.ApplyFavorite(ctx, favoriteID, deviceKey, nil, nil)
		return err
	})
}
