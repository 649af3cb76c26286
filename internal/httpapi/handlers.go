package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/micro-ha/moodo-bridge/addon/internal/entity"
	"github.com/micro-ha/moodo-bridge/addon/internal/model"
	"github.com/micro-ha/moodo-bridge/addon/internal/moodo"
)

// deviceView is one device plus its computed display projections.
type deviceView struct {
	model.Box
	FanOn          bool     `json:"fan_on"`
	FanPercentage  int      `json:"fan_percentage"`
	BoxModeOptions []string `json:"box_mode_options"`
	BatteryLevel   int      `json:"battery_level"`
	AdapterStatus  string   `json:"adapter_status"`
	ChargingStatus string   `json:"charging_status"`
	ActivePreset   string   `json:"active_preset"`
}

func (a *API) view(box model.Box) deviceView {
	return deviceView{
		Box:            box,
		FanOn:          entity.FanIsOn(box),
		FanPercentage:  entity.FanPercentage(box),
		BoxModeOptions: entity.BoxModeOptions(box),
		BatteryLevel:   entity.BatteryLevel(box),
		AdapterStatus:  entity.AdapterStatus(box),
		ChargingStatus: entity.ChargingStatus(box),
		ActivePreset:   entity.ActivePresetTitle(box, a.coord.Favorites()),
	}
}

// ListDevices returns all known devices.
func (a *API) ListDevices(w http.ResponseWriter, _ *http.Request) {
	items := []deviceView{}
	for _, key := range a.coord.Keys() {
		if box, ok := a.coord.Box(key); ok {
			items = append(items, a.view(box))
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// GetDevice returns one device by key.
func (a *API) GetDevice(w http.ResponseWriter, _ *http.Request, rawKey string) {
	key, ok := parseKey(w, rawKey)
	if !ok {
		return
	}
	box, found := a.coord.Box(key)
	if !found {
		writeError(w, http.StatusNotFound, "not_found", "Device not found")
		return
	}
	writeJSON(w, http.StatusOK, a.view(box))
}

// ListAvailablePresets returns the presets matching a device's capsules.
func (a *API) ListAvailablePresets(w http.ResponseWriter, _ *http.Request, rawKey string) {
	key, ok := parseKey(w, rawKey)
	if !ok {
		return
	}
	if _, found := a.coord.Box(key); !found {
		writeError(w, http.StatusNotFound, "not_found", "Device not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": a.coord.AvailableFavorites(key)})
}

// ListIntervalTypes returns the interval-type catalog.
func (a *API) ListIntervalTypes(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"items": a.coord.IntervalTypes()})
}

// ListPresets returns the full preset catalog.
func (a *API) ListPresets(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"items": a.coord.Favorites()})
}

// Power turns a device on or off.
func (a *API) Power(w http.ResponseWriter, r *http.Request, rawKey string) {
	key, ok := parseKey(w, rawKey)
	if !ok {
		return
	}
	var payload struct {
		On              bool    `json:"on"`
		FanVolume       *int    `json:"fan_volume"`
		DurationMinutes *int    `json:"duration_minutes"`
		FavoriteID      *string `json:"favorite_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_payload", "Invalid JSON payload")
		return
	}
	var err error
	if payload.On {
		err = a.control.TurnOnFan(r.Context(), key, entity.TurnOnOptions{
			Percentage:      payload.FanVolume,
			DurationMinutes: payload.DurationMinutes,
			FavoriteID:      payload.FavoriteID,
		})
	} else {
		err = a.control.TurnOffFan(r.Context(), key)
	}
	a.finishWrite(w, err)
}

// SetVolume sets the overall intensity.
func (a *API) SetVolume(w http.ResponseWriter, r *http.Request, rawKey string) {
	key, ok := parseKey(w, rawKey)
	if !ok {
		return
	}
	var payload struct {
		FanVolume int `json:"fan_volume"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_payload", "Invalid JSON payload")
		return
	}
	a.finishWrite(w, a.control.SetFanPercentage(r.Context(), key, payload.FanVolume))
}

// SetMode switches the operating mode.
func (a *API) SetMode(w http.ResponseWriter, r *http.Request, rawKey string) {
	key, ok := parseKey(w, rawKey)
	if !ok {
		return
	}
	var payload struct {
		BoxMode string `json:"box_mode"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_payload", "Invalid JSON payload")
		return
	}
	a.finishWrite(w, a.control.SelectBoxMode(r.Context(), key, payload.BoxMode))
}

// SetShuffle toggles shuffle mode.
func (a *API) SetShuffle(w http.ResponseWriter, r *http.Request, rawKey string) {
	key, ok := parseKey(w, rawKey)
	if !ok {
		return
	}
	var payload struct {
		On bool `json:"on"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_payload", "Invalid JSON payload")
		return
	}
	a.finishWrite(w, a.control.SetShuffle(r.Context(), key, payload.On))
}

// SetInterval toggles interval mode with an optional type.
func (a *API) SetInterval(w http.ResponseWriter, r *http.Request, rawKey string) {
	key, ok := parseKey(w, rawKey)
	if !ok {
		return
	}
	var payload struct {
		On           bool `json:"on"`
		IntervalType *int `json:"interval_type"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_payload", "Invalid JSON payload")
		return
	}
	a.finishWrite(w, a.control.SetInterval(r.Context(), key, payload.On, payload.IntervalType))
}

// SetSlotSpeed sets one capsule slot's fan speed.
func (a *API) SetSlotSpeed(w http.ResponseWriter, r *http.Request, rawKey string) {
	key, ok := parseKey(w, rawKey)
	if !ok {
		return
	}
	var payload struct {
		SlotID   int `json:"slot_id"`
		FanSpeed int `json:"fan_speed"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_payload", "Invalid JSON payload")
		return
	}
	if payload.SlotID < 0 || payload.SlotID >= model.SlotCount {
		writeError(w, http.StatusBadRequest, "invalid_slot", "slot_id must be 0-3")
		return
	}
	a.finishWrite(w, a.control.SetSlotSpeed(r.Context(), key, payload.SlotID, payload.FanSpeed))
}

// ApplyPreset applies a preset to a device.
func (a *API) ApplyPreset(w http.ResponseWriter, r *http.Request, rawKey string) {
	key, ok := parseKey(w, rawKey)
	if !ok {
		return
	}
	var payload struct {
		FavoriteID string `json:"favorite_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_payload", "Invalid JSON payload")
		return
	}
	a.finishWrite(w, a.control.ApplyPreset(r.Context(), key, payload.FavoriteID))
}

// Refresh triggers an immediate poll cycle asynchronously.
func (a *API) Refresh(w http.ResponseWriter, _ *http.Request) {
	a.coord.TriggerRefresh()
	writeJSON(w, http.StatusAccepted, map[string]any{"ok": true})
}

func (a *API) finishWrite(w http.ResponseWriter, err error) {
	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, map[string]any{"ok": true})
	case errors.Is(err, entity.ErrUnknownDevice):
		writeError(w, http.StatusNotFound, "not_found", "Device not found")
	case errors.Is(err, entity.ErrUnknownOption):
		writeError(w, http.StatusBadRequest, "invalid_option", err.Error())
	case errors.Is(err, moodo.ErrAuth):
		writeError(w, http.StatusBadGateway, "auth_failed", err.Error())
	default:
		writeError(w, http.StatusBadGateway, "write_failed", err.Error())
	}
}

func parseKey(w http.ResponseWriter, raw string) (int, bool) {
	key, err := strconv.Atoi(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_device_key", "device key must be an integer")
		return 0, false
	}
	return key, true
}
