package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/micro-ha/moodo-bridge/addon/internal/entity"
	"github.com/micro-ha/moodo-bridge/addon/internal/model"
)

// Coordinator is the read surface of the synchronization core.
type Coordinator interface {
	Ready() bool
	Box(deviceKey int) (model.Box, bool)
	Keys() []int
	IntervalTypes() map[int]model.IntervalType
	Favorites() map[string]model.Favorite
	AvailableFavorites(deviceKey int) map[string]model.Favorite
	TriggerRefresh()
}

// Controller is the write surface backing the control endpoints.
type Controller interface {
	TurnOnFan(ctx context.Context, deviceKey int, on entity.TurnOnOptions) error
	TurnOffFan(ctx context.Context, deviceKey int) error
	SetFanPercentage(ctx context.Context, deviceKey, percentage int) error
	SetShuffle(ctx context.Context, deviceKey int, on bool) error
	SetInterval(ctx context.Context, deviceKey int, on bool, intervalType *int) error
	SelectBoxMode(ctx context.Context, deviceKey int, mode string) error
	SetSlotSpeed(ctx context.Context, deviceKey, slotID, value int) error
	ApplyPreset(ctx context.Context, deviceKey int, favoriteID string) error
}

// API groups HTTP handlers and dependencies.
type API struct {
	coord   Coordinator
	control Controller
	logger  *slog.Logger
}

// New creates HTTP handlers with explicit dependencies.
func New(coord Coordinator, control Controller, logger *slog.Logger) *API {
	return &API{coord: coord, control: control, logger: logger}
}

// Logger returns request logger used by HTTP middleware.
func (a *API) Logger() *slog.Logger {
	return a.logger
}

// Health reports service liveness and whether the first refresh completed.
func (a *API) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "ready": a.coord.Ready()})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code string, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"code":    code,
			"message": message,
		},
	})
}
