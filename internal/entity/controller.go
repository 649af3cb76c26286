package entity

import (
	"context"
	"errors"
	"log/slog"

	"github.com/micro-ha/moodo-bridge/addon/internal/model"
	"github.com/micro-ha/moodo-bridge/addon/internal/moodo"
)

var (
	ErrUnknownDevice = errors.New("unknown device")
	ErrUnknownOption = errors.New("unknown option")
)

// Store is the synchronization-core surface the projections read and patch.
type Store interface {
	Box(deviceKey int) (model.Box, bool)
	IntervalTypes() map[int]model.IntervalType
	Favorites() map[string]model.Favorite
	AvailableFavorites(deviceKey int) map[string]model.Favorite
	ApplyPatch(deviceKey int, patch model.BoxPatch) bool
	TriggerRefresh()
}

// Writer is the transport surface write intents go through.
type Writer interface {
	PowerOn(ctx context.Context, deviceKey int, opts moodo.PowerOnOptions) (model.Box, error)
	PowerOff(ctx context.Context, deviceKey int) (model.Box, error)
	SetFanVolume(ctx context.Context, deviceKey, fanVolume int) (model.Box, error)
	SetBoxMode(ctx context.Context, deviceKey int, boxMode string) (model.Box, error)
	EnableShuffle(ctx context.Context, deviceKey int) (model.Box, error)
	DisableShuffle(ctx context.Context, deviceKey int) (model.Box, error)
	EnableInterval(ctx context.Context, deviceKey int, intervalType *int) (model.Box, error)
	DisableInterval(ctx context.Context, deviceKey int) (model.Box, error)
	SetFanSpeeds(ctx context.Context, deviceKey int, slots map[int]moodo.SlotSpeed, boxStatus, durationSeconds *int) (model.Box, error)
	ApplyFavorite(ctx context.Context, favoriteID string, deviceKey int, fanVolume, durationMinutes *int) (model.Box, error)
}

// Controller implements the write path shared by every capability: apply
// the optimistic patch, issue the transport call, and on a connection
// failure request an authoritative refresh so the optimistic guess does not
// stay in place.
type Controller struct {
	store  Store
	client Writer
	logger *slog.Logger
}

func NewController(store Store, client Writer, logger *slog.Logger) *Controller {
	return &Controller{store: store, client: client, logger: logger}
}

func (c *Controller) write(deviceKey int, patch model.BoxPatch, call func() error) error {
	if !c.store.ApplyPatch(deviceKey, patch) {
		return ErrUnknownDevice
	}
	if err := call(); err != nil {
		if errors.Is(err, moodo.ErrConnection) {
			c.logger.Warn("write failed; requesting authoritative refresh", "device_key", deviceKey, "err", err)
			c.store.TriggerRefresh()
		}
		return err
	}
	return nil
}

func intPtr(v int) *int       { return &v }
func boolPtr(v bool) *bool    { return &v }
func strPtr(v string) *string { return &v }
