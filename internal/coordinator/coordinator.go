package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/micro-ha/moodo-bridge/addon/internal/model"
	"github.com/micro-ha/moodo-bridge/addon/internal/moodo"
)

// DefaultRefreshInterval is the scheduled poll cadence.
const DefaultRefreshInterval = 30 * time.Second

// ErrNotReady marks a failed mandatory first refresh: the session must not
// be considered started and startup should be retried.
var ErrNotReady = errors.New("initial refresh failed")

// API is the transport surface the coordinator needs.
type API interface {
	Boxes(ctx context.Context) ([]model.Box, error)
	IntervalTypes(ctx context.Context) ([]model.IntervalType, error)
	Favorites(ctx context.Context) ([]model.Favorite, error)
	ShouldIgnoreEvent(requestID string) bool
}

// Push is the event-channel surface owned by a running session.
type Push interface {
	Connect(ctx context.Context) error
	Disconnect()
}

// PushFactory builds the push channel once the first refresh has supplied
// the device ids to subscribe to.
type PushFactory func(deviceIDs []string, onEvent func(box model.Box, requestID string)) Push

// Coordinator owns the canonical device map and reconciles its three update
// sources: the scheduled poll, push-channel events, and optimistic local
// writes. It is the only writer; everything else requests mutations
// through it.
type Coordinator struct {
	client   API
	newPush  PushFactory
	interval time.Duration
	logger   *slog.Logger

	refreshCh chan struct{}
	onAuth    func()

	mu            sync.RWMutex
	boxes         map[int]model.Box
	intervalTypes map[int]model.IntervalType
	favorites     map[string]model.Favorite
	ready         bool

	lmu          sync.Mutex
	nextListener int
	listeners    map[int]func()

	push   Push
	cancel context.CancelFunc
	done   chan struct{}
}

func New(client API, newPush PushFactory, interval time.Duration, logger *slog.Logger) *Coordinator {
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	return &Coordinator{
		client:        client,
		newPush:       newPush,
		interval:      interval,
		logger:        logger,
		refreshCh:     make(chan struct{}, 1),
		boxes:         map[int]model.Box{},
		intervalTypes: map[int]model.IntervalType{},
		favorites:     map[string]model.Favorite{},
		listeners:     map[int]func(){},
	}
}

// OnAuthFailure registers the hook invoked when a post-startup refresh hits
// an authentication failure. Must be set before Start.
func (c *Coordinator) OnAuthFailure(fn func()) {
	c.onAuth = fn
}

// Start performs the mandatory first refresh, starts the refresh schedule,
// and connects the push channel best-effort. An auth failure is returned
// as-is; any other first-refresh failure is wrapped in ErrNotReady.
func (c *Coordinator) Start(ctx context.Context) error {
	if err := c.RefreshOnce(ctx); err != nil {
		if errors.Is(err, moodo.ErrAuth) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrNotReady, err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.done = make(chan struct{})
	go c.run(runCtx)

	if c.newPush != nil {
		channel := c.newPush(c.DeviceIDs(), c.HandleEvent)
		if err := channel.Connect(ctx); err != nil {
			c.logger.Warn("push channel unavailable; relying on polling", "err", err)
		} else {
			c.push = channel
		}
	}
	return nil
}

// Stop stops the refresh schedule, then disconnects the push channel,
// waiting for both to finish.
func (c *Coordinator) Stop() {
	if c.cancel != nil {
		c.cancel()
		<-c.done
		c.cancel = nil
	}
	if c.push != nil {
		c.push.Disconnect()
		c.push = nil
	}
}

// TriggerRefresh requests an immediate refresh cycle without blocking.
func (c *Coordinator) TriggerRefresh() {
	select {
	case c.refreshCh <- struct{}{}:
	default:
	}
}

func (c *Coordinator) run(ctx context.Context) {
	defer close(c.done)
	for {
		timer := time.NewTimer(c.interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-c.refreshCh:
			timer.Stop()
		case <-timer.C:
		}

		refreshCtx, cancel := context.WithTimeout(ctx, c.interval)
		err := c.RefreshOnce(refreshCtx)
		cancel()
		if err == nil {
			continue
		}
		if errors.Is(err, moodo.ErrAuth) {
			c.logger.Warn("refresh rejected; re-authentication required", "err", err)
			if c.onAuth != nil {
				c.onAuth()
			}
			continue
		}
		c.logger.Warn("refresh failed", "err", err)
	}
}

// RefreshOnce fetches the full device list and replaces the canonical map
// wholesale. The side catalogs are fetched once each while empty; their
// failures never fail the refresh.
func (c *Coordinator) RefreshOnce(ctx context.Context) error {
	boxes, err := c.client.Boxes(ctx)
	if err != nil {
		return err
	}

	c.fetchCatalogsOnce(ctx)

	next := make(map[int]model.Box, len(boxes))
	for _, box := range boxes {
		next[box.DeviceKey] = box
	}

	c.mu.Lock()
	c.boxes = next
	c.ready = true
	c.mu.Unlock()
	c.notify()
	return nil
}

func (c *Coordinator) fetchCatalogsOnce(ctx context.Context) {
	c.mu.RLock()
	needTypes := len(c.intervalTypes) == 0
	needFavorites := len(c.favorites) == 0
	c.mu.RUnlock()

	if needTypes {
		types, err := c.client.IntervalTypes(ctx)
		if err != nil {
			c.logger.Warn("failed to fetch interval types", "err", err)
		} else {
			indexed := make(map[int]model.IntervalType, len(types))
			for _, t := range types {
				indexed[t.Type] = t
			}
			c.mu.Lock()
			c.intervalTypes = indexed
			c.mu.Unlock()
		}
	}

	if needFavorites {
		favorites, err := c.client.Favorites(ctx)
		if err != nil {
			c.logger.Warn("failed to fetch favorites", "err", err)
		} else {
			indexed := make(map[string]model.Favorite, len(favorites))
			for _, favorite := range favorites {
				indexed[favorite.ID] = favorite
			}
			c.mu.Lock()
			c.favorites = indexed
			c.mu.Unlock()
			c.logger.Info("loaded favorites", "count", len(indexed))
		}
	}
}

// HandleEvent merges one push-channel notification into the canonical map.
// Echoes of this session's own writes are discarded; events for unknown
// device keys or arriving before the first refresh are dropped.
func (c *Coordinator) HandleEvent(box model.Box, requestID string) {
	if c.client.ShouldIgnoreEvent(requestID) {
		c.logger.Debug("ignoring echoed push event", "request_id", requestID)
		return
	}

	c.mu.Lock()
	if !c.ready {
		c.mu.Unlock()
		return
	}
	if _, ok := c.boxes[box.DeviceKey]; !ok {
		c.mu.Unlock()
		return
	}
	c.boxes[box.DeviceKey] = box
	c.mu.Unlock()
	c.notify()
}

// ApplyPatch shallow-merges an optimistic local patch into one record and
// notifies observers immediately, before any network call resolves.
// Reports whether the device key was known.
func (c *Coordinator) ApplyPatch(deviceKey int, patch model.BoxPatch) bool {
	c.mu.Lock()
	box, ok := c.boxes[deviceKey]
	if !ok {
		c.mu.Unlock()
		return false
	}
	box.Apply(patch)
	c.boxes[deviceKey] = box
	c.mu.Unlock()
	c.notify()
	return true
}

// Ready reports whether the first refresh has populated the map.
func (c *Coordinator) Ready() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ready
}

// Box returns the record for one device key.
func (c *Coordinator) Box(deviceKey int) (model.Box, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	box, ok := c.boxes[deviceKey]
	return box, ok
}

// Keys returns all known device keys, sorted.
func (c *Coordinator) Keys() []int {
	c.mu.RLock()
	keys := make([]int, 0, len(c.boxes))
	for key := range c.boxes {
		keys = append(keys, key)
	}
	c.mu.RUnlock()
	sort.Ints(keys)
	return keys
}

// DeviceIDs returns the backend string ids of all known devices, used for
// push-channel subscriptions.
func (c *Coordinator) DeviceIDs() []string {
	c.mu.RLock()
	ids := make([]string, 0, len(c.boxes))
	for _, box := range c.boxes {
		if box.ID != "" {
			ids = append(ids, box.ID)
		}
	}
	c.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

// IntervalTypes returns a copy of the interval-type catalog.
func (c *Coordinator) IntervalTypes() map[int]model.IntervalType {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[int]model.IntervalType, len(c.intervalTypes))
	for id, t := range c.intervalTypes {
		out[id] = t
	}
	return out
}

// Favorites returns a copy of the preset catalog.
func (c *Coordinator) Favorites() map[string]model.Favorite {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]model.Favorite, len(c.favorites))
	for id, favorite := range c.favorites {
		out[id] = favorite
	}
	return out
}

// AvailableFavorites returns the presets whose required capsule set equals
// the device's installed capsules, independent of slot order. Empty if the
// device is unknown.
func (c *Coordinator) AvailableFavorites(deviceKey int) map[string]model.Favorite {
	out := map[string]model.Favorite{}
	box, ok := c.Box(deviceKey)
	if !ok {
		return out
	}
	installed := box.InstalledCapsuleCodes()
	for id, favorite := range c.Favorites() {
		if slices.Equal(installed, favorite.RequiredCapsuleCodes()) {
			out[id] = favorite
		}
	}
	return out
}

// Subscribe registers an observer called after every state change. The
// returned function removes it.
func (c *Coordinator) Subscribe(fn func()) func() {
	c.lmu.Lock()
	id := c.nextListener
	c.nextListener++
	c.listeners[id] = fn
	c.lmu.Unlock()
	return func() {
		c.lmu.Lock()
		delete(c.listeners, id)
		c.lmu.Unlock()
	}
}

func (c *Coordinator) notify() {
	c.lmu.Lock()
	fns := make([]func(), 0, len(c.listeners))
	for _, fn := range c.listeners {
		fns = append(fns, fn)
	}
	c.lmu.Unlock()
	for _, fn := range fns {
		fn()
	}
}
