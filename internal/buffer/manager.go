// Package buffer accumulates raw events into an ephemeral, TTL-backed window
// per conversation key and owns the dual-trigger timing logic: a volume cap
// that fires synchronously inside Ingest, racing a debounced silence timer.
package buffer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"threadpulse.app/pulse/common/logger"
	"threadpulse.app/pulse/core/config"
	"threadpulse.app/pulse/internal/kv"
	"threadpulse.app/pulse/internal/model"
)

// TriggerFunc receives windows closed by the silence timer. Volume-closed
// windows are returned from Ingest instead, so the caller can process them
// on the event path.
type TriggerFunc func(ctx context.Context, trigger model.Trigger)

type keyTimer struct {
	timer *time.Timer
	key   model.Key
}

type Manager struct {
	store     kv.Store
	cfg       config.BufferConfig
	onTrigger TriggerFunc
	logger    *slog.Logger

	mu     sync.Mutex
	locks  map[string]*sync.Mutex
	timers map[string]*keyTimer
	closed bool
}

func NewManager(store kv.Store, cfg config.BufferConfig, onTrigger TriggerFunc, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		store:     store,
		cfg:       cfg,
		onTrigger: onTrigger,
		logger:    logger,
		locks:     make(map[string]*sync.Mutex),
		timers:    make(map[string]*keyTimer),
	}
}

// Ingest appends the event to its key's window and rearms the silence timer.
// If the append fills the window to the volume cap, the trigger is returned
// synchronously (pre-empting the timer) and the window is truncated to its
// overlap tail. Storage errors are logged and swallowed: losing an event is
// preferred over stalling ingestion.
func (m *Manager) Ingest(ctx context.Context, event model.Event) *model.Trigger {
	m.mu.Lock()
	closed := m.closed
	m.mu.Unlock()
	if closed {
		return nil
	}

	key := event.Key()
	keyStr := key.String()

	lock := m.keyLock(keyStr)
	lock.Lock()
	defer lock.Unlock()

	window, err := m.loadWindow(ctx, keyStr)
	if err != nil {
		m.logger.ErrorContext(ctx, "loading window failed, starting fresh", "error", err)
		window = &model.Window{}
	}
	if len(window.Events) == 0 {
		window.OpenedAt = event.Timestamp
	}

	window.Events = append(window.Events, event)
	window.UpdatedAt = time.Now()

	if len(window.Events) >= m.cfg.VolumeCap {
		trigger := &model.Trigger{
			Kind:   model.TriggerVolume,
			Key:    key,
			Events: window.Events,
		}

		// Truncate to the overlap tail rather than clearing: the next window
		// continues the same conversation, not a fresh one.
		tail := window.Events[len(window.Events)-m.cfg.Overlap:]
		window.Events = append([]model.Event(nil), tail...)
		window.UpdatedAt = time.Now()

		if err := m.saveWindow(ctx, keyStr, window); err != nil {
			m.logger.ErrorContext(ctx, "persisting overlap window failed", "error", err)
		}

		m.cancelTimer(keyStr)

		m.logger.InfoContext(ctx, "volume trigger fired",
			"conversation_key", keyStr,
			"window_size", len(trigger.Events),
			"overlap", len(tail))
		return trigger
	}

	if err := m.saveWindow(ctx, keyStr, window); err != nil {
		m.logger.ErrorContext(ctx, "persisting window failed", "error", err)
	}

	m.armTimer(key, keyStr)
	return nil
}

// Close cancels all outstanding silence timers so none fire into a
// torn-down pipeline. Further Ingest calls become no-ops.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	for keyStr, kt := range m.timers {
		kt.timer.Stop()
		delete(m.timers, keyStr)
	}
}

func (m *Manager) keyLock(keyStr string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()

	lock, ok := m.locks[keyStr]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[keyStr] = lock
	}
	return lock
}

// armTimer performs the atomic cancel-and-replace that keeps at most one
// pending silence trigger per key.
func (m *Manager) armTimer(key model.Key, keyStr string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}

	if existing, ok := m.timers[keyStr]; ok {
		existing.timer.Stop()
	}

	kt := &keyTimer{key: key}
	kt.timer = time.AfterFunc(m.cfg.SilenceWindow, func() {
		m.fireSilence(kt, keyStr)
	})
	m.timers[keyStr] = kt
}

func (m *Manager) cancelTimer(keyStr string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if kt, ok := m.timers[keyStr]; ok {
		kt.timer.Stop()
		delete(m.timers, keyStr)
	}
}

// fireSilence runs on the timer goroutine. A stale timer (replaced by a
// newer ingest, or cancelled after Close) finds itself absent from the map
// and does nothing.
func (m *Manager) fireSilence(kt *keyTimer, keyStr string) {
	m.mu.Lock()
	current, ok := m.timers[keyStr]
	if !ok || current != kt || m.closed {
		m.mu.Unlock()
		return
	}
	delete(m.timers, keyStr)
	m.mu.Unlock()

	ctx := logger.WithLogFields(context.Background(), logger.LogFields{
		ConversationKey: logger.Ptr(keyStr),
		Trigger:         logger.Ptr(string(model.TriggerSilence)),
		Component:       "pulse.buffer.manager",
	})

	lock := m.keyLock(keyStr)
	lock.Lock()

	window, err := m.loadWindow(ctx, keyStr)
	if err != nil {
		lock.Unlock()
		m.logger.ErrorContext(ctx, "loading window for silence trigger failed", "error", err)
		return
	}
	// Guards against a stale timer firing after a manual clear.
	if len(window.Events) == 0 {
		lock.Unlock()
		return
	}

	// Silence is a genuine conversational boundary: the window clears fully.
	if err := m.store.Delete(ctx, keyStr); err != nil {
		m.logger.ErrorContext(ctx, "clearing window failed", "error", err)
	}

	// The window is out of the store, so the key can take new events; release
	// before the callback so a slow trigger path never blocks ingestion.
	lock.Unlock()

	m.logger.InfoContext(ctx, "silence trigger fired", "window_size", len(window.Events))

	m.onTrigger(ctx, model.Trigger{
		Kind:   model.TriggerSilence,
		Key:    kt.key,
		Events: window.Events,
	})
}

func (m *Manager) loadWindow(ctx context.Context, keyStr string) (*model.Window, error) {
	data, err := m.store.Get(ctx, keyStr)
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return &model.Window{}, nil
		}
		return nil, fmt.Errorf("getting window: %w", err)
	}

	var window model.Window
	if err := json.Unmarshal(data, &window); err != nil {
		return nil, fmt.Errorf("decoding window: %w", err)
	}
	return &window, nil
}

func (m *Manager) saveWindow(ctx context.Context, keyStr string, window *model.Window) error {
	data, err := json.Marshal(window)
	if err != nil {
		return fmt.Errorf("encoding window: %w", err)
	}
	if err := m.store.Set(ctx, keyStr, data, m.cfg.WindowTTL); err != nil {
		return fmt.Errorf("setting window: %w", err)
	}
	return nil
}
