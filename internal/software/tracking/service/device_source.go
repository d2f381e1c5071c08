package service

import (
	"context"
	"errors"
	"sync"

	"mech-dispatch/internal/ports"
)

// DeviceSourceProvider backs position sources with samples pushed from the
// mechanic's device over the websocket. Acquire hands out one source per
// mechanic; Feed routes an incoming sample into that mechanic's source.
type DeviceSourceProvider struct {
	mu      sync.Mutex
	sources map[string]*deviceSource
}

func NewDeviceSourceProvider() *DeviceSourceProvider {
	return &DeviceSourceProvider{sources: make(map[string]*deviceSource)}
}

// Acquire returns the mechanic's source, creating it on first use.
func (provider *DeviceSourceProvider) Acquire(ctx context.Context, mechanicID string) (ports.PositionSource, error) {
	if mechanicID == "" {
		return nil, ports.ErrPositionUnavailable
	}
	provider.mu.Lock()
	defer provider.mu.Unlock()

	src, ok := provider.sources[mechanicID]
	if !ok {
		src = newDeviceSource()
		provider.sources[mechanicID] = src
	}
	return src, nil
}

// Feed delivers a device sample into the mechanic's source. Samples for
// mechanics that never acquired a source are dropped.
func (provider *DeviceSourceProvider) Feed(mechanicID string, sample ports.PositionSample) {
	provider.mu.Lock()
	src := provider.sources[mechanicID]
	provider.mu.Unlock()

	if src != nil {
		src.offer(sample)
	}
}

// deviceSource holds the latest pushed sample and wakes waiters and watchers
// when a new one arrives.
type deviceSource struct {
	mu       sync.Mutex
	latest   *ports.PositionSample
	arrived  chan struct{}
	watchers map[int]func(ports.PositionSample)
	nextID   int
}

func newDeviceSource() *deviceSource {
	return &deviceSource{
		arrived:  make(chan struct{}),
		watchers: make(map[int]func(ports.PositionSample)),
	}
}

func (src *deviceSource) offer(sample ports.PositionSample) {
	src.mu.Lock()
	src.latest = &sample
	close(src.arrived)
	src.arrived = make(chan struct{})
	fns := make([]func(ports.PositionSample), 0, len(src.watchers))
	for _, fn := range src.watchers {
		fns = append(fns, fn)
	}
	src.mu.Unlock()

	for _, fn := range fns {
		fn(sample)
	}
}

// GetCurrentPosition returns the latest pushed sample, waiting for the first
// one up to the caller's deadline.
func (src *deviceSource) GetCurrentPosition(ctx context.Context) (ports.PositionSample, error) {
	src.mu.Lock()
	if src.latest != nil {
		sample := *src.latest
		src.mu.Unlock()
		return sample, nil
	}
	wait := src.arrived
	src.mu.Unlock()

	select {
	case <-wait:
		src.mu.Lock()
		defer src.mu.Unlock()
		if src.latest == nil {
			return ports.PositionSample{}, ports.ErrPositionUnavailable
		}
		return *src.latest, nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return ports.PositionSample{}, ports.ErrPositionTimeout
		}
		return ports.PositionSample{}, ctx.Err()
	}
}

// WatchPosition registers fn for every pushed sample. The returned stop is
// idempotent.
func (src *deviceSource) WatchPosition(fn func(ports.PositionSample)) (stop func()) {
	src.mu.Lock()
	id := src.nextID
	src.nextID++
	src.watchers[id] = fn
	src.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			src.mu.Lock()
			delete(src.watchers, id)
			src.mu.Unlock()
		})
	}
}
