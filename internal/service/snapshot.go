package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kyashrathore/formlink-sub001/internal/domain"
	"github.com/kyashrathore/formlink-sub001/internal/domain/agentevent"
	"github.com/kyashrathore/formlink-sub001/internal/port/cache"
	"github.com/kyashrathore/formlink-sub001/internal/port/eventstore"
)

// SnapshotService keeps the latest state_snapshot of every form in a cache
// and falls back to the event store on a miss. As a broadcast.Sink it
// records snapshots while a run is relayed.
type SnapshotService struct {
	cache  cache.Cache
	events eventstore.Store
	ttl    time.Duration
}

// NewSnapshotService creates a SnapshotService. events may be nil.
func NewSnapshotService(c cache.Cache, events eventstore.Store, ttl time.Duration) *SnapshotService {
	return &SnapshotService{cache: c, events: events, ttl: ttl}
}

// Send caches ev when it is a state snapshot.
func (s *SnapshotService) Send(ctx context.Context, ev agentevent.Event) error {
	if ev.Type != agentevent.TypeStateSnapshot {
		return nil
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal snapshot %d: %w", ev.Sequence, err)
	}
	return s.cache.Set(ctx, cache.SnapshotKey(ev.FormID), data, s.ttl)
}

// Latest returns the most recent snapshot event of formID as wire JSON.
func (s *SnapshotService) Latest(ctx context.Context, formID string) (json.RawMessage, error) {
	data, ok, err := s.cache.Get(ctx, cache.SnapshotKey(formID))
	if err != nil {
		return nil, fmt.Errorf("snapshot cache %s: %w", formID, err)
	}
	if ok {
		return data, nil
	}
	if s.events == nil {
		return nil, fmt.Errorf("snapshot %s: %w", formID, domain.ErrNotFound)
	}

	events, err := s.events.LoadByForm(ctx, formID, 0)
	if err != nil {
		return nil, fmt.Errorf("load events %s: %w", formID, err)
	}
	for i := len(events) - 1; i >= 0; i-- {
		if events[i].Type != agentevent.TypeStateSnapshot {
			continue
		}
		data, err := json.Marshal(events[i])
		if err != nil {
			return nil, fmt.Errorf("marshal snapshot: %w", err)
		}
		_ = s.cache.Set(ctx, cache.SnapshotKey(formID), data, s.ttl)
		return data, nil
	}
	return nil, fmt.Errorf("snapshot %s: %w", formID, domain.ErrNotFound)
}
