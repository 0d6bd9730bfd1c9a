package service

import (
	"context"
	"log/slog"

	"github.com/kyashrathore/formlink-sub001/internal/domain/agentevent"
	"github.com/kyashrathore/formlink-sub001/internal/domain/agentstate"
	"github.com/kyashrathore/formlink-sub001/internal/domain/agenttask"
	"github.com/kyashrathore/formlink-sub001/internal/port/database"
)

// BatchSelector claims the next batch of pending tasks.
type BatchSelector struct {
	store database.Store
}

// NewBatchSelector creates a BatchSelector.
func NewBatchSelector(store database.Store) *BatchSelector {
	return &BatchSelector{store: store}
}

// Run selects up to agenttask.BatchSize pending tasks and marks them
// in_progress. An empty batch is the signal to finalize.
func (b *BatchSelector) Run(ctx context.Context, s agentstate.State) (agentstate.Update, []agentevent.Event, error) {
	batch := agenttask.SelectBatch(s.Tasks, agenttask.BatchSize)
	if batch == nil {
		batch = []agenttask.Task{}
	}

	for i := range batch {
		if err := b.store.UpdateTaskStatus(ctx, batch[i].ID, agenttask.StatusInProgress); err != nil {
			slog.Warn("claim task failed", "form_id", s.FormID, "task_id", batch[i].ID, "error", err)
		}
	}

	u := agentstate.Update{
		CurrentBatch: &batch,
		Tasks:        batch,
	}
	if len(batch) > 0 {
		u.Iteration = s.Iteration + 1
		slog.Debug("batch selected", "form_id", s.FormID, "size", len(batch),
			"pending_left", agenttask.Count(s.Tasks, agenttask.StatusPending)-len(batch))
	}
	return u, nil, nil
}
