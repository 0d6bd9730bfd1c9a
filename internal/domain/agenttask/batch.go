package agenttask

// BatchSize bounds how many tasks execute concurrently in one cycle.
const BatchSize = 3

// SelectBatch returns up to limit pending tasks in their original order,
// each marked in_progress. Tasks in any other status, including tasks still
// in_progress from an earlier cycle, are never selected. The input slice is
// not modified.
func SelectBatch(tasks []Task, limit int) []Task {
	if limit <= 0 {
		return nil
	}
	var batch []Task
	for i := range tasks {
		if tasks[i].Status != StatusPending {
			continue
		}
		t := tasks[i]
		t.Status = StatusInProgress
		batch = append(batch, t)
		if len(batch) == limit {
			break
		}
	}
	return batch
}

// Count returns how many tasks are in the given status.
func Count(tasks []Task, status Status) int {
	n := 0
	for i := range tasks {
		if tasks[i].Status == status {
			n++
		}
	}
	return n
}
