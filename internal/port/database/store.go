// Package database defines the database store port (interface).
package database

import (
	"context"

	"github.com/kyashrathore/formlink-sub001/internal/domain/agenttask"
	"github.com/kyashrathore/formlink-sub001/internal/domain/form"
)

// Store is the port interface for database operations.
type Store interface {
	// Tasks
	CreateTasks(ctx context.Context, tasks []agenttask.Task) error // all or nothing
	UpsertTask(ctx context.Context, t *agenttask.Task) error
	UpdateTaskStatus(ctx context.Context, id string, status agenttask.Status) error
	ListTasks(ctx context.Context, formID string) ([]agenttask.Task, error)

	// Forms
	GetForm(ctx context.Context, id string) (*form.Form, error)
	InsertFormVersion(ctx context.Context, v *form.Version) (string, error)
	UpdateFormPointer(ctx context.Context, formID, versionID string) error
}
