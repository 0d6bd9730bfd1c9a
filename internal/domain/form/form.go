// Package form defines the Form entity and its immutable versions.
package form

import (
	"time"

	"github.com/kyashrathore/formlink-sub001/internal/domain/question"
)

// Form is the parent record a generation run writes versions for.
type Form struct {
	ID               string    `json:"id"`
	UserID           string    `json:"userId"`
	Title            string    `json:"title"`
	CurrentVersionID string    `json:"currentVersionId,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// Version is one immutable snapshot of a generated form definition.
type Version struct {
	ID            string            `json:"id"`
	FormID        string            `json:"formId"`
	UserID        string            `json:"userId"`
	Title         string            `json:"title"`
	Description   string            `json:"description"`
	Questions     []question.Schema `json:"questions"`
	JourneyScript string            `json:"journeyScript,omitempty"`
	ResultsPage   string            `json:"resultsPage,omitempty"`
	Settings      map[string]any    `json:"settings,omitempty"`
	CreatedAt     time.Time         `json:"createdAt"`
}

// View is the materialized, best-known form carried in state snapshots.
type View struct {
	ID          string            `json:"id"`
	Title       string            `json:"title"`
	Description string            `json:"description"`
	Questions   []question.Schema `json:"questions"`
	Settings    map[string]any    `json:"settings,omitempty"`
	VersionID   string            `json:"versionId,omitempty"`
}
