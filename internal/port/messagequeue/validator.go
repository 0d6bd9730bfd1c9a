package messagequeue

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kyashrathore/formlink-sub001/internal/domain/agentevent"
)

// Validate checks whether data is valid JSON conforming to the schema
// associated with the given subject. Unknown subjects pass validation.
func Validate(subject string, data []byte) error {
	if !json.Valid(data) {
		return fmt.Errorf("invalid JSON on subject %s", subject)
	}
	if !strings.HasPrefix(subject, SubjectEvents+".") {
		return nil
	}

	var ev struct {
		Type     agentevent.Type `json:"type"`
		Sequence int64           `json:"sequence"`
		FormID   string          `json:"formId"`
	}
	if err := json.Unmarshal(data, &ev); err != nil {
		return fmt.Errorf("schema validation failed for %s: %w", subject, err)
	}
	if !ev.Type.IsValid() {
		return fmt.Errorf("schema validation failed for %s: unknown event type %q", subject, ev.Type)
	}
	if ev.Sequence < 1 {
		return fmt.Errorf("schema validation failed for %s: sequence must be positive", subject)
	}
	if want := strings.TrimPrefix(subject, SubjectEvents+"."); ev.FormID != want {
		return fmt.Errorf("schema validation failed for %s: formId %q does not match subject", subject, ev.FormID)
	}
	return nil
}
