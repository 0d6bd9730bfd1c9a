package agentstate

import (
	"cmp"
	"maps"
	"slices"

	"github.com/kyashrathore/formlink-sub001/internal/domain/agenttask"
	"github.com/kyashrathore/formlink-sub001/internal/domain/question"
)

// Update is a partial state produced by one stage or branch. Nil pointers,
// nil slices, nil maps and zero counters mean "no write" for that field.
type Update struct {
	Status                 *Status
	Error                  *ErrorDetails
	NormalizedInputContent *string
	FormMetadata           *FormMetadata
	JourneyScript          *string
	Tasks                  []agenttask.Task
	CurrentBatch           *[]agenttask.Task
	Questions              []question.Schema
	Settings               map[string]any
	Notes                  []string
	EventSequence          int64
	Iteration              int
	VersionID              *string
}

// Ptr returns a pointer to v. Convenient for building updates.
func Ptr[T any](v T) *T { return &v }

// Keyed is implemented by collection items merged by id.
type Keyed interface {
	Key() string
}

// Replace is last-write-wins: inc replaces cur unless inc is nil.
func Replace[T any](cur T, inc *T) T {
	if inc == nil {
		return cur
	}
	return *inc
}

// Max keeps the larger of cur and inc, so the field never moves backwards.
func Max[T cmp.Ordered](cur, inc T) T {
	return max(cur, inc)
}

// UpsertByKey merges inc into cur: an item whose key already exists replaces
// that entry in place, an item with a new key is appended. Within inc, the
// last item for a key wins. cur is not modified.
func UpsertByKey[T Keyed](cur, inc []T) []T {
	if len(inc) == 0 {
		return cur
	}
	out := slices.Clone(cur)
	index := make(map[string]int, len(out)+len(inc))
	for i := range out {
		index[out[i].Key()] = i
	}
	for _, item := range inc {
		if i, ok := index[item.Key()]; ok {
			out[i] = item
			continue
		}
		index[item.Key()] = len(out)
		out = append(out, item)
	}
	return out
}

// MergeKeys overlays inc onto cur key by key. cur is not modified.
func MergeKeys[K comparable, V any](cur, inc map[K]V) map[K]V {
	if len(inc) == 0 {
		return cur
	}
	out := make(map[K]V, len(cur)+len(inc))
	maps.Copy(out, cur)
	maps.Copy(out, inc)
	return out
}

// AppendUnique concatenates inc onto cur, skipping items already present.
func AppendUnique[T comparable](cur, inc []T) []T {
	if len(inc) == 0 {
		return cur
	}
	out := slices.Clone(cur)
	for _, item := range inc {
		if !slices.Contains(out, item) {
			out = append(out, item)
		}
	}
	return out
}

// channel binds one state field to its reducer.
type channel struct {
	name  string
	merge func(s *State, u *Update)
}

// channels is the reducer table. Every mutable field of State appears once.
var channels = []channel{
	{"status", func(s *State, u *Update) { s.Status = Replace(s.Status, u.Status) }},
	{"errorDetails", func(s *State, u *Update) {
		if u.Error != nil {
			e := *u.Error
			s.Error = &e
		}
	}},
	{"normalizedInputContent", func(s *State, u *Update) {
		s.NormalizedInputContent = Replace(s.NormalizedInputContent, u.NormalizedInputContent)
	}},
	{"formMetadata", func(s *State, u *Update) {
		if u.FormMetadata != nil {
			fm := *u.FormMetadata
			s.FormMetadata = &fm
		}
	}},
	{"journeyScript", func(s *State, u *Update) { s.JourneyScript = Replace(s.JourneyScript, u.JourneyScript) }},
	{"tasksToPersist", func(s *State, u *Update) { s.Tasks = UpsertByKey(s.Tasks, u.Tasks) }},
	{"currentProcessingBatch", func(s *State, u *Update) {
		if u.CurrentBatch != nil {
			s.CurrentBatch = slices.Clone(*u.CurrentBatch)
		}
	}},
	{"generatedQuestionSchemas", func(s *State, u *Update) { s.Questions = UpsertByKey(s.Questions, u.Questions) }},
	{"settings", func(s *State, u *Update) { s.Settings = MergeKeys(s.Settings, u.Settings) }},
	{"notes", func(s *State, u *Update) { s.Notes = AppendUnique(s.Notes, u.Notes) }},
	{"eventSequence", func(s *State, u *Update) { s.EventSequence = Max(s.EventSequence, u.EventSequence) }},
	{"iteration", func(s *State, u *Update) { s.Iteration = Max(s.Iteration, u.Iteration) }},
	{"versionId", func(s *State, u *Update) { s.VersionID = Replace(s.VersionID, u.VersionID) }},
}

// Channels returns the names of all reducer-governed fields in table order.
func Channels() []string {
	names := make([]string, len(channels))
	for i, c := range channels {
		names[i] = c.name
	}
	return names
}

// Apply folds u into s through the reducer table and returns the result.
// s is not modified.
func Apply(s State, u Update) State {
	next := s.Clone()
	for _, c := range channels {
		c.merge(&next, &u)
	}
	return next
}

// ApplyAll folds updates into s in order.
func ApplyAll(s State, updates ...Update) State {
	for _, u := range updates {
		s = Apply(s, u)
	}
	return s
}
