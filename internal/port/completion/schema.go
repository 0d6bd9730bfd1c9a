package completion

import (
	"encoding/json"
	"reflect"
	"sync"

	"github.com/invopop/jsonschema"
)

var (
	schemaMu    sync.Mutex
	schemaCache = map[reflect.Type]map[string]any{}
)

// SchemaFor reflects the JSON schema of v's type into a plain map suitable
// for a response_format payload. Definitions are inlined. Results are cached
// per type and shared, so callers must not modify the returned map.
func SchemaFor(v any) map[string]any {
	key := reflect.TypeOf(v)
	schemaMu.Lock()
	defer schemaMu.Unlock()
	if s, ok := schemaCache[key]; ok {
		return s
	}

	r := &jsonschema.Reflector{
		DoNotReference: true,
		ExpandedStruct: true,
	}
	data, err := json.Marshal(r.Reflect(v))
	if err != nil {
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil
	}
	delete(out, "$schema")
	delete(out, "$id")
	schemaCache[key] = out
	return out
}
