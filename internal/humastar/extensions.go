// extensions.go: x-datastar extensions on OpenAPI operations.
//
// Datastar SSE endpoints return text/event-stream, so their OpenAPI response
// schema says nothing useful. The x-datastar extension records the signals an
// operation reads plus the custom events and element patches it emits, so the
// published document still describes the hypermedia contract.
package humastar

import (
	"sort"

	"github.com/danielgtaylor/huma/v2"
)

// ExtensionKey is the OpenAPI extension name.
const ExtensionKey = "x-datastar"

// DatastarOperation describes a Datastar SSE endpoint.
type DatastarOperation struct {
	Signals []string `json:"signals,omitempty"` // signals read from the request
	Events  []string `json:"events,omitempty"`  // DOM custom events dispatched
	Patches []string `json:"patches,omitempty"` // CSS selectors patched
}

// Datastar returns an operation option that attaches the x-datastar extension.
func Datastar(meta DatastarOperation) func(*huma.Operation) {
	return func(op *huma.Operation) {
		if op.Extensions == nil {
			op.Extensions = map[string]any{}
		}
		op.Extensions[ExtensionKey] = meta
	}
}

// DatastarOperations collects the x-datastar extensions of a registered API,
// keyed by operation id.
func DatastarOperations(api huma.API) map[string]DatastarOperation {
	out := map[string]DatastarOperation{}
	for _, pi := range api.OpenAPI().Paths {
		for _, op := range operationsOf(pi) {
			if op == nil || op.Extensions == nil {
				continue
			}
			if meta, ok := op.Extensions[ExtensionKey].(DatastarOperation); ok {
				out[op.OperationID] = meta
			}
		}
	}
	return out
}

// SignalNames returns every signal read by the API's Datastar operations.
func SignalNames(api huma.API) []string {
	seen := map[string]bool{}
	var names []string
	for _, meta := range DatastarOperations(api) {
		for _, s := range meta.Signals {
			if !seen[s] {
				seen[s] = true
				names = append(names, s)
			}
		}
	}
	sort.Strings(names)
	return names
}
