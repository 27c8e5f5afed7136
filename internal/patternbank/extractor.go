package patternbank

import (
	"fmt"
	"hash/fnv"
	"sort"
	"strings"
)

// InitialConfidence is the neutral prior assigned to newly extracted
// patterns before any feedback exists.
const InitialConfidence = 0.5

// ExtractPattern converts a raw interaction event into a canonical Pattern.
//
// Returns nil when the interaction has no action or no component type:
// upstream noise is expected and must not halt the pipeline, so malformed
// records are discarded rather than raised as errors.
//
// The function is pure. Persistence (dedup by ID, frequency increment)
// happens in the store adapter.
func ExtractPattern(in Interaction) *Pattern {
	if in.Action == "" || in.ComponentType == "" {
		return nil
	}

	ts := in.Timestamp
	return &Pattern{
		ID:            patternID(in.ComponentType, in.Enhancement, in.Context),
		ComponentType: in.ComponentType,
		Enhancement:   in.Enhancement,
		Context:       in.Context,
		Metadata: PatternMetadata{
			Confidence: InitialConfidence,
			Frequency:  1,
			LastSeen:   ts,
			Created:    ts,
		},
	}
}

// patternID computes the deterministic content hash identifying a pattern.
//
// FNV-1a over the concatenated identity fields: order-sensitive, stable
// across runs, best-effort unique. Enhancement properties are serialized
// with sorted keys so map iteration order is never observable.
func patternID(componentType string, enh Enhancement, ctx PatternContext) string {
	h := fnv.New64a()
	h.Write([]byte(componentType))
	h.Write([]byte{'|'})
	h.Write([]byte(enh.Type))
	h.Write([]byte{'|'})
	h.Write([]byte(serializeProperties(enh.Properties)))
	h.Write([]byte{'|'})
	h.Write([]byte(ctx.Framework))
	h.Write([]byte{'|'})
	h.Write([]byte(ctx.Theme))
	return fmt.Sprintf("%016x", h.Sum64())
}

// serializeProperties renders a property map as a stable key-sorted string.
func serializeProperties(props map[string]any) string {
	if len(props) == 0 {
		return ""
	}
	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(';')
		}
		fmt.Fprintf(&b, "%s=%v", k, props[k])
	}
	return b.String()
}
