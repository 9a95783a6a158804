package tierc

import (
	"fmt"
	"sort"
	"strings"

	"docgraph/internal/model"
	"docgraph/internal/schema"
)

// systemPrompt pins the model to the fixed extraction contract: never
// invent entity types outside the registry, never invent relation types
// outside the registry, and always return the exact JSON shape below.
const systemPrompt = `You extract infrastructure entities and relations from short text windows.
Only use entity and relation types from the provided schema. Never invent a type.
If nothing in the window matches a known type, return empty entities and relations arrays.
Respond with a single JSON object and nothing else:
{"entities":[{"type":"...","name":"...","props":{}}],"relations":[{"type":"...","src":"...","dst":"...","props":{}}],"confidence":0.0}
confidence is your own calibrated estimate in [0,1] of how certain you are of this extraction as a whole.`

const strictSuffix = `
Be conservative: only emit a relation when both endpoints are named explicitly in the window text.
Do not guess at an endpoint's identity from context outside the window. When in doubt, omit.`

// buildPrompt renders a window plus the registry's known type vocabulary
// into the user turn. strict adds the conservative-extraction suffix used
// on the second pass for low-confidence (0.70-0.80) first attempts.
func buildPrompt(w model.Window, reg *schema.Registry, strict bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Known entity types: %s\n", strings.Join(nodeTags(reg), ", "))
	fmt.Fprintf(&b, "Known relation types: %s\n\n", strings.Join(edgeTags(reg), ", "))
	b.WriteString("Window text:\n")
	b.WriteString(w.Text)
	if strict {
		b.WriteString(strictSuffix)
	}
	return b.String()
}

func nodeTags(reg *schema.Registry) []string {
	if reg == nil {
		return nil
	}
	var tags []string
	for _, nt := range reg.AllNodeTypes() {
		tags = append(tags, nt.Tag)
	}
	sort.Strings(tags)
	return tags
}

func edgeTags(reg *schema.Registry) []string {
	if reg == nil {
		return nil
	}
	var tags []string
	for _, et := range reg.AllEdgeTypes() {
		tags = append(tags, et.Tag)
	}
	sort.Strings(tags)
	return tags
}
