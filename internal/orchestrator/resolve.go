package orchestrator

import (
	"strings"

	"docgraph/internal/model"
)

// canonicalize lowercases and trims a natural key so the same entity
// mentioned with different casing across tiers collapses to one node.
// Alias collapsing and IP/FQDN normalization already happen inside each
// tier extractor at the point the natural key is first constructed; this
// is the final, tier-agnostic pass.
func canonicalize(naturalKey string) string {
	return strings.ToLower(strings.TrimSpace(naturalKey))
}

// tierRank orders A < B < C for scalar-property precedence (step 5: "tier
// precedence A > B > C for scalar properties" — a lower rank wins).
var tierRank = map[model.Tier]int{model.TierA: 0, model.TierB: 1, model.TierC: 2}

// tieredPacket tags a tier's TriplePacket with its originating tier, since
// NodeRecord itself carries no tier/confidence (only edges do).
type tieredPacket struct {
	tier   model.Tier
	packet model.TriplePacket
}

type nodeAgg struct {
	typeTag    string
	naturalKey string
	status     string
	props      map[string]any
	propTier   map[string]int
}

// mergePackets implements the entity-resolution merge: nodes
// across A/B/C are canonicalized and grouped by (type_tag, natural_key);
// scalar property collisions are resolved by tier precedence A>B>C; list-
// valued properties are unioned; edges pass through canonicalized but
// otherwise untouched, since the graph writer's composite key already
// keeps each tier's contribution distinct and idempotent.
func mergePackets(tiered []tieredPacket) model.TriplePacket {
	agg := map[string]*nodeAgg{}
	var order []string

	for _, tp := range tiered {
		rank := tierRank[tp.tier]
		for _, n := range tp.packet.Nodes {
			key := n.TypeTag + "\x00" + canonicalize(n.NaturalKey)
			a, ok := agg[key]
			if !ok {
				a = &nodeAgg{
					typeTag:    n.TypeTag,
					naturalKey: canonicalize(n.NaturalKey),
					status:     n.Status,
					props:      map[string]any{},
					propTier:   map[string]int{},
				}
				agg[key] = a
				order = append(order, key)
			}
			if a.status == "" {
				a.status = n.Status
			}
			mergeNodeProps(a, n.Props, rank)
		}
	}

	merged := model.TriplePacket{}
	for _, key := range order {
		a := agg[key]
		merged.Nodes = append(merged.Nodes, model.NodeRecord{
			TypeTag:    a.typeTag,
			NaturalKey: a.naturalKey,
			Props:      a.props,
			Status:     a.status,
		})
	}

	for _, tp := range tiered {
		for _, e := range tp.packet.Edges {
			e.SrcRef = canonicalize(e.SrcRef)
			e.DstRef = canonicalize(e.DstRef)
			merged.Edges = append(merged.Edges, e)
		}
		merged.Provenance = append(merged.Provenance, tp.packet.Provenance...)
	}
	return merged
}

func mergeNodeProps(a *nodeAgg, props map[string]any, rank int) {
	for k, v := range props {
		if list, ok := asStringList(v); ok {
			existing, _ := asStringList(a.props[k])
			a.props[k] = unionStrings(existing, list)
			continue
		}
		existingRank, seen := a.propTier[k]
		if !seen || rank < existingRank {
			a.props[k] = v
			a.propTier[k] = rank
		}
	}
}

func asStringList(v any) ([]string, bool) {
	switch t := v.(type) {
	case []string:
		return t, true
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			s, ok := e.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	default:
		return nil, false
	}
}

func unionStrings(a, b []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, s := range append(append([]string{}, a...), b...) {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
