package retrieve

import (
	"context"

	"docgraph/internal/persistence/databases"
	"docgraph/internal/schema"
)

const (
	defaultMaxHops      = 2
	defaultPerHopBudget = 50
)

// SubgraphEdge is one edge surfaced by graph expansion, identified by its
// natural-key endpoints rather than a store-assigned id.
type SubgraphEdge struct {
	TypeTag string
	SrcRef  string
	DstRef  string
}

// Subgraph is the bounded BFS result returned alongside the reranked chunks.
type Subgraph struct {
	Nodes []string
	Edges []SubgraphEdge
}

// expandGraph seeds a breadth-first walk from the given natural keys (the
// entities a surviving chunk's document mentions) and walks up to maxHops,
// spending at most perHopBudget newly-discovered nodes per hop. Within a
// hop, edge types are explored in schema.EdgeTraversalPriority order so a
// budget-exhausted hop favors DEPENDS_ON over MENTIONS.
func expandGraph(ctx context.Context, g databases.GraphDB, seeds []string, maxHops, perHopBudget int) Subgraph {
	if maxHops <= 0 {
		maxHops = defaultMaxHops
	}
	if perHopBudget <= 0 {
		perHopBudget = defaultPerHopBudget
	}

	visited := map[string]bool{}
	var nodes []string
	var edges []SubgraphEdge

	frontier := make([]string, 0, len(seeds))
	for _, s := range seeds {
		if !visited[s] {
			visited[s] = true
			nodes = append(nodes, s)
			frontier = append(frontier, s)
		}
	}

	for hop := 0; hop < maxHops && len(frontier) > 0; hop++ {
		spent := 0
		var next []string
		for _, src := range frontier {
			if spent >= perHopBudget {
				break
			}
			for _, edgeTag := range schema.EdgeTraversalPriority {
				if spent >= perHopBudget {
					break
				}
				remaining := perHopBudget - spent
				neighbors, err := g.Neighbors(ctx, src, edgeTag, remaining)
				if err != nil {
					continue
				}
				for _, dst := range neighbors {
					edges = append(edges, SubgraphEdge{TypeTag: edgeTag, SrcRef: src, DstRef: dst})
					if !visited[dst] {
						visited[dst] = true
						nodes = append(nodes, dst)
						next = append(next, dst)
						spent++
						if spent >= perHopBudget {
							break
						}
					}
				}
			}
		}
		frontier = next
	}

	return Subgraph{Nodes: nodes, Edges: edges}
}
