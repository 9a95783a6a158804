package graphstore

import (
	"sort"

	"docgraph/internal/model"
)

func groupNodesByType(nodes []model.NodeRecord) map[string][]model.NodeRecord {
	out := make(map[string][]model.NodeRecord)
	for _, n := range nodes {
		out[n.TypeTag] = append(out[n.TypeTag], n)
	}
	return out
}

func groupEdgesByType(edges []model.EdgeRecord) map[string][]model.EdgeRecord {
	out := make(map[string][]model.EdgeRecord)
	for _, e := range edges {
		out[e.TypeTag] = append(out[e.TypeTag], e)
	}
	return out
}

func sortedKeys(m map[string][]model.NodeRecord) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func sortedKeysEdges(m map[string][]model.EdgeRecord) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func chunkNodes(rows []model.NodeRecord, size int) [][]model.NodeRecord {
	if size <= 0 {
		size = defaultBatchSize
	}
	var out [][]model.NodeRecord
	for i := 0; i < len(rows); i += size {
		end := i + size
		if end > len(rows) {
			end = len(rows)
		}
		out = append(out, rows[i:end])
	}
	return out
}

func chunkEdges(rows []model.EdgeRecord, size int) [][]model.EdgeRecord {
	if size <= 0 {
		size = defaultBatchSize
	}
	var out [][]model.EdgeRecord
	for i := 0; i < len(rows); i += size {
		end := i + size
		if end > len(rows) {
			end = len(rows)
		}
		out = append(out, rows[i:end])
	}
	return out
}
