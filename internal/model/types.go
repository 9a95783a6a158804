// Package model holds the data types shared across the extraction,
// graph-write, and retrieval subsystems: the wire shape between readers and
// the core, the tiered extractors' common output, and the node/edge records
// the graph writer consumes.
package model

import "time"

// SourceType enumerates the reader kinds the core accepts documents from.
type SourceType string

const (
	SourceWeb            SourceType = "web"
	SourceGitHub         SourceType = "github"
	SourceReddit         SourceType = "reddit"
	SourceYouTube        SourceType = "youtube"
	SourceGmail          SourceType = "gmail"
	SourceElasticsearch  SourceType = "elasticsearch"
	SourceDockerCompose  SourceType = "docker_compose"
	SourceSWAG           SourceType = "swag"
	SourceTailscale      SourceType = "tailscale"
	SourceUnifi          SourceType = "unifi"
	SourceAISession      SourceType = "ai_session"
)

// NormalizedDocument is the fixed contract between reader subsystems and the
// core: readers produce these, the core only consumes them.
type NormalizedDocument struct {
	DocID         string
	SourceType    SourceType
	SourceURL     string
	IngestedAt    time.Time
	ContentHash   string
	Text          string
	SubStructures []SubStructure
}

// SubStructure preserves a recognized embedded sub-format a reader kept
// alongside the plain text (a fenced code block, a table, a link).
type SubStructure struct {
	Kind     string // "code_block", "table", "link"
	Language string // for code_block
	Content  string
}

// ExtractionState is one of the states in the per-document lifecycle state
// machine.
type ExtractionState string

const (
	StatePending      ExtractionState = "pending"
	StateTierADone    ExtractionState = "tier_a_done"
	StateTierBDone    ExtractionState = "tier_b_done"
	StateTierCDone    ExtractionState = "tier_c_done"
	StateCompleted    ExtractionState = "completed"
	StateFailed       ExtractionState = "failed"
)

// stateRank orders the forward extraction states. Failed is absent: it is
// terminal and reachable from anywhere, but never a source of a forward
// transition.
var stateRank = map[ExtractionState]int{
	StatePending:   0,
	StateTierADone: 1,
	StateTierBDone: 2,
	StateTierCDone: 3,
	StateCompleted: 4,
}

// ValidTransition reports whether a document may move from -> to. Forward
// moves, transitions to failed, and same-state re-stamps (audit
// annotations such as timeout_soft) are legal; everything else is a
// backward transition, which only the explicit reprocess reset may perform.
func ValidTransition(from, to ExtractionState) bool {
	if to == StateFailed || from == to {
		return true
	}
	fr, fok := stateRank[from]
	tr, tok := stateRank[to]
	return fok && tok && tr > fr
}

// Tier identifies which extractor produced a triple.
type Tier string

const (
	TierA Tier = "A"
	TierB Tier = "B"
	TierC Tier = "C"
)

// NodeRecord is a polymorphic graph node: a type_tag discriminator plus a
// property map, keyed for uniqueness by NaturalKey (resolved against the
// schema registry's NodeType.NaturalKey field order).
type NodeRecord struct {
	TypeTag    string
	NaturalKey string // pre-computed composite key, see orchestrator's canonicalize
	Props      map[string]any
	Status     string // "" (normal) or "unresolved" for stub nodes
}

// EdgeHeader is the universal header every edge carries.
type EdgeHeader struct {
	TypeTag         string
	SrcRef          string // natural key of the source node
	DstRef          string // natural key of the destination node
	CreatedAt       time.Time
	SourceTimestamp time.Time
	SourceDocID     string
	Confidence      float64
	ExtractorVersion string
	Tier            Tier
}

// EdgeRecord is a graph edge: the universal header plus type-specific props.
type EdgeRecord struct {
	EdgeHeader
	Props map[string]any
}

// Key returns the composite edge key: edges are uniquely identified
// by (type_tag, src_ref, dst_ref, source_doc_id, extractor_version) so that
// re-extracting a document upserts rather than duplicates its contribution.
func (e EdgeRecord) Key() EdgeKey {
	return EdgeKey{
		TypeTag:          e.TypeTag,
		SrcRef:           e.SrcRef,
		DstRef:           e.DstRef,
		SourceDocID:      e.SourceDocID,
		ExtractorVersion: e.ExtractorVersion,
	}
}

// EdgeKey is the composite uniqueness key for an edge.
type EdgeKey struct {
	TypeTag          string
	SrcRef           string
	DstRef           string
	SourceDocID      string
	ExtractorVersion string
}

// Provenance records where a node or edge output came from, for audit and
// for the entity-resolution merge step.
type Provenance struct {
	DocID         string
	WindowOrdinal int
	TokenSpan     [2]int
	Tier          Tier
}

// TriplePacket is the output of one extractor run over one input: the
// deterministic, NLP, or LLM tier's contribution of nodes, edges, and their
// provenance.
type TriplePacket struct {
	Nodes      []NodeRecord
	Edges      []EdgeRecord
	Provenance []Provenance
}

// Window is a <=512-token span Tier B selected as a Tier C candidate.
type Window struct {
	DocID     string
	Ordinal   int
	Text      string
	Score     float64
	TokenSpan [2]int
}

// Chunk is a semantic slice of a Document, persisted only in the relational
// store and vector store (never as a graph node; see the open-question
// decision in DESIGN.md).
type Chunk struct {
	ChunkID           string
	DocID             string
	Ordinal           int
	Text              string
	TokenCount        int
	TokenSpan         [2]int // [start, end) token offsets within the document
	EmbeddingVectorID string
}
