// Package chunker splits a normalized document's text into the 512-token
// semantic slices the retrieval path embeds and upserts into
// the vector store, in parallel with the graph extraction cascade. Token
// boundaries come from real BPE counts via github.com/pkoukk/tiktoken-go
// rather than a character-length estimate.
package chunker

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/pkoukk/tiktoken-go"

	"docgraph/internal/model"
)

// ChunkTokens is the fixed chunk size.
const ChunkTokens = 512

// Chunker splits document text into contiguous, non-overlapping 512-token
// chunks with a monotonic, contiguous ordinal starting at 0.
type Chunker struct {
	enc *tiktoken.Tiktoken
}

// New loads the cl100k_base encoding used for chunk token accounting. Tier B
// window sizing does not use it; it counts its own regex tokens.
func New() (*Chunker, error) {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return nil, fmt.Errorf("chunker: load encoding: %w", err)
	}
	return &Chunker{enc: enc}, nil
}

// Chunk splits text into model.Chunk rows owned by docID. A document with
// no text produces no chunks.
func (c *Chunker) Chunk(docID, text string) []model.Chunk {
	tokens := c.enc.Encode(text, nil, nil)
	if len(tokens) == 0 {
		return nil
	}

	var out []model.Chunk
	for ordinal, start := 0, 0; start < len(tokens); ordinal++ {
		end := start + ChunkTokens
		if end > len(tokens) {
			end = len(tokens)
		}
		slice := tokens[start:end]
		out = append(out, model.Chunk{
			ChunkID:    uuid.NewString(),
			DocID:      docID,
			Ordinal:    ordinal,
			Text:       c.enc.Decode(slice),
			TokenCount: len(slice),
			TokenSpan:  [2]int{start, end},
		})
		start = end
	}
	return out
}
