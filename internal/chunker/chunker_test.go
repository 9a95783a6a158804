package chunker

import (
	"strings"
	"testing"
)

func genText(words int) string {
	var b strings.Builder
	for i := 0; i < words; i++ {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString("word")
	}
	return b.String()
}

func TestChunkProducesContiguousOrdinals(t *testing.T) {
	c, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	chunks := c.Chunk("doc-1", genText(5000))
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks for 5000 words, got %d", len(chunks))
	}
	for i, ch := range chunks {
		if ch.Ordinal != i {
			t.Fatalf("expected contiguous ordinals, chunk %d has ordinal %d", i, ch.Ordinal)
		}
		if ch.DocID != "doc-1" {
			t.Fatalf("expected DocID doc-1, got %q", ch.DocID)
		}
		if ch.ChunkID == "" {
			t.Fatalf("expected a generated chunk id")
		}
	}
}

func TestChunkRespectsTokenBudget(t *testing.T) {
	c, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	chunks := c.Chunk("doc-1", genText(5000))
	for i, ch := range chunks {
		if i == len(chunks)-1 {
			if ch.TokenCount > ChunkTokens {
				t.Fatalf("final chunk exceeds budget: %d > %d", ch.TokenCount, ChunkTokens)
			}
			continue
		}
		if ch.TokenCount != ChunkTokens {
			t.Fatalf("chunk %d expected exactly %d tokens, got %d", i, ChunkTokens, ch.TokenCount)
		}
	}
}

func TestChunkEmptyTextProducesNoChunks(t *testing.T) {
	c, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if chunks := c.Chunk("doc-1", ""); len(chunks) != 0 {
		t.Fatalf("expected no chunks for empty text, got %d", len(chunks))
	}
}
