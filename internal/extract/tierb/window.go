package tierb

import "docgraph/internal/model"

// maxWindowTokens is the per-window token budget.
const maxWindowTokens = 512

// ScoreSentence rates a sentence's candidacy for a Tier C window: entity
// density, presence of a relation verb, count of numeric/technical tokens,
// and a length window (rewarding neither trivially short nor oversized
// sentences).
func ScoreSentence(s Sentence, mentions []EntityMention) float64 {
	if len(s.Tokens) == 0 {
		return 0
	}
	density := float64(len(mentions)) / float64(len(s.Tokens))

	hasVerb := 0.0
	numericTokens := 0
	for _, tok := range s.Tokens {
		if _, ok := relationVerbs[tok.Lower]; ok {
			hasVerb = 1.0
		}
		if tok.Shape == ShapeNumber || tok.Shape == ShapeMixed {
			numericTokens++
		}
	}
	numericScore := float64(numericTokens) / float64(len(s.Tokens))

	lengthScore := 1.0
	switch {
	case len(s.Tokens) < 4:
		lengthScore = 0.25
	case len(s.Tokens) > 120:
		lengthScore = 0.5
	}

	return (density*2 + hasVerb*2 + numericScore) * lengthScore
}

// BuildWindows selects candidate windows from scored sentences, each ≤512
// tokens, such that no two windows share a sentence.
// Windows are built by greedily expanding around a high-scoring "seed"
// sentence with ±1 sentence of context, skipping sentences already claimed.
func BuildWindows(docID string, sentences []Sentence, scores []float64) []model.Window {
	claimed := make([]bool, len(sentences))
	type scored struct {
		idx   int
		score float64
	}
	ranked := make([]scored, len(sentences))
	for i, sc := range scores {
		ranked[i] = scored{idx: i, score: sc}
	}
	// stable sort by score desc, index asc for determinism (no RNG anywhere
	// in this tier, so windows are identical across runs of the same input).
	for i := 1; i < len(ranked); i++ {
		for j := i; j > 0 && (ranked[j].score > ranked[j-1].score ||
			(ranked[j].score == ranked[j-1].score && ranked[j].idx < ranked[j-1].idx)); j-- {
			ranked[j], ranked[j-1] = ranked[j-1], ranked[j]
		}
	}

	var windows []model.Window
	ordinal := 0
	for _, r := range ranked {
		if claimed[r.idx] || r.score <= 0 {
			continue
		}
		lo, hi := r.idx, r.idx
		if lo > 0 && !claimed[lo-1] {
			lo--
		}
		if hi+1 < len(sentences) && !claimed[hi+1] {
			hi++
		}
		tokCount := 0
		var text string
		startSpan, endSpan := sentences[lo].Start, sentences[hi].End
		for i := lo; i <= hi; i++ {
			if claimed[i] {
				continue
			}
			tokCount += len(sentences[i].Tokens)
			if text != "" {
				text += " "
			}
			text += sentences[i].Text
		}
		if tokCount == 0 || tokCount > maxWindowTokens {
			claimed[r.idx] = true
			continue
		}
		for i := lo; i <= hi; i++ {
			claimed[i] = true
		}
		windows = append(windows, model.Window{
			DocID: docID, Ordinal: ordinal, Text: text, Score: r.score,
			TokenSpan: [2]int{startSpan, endSpan},
		})
		ordinal++
	}
	return windows
}
