package tiera

// automaton is a hand-rolled Aho-Corasick matcher over a fixed vocabulary.
// No pack repo imports an Aho-Corasick library (github.com/cloudflare/ahocorasick
// or similar never appears in any go.mod under _examples/), and inventing a
// dependency the corpus never demonstrates is disallowed; this is the
// deterministic-extractor's one hand-rolled concern, driven by the
// requirement that lexical matching run in time linear in document length
// regardless of vocabulary size.
type automaton struct {
	goTo   []map[byte]int
	fail   []int
	output [][]string // matched keyword(s) ending at this state, lowercase
}

// newAutomaton builds the trie + failure links for a lowercase vocabulary.
func newAutomaton(words []string) *automaton {
	a := &automaton{
		goTo:   []map[byte]int{{}},
		fail:   []int{0},
		output: [][]string{nil},
	}
	for _, w := range words {
		a.insert(w)
	}
	a.buildFailureLinks()
	return a
}

func (a *automaton) insert(word string) {
	state := 0
	for i := 0; i < len(word); i++ {
		c := word[i]
		next, ok := a.goTo[state][c]
		if !ok {
			a.goTo = append(a.goTo, map[byte]int{})
			a.fail = append(a.fail, 0)
			a.output = append(a.output, nil)
			next = len(a.goTo) - 1
			a.goTo[state][c] = next
		}
		state = next
	}
	a.output[state] = append(a.output[state], word)
}

func (a *automaton) buildFailureLinks() {
	queue := make([]int, 0, len(a.goTo))
	for c, s := range a.goTo[0] {
		a.fail[s] = 0
		queue = append(queue, s)
		_ = c
	}
	for len(queue) > 0 {
		u := queue[0]
		queue = queue[1:]
		for c, v := range a.goTo[u] {
			queue = append(queue, v)
			f := a.fail[u]
			for {
				if next, ok := a.goTo[f][c]; ok {
					a.fail[v] = next
					break
				}
				if f == 0 {
					a.fail[v] = 0
					break
				}
				f = a.fail[f]
			}
			a.output[v] = append(a.output[v], a.output[a.fail[v]]...)
		}
	}
}

// match is one hit: the keyword text and the byte offset its last
// character occupies in the scanned (lowercased) input.
type match struct {
	Keyword string
	End     int
}

// Scan runs the automaton over text (already lowercased by the caller) in
// O(len(text)) regardless of vocabulary size.
func (a *automaton) Scan(text string) []match {
	var out []match
	state := 0
	for i := 0; i < len(text); i++ {
		c := text[i]
		for {
			if next, ok := a.goTo[state][c]; ok {
				state = next
				break
			}
			if state == 0 {
				break
			}
			state = a.fail[state]
		}
		for _, kw := range a.output[state] {
			out = append(out, match{Keyword: kw, End: i})
		}
	}
	return out
}
