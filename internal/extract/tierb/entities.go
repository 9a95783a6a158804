package tierb

import (
	"regexp"
	"strconv"
	"strings"
)

// EntityMention is one entity span the rule-based tagger recognized in a
// sentence, with the type tag it's authorized to emit.
type EntityMention struct {
	TypeTag    string
	NaturalKey string
	Props      map[string]any
	Start, End int
}

// authorizedTags are the node types Tier B may emit. Tier B never invents a
// tag the schema registry doesn't already carry from the Tier A kernel.
var authorizedTags = map[string]bool{
	"Service": true, "Host": true, "IP": true, "ReverseProxy": true,
	"Route": true, "Upstream": true, "Organization": true, "Person": true,
}

var (
	hostPortRe = regexp.MustCompile(`^([a-zA-Z0-9.-]+):(\d{1,5})$`)
	ipRe       = regexp.MustCompile(`^\d{1,3}(\.\d{1,3}){3}$`)
	fqdnRe     = regexp.MustCompile(`^([a-zA-Z0-9-]+\.)+[a-zA-Z]{2,}$`)
)

// TagEntities applies the rule-based entity tagger to one sentence. A token
// qualifies as an entity mention when its shape and lexical form match a
// recognized pattern: a Titlecase word that is not sentence-initial, or is
// sentence-initial and immediately before/after a known relation verb
// (likely a proper-noun service/vendor name), a host:port token, a
// dotted-quad IP, or an FQDN.
func TagEntities(s Sentence) []EntityMention {
	var out []EntityMention
	for i, tok := range s.Tokens {
		switch {
		case ipRe.MatchString(tok.Text):
			out = append(out, EntityMention{
				TypeTag: "IP", NaturalKey: tok.Text,
				Props: map[string]any{"address": tok.Text}, Start: tok.Start, End: tok.End,
			})
		case hostPortRe.MatchString(tok.Text):
			m := hostPortRe.FindStringSubmatch(tok.Text)
			host, port := m[1], m[2]
			p, _ := strconv.Atoi(port)
			out = append(out, EntityMention{
				TypeTag: "Upstream", NaturalKey: host + ":" + port,
				Props: map[string]any{"host": host, "port": p}, Start: tok.Start, End: tok.End,
			})
		case fqdnRe.MatchString(tok.Text) && strings.Contains(tok.Text, "."):
			out = append(out, EntityMention{
				TypeTag: "Host", NaturalKey: strings.ToLower(tok.Text),
				Props: map[string]any{"fqdn": strings.ToLower(tok.Text)}, Start: tok.Start, End: tok.End,
			})
		case tok.Shape == ShapeTitlecase && isLikelyServiceName(s.Tokens, i):
			name := strings.ToLower(tok.Text)
			out = append(out, EntityMention{
				TypeTag: "Service", NaturalKey: name,
				Props: map[string]any{"name": name}, Start: tok.Start, End: tok.End,
			})
		}
	}
	return out
}

// isLikelyServiceName reduces false positives from sentence-initial
// capitalization: a Titlecase token only counts as a candidate service
// mention when it isn't the first token of the sentence, or when it's
// immediately adjacent to a relation verb.
func isLikelyServiceName(toks []Token, i int) bool {
	if i == 0 {
		return adjacentToVerb(toks, i)
	}
	return true
}

func adjacentToVerb(toks []Token, i int) bool {
	if i+1 < len(toks) {
		if _, ok := relationVerbs[toks[i+1].Lower]; ok {
			return true
		}
	}
	if i > 0 {
		if _, ok := relationVerbs[toks[i-1].Lower]; ok {
			return true
		}
	}
	return false
}
