package tierb

// relationVerbs maps the canonical relation verbs to the
// edge type_tag they realize, encoding the dependency-path pattern
// "(Entity) -[subj]- verb -[obj|prep->pobj]- (Entity)" as a lexical
// adjacency rule rather than a true dependency parse (no dependency parser
// ships in the reference pack).
var relationVerbs = map[string]string{
	"depend":   "DEPENDS_ON",
	"depends":  "DEPENDS_ON",
	"require":  "DEPENDS_ON",
	"requires": "DEPENDS_ON",
	"route":    "ROUTES_TO",
	"routes":   "ROUTES_TO",
	"proxy":    "ROUTES_TO",
	"proxies":  "ROUTES_TO",
	"bind":     "BINDS",
	"binds":    "BINDS",
	"listen":   "BINDS",
	"listens":  "BINDS",
	"expose":   "EXPOSES",
	"exposes":  "EXPOSES",
	"run":      "RUNS",
	"runs":     "RUNS",
	"running":  "RUNS",
}

// RelationCandidate is one relation the dependency-path matcher found
// between two entity mentions in the same sentence.
type RelationCandidate struct {
	TypeTag string
	Src     EntityMention
	Dst     EntityMention
	Verb    string
}

// MatchRelations finds (subject) verb (object) triples among the entity
// mentions of one sentence: for each recognized relation verb token, the
// nearest preceding mention becomes the subject and the nearest following
// mention becomes the object.
func MatchRelations(s Sentence, mentions []EntityMention) []RelationCandidate {
	if len(mentions) < 2 {
		return nil
	}
	var out []RelationCandidate
	for _, tok := range s.Tokens {
		tag, ok := relationVerbs[tok.Lower]
		if !ok {
			continue
		}
		var subj, obj *EntityMention
		for i := range mentions {
			m := &mentions[i]
			if m.End <= tok.Start {
				if subj == nil || m.End > subj.End {
					subj = m
				}
			}
			if m.Start >= tok.End {
				if obj == nil || m.Start < obj.Start {
					obj = m
				}
			}
		}
		if subj != nil && obj != nil && subj.NaturalKey != obj.NaturalKey {
			out = append(out, RelationCandidate{TypeTag: tag, Src: *subj, Dst: *obj, Verb: tok.Lower})
		}
	}
	return out
}
