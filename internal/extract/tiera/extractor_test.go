package tiera

import (
	"context"
	"testing"

	"docgraph/internal/model"
)

func TestExtractComposeDependsOn(t *testing.T) {
	doc := model.NormalizedDocument{
		DocID: "doc-1",
		Text:  "services for the homelab",
		SubStructures: []model.SubStructure{
			{
				Kind:     "code_block",
				Language: "yaml",
				Content: "services:\n" +
					"  api:\n" +
					"    image: myorg/api\n" +
					"    ports:\n" +
					"      - \"8080:8080\"\n" +
					"    depends_on:\n" +
					"      - db\n" +
					"  db:\n" +
					"    image: postgres\n",
			},
		},
	}

	e := New()
	packet, warnings, err := e.Extract(context.Background(), doc)
	if err != nil {
		t.Fatalf("Extract returned error: %v", err)
	}
	if len(warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", warnings)
	}

	var gotDepends bool
	for _, edge := range packet.Edges {
		if edge.TypeTag == "DEPENDS_ON" && edge.SrcRef == "api" && edge.DstRef == "db" {
			gotDepends = true
			if edge.Tier != model.TierA || edge.Confidence != 1.0 {
				t.Fatalf("expected tier A confidence 1.0, got tier=%s confidence=%v", edge.Tier, edge.Confidence)
			}
		}
	}
	if !gotDepends {
		t.Fatalf("expected api -[DEPENDS_ON]-> db edge, got %+v", packet.Edges)
	}

	var gotAPI, gotDB bool
	for _, n := range packet.Nodes {
		if n.TypeTag == "Container" && n.NaturalKey == "api" {
			gotAPI = true
		}
		if n.TypeTag == "Container" && n.NaturalKey == "db" {
			gotDB = true
		}
	}
	if !gotAPI || !gotDB {
		t.Fatalf("expected api and db container nodes, got %+v", packet.Nodes)
	}
}

func TestExtractMalformedBlockSkippedNotFailed(t *testing.T) {
	doc := model.NormalizedDocument{
		DocID: "doc-2",
		Text:  "no structured content here",
		SubStructures: []model.SubStructure{
			{Kind: "code_block", Language: "yaml", Content: "services: [this is not a map"},
		},
	}
	e := New()
	_, warnings, err := e.Extract(context.Background(), doc)
	if err != nil {
		t.Fatalf("malformed block must not fail the document, got err=%v", err)
	}
	if len(warnings) == 0 {
		t.Fatalf("expected a warning for the malformed block")
	}
}

func TestLexicalMatchKnownVocabulary(t *testing.T) {
	doc := model.NormalizedDocument{
		DocID: "doc-3",
		Text:  "The nginx service at 10.0.0.1 depends on postgres for caching.",
	}
	e := New()
	packet, _, err := e.Extract(context.Background(), doc)
	if err != nil {
		t.Fatalf("Extract returned error: %v", err)
	}
	var gotNginx, gotPostgres, gotIP bool
	for _, n := range packet.Nodes {
		if n.TypeTag == "Service" && n.NaturalKey == "nginx" {
			gotNginx = true
		}
		if n.TypeTag == "Service" && n.NaturalKey == "postgres" {
			gotPostgres = true
		}
		if n.TypeTag == "IP" && n.NaturalKey == "10.0.0.1" {
			gotIP = true
		}
	}
	if !gotNginx || !gotPostgres || !gotIP {
		t.Fatalf("expected nginx, postgres, and 10.0.0.1 to be recognized, got %+v", packet.Nodes)
	}
}
