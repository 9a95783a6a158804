package schema

import "testing"

func TestRegisterNodeType_RejectsMissingNaturalKey(t *testing.T) {
	r := New()
	err := r.RegisterNodeType(NodeType{Tag: "Widget"})
	if err == nil {
		t.Fatal("expected error for missing natural_key")
	}
}

func TestRegisterNodeType_RejectsDuplicateTag(t *testing.T) {
	r := New()
	nt := NodeType{Tag: "Widget", NaturalKey: []string{"name"}}
	if err := r.RegisterNodeType(nt); err != nil {
		t.Fatalf("first registration: %v", err)
	}
	if err := r.RegisterNodeType(nt); err == nil {
		t.Fatal("expected error on duplicate tag")
	}
}

func TestRegisterKernel_PopulatesExpectedTags(t *testing.T) {
	r := New()
	if err := RegisterKernel(r); err != nil {
		t.Fatalf("RegisterKernel: %v", err)
	}
	for _, tag := range []string{"Document", "Service", "Container", "ReverseProxy", "Host", "IP"} {
		if _, ok := r.GetNodeType(tag); !ok {
			t.Errorf("expected node type %q to be registered", tag)
		}
	}
	if _, ok := r.GetNodeType("Chunk"); ok {
		t.Fatal("Chunk must not be registered as a graph node type")
	}
	for _, tag := range []string{"DEPENDS_ON", "ROUTES_TO", "BINDS", "MENTIONS"} {
		if _, ok := r.GetEdgeType(tag); !ok {
			t.Errorf("expected edge type %q to be registered", tag)
		}
	}
}

func TestAcceptanceThreshold_DefaultsWhenUnknown(t *testing.T) {
	r := New()
	if got := r.AcceptanceThreshold("UNKNOWN_EDGE"); got != 0.70 {
		t.Fatalf("AcceptanceThreshold(unknown) = %v, want 0.70", got)
	}
}
