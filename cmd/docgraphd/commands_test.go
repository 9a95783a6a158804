package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"docgraph/internal/health"
	"docgraph/internal/synth"
)

func TestCollectPathsSingleFile(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "one.txt")
	if err := os.WriteFile(p, []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}
	got, err := collectPaths(p, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0] != p {
		t.Fatalf("got %v, want [%s]", got, p)
	}
}

func TestCollectPathsDirSortedAndLimited(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"c.txt", "a.txt", "b.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(name), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	got, err := collectPaths(dir, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("limit ignored, got %d paths", len(got))
	}
	if filepath.Base(got[0]) != "a.txt" || filepath.Base(got[1]) != "b.txt" {
		t.Fatalf("not sorted: %v", got)
	}
}

func TestHashIDStable(t *testing.T) {
	a, b := hashID("/etc/compose.yml"), hashID("/etc/compose.yml")
	if a != b {
		t.Fatalf("hashID not deterministic: %s vs %s", a, b)
	}
	if len(a) != 16 {
		t.Fatalf("expected 16 hex chars, got %d", len(a))
	}
	if hashID("/other") == a {
		t.Fatal("distinct paths collided")
	}
}

func TestLatencyMSKeys(t *testing.T) {
	l := synth.LatencyBreakdown{Synthesis: 1500 * time.Millisecond}
	l.Embed = 10 * time.Millisecond
	got := latencyMS(l)
	for _, k := range []string{"embed", "vector", "rerank", "graph", "synthesis"} {
		if _, ok := got[k]; !ok {
			t.Fatalf("missing latency stage %q", k)
		}
	}
	if got["synthesis"] != 1500 || got["embed"] != 10 {
		t.Fatalf("wrong values: %v", got)
	}
}

func TestHealthJSON(t *testing.T) {
	r := health.Report{Checks: []health.Status{
		{Name: "docstore", OK: true, Latency: 2 * time.Millisecond},
		{Name: "llm", OK: false, Err: "connection refused"},
	}}
	got := healthJSON(r)
	if len(got) != 2 || got[0].Name != "docstore" || !got[0].OK || got[1].Err == "" {
		t.Fatalf("unexpected: %+v", got)
	}
}
