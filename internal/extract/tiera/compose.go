package tiera

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"docgraph/internal/model"
)

// composeFile is the minimal shape matcher needed to walk a Docker Compose
// document: services -> containers -> ports/env/depends_on chains.
// Fields the compose spec allows but this extractor doesn't use are decoded
// into nothing (yaml.v3 ignores unknown keys by default).
type composeFile struct {
	Services map[string]composeService `yaml:"services"`
	Networks map[string]any            `yaml:"networks"`
	Volumes  map[string]any            `yaml:"volumes"`
}

type composeService struct {
	Image      string   `yaml:"image"`
	Ports      []any    `yaml:"ports"`
	DependsOn  any      `yaml:"depends_on"`
	Networks   []string `yaml:"networks"`
	Volumes    []string `yaml:"volumes"`
}

// looksLikeCompose is a cheap shape check before attempting a full parse: a
// YAML document with no top-level "services" mapping isn't a compose file
// and shouldn't be walked by the compose-specific matcher.
func looksLikeCompose(raw map[string]any) bool {
	_, ok := raw["services"]
	return ok
}

// parseComposeBlock walks one recognized compose YAML block and emits its
// container/service/network/volume nodes and the edges between them.
// Malformed shapes inside an otherwise-parseable block are skipped with a
// warning rather than failing the whole document.
func parseComposeBlock(docID string, now time.Time, raw []byte, version string) (model.TriplePacket, []string, error) {
	var cf composeFile
	if err := yaml.Unmarshal(raw, &cf); err != nil {
		return model.TriplePacket{}, nil, err
	}

	var packet model.TriplePacket
	var warnings []string

	for name, svc := range cf.Services {
		packet.Nodes = append(packet.Nodes, model.NodeRecord{
			TypeTag:    "Container",
			NaturalKey: name,
			Props:      map[string]any{"name": name, "image": svc.Image},
		})
		packet.Nodes = append(packet.Nodes, model.NodeRecord{
			TypeTag:    "Service",
			NaturalKey: name,
			Props:      map[string]any{"name": name},
		})

		for _, p := range svc.Ports {
			port, ok := parsePortSpec(p)
			if !ok {
				warnings = append(warnings, fmt.Sprintf("compose: service %q has unparseable port spec %v", name, p))
				continue
			}
			packet.Edges = append(packet.Edges, model.EdgeRecord{
				EdgeHeader: model.EdgeHeader{
					TypeTag: "EXPOSES", SrcRef: name, DstRef: name,
					CreatedAt: now, SourceTimestamp: now, SourceDocID: docID,
					Confidence: 1.0, ExtractorVersion: version, Tier: model.TierA,
				},
				Props: map[string]any{"port": port},
			})
		}

		deps := dependsOnNames(svc.DependsOn)
		for _, dep := range deps {
			packet.Edges = append(packet.Edges, model.EdgeRecord{
				EdgeHeader: model.EdgeHeader{
					TypeTag: "DEPENDS_ON", SrcRef: name, DstRef: dep,
					CreatedAt: now, SourceTimestamp: now, SourceDocID: docID,
					Confidence: 1.0, ExtractorVersion: version, Tier: model.TierA,
				},
			})
		}

		for _, net := range svc.Networks {
			packet.Nodes = append(packet.Nodes, model.NodeRecord{
				TypeTag: "Network", NaturalKey: net,
				Props: map[string]any{"name": net},
			})
			packet.Edges = append(packet.Edges, model.EdgeRecord{
				EdgeHeader: model.EdgeHeader{
					TypeTag: "ATTACHED_TO", SrcRef: name, DstRef: net,
					CreatedAt: now, SourceTimestamp: now, SourceDocID: docID,
					Confidence: 1.0, ExtractorVersion: version, Tier: model.TierA,
				},
			})
		}
	}

	for name := range cf.Networks {
		packet.Nodes = append(packet.Nodes, model.NodeRecord{
			TypeTag: "Network", NaturalKey: name, Props: map[string]any{"name": name},
		})
	}
	for name := range cf.Volumes {
		packet.Nodes = append(packet.Nodes, model.NodeRecord{
			TypeTag: "Volume", NaturalKey: name, Props: map[string]any{"name": name},
		})
	}

	return packet, warnings, nil
}

// parsePortSpec handles both "8080:80" short syntax and the long mapping
// form; it returns the host-facing port, validated to the 1-65535 range.
func parsePortSpec(p any) (int, bool) {
	switch v := p.(type) {
	case string:
		parts := strings.Split(v, ":")
		candidate := parts[0]
		if len(parts) > 1 {
			candidate = parts[0]
		}
		n, err := strconv.Atoi(strings.TrimSpace(candidate))
		if err != nil || n < 1 || n > 65535 {
			return 0, false
		}
		return n, true
	case int:
		if v < 1 || v > 65535 {
			return 0, false
		}
		return v, true
	case map[string]any:
		if pub, ok := v["published"]; ok {
			return parsePortSpec(pub)
		}
	}
	return 0, false
}

func dependsOnNames(v any) []string {
	switch t := v.(type) {
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case map[string]any:
		out := make([]string, 0, len(t))
		for k := range t {
			out = append(out, k)
		}
		return out
	}
	return nil
}
