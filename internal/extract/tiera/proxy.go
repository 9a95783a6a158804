package tiera

import (
	"regexp"
	"time"

	"docgraph/internal/model"
)

var (
	serverNameRe = regexp.MustCompile(`(?m)^\s*server_name\s+([^;]+);`)
	proxyPassRe  = regexp.MustCompile(`(?m)^\s*proxy_pass\s+https?://([^\s;/]+)(/[^\s;]*)?;`)
)

// looksLikeReverseProxyConf is a cheap shape check: nginx/SWAG-style configs
// use the `server {}` block with `server_name`/`proxy_pass` directives,
// which never appear in YAML or JSON, so this check is text-only.
func looksLikeReverseProxyConf(text string) bool {
	return serverNameRe.MatchString(text) || proxyPassRe.MatchString(text)
}

// parseReverseProxyBlock walks an nginx/SWAG-style config block for
// server_name/proxy_pass pairs, emitting Route and Upstream nodes plus the
// ROUTES_TO edge connecting them.
func parseReverseProxyBlock(docID string, now time.Time, text string, version string) model.TriplePacket {
	var packet model.TriplePacket

	hosts := serverNameRe.FindAllStringSubmatch(text, -1)
	upstreams := proxyPassRe.FindAllStringSubmatch(text, -1)
	if len(hosts) == 0 || len(upstreams) == 0 {
		return packet
	}

	// Best-effort pairing: a config block with one server_name directive and
	// N proxy_pass directives routes that host to each upstream found.
	host := trimField(hosts[0][1])
	packet.Nodes = append(packet.Nodes, model.NodeRecord{
		TypeTag: "Route", NaturalKey: host + "|/",
		Props: map[string]any{"host": host, "path": "/"},
	})

	for _, u := range upstreams {
		upstreamHost := u[1]
		port, host2 := "", upstreamHost
		if idx := lastColon(upstreamHost); idx >= 0 {
			cand := upstreamHost[idx+1:]
			if validPort(cand) {
				port = cand
				host2 = upstreamHost[:idx]
			}
		}
		packet.Nodes = append(packet.Nodes, model.NodeRecord{
			TypeTag: "Upstream", NaturalKey: host2 + ":" + port,
			Props: map[string]any{"host": host2, "port": atoiSafe(port)},
		})
		packet.Edges = append(packet.Edges, model.EdgeRecord{
			EdgeHeader: model.EdgeHeader{
				TypeTag: "ROUTES_TO", SrcRef: host + "|/", DstRef: host2 + ":" + port,
				CreatedAt: now, SourceTimestamp: now, SourceDocID: docID,
				Confidence: 1.0, ExtractorVersion: version, Tier: model.TierA,
			},
			Props: map[string]any{"host": host2, "port": atoiSafe(port)},
		})
	}
	return packet
}

func trimField(s string) string {
	for len(s) > 0 && (s[0] == ' ' || s[0] == '\t') {
		s = s[1:]
	}
	for len(s) > 0 && (s[len(s)-1] == ' ' || s[len(s)-1] == '\t') {
		s = s[:len(s)-1]
	}
	return s
}

func lastColon(s string) int {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == ':' {
			return i
		}
	}
	return -1
}

func atoiSafe(s string) int {
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0
		}
		n = n*10 + int(r-'0')
	}
	return n
}
