package tiera

// knownServices is the fixed, known-entity vocabulary the Aho-Corasick
// matcher scans for: service/proxy/vendor tokens worth promoting to a
// Service node even when they appear in free-running prose rather than a
// structured block. Kept lowercase; Scan lowercases input before matching.
var knownServices = []string{
	"nginx", "traefik", "caddy", "haproxy", "envoy",
	"postgres", "postgresql", "mysql", "mariadb", "redis", "mongodb", "mongo",
	"qdrant", "elasticsearch", "opensearch",
	"kafka", "rabbitmq", "nats",
	"docker", "kubernetes", "k8s", "containerd",
	"prometheus", "grafana", "jaeger", "loki",
	"swag", "tailscale", "unifi", "pfsense",
	"api", "backend", "frontend", "gateway", "proxy", "upstream",
}
