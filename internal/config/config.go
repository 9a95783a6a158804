// Package config loads docgraph's runtime settings: storage DSNs, model
// endpoints, and the tunables named throughout the extraction and retrieval
// pipeline (batch sizes, confidence thresholds, timeouts).
package config

import "time"

// VectorConfig configures the vector store backend.
type VectorConfig struct {
	Backend      string `yaml:"backend"` // memory|auto|postgres|qdrant|none
	DSN          string `yaml:"dsn,omitempty"`
	Collection   string `yaml:"collection"`
	Dimensions   int    `yaml:"dimensions"`
	Metric       string `yaml:"metric"` // cosine|l2|ip
	HNSWM        int    `yaml:"hnsw_m"`
	HNSWEfConstr int    `yaml:"hnsw_ef_construct"`
	BatchMin     int    `yaml:"batch_min"`
	BatchMax     int    `yaml:"batch_max"`
}

// GraphConfig configures the graph store backend.
type GraphConfig struct {
	Backend   string `yaml:"backend"` // memory|auto|postgres|none
	DSN       string `yaml:"dsn,omitempty"`
	BatchSize int    `yaml:"batch_size"`
}

// DBConfig bundles the storage backend configs plus a shared fallback DSN.
type DBConfig struct {
	DefaultDSN  string       `yaml:"default_dsn,omitempty"`
	Vector      VectorConfig `yaml:"vector"`
	Graph       GraphConfig  `yaml:"graph"`
	DocstoreDSN string       `yaml:"docstore_dsn,omitempty"`
}

// RedisConfig configures the extraction cache and orchestrator dedupe store.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db"`
	CacheTTL time.Duration `yaml:"cache_ttl"`
	DedupeTTL time.Duration `yaml:"dedupe_ttl"`
}

// KafkaConfig configures the orchestrator's job queue and DLQ topics.
type KafkaConfig struct {
	Brokers     []string `yaml:"brokers"`
	JobTopic    string   `yaml:"job_topic"`
	GroupID     string   `yaml:"group_id"`
	WorkerCount int      `yaml:"worker_count"`
}

// LLMConfig configures the Tier C extractor and answer synthesizer's model client.
type LLMConfig struct {
	BaseURL        string  `yaml:"base_url"`
	APIKey         string  `yaml:"api_key,omitempty"`
	ExtractModel   string  `yaml:"extract_model"`
	SynthModel     string  `yaml:"synth_model"`
	Temperature    float64 `yaml:"temperature"`
	TimeoutSeconds int     `yaml:"timeout_seconds"`
}

// EmbedderConfig configures the embedding HTTP collaborator. APIHeader and
// APIKey are the legacy single-header auth pair; Headers lets a deployment
// set arbitrary extra headers, which take precedence over the legacy pair.
type EmbedderConfig struct {
	BaseURL    string            `yaml:"base_url"`
	Path       string            `yaml:"path"`
	APIKey     string            `yaml:"api_key,omitempty"`
	APIHeader  string            `yaml:"api_header,omitempty"`
	Headers    map[string]string `yaml:"headers,omitempty"`
	Model      string            `yaml:"model"`
	Dimensions int               `yaml:"dimensions"`
	Timeout    int               `yaml:"timeout_seconds"`
}

// RerankerConfig configures the cross-encoder reranker HTTP collaborator.
type RerankerConfig struct {
	BaseURL string `yaml:"base_url"`
}

// ObsConfig configures logging/tracing/metrics.
type ObsConfig struct {
	ServiceName    string `yaml:"service_name"`
	ServiceVersion string `yaml:"service_version"`
	Environment    string `yaml:"environment"`
	LogPath        string `yaml:"log_path,omitempty"`
	LogLevel       string `yaml:"log_level"`
	OTLPEndpoint   string `yaml:"otlp_endpoint,omitempty"`
	OTLPInsecure   bool   `yaml:"otlp_insecure"`
}

// ThresholdsConfig carries the acceptance thresholds and retry/backoff
// constants the extraction pipeline relies on.
type ThresholdsConfig struct {
	EdgeAcceptConfidence    float64       `yaml:"edge_accept_confidence"`     // default 0.70
	TierCAccept             float64       `yaml:"tier_c_accept"`              // default 0.80
	TierCRetryFloor         float64       `yaml:"tier_c_retry_floor"`         // default 0.70
	RetryBaseDelay          time.Duration `yaml:"retry_base_delay"`          // 1s
	RetryFactor             float64       `yaml:"retry_factor"`              // 2
	RetryJitter             float64       `yaml:"retry_jitter"`              // 0.25
	RetryMaxAttempts        int           `yaml:"retry_max_attempts"`        // 3
	GraphBatchSplitDepth    int           `yaml:"graph_batch_split_depth"`   // 3
	HeartbeatInterval       time.Duration `yaml:"heartbeat_interval"`        // 10s
	HeartbeatReclaimAfter   time.Duration `yaml:"heartbeat_reclaim_after"`   // 90s
	DocumentWallClock       time.Duration `yaml:"document_wall_clock"`       // 300s
	WindowTimeout           time.Duration `yaml:"window_timeout"`            // 30s
	GraphWriteTimeout       time.Duration `yaml:"graph_write_timeout"`       // 60s
	PolitenessRatePerSecond float64       `yaml:"politeness_rate_per_second"` // 0.5
	PolitenessBurst         int           `yaml:"politeness_burst"`          // 2
	InFlightDocCap          int           `yaml:"in_flight_doc_cap"`
	RetrieveTopK            int           `yaml:"retrieve_top_k"`            // 20
	RerankTopN              int           `yaml:"rerank_top_n"`               // 5
	GraphHopBudget          int           `yaml:"graph_hop_budget"`           // 2
	GraphPerHopNodeBudget   int           `yaml:"graph_per_hop_node_budget"`  // 50
}

// Config is the top-level settings object loaded once at process start.
type Config struct {
	DB         DBConfig
	Redis      RedisConfig
	Kafka      KafkaConfig
	LLM        LLMConfig
	Embedder   EmbedderConfig
	Reranker   RerankerConfig
	Obs        ObsConfig
	Thresholds ThresholdsConfig
}
