package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	yaml "gopkg.in/yaml.v3"
)

// Load reads configuration from environment variables (optionally .env),
// optionally refines the result with a YAML overlay named by
// DOCGRAPH_CONFIG_FILE, then applies defaults for anything left unset.
func Load() (Config, error) {
	_ = godotenv.Overload()

	cfg := Config{}

	cfg.DB.DefaultDSN = strings.TrimSpace(os.Getenv("POSTGRES_DSN"))
	cfg.DB.DocstoreDSN = firstNonEmptyLocal(strings.TrimSpace(os.Getenv("DOCSTORE_DSN")), cfg.DB.DefaultDSN)
	cfg.DB.Vector.Backend = strings.TrimSpace(os.Getenv("VECTOR_BACKEND"))
	cfg.DB.Vector.DSN = strings.TrimSpace(os.Getenv("VECTOR_DSN"))
	cfg.DB.Vector.Collection = strings.TrimSpace(os.Getenv("QDRANT_COLLECTION"))
	cfg.DB.Vector.Metric = strings.TrimSpace(os.Getenv("VECTOR_METRIC"))
	cfg.DB.Graph.Backend = strings.TrimSpace(os.Getenv("GRAPH_BACKEND"))
	cfg.DB.Graph.DSN = strings.TrimSpace(os.Getenv("GRAPH_DSN"))

	if v := strings.TrimSpace(os.Getenv("VECTOR_DIMENSIONS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.DB.Vector.Dimensions = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("GRAPH_BATCH_SIZE")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.DB.Graph.BatchSize = n
		}
	}

	cfg.Redis.Addr = strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	cfg.Redis.Password = strings.TrimSpace(os.Getenv("REDIS_PASSWORD"))
	if v := strings.TrimSpace(os.Getenv("REDIS_DB")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Redis.DB = n
		}
	}

	cfg.Kafka.Brokers = splitCSV(os.Getenv("KAFKA_BROKERS"))
	cfg.Kafka.JobTopic = strings.TrimSpace(os.Getenv("KAFKA_JOB_TOPIC"))
	cfg.Kafka.GroupID = strings.TrimSpace(os.Getenv("KAFKA_GROUP_ID"))
	if v := strings.TrimSpace(os.Getenv("KAFKA_WORKER_COUNT")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Kafka.WorkerCount = n
		}
	}

	cfg.LLM.BaseURL = strings.TrimSpace(os.Getenv("LLM_BASE_URL"))
	cfg.LLM.APIKey = strings.TrimSpace(os.Getenv("LLM_API_KEY"))
	cfg.LLM.ExtractModel = strings.TrimSpace(os.Getenv("LLM_EXTRACT_MODEL"))
	cfg.LLM.SynthModel = strings.TrimSpace(os.Getenv("LLM_SYNTH_MODEL"))

	cfg.Embedder.BaseURL = strings.TrimSpace(os.Getenv("EMBEDDER_BASE_URL"))
	cfg.Embedder.Path = strings.TrimSpace(os.Getenv("EMBEDDER_PATH"))
	cfg.Embedder.APIKey = strings.TrimSpace(os.Getenv("EMBEDDER_API_KEY"))
	cfg.Embedder.APIHeader = strings.TrimSpace(os.Getenv("EMBEDDER_API_HEADER"))
	cfg.Embedder.Model = strings.TrimSpace(os.Getenv("EMBEDDER_MODEL"))
	if v := strings.TrimSpace(os.Getenv("EMBEDDER_TIMEOUT_SECONDS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Embedder.Timeout = n
		}
	}

	cfg.Reranker.BaseURL = strings.TrimSpace(os.Getenv("RERANKER_BASE_URL"))

	cfg.Obs.ServiceName = strings.TrimSpace(os.Getenv("OTEL_SERVICE_NAME"))
	cfg.Obs.ServiceVersion = strings.TrimSpace(os.Getenv("SERVICE_VERSION"))
	cfg.Obs.Environment = strings.TrimSpace(os.Getenv("ENVIRONMENT"))
	cfg.Obs.LogPath = strings.TrimSpace(os.Getenv("LOG_PATH"))
	cfg.Obs.LogLevel = strings.TrimSpace(os.Getenv("LOG_LEVEL"))
	cfg.Obs.OTLPEndpoint = strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"))

	if path := strings.TrimSpace(os.Getenv("DOCGRAPH_CONFIG_FILE")); path != "" {
		if data, err := os.ReadFile(path); err == nil {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, err
			}
		}
	}

	applyDefaults(&cfg)
	return cfg, nil
}

// applyDefaults fills in values the environment and YAML overlay left unset.
// Defaults mirror the constants named throughout the extraction and
// retrieval design; nothing here overrides a value the caller already set.
func applyDefaults(cfg *Config) {
	if cfg.DB.Vector.Dimensions <= 0 {
		cfg.DB.Vector.Dimensions = 1024
	}
	if cfg.DB.Vector.Metric == "" {
		cfg.DB.Vector.Metric = "cosine"
	}
	if cfg.DB.Vector.HNSWM <= 0 {
		cfg.DB.Vector.HNSWM = 16
	}
	if cfg.DB.Vector.HNSWEfConstr <= 0 {
		cfg.DB.Vector.HNSWEfConstr = 200
	}
	if cfg.DB.Vector.BatchMin <= 0 {
		cfg.DB.Vector.BatchMin = 50
	}
	if cfg.DB.Vector.BatchMax <= 0 {
		cfg.DB.Vector.BatchMax = 500
	}
	if cfg.DB.Vector.Collection == "" {
		cfg.DB.Vector.Collection = "docgraph_chunks"
	}
	if cfg.DB.Graph.BatchSize <= 0 {
		cfg.DB.Graph.BatchSize = 2000
	}

	if cfg.Redis.CacheTTL <= 0 {
		cfg.Redis.CacheTTL = 7 * 24 * time.Hour
	}
	if cfg.Redis.DedupeTTL <= 0 {
		cfg.Redis.DedupeTTL = 24 * time.Hour
	}

	if cfg.Kafka.JobTopic == "" {
		cfg.Kafka.JobTopic = "docgraph.extract.jobs"
	}
	if cfg.Kafka.GroupID == "" {
		cfg.Kafka.GroupID = "docgraph-orchestrator"
	}
	if cfg.Kafka.WorkerCount <= 0 {
		cfg.Kafka.WorkerCount = 4
	}

	if cfg.LLM.ExtractModel == "" {
		cfg.LLM.ExtractModel = "gpt-4o-mini"
	}
	if cfg.LLM.SynthModel == "" {
		cfg.LLM.SynthModel = cfg.LLM.ExtractModel
	}
	if cfg.LLM.TimeoutSeconds <= 0 {
		cfg.LLM.TimeoutSeconds = 30
	}

	if cfg.Embedder.Dimensions <= 0 {
		cfg.Embedder.Dimensions = cfg.DB.Vector.Dimensions
	}
	if cfg.Embedder.Path == "" {
		cfg.Embedder.Path = "/v1/embeddings"
	}
	if cfg.Embedder.APIHeader == "" && cfg.Embedder.APIKey != "" {
		cfg.Embedder.APIHeader = "Authorization"
	}
	if cfg.Embedder.Timeout <= 0 {
		cfg.Embedder.Timeout = 30
	}

	if cfg.Obs.ServiceName == "" {
		cfg.Obs.ServiceName = "docgraphd"
	}
	if cfg.Obs.LogLevel == "" {
		cfg.Obs.LogLevel = "info"
	}

	t := &cfg.Thresholds
	if t.EdgeAcceptConfidence <= 0 {
		t.EdgeAcceptConfidence = 0.70
	}
	if t.TierCAccept <= 0 {
		t.TierCAccept = 0.80
	}
	if t.TierCRetryFloor <= 0 {
		t.TierCRetryFloor = 0.70
	}
	if t.RetryBaseDelay <= 0 {
		t.RetryBaseDelay = time.Second
	}
	if t.RetryFactor <= 0 {
		t.RetryFactor = 2
	}
	if t.RetryJitter <= 0 {
		t.RetryJitter = 0.25
	}
	if t.RetryMaxAttempts <= 0 {
		t.RetryMaxAttempts = 3
	}
	if t.GraphBatchSplitDepth <= 0 {
		t.GraphBatchSplitDepth = 3
	}
	if t.HeartbeatInterval <= 0 {
		t.HeartbeatInterval = 10 * time.Second
	}
	if t.HeartbeatReclaimAfter <= 0 {
		t.HeartbeatReclaimAfter = 90 * time.Second
	}
	if t.DocumentWallClock <= 0 {
		t.DocumentWallClock = 300 * time.Second
	}
	if t.WindowTimeout <= 0 {
		t.WindowTimeout = 30 * time.Second
	}
	if t.GraphWriteTimeout <= 0 {
		t.GraphWriteTimeout = 60 * time.Second
	}
	if t.PolitenessRatePerSecond <= 0 {
		t.PolitenessRatePerSecond = 0.5
	}
	if t.PolitenessBurst <= 0 {
		t.PolitenessBurst = 2
	}
	if t.RetrieveTopK <= 0 {
		t.RetrieveTopK = 20
	}
	if t.RerankTopN <= 0 {
		t.RerankTopN = 5
	}
	if t.GraphHopBudget <= 0 {
		t.GraphHopBudget = 2
	}
	if t.GraphPerHopNodeBudget <= 0 {
		t.GraphPerHopNodeBudget = 50
	}
}

func splitCSV(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func firstNonEmptyLocal(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
