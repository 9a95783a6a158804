package config

import (
	"os"
	"testing"
)

func TestLoad_Defaults(t *testing.T) {
	for _, k := range []string{
		"POSTGRES_DSN", "VECTOR_DIMENSIONS", "VECTOR_METRIC", "GRAPH_BATCH_SIZE",
		"KAFKA_BROKERS", "KAFKA_WORKER_COUNT", "LLM_EXTRACT_MODEL", "DOCGRAPH_CONFIG_FILE",
	} {
		t.Setenv(k, "")
		_ = os.Unsetenv(k)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.DB.Vector.Dimensions != 1024 {
		t.Fatalf("expected default vector dimensions 1024, got %d", cfg.DB.Vector.Dimensions)
	}
	if cfg.DB.Vector.HNSWM != 16 || cfg.DB.Vector.HNSWEfConstr != 200 {
		t.Fatalf("expected HNSW M=16/ef_construct=200, got M=%d ef=%d", cfg.DB.Vector.HNSWM, cfg.DB.Vector.HNSWEfConstr)
	}
	if cfg.DB.Graph.BatchSize != 2000 {
		t.Fatalf("expected graph batch size 2000, got %d", cfg.DB.Graph.BatchSize)
	}
	if cfg.Thresholds.EdgeAcceptConfidence != 0.70 {
		t.Fatalf("expected edge accept confidence 0.70, got %v", cfg.Thresholds.EdgeAcceptConfidence)
	}
	if cfg.Thresholds.RetryMaxAttempts != 3 {
		t.Fatalf("expected retry max attempts 3, got %d", cfg.Thresholds.RetryMaxAttempts)
	}
	if cfg.Kafka.WorkerCount != 4 {
		t.Fatalf("expected default kafka worker count 4, got %d", cfg.Kafka.WorkerCount)
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("VECTOR_DIMENSIONS", "768")
	t.Setenv("GRAPH_BATCH_SIZE", "500")
	t.Setenv("KAFKA_BROKERS", "b1:9092, b2:9092")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.DB.Vector.Dimensions != 768 {
		t.Fatalf("expected overridden dimensions 768, got %d", cfg.DB.Vector.Dimensions)
	}
	if cfg.DB.Graph.BatchSize != 500 {
		t.Fatalf("expected overridden batch size 500, got %d", cfg.DB.Graph.BatchSize)
	}
	if len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.Brokers[0] != "b1:9092" || cfg.Kafka.Brokers[1] != "b2:9092" {
		t.Fatalf("unexpected brokers: %#v", cfg.Kafka.Brokers)
	}
}
