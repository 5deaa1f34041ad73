package config

import (
	"github.com/kelseyhightower/envconfig"
)

// Config holds the process configuration, loaded from the environment with
// the AGENTLENS prefix.
type Config struct {
	HTTPAddr          string `envconfig:"HTTP_ADDR" default:":8080"`
	GRPCAddr          string `envconfig:"GRPC_ADDR" default:":4317"`
	IngestQueueSize   int    `envconfig:"INGEST_QUEUE_SIZE" default:"1024"`
	PendingSpanLimit  int    `envconfig:"PENDING_SPAN_LIMIT" default:"256"`
	SnapshotCacheCost int64  `envconfig:"SNAPSHOT_CACHE_COST" default:"1048576"`
}

func Load() (Config, error) {
	var cfg Config
	err := envconfig.Process("agentlens", &cfg)
	return cfg, err
}
