package batch

import (
	"time"

	"github.com/elikakv/client/pkg/common"
)

// ExecutorConfigFromClusterClient translates the flag-parsed cluster-client
// config into this package's ExecutorConfig. It lives here, not in
// pkg/common, because pkg/common is imported by pkg/batch and cannot
// import it back.
func ExecutorConfigFromClusterClient(cfg common.ClusterClientConfig) ExecutorConfig {
	return ExecutorConfig{
		RetryAttempts:   cfg.RetryAttempts,
		RetryIntervalMs: cfg.RetryIntervalMs,
		ResponseTimeout: time.Duration(cfg.ResponseTimeoutMs) * time.Millisecond,
	}
}
