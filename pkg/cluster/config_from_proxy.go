package cluster

import (
	"time"

	"github.com/elikakv/client/pkg/common"
)

// PoolConfigFromClusterClient translates the flag-parsed cluster-client
// config into this package's PoolConfig. It lives here, not in
// pkg/common, because pkg/common is imported by pkg/cluster and cannot
// import it back.
func PoolConfigFromClusterClient(cfg common.ClusterClientConfig) PoolConfig {
	return PoolConfig{
		MaxConnectionsPerEntry:  cfg.MaxConnectionsPerEntry,
		MinIdlePerEntry:         cfg.MinIdlePerEntry,
		DialTimeout:             time.Duration(cfg.DialTimeoutMs) * time.Millisecond,
		FailedAttemptsThreshold: cfg.FailedAttemptsThreshold,
		ReconnectTimeout:        time.Duration(cfg.ReconnectTimeoutMs) * time.Millisecond,
		Username:                []byte(cfg.Username),
		Password:                []byte(cfg.Password),
	}
}
