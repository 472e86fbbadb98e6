package main

import (
	"context"
	"fmt"
	"github.com/alecthomas/kong"
	"github.com/elikakv/client/pkg/batch"
	"github.com/elikakv/client/pkg/cluster"
	"github.com/elikakv/client/pkg/common"
	"github.com/elikakv/client/pkg/proxy"
	"github.com/elikakv/client/pkg/web_service"
	cmux2 "github.com/soheilhy/cmux"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"
)

var (
	logger   = common.InitLogger().WithName("main")
	proxyCfg common.ProxyConfig
)

func main() {
	ctx := kong.Parse(&proxyCfg)
	if err := proxyCfg.Validate(); err != nil {
		ctx.FatalIfErrorf(err)
	}
	fmt.Print(proxy.Banner)
	logger.Info("ElikaProxyServer ", "Config", proxyCfg)
	SetupAllServer()
}

func SetupAllServer() {
	srvListener := proxyCfg.ServiceListener()
	m := cmux2.New(srvListener)

	var httpSrv *web_service.WebServer
	var proxySrv *proxy.ElikaProxyServer
	if strings.EqualFold(proxyCfg.Router.RouterType, "cluster") {
		httpSrv, proxySrv = setupClusterServers(&proxyCfg)
	} else {
		httpSrv = web_service.NewWebServer(&proxyCfg)
		proxySrv = proxy.NewElikaProxy(&proxyCfg)
	}

	signChan := make(chan os.Signal, 1)
	signal.Notify(signChan, os.Interrupt, syscall.SIGQUIT, syscall.SIGTERM)
	errChan := make(chan error, 1)
	// start proxy tcp proxy
	go func() {
		if err := proxySrv.Start(); err != nil {
			errChan <- err
		}
	}()
	// start http proxy
	go func() {
		if err := httpSrv.Start(m); err != nil {
			errChan <- err
		}
	}()

	go func() {
		logger.Info("Starting cmux proxy...", "ServiceAddr", srvListener.Addr())
		if err := m.Serve(); err != nil {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		logger.Error(err, "An error occurred when the cluster started.")
		os.Exit(-1)
	case sig := <-signChan:
		logger.Info("Received signal, shutting down...", "Sigs", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		httpSrv.Shutdown(ctx)
		proxySrv.Shutdown(ctx)
	}
}

// setupClusterServers wires the gateway and admin API around one shared
// SlotMapRouter/BatchExecutor pair, bootstrapping a single full-slot-range
// shard from --router.static-be. Real topology changes beyond that single
// shard are expected to arrive through the admin API's POST /cluster/nodes,
// since discovering topology automatically is out of scope here.
func setupClusterServers(cfg *common.ProxyConfig) (*web_service.WebServer, *proxy.ElikaProxyServer) {
	poolCfg := cluster.PoolConfigFromClusterClient(cfg.ClusterClient)
	router := cluster.NewSlotMapRouter(poolCfg, nil)
	router.UpdateShard(context.Background(), cluster.ShardAssignment{
		SlotStart: 0,
		SlotEnd:   16383,
		Master:    cfg.Router.StaticBackend,
	})

	executor := batch.NewBatchExecutor(router, batch.ExecutorConfigFromClusterClient(cfg.ClusterClient))

	httpSrv := web_service.NewClusterWebServer(cfg, router)
	proxySrv := proxy.NewElikaProxyWithRouter(cfg, router, executor)
	return httpSrv, proxySrv
}
