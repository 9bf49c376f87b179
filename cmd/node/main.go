package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/kaivolabs/pgreg/discovery"
	"github.com/kaivolabs/pgreg/internal/config"
	"github.com/kaivolabs/pgreg/internal/logging"
	"github.com/kaivolabs/pgreg/internal/telemetry"
	"github.com/kaivolabs/pgreg/pkg/liveness"
	"github.com/kaivolabs/pgreg/pkg/registry"
	"github.com/kaivolabs/pgreg/pkg/transport"
)

func main() {
	scopesFile := flag.String("scopes-file", "", "optional YAML file naming the scopes to start")
	flag.Parse()

	cfg, err := config.Load(*scopesFile)
	if err != nil {
		panic(err)
	}

	log, err := logging.New(cfg.Debug)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("booting", zap.String("self_id", cfg.SelfID), zap.String("self_addr", cfg.SelfAddr), zap.Strings("scopes", cfg.Scopes))

	cli, err := discovery.NewClient(cfg.Endpoints)
	if err != nil {
		log.Fatal("etcd client", zap.Error(err))
	}
	defer cli.Close()

	leaseID, cancelLease, err := discovery.RegisterNode(ctx, cli, cfg.SelfID, cfg.SelfAddr, cfg.LeaseTTL)
	if err != nil {
		log.Fatal("register node", zap.Error(err))
	}
	defer func() {
		cancelLease()
		_, _ = cli.Revoke(context.Background(), leaseID)
	}()

	tr := transport.NewHTTPTransport(registry.NodeID(cfg.SelfID), cfg.SelfAddr)
	go func() {
		if err := discovery.WatchPeers(ctx, cli, func(peers map[string]string) {
			byID := make(map[registry.NodeID]string, len(peers))
			for id, addr := range peers {
				byID[registry.NodeID(id)] = addr
			}
			tr.UpdatePeers(byID)
			log.Debug("peer set updated", zap.Int("count", len(byID)))
		}); err != nil && ctx.Err() == nil {
			log.Error("watch peers", zap.Error(err))
		}
	}()

	monitor := liveness.NewMonitor(256)
	inbox := liveness.NewInbox()
	mailbox := transport.NewMailbox(tr, inbox)
	callbacks := logging.Callbacks{Log: log}

	dir := registry.NewRegistry()
	for _, name := range cfg.Scopes {
		s := registry.NewScope(name, tr, monitor, callbacks,
			registry.WithLogger(log.Named(name)),
			registry.WithMetrics(telemetry.NewRegistrySink(name)),
			registry.WithMailbox(mailbox),
		)
		dir.Add(s)
	}
	defer dir.CloseAll()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", telemetry.MetricsHandler())

	transport.NewServer(dir, log).Mount(mux)
	mailbox.Mount(mux)

	(&app{dir: dir, log: log}).mount(mux)

	srv := &http.Server{Addr: cfg.SelfAddr, Handler: telemetry.Instrument("registry", mux)}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info("listening", zap.String("addr", cfg.SelfAddr))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal("serve", zap.Error(err))
	}
}
