// wardend is the group-management daemon: it loads rule files, opens
// the stores, connects the event feeds, and runs the dispatcher
// until interrupted.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/groupwarden/groupwarden/chat"
	"github.com/groupwarden/groupwarden/dispatch"
	"github.com/groupwarden/groupwarden/engine"
	"github.com/groupwarden/groupwarden/store"
	"github.com/groupwarden/groupwarden/tools"
)

func main() {
	var (
		configFile = flag.String("c", "", "config file (YAML)")
		dryRun     = flag.Bool("n", false, "record actions instead of publishing them")
	)
	flag.Parse()

	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		Prefix:          "wardend",
	})

	cfg, err := LoadConfig(*configFile)
	if err != nil {
		logger.Fatal("config", "err", err)
	}
	if lvl, err := log.ParseLevel(cfg.LogLevel); err == nil && cfg.LogLevel != "" {
		logger.SetLevel(lvl)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	vars := store.NewBolt(cfg.BoltFile)
	if err := vars.Open(ctx); err != nil {
		logger.Fatal("bolt open", "file", cfg.BoltFile, "err", err)
	}
	defer vars.Close(ctx)

	stats, err := store.OpenStats(cfg.StatsFile)
	if err != nil {
		logger.Fatal("stats open", "file", cfg.StatsFile, "err", err)
	}
	defer stats.Close()

	// MQTT is optional: without a broker the daemon records
	// actions (dry-run) and only the WebSocket feed runs.
	var mq mqtt.Client
	if cfg.MQTTBroker != "" {
		opts := mqtt.NewClientOptions().AddBroker(cfg.MQTTBroker).SetClientID("wardend")
		mq = mqtt.NewClient(opts)
		if tok := mq.Connect(); tok.Wait() && tok.Error() != nil {
			logger.Fatal("mqtt connect", "broker", cfg.MQTTBroker, "err", tok.Error())
		}
		defer mq.Disconnect(250)
	}

	var client chat.Client
	switch {
	case *dryRun || mq == nil:
		logger.Info("no action publisher; recording actions")
		client = chat.NewRecorder()
	default:
		client = newGatewayClient(mq, cfg.MQTTActions, vars)
	}

	source := dispatch.NewStaticSource()
	if groups, err := tools.LoadRuleFile(cfg.RulesFile); err != nil {
		logger.Warn("rule file not loaded; groups get defaults",
			"file", cfg.RulesFile, "err", err)
	} else {
		n := 0
		for groupID, rules := range groups {
			for _, rule := range rules {
				source.Add(groupID, rule)
				n++
			}
		}
		logger.Info("rules loaded", "file", cfg.RulesFile, "rules", n)
	}

	exec := engine.New(client, vars, vars, stats)
	exec.Logger = logger

	d := dispatch.New(exec, source)
	d.Stats = stats
	d.Logger = logger
	if delay := cfg.aggregationDelay(); delay > 0 {
		d.AggregationDelay = delay
	}
	if grace := cfg.grace(); grace > 0 {
		d.Grace = grace
	}

	if err := d.Start(ctx); err != nil {
		logger.Fatal("dispatcher start", "err", err)
	}

	// Daily stats cleanup keeps the event stream bounded.
	if retention := cfg.statsRetention(); retention > 0 {
		go pruneStats(ctx, stats, retention, logger)
	}

	if mq != nil {
		if err := subscribeEvents(mq, cfg.MQTTEvents, d, logger); err != nil {
			logger.Fatal("mqtt subscribe", "topic", cfg.MQTTEvents, "err", err)
		}
		logger.Info("mqtt feed up", "topic", cfg.MQTTEvents)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/events", serveEvents(d, logger))
	mux.HandleFunc("/rules.html", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := tools.RenderRuleFileHTML(cfg.RulesFile, w); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})

	srv := &http.Server{
		Addr:    cfg.Listen,
		Handler: mux,
	}
	go func() {
		logger.Info("listening", "addr", cfg.Listen)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", "err", err)
			cancel()
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	select {
	case <-sig:
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	srv.Close()
	if err := d.Shutdown(context.Background()); err != nil {
		logger.Warn("shutdown incomplete", "err", err)
	}
}

// pruneStats drops statistics events older than the retention window,
// once at startup and then daily.
func pruneStats(ctx context.Context, stats *store.Stats, retention time.Duration, logger *log.Logger) {
	prune := func() {
		n, err := stats.Prune(ctx, retention)
		if err != nil {
			logger.Error("stats prune failed", "err", err)
			return
		}
		if n > 0 {
			logger.Info("stats pruned", "dropped", n)
		}
	}

	prune()
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			prune()
		}
	}
}
