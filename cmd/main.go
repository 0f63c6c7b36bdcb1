package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ShanpreetSingh/cyber-siege/internal/server"
	"github.com/ShanpreetSingh/cyber-siege/pkg/blocker"
	"github.com/ShanpreetSingh/cyber-siege/pkg/clock"
	"github.com/ShanpreetSingh/cyber-siege/pkg/config"
	"github.com/ShanpreetSingh/cyber-siege/pkg/firewall"
	"github.com/ShanpreetSingh/cyber-siege/pkg/logwatch"
	"github.com/ShanpreetSingh/cyber-siege/pkg/storage"
	"github.com/ShanpreetSingh/cyber-siege/pkg/whitelist"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v\n", err)
	}
	applyFlags(&cfg)

	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v\n", err)
	}

	fw, err := selectFirewall(cfg)
	if err != nil {
		log.Fatalf("failed to set up a firewall backend: %v\n", err)
	}
	if !cfg.DryRun && os.Geteuid() != 0 {
		log.Println("not running as root, firewall mutations will likely fail")
	}

	guard, err := whitelist.New(cfg.Whitelist)
	if err != nil {
		log.Fatalf("invalid whitelist: %v\n", err)
	}

	opts := blocker.Options{
		Policy:    cfg.Policy(),
		Clock:     clock.System(),
		Firewall:  fw,
		Whitelist: guard,
	}
	if cfg.WebhookURL != "" {
		opts.Notifier = blocker.NewWebhook(cfg.WebhookURL)
	}
	if cfg.SnapshotPath != "" {
		opts.Snapshot = storage.NewSnapshotter(cfg.SnapshotPath)
	}

	b, err := blocker.New(opts)
	if err != nil {
		log.Fatalf("failed to start blocker: %v\n", err)
	}

	restored, err := b.LoadSnapshot()
	if err != nil {
		log.Fatalf("failed to load snapshot: %v\n", err)
	}
	if restored {
		log.Printf("restored state from %v\n", cfg.SnapshotPath)
		b.EnforceActive()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go blocker.NewSweeper(b, cfg.SweepInterval).Run(ctx)

	if cfg.LogSource != "none" {
		watcher, err := logwatch.New(cfg.LogSource, cfg.AuthLogPath, clock.System(), func(event blocker.AuthEvent) {
			if _, err := b.Ingest(event); err != nil {
				log.Printf("dropped event from the log watcher: %v\n", err)
			}
		})
		if err != nil {
			log.Fatalf("failed to start log watcher: %v\n", err)
		}

		go func() {
			if err := watcher.Run(ctx); err != nil {
				log.Fatalf("log watcher stopped: %v\n", err)
			}
		}()
	}

	s := server.New(b, cfg.ListenAddr)

	log.Printf("listening on %v, blocking %v after %v failures within %v (firewall: %v)\n",
		cfg.ListenAddr, describeBlock(cfg.BlockDuration), cfg.Threshold, cfg.Window, fw.Name())

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		if err := s.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server stopped: %v\n", err)
		}
	}()

	<-stop
	log.Println("stopping")
	cancel()

	if err := s.Shutdown(); err != nil {
		log.Printf("failed to stop server: %v\n", err)
	}
	if err := b.SaveSnapshot(); err != nil {
		log.Printf("failed to save snapshot: %v\n", err)
	}
}

// applyFlags lets the command line override single fields, the defaults
// come from the already loaded environment.
func applyFlags(cfg *config.Config) {
	flag.IntVar(&cfg.Threshold, "threshold", cfg.Threshold, "failures within the window before a block")
	flag.DurationVar(&cfg.Window, "window", cfg.Window, "sliding window for counting failures")
	flag.DurationVar(&cfg.BlockDuration, "block-duration", cfg.BlockDuration, "how long a block lasts, 0 blocks forever")
	flag.BoolVar(&cfg.DryRun, "dry-run", cfg.DryRun, "log intended firewall mutations without applying them")
	flag.StringVar(&cfg.Backend, "backend", cfg.Backend, "firewall backend: auto, ufw, or iptables")
	flag.StringVar(&cfg.LogSource, "log-source", cfg.LogSource, "log source: auto, file, journal, or none")
	flag.StringVar(&cfg.AuthLogPath, "auth-log", cfg.AuthLogPath, "path of the sshd log to tail")
	flag.StringVar(&cfg.ListenAddr, "listen", cfg.ListenAddr, "address of the admin API")
	flag.DurationVar(&cfg.SweepInterval, "sweep-interval", cfg.SweepInterval, "time between maintenance passes")
	flag.StringVar(&cfg.SnapshotPath, "snapshot", cfg.SnapshotPath, "path of the state snapshot, empty disables persistence")
	flag.StringVar(&cfg.WebhookURL, "webhook", cfg.WebhookURL, "url receiving every decision as json")

	entries := flag.String("whitelist", strings.Join(cfg.Whitelist, ","), "comma separated ips and cidr ranges that are never blocked")
	flag.Parse()

	cfg.Whitelist = nil
	if *entries != "" {
		cfg.Whitelist = strings.Split(*entries, ",")
	}
}

func selectFirewall(cfg config.Config) (firewall.Adapter, error) {
	if cfg.DryRun {
		return firewall.NewDryRun(), nil
	}

	switch cfg.Backend {
	case "ufw":
		return firewall.NewUfw(), nil
	case "iptables":
		return firewall.NewIptables()
	default:
		return firewall.Detect()
	}
}

func describeBlock(d time.Duration) string {
	if d == 0 {
		return "forever"
	}
	return "for " + d.String()
}
