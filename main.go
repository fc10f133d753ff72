package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	_ "net/http/pprof" //nolint:gosec // Intentionally exposed on debug port.
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/die-net/socksd/internal/config"
	"github.com/die-net/socksd/internal/dialer"
	"github.com/die-net/socksd/internal/logging"
	"github.com/die-net/socksd/internal/proxy"
	"github.com/die-net/socksd/internal/resolver"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type options struct {
	configPath string

	listen      []string
	outgoing    []string
	allowSOCKS4 bool
	allowSOCKS5 bool
	backlog     int

	maxSessions        int
	dialTimeout        time.Duration
	negotiationTimeout time.Duration
	tcpKeepAlive       string
	dnsServer          string
	dnsCacheTTL        time.Duration

	logLevel      string
	logFormat     string
	debugListen   string
	shutdownGrace time.Duration
}

func (o *options) register(fs *pflag.FlagSet) {
	def := config.Default()

	fs.StringVar(&o.configPath, "config", "", "YAML config file; re-read on SIGHUP. Flags given explicitly override it.")
	fs.StringSliceVar(&o.listen, "listen", def.Listen, "Listen address (repeatable)")
	fs.StringSliceVar(&o.outgoing, "outgoing", def.OutgoingAddresses, "Local source address for outbound connections (repeatable)")
	fs.BoolVar(&o.allowSOCKS4, "allow-socks4", def.AllowSOCKS4, "Accept SOCKS4 and SOCKS4a clients")
	fs.BoolVar(&o.allowSOCKS5, "allow-socks5", def.AllowSOCKS5, "Accept SOCKS5 clients")
	fs.IntVar(&o.backlog, "backlog", def.Backlog, "Listen backlog")

	fs.IntVar(&o.maxSessions, "max-sessions", 0, "Maximum concurrent client sessions; 0 is unlimited")
	fs.DurationVar(&o.dialTimeout, "dial-timeout", 10*time.Second, "Timeout for outbound DNS lookup and TCP connect")
	fs.DurationVar(&o.negotiationTimeout, "negotiation-timeout", 30*time.Second, "Timeout for the SOCKS handshake; 0 disables")
	fs.StringVar(&o.tcpKeepAlive, "tcp-keepalive", "45:45:3", "TCP keepalive: on|off|keepidle:keepintvl:keepcnt")
	fs.StringVar(&o.dnsServer, "dns-server", "", "DNS server (host[:port]) for SOCKS4a and SOCKS5 names. Empty uses the system resolver.")
	fs.DurationVar(&o.dnsCacheTTL, "dns-cache-ttl", time.Minute, "How long resolved names are cached; 0 disables")

	fs.StringVar(&o.logLevel, "log-level", "info", "Log level: debug|info|warn|error")
	fs.StringVar(&o.logFormat, "log-format", "text", "Log format: text|json")
	fs.StringVar(&o.debugListen, "debug-listen", "", "Debug HTTP listen address exposing /debug/pprof (e.g. 127.0.0.1:6060). Empty disables.")
	fs.DurationVar(&o.shutdownGrace, "shutdown-grace", 10*time.Second, "How long to wait for running sessions on shutdown")
}

// loadConfig layers defaults, the config file, and explicitly set flags.
func (o *options) loadConfig(fs *pflag.FlagSet) (config.Config, error) {
	cfg := config.Default()
	if o.configPath != "" {
		var err error
		if cfg, err = config.LoadFile(o.configPath, cfg); err != nil {
			return config.Config{}, err
		}
	}

	if fs.Changed("listen") {
		cfg.Listen = o.listen
	}
	if fs.Changed("outgoing") {
		cfg.OutgoingAddresses = o.outgoing
	}
	if fs.Changed("allow-socks4") {
		cfg.AllowSOCKS4 = o.allowSOCKS4
	}
	if fs.Changed("allow-socks5") {
		cfg.AllowSOCKS5 = o.allowSOCKS5
	}
	if fs.Changed("backlog") {
		cfg.Backlog = o.backlog
	}
	return cfg, nil
}

func (o *options) snapshot(fs *pflag.FlagSet) (*config.Snapshot, error) {
	cfg, err := o.loadConfig(fs)
	if err != nil {
		return nil, err
	}
	return cfg.Snapshot()
}

func run() error {
	var o options
	fs := pflag.CommandLine
	o.register(fs)
	fs.SortFlags = false
	pflag.Parse()

	log, err := logging.New(os.Stderr, o.logLevel, o.logFormat)
	if err != nil {
		return err
	}

	ka, err := config.ParseTCPKeepAlive(o.tcpKeepAlive)
	if err != nil {
		return fmt.Errorf("invalid --tcp-keepalive: %w", err)
	}

	snap, err := o.snapshot(fs)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	store := config.NewStore(snap)

	res, err := resolver.New(resolver.Config{Server: o.dnsServer, Timeout: o.dialTimeout, CacheTTL: o.dnsCacheTTL})
	if err != nil {
		return fmt.Errorf("invalid --dns-server: %w", err)
	}

	cfg := proxy.Config{
		NegotiationTimeout: o.negotiationTimeout,
		KeepAlive:          ka,
		Dialer:             dialer.New(dialer.Config{DialTimeout: o.dialTimeout, KeepAlive: ka}),
		Resolver:           res,
	}

	g, ctx := errgroup.WithContext(context.Background())

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if o.debugListen != "" {
		debugSrv := &http.Server{Handler: http.DefaultServeMux} //nolint:gosec // Not concerned about timeouts on debug port.
		lc := net.ListenConfig{KeepAliveConfig: ka}
		debugLn, err := lc.Listen(ctx, "tcp", o.debugListen)
		if err != nil {
			return fmt.Errorf("debug listen: %w", err)
		}
		context.AfterFunc(ctx, func() {
			_ = debugSrv.Close()
			_ = debugLn.Close()
		})

		g.Go(func() error {
			if err := debugSrv.Serve(debugLn); err != nil {
				return fmt.Errorf("debug serve: %w", err)
			}
			return nil
		})
		log.Info("debug listening", "listen", o.debugListen)
	}

	pool := proxy.NewPool(o.maxSessions)
	srv := proxy.NewServer(ctx, cfg, store, pool, log)
	sup := proxy.NewSupervisor(srv, log)
	if err := sup.Apply(snap); err != nil && len(sup.Addrs()) == 0 {
		return fmt.Errorf("no listeners started: %w", err)
	}

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-hup:
				reload(&o, fs, store, sup, log)
			}
		}
	})

	g.Go(func() error {
		<-ctx.Done()
		log.Info("shutting down")
		_ = sup.Close()

		wctx, cancel := context.WithTimeout(context.Background(), o.shutdownGrace)
		defer cancel()
		if err := pool.Wait(wctx); err != nil {
			log.Warn("sessions still running at exit", "err", err)
		}
		return nil
	})

	err = g.Wait()
	if errors.Is(err, http.ErrServerClosed) {
		err = nil
	}
	return err
}

// reload swaps in a fresh snapshot and reconciles listeners. On error the
// previous configuration stays in effect.
func reload(o *options, fs *pflag.FlagSet, store *config.Store, sup *proxy.Supervisor, log *slog.Logger) {
	snap, err := o.snapshot(fs)
	if err != nil {
		log.Error("reload failed, keeping previous configuration", "err", err)
		return
	}

	store.Swap(snap)
	if err := sup.Apply(snap); err != nil {
		log.Error("reload: some listeners failed", "err", err)
	}
	log.Info("configuration reloaded", "listen", snap.Listen, "outgoing", len(snap.OutgoingAddresses))
}
