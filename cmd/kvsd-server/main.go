package main

import (
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/cyberdelia/go-metrics-graphite"
	metrics "github.com/rcrowley/go-metrics"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/allen1211/kvsd/internal/engine"
	"github.com/allen1211/kvsd/internal/pool"
	"github.com/allen1211/kvsd/internal/server"
	kvsdlog "github.com/allen1211/kvsd/pkg/log"
)

func main() {
	var (
		addr         string
		engineName   string
		dir          string
		threads      int
		logLevel     string
		metricsAddr  string
		graphiteAddr string
	)
	flag.StringVar(&addr, "addr", "127.0.0.1:4000", "address to listen on")
	flag.StringVar(&engineName, "engine", "builtin", "storage engine: builtin or alternate")
	flag.StringVar(&dir, "dir", "./data", "data directory")
	flag.IntVar(&threads, "threads", runtime.NumCPU(), "worker pool size")
	flag.StringVar(&logLevel, "log-level", "info", "log level: trace|debug|info|warn|error")
	flag.StringVar(&metricsAddr, "metrics-addr", "", "address to serve Prometheus /metrics on (empty disables)")
	flag.StringVar(&graphiteAddr, "graphite-addr", "", "host:port of a Graphite carbon receiver (empty disables)")
	flag.Parse()

	logger, err := kvsdlog.Init(logLevel, "kvsd-server")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	name := engine.Name(engineName)
	if name != engine.Builtin && name != engine.LevelDB {
		logger.Fatalf("%v: invalid engine %q, want %q or %q", engine.ErrBadArgument, engineName, engine.Builtin, engine.LevelDB)
	}

	if err := server.EnsureEngineMarker(dir, name); err != nil {
		logger.Fatalf("%v", err)
	}

	eng, err := openEngine(name, dir)
	if err != nil {
		logger.Fatalf("opening engine: %v", err)
	}
	defer eng.Close()

	p, err := pool.New(threads, logger)
	if err != nil {
		logger.Fatalf("creating worker pool: %v", err)
	}

	if graphiteAddr != "" {
		go reportToGraphite(graphiteAddr)
	}

	if metricsAddr != "" {
		go bridgeGoMetrics(5 * time.Second)
		go func() {
			http.Handle("/metrics", promhttp.Handler())
			if err := http.ListenAndServe(metricsAddr, nil); err != nil {
				logger.Errorf("metrics endpoint stopped: %v", err)
			}
		}()
	}

	srv := server.New(addr, eng, p, logger)
	if err := srv.Listen(); err != nil {
		logger.Fatalf("binding %s: %v", addr, err)
	}
	logger.Infof("kvsd-server listening on %s (engine=%s, threads=%d)", srv.Addr(), name, threads)

	if err := srv.Accept(); err != nil {
		logger.Fatalf("accept loop: %v", err)
	}
}

func openEngine(name engine.Name, dir string) (engine.Engine, error) {
	switch name {
	case engine.Builtin:
		return engine.Open(dir)
	case engine.LevelDB:
		return engine.OpenLevelDB(dir)
	default:
		return nil, fmt.Errorf("invalid engine %q", name)
	}
}

// reportToGraphite periodically pushes the process-wide go-metrics
// registry to a Graphite carbon receiver.
func reportToGraphite(addr string) {
	tcpAddr, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return
	}
	graphite.Graphite(metrics.DefaultRegistry, 10*time.Second, "kvsd", tcpAddr)
}
