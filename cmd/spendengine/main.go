// Package main implements the spendengine binary: a line-delimited JSON
// bridge between a host process and one engine session. Commands arrive one
// per line on stdin, events leave one per line on stdout; diagnostics go to
// stderr so the stdout stream stays parseable.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/civiclens/spendengine/internal/config"
	"github.com/civiclens/spendengine/internal/engine"
	"github.com/civiclens/spendengine/internal/fetch"
	"github.com/civiclens/spendengine/internal/protocol"
)

var (
	version = "dev"
	commit  = "unknown"
)

// maxLineBytes bounds a single inbound command line. Filter sets are small;
// anything past this is a malformed stream.
const maxLineBytes = 4 * 1024 * 1024

func main() {
	var (
		configFile  string
		dataset     string
		showVersion bool
		showHelp    bool
	)

	flag.StringVar(&configFile, "config", "", "Path to configuration file (YAML or JSON)")
	flag.StringVar(&dataset, "dataset", "", "Dataset root URL or path to open at startup")
	flag.BoolVar(&showVersion, "version", false, "Show version information")
	flag.BoolVar(&showHelp, "help", false, "Show help message")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "spendengine - council spending data engine\n\n")
		fmt.Fprintf(os.Stderr, "Usage: spendengine [options]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  spendengine --dataset https://data.example.gov.uk/spending.json\n")
		fmt.Fprintf(os.Stderr, "  spendengine --config /etc/spendengine/config.yaml\n")
		fmt.Fprintf(os.Stderr, "\nEnvironment Variables:\n")
		fmt.Fprintf(os.Stderr, "  SPENDENGINE_DATASET        Dataset root URL or path\n")
		fmt.Fprintf(os.Stderr, "  SPENDENGINE_PAGE_SIZE      Default query page size\n")
		fmt.Fprintf(os.Stderr, "  SPENDENGINE_FETCH_TIMEOUT  Per-fetch deadline (e.g. 30s)\n")
		fmt.Fprintf(os.Stderr, "  SPENDENGINE_S3_REGION      AWS region for s3:// roots\n")
	}

	flag.Parse()

	if showHelp {
		flag.Usage()
		os.Exit(0)
	}

	if showVersion {
		fmt.Printf("spendengine version %s (commit: %s)\n", version, commit)
		os.Exit(0)
	}

	// Local overrides for development; absence is not an error.
	_ = godotenv.Load()

	cfg, err := loadConfig(configFile, dataset)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	log.SetOutput(os.Stderr)
	log.SetPrefix("[spendengine] ")

	if err := run(cfg); err != nil {
		log.Fatalf("Fatal: %v", err)
	}
}

func loadConfig(configFile, dataset string) (*config.Config, error) {
	var cfg *config.Config
	var err error

	if configFile != "" {
		cfg, err = config.LoadFromFile(configFile)
		if err != nil {
			return nil, err
		}
	} else {
		cfg = config.DefaultConfig()
	}

	config.LoadFromEnv(cfg)

	// Flags override file and environment.
	if dataset != "" {
		cfg.Dataset = dataset
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	eng := engine.New(engine.Options{
		S3: fetch.S3Config{
			Region:       cfg.S3.Region,
			Endpoint:     cfg.S3.Endpoint,
			UsePathStyle: cfg.S3.UsePathStyle,
		},
		FetchTimeout: cfg.FetchTimeout,
		EventBuffer:  cfg.EventBuffer,
	})

	engineDone := make(chan struct{})
	go func() {
		defer close(engineDone)
		eng.Run(ctx)
	}()

	// Event writer: sole owner of stdout. Exits when the engine closes its
	// event channel.
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		out := bufio.NewWriter(os.Stdout)
		for ev := range eng.Events() {
			line, err := protocol.EncodeEvent(ev)
			if err != nil {
				log.Printf("drop unencodable event: %v", err)
				continue
			}
			out.Write(line)
			out.WriteByte('\n')
			out.Flush()
		}
	}()

	// Command reader. Closing the engine after EOF lets in-flight loads
	// drain before the event channel closes.
	go func() {
		if cfg.Dataset != "" {
			if err := eng.PostCtx(ctx, protocol.Init{URL: cfg.Dataset}); err != nil {
				return
			}
		}
		sc := bufio.NewScanner(os.Stdin)
		sc.Buffer(make([]byte, 64*1024), maxLineBytes)
		for sc.Scan() {
			line := sc.Bytes()
			if len(line) == 0 {
				continue
			}
			cmd, err := protocol.DecodeCommand(line)
			if err != nil {
				log.Printf("reject command: %v", err)
				continue
			}
			if err := eng.PostCtx(ctx, cmd); err != nil {
				return
			}
		}
		if err := sc.Err(); err != nil {
			log.Printf("stdin read error: %v", err)
		}
		eng.Close()
	}()

	<-engineDone
	<-writerDone

	if st := eng.State(); st.Ready {
		log.Printf("Session closed: %d records in memory, years loaded: %v",
			st.TotalInMemory, st.LoadedYears)
	}
	if ctx.Err() != nil {
		log.Printf("Shutdown on signal")
	}
	return nil
}
