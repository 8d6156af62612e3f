package main

import (
	"context"
	"encoding/json"
	"flag"
	"mtriage_go/common"
	"mtriage_go/config"
	"mtriage_go/engine"
	"mtriage_go/logging"
	"mtriage_go/signature"
	"os"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/sirupsen/logrus"
)

var (
	flConfig         = flag.String("config", "", "Path to the YAML configuration file. Missing file falls back to built-in defaults.")
	flPath           = flag.String("path", "", "Path of a single file to triage.")
	flURL            = flag.String("url", "", "URL to triage instead of a file.")
	flFetch          = flag.Bool("fetch", false, "Fetch URL content for signature and IOC analysis. Shape-only analysis otherwise.")
	flSandbox        = flag.Bool("sandbox", false, "Execute the sample in the isolated sandbox and collect behavioral evidence.")
	flSandboxTimeout = flag.Int("sandboxTimeout", 0, "Sandbox execution timeout in seconds. 0 uses the configured default.")
)

func init() {
	flag.Parse()
}

func main() {
	cfg, err := config.Load(*flConfig)
	if err != nil {
		logrus.Fatalln("config load failed: ", err)
	}

	logger, logfd := logging.NewLogger(cfg.Triage.Logging)
	common.Logger = logger
	defer logfd.Sync()
	defer logfd.Close()

	// crash reporting is opt-in, the tool runs offline by default
	if dsn := os.Getenv("MTRIAGE_SENTRY_DSN"); dsn != "" {
		err := sentry.Init(sentry.ClientOptions{
			Dsn:            dsn,
			EnableTracing:  true,
			SendDefaultPII: true,
		})
		if err != nil {
			logger.Fatalf("sentry.init: %s", err)
		}
	}

	logger.Infoln("Welcome to mtriage!")
	logger.Infoln("Current Version: ", common.VersionStr)

	if (*flPath == "") == (*flURL == "") {
		logger.Fatalln("exactly one of -path or -url is required")
	}

	eng := engine.New(cfg)
	defer signature.RecycleYaraResources()

	ctx := context.Background()
	var report any
	if *flPath != "" {
		report, err = eng.ScanFile(ctx, *flPath, engine.FileScanOptions{
			RunSandbox:     *flSandbox,
			SandboxTimeout: time.Duration(*flSandboxTimeout) * time.Second,
		})
	} else {
		report, err = eng.ScanURL(ctx, *flURL, engine.URLScanOptions{
			FetchContent:   *flFetch,
			RunSandbox:     *flSandbox,
			SandboxTimeout: time.Duration(*flSandboxTimeout) * time.Second,
		})
	}
	if err != nil {
		logger.Fatalln("scan failed: ", err)
	}

	out, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		logger.Fatalln(err)
	}
	os.Stdout.Write(out)
	os.Stdout.Write([]byte("\n"))
}
