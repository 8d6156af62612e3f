package main

import (
	"flag"
	"mtriage_go/common"
	"mtriage_go/config"
	"mtriage_go/engine"
	"mtriage_go/httpapi"
	"mtriage_go/logging"
	"mtriage_go/signature"
	"os"

	"github.com/getsentry/sentry-go"
	"github.com/sirupsen/logrus"
)

var (
	flConfig = flag.String("config", "", "Path to the YAML configuration file. Missing file falls back to built-in defaults.")
	flListen = flag.String("listen", "", "Listen address override. Empty uses the configured address, loopback by default.")
)

func init() {
	flag.Parse()
}

func main() {
	cfg, err := config.Load(*flConfig)
	if err != nil {
		logrus.Fatalln("config load failed: ", err)
	}
	if *flListen != "" {
		cfg.Triage.HTTP.Listen = *flListen
	}

	logger, logfd := logging.NewLogger(cfg.Triage.Logging)
	common.Logger = logger
	defer logfd.Sync()
	defer logfd.Close()

	// crash reporting is opt-in, the daemon runs offline by default
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

	logger.Infoln("Welcome to mtriage daemon!")
	logger.Infoln("Current Version: ", common.VersionStr)

	eng := engine.New(cfg)
	defer signature.RecycleYaraResources()
	caps := eng.Capabilities()
	logger.Infoln("Signature engine: ", caps.SignatureEngine)
	logger.Infoln("Sandbox backend: ", caps.Sandbox)

	srv, err := httpapi.CreateNewEchoServer(eng)
	if err != nil {
		logger.Fatalln("http server init failed: ", err)
	}
	logger.Infoln("Listening on ", cfg.Triage.HTTP.Listen)
	logger.Fatalln(srv.Start(cfg.Triage.HTTP.Listen))
}
