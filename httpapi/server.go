package httpapi

import (
	"mtriage_go/common"
	"mtriage_go/engine"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	scansTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mtriage_scans_total",
		Help: "Scans processed, labeled by kind and verdict.",
	}, []string{"kind", "verdict"})
	scanDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mtriage_scan_duration_seconds",
		Help:    "Wall-clock scan duration.",
		Buckets: prometheus.ExponentialBuckets(0.01, 3, 10),
	}, []string{"kind"})
)

type scanFileReq struct {
	Path           string `json:"path"`
	RunSandbox     bool   `json:"run_sandbox"`
	SandboxTimeout int    `json:"sandbox_timeout_seconds"`
}

type scanURLReq struct {
	URL            string `json:"url"`
	FetchContent   bool   `json:"fetch_content"`
	RunSandbox     bool   `json:"run_sandbox"`
	SandboxTimeout int    `json:"sandbox_timeout_seconds"`
}

type statusResp struct {
	Version      string              `json:"version"`
	Capabilities common.Capabilities `json:"capabilities"`
}

// CreateNewEchoServer wires the triage engine behind a local HTTP API
// for the shell, persistence and report-writer collaborators. The
// daemon binds loopback by default, it is not an internet-facing surface.
func CreateNewEchoServer(eng *engine.Engine) (*echo.Echo, error) {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Gzip())
	e.Use(middleware.RemoveTrailingSlash())
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger())

	h := &handlers{eng: eng}
	e.GET("/status", h.status)
	e.POST("/scan/file", h.scanFile)
	e.POST("/scan/url", h.scanURL)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	return e, nil
}

type handlers struct {
	eng *engine.Engine
}

func (h *handlers) status(c echo.Context) error {
	return c.JSON(http.StatusOK, &statusResp{
		Version:      common.VersionStr,
		Capabilities: h.eng.Capabilities(),
	})
}

func (h *handlers) scanFile(c echo.Context) error {
	req := new(scanFileReq)
	if err := c.Bind(req); err != nil {
		return c.String(http.StatusBadRequest, err.Error())
	}
	if req.Path == "" {
		return c.String(http.StatusBadRequest, "path is required")
	}
	started := time.Now()
	res, err := h.eng.ScanFile(c.Request().Context(), req.Path, engine.FileScanOptions{
		RunSandbox:     req.RunSandbox,
		SandboxTimeout: time.Duration(req.SandboxTimeout) * time.Second,
	})
	if err != nil {
		return c.String(http.StatusUnprocessableEntity, err.Error())
	}
	scanDuration.WithLabelValues("file").Observe(time.Since(started).Seconds())
	scansTotal.WithLabelValues("file", res.Scoring.Verdict).Inc()
	return c.JSON(http.StatusOK, res)
}

func (h *handlers) scanURL(c echo.Context) error {
	req := new(scanURLReq)
	if err := c.Bind(req); err != nil {
		return c.String(http.StatusBadRequest, err.Error())
	}
	if req.URL == "" {
		return c.String(http.StatusBadRequest, "url is required")
	}
	started := time.Now()
	res, err := h.eng.ScanURL(c.Request().Context(), req.URL, engine.URLScanOptions{
		FetchContent:   req.FetchContent,
		RunSandbox:     req.RunSandbox,
		SandboxTimeout: time.Duration(req.SandboxTimeout) * time.Second,
	})
	if err != nil {
		return c.String(http.StatusUnprocessableEntity, err.Error())
	}
	scanDuration.WithLabelValues("url").Observe(time.Since(started).Seconds())
	scansTotal.WithLabelValues("url", res.Scoring.Verdict).Inc()
	return c.JSON(http.StatusOK, res)
}
