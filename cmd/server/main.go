package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ZanzyTHEbar/repo-analyzer/internal/config"
	"github.com/ZanzyTHEbar/repo-analyzer/internal/monitoring"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/urfave/cli/v2"
)

// @title        Repo Analyzer API
// @version      1.0
// @description  Scores public GitHub repositories with an LLM and returns a summary and improvement roadmap.
// @license.name MIT
// @BasePath     /
func main() {
	if err := newCLI().Run(os.Args); err != nil {
		slog.Error("repo-analyzer failed", "error", err)
		os.Exit(1)
	}
}

func newCLI() *cli.App {
	return &cli.App{
		Name:    "repo-analyzer",
		Usage:   "score public GitHub repositories with an LLM",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to a YAML configuration file",
				EnvVars: []string{"CONFIG_FILE"},
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "debug, info, warn or error",
				EnvVars: []string{"LOG_LEVEL"},
			},
		},
		Action: serveAction,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "run the HTTP server",
				Action: serveAction,
			},
			{
				Name:      "analyze",
				Usage:     "analyze one repository and print the result",
				ArgsUsage: "<repo-url>",
				Action:    analyzeAction,
			},
			{
				Name:   "probe",
				Usage:  "check the model provider credential and connectivity",
				Action: probeAction,
			},
		},
	}
}

// loadConfig reads configuration and builds the logger; CLI commands log to stderr
// so their table output stays clean.
func loadConfig(c *cli.Context, logOut io.Writer) (config.Config, *monitoring.Logger, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return cfg, nil, cli.Exit(err.Error(), 2)
	}
	if level := c.String("log-level"); level != "" {
		cfg.Log.Level = level
	}

	logger := monitoring.NewLogger(cfg.Log.Level, cfg.Log.Format, logOut)
	logger.Install()
	return cfg, logger, nil
}

func serveAction(c *cli.Context) error {
	cfg, logger, err := loadConfig(c, os.Stdout)
	if err != nil {
		return err
	}

	if strings.EqualFold(cfg.Log.Level, "debug") {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := newApplication(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer app.Close()

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           newRouter(app),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.Server.RequestTimeout + 5*time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("Starting server", "port", cfg.Server.Port, "model", cfg.LLM.Model, "enrichment", cfg.GitHub.Enrich)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}

	logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
		return err
	}

	logger.Info("Server exited")
	return nil
}

func analyzeAction(c *cli.Context) error {
	repoURL := c.Args().First()
	if repoURL == "" {
		return cli.Exit("usage: repo-analyzer analyze <repo-url>", 2)
	}

	cfg, logger, err := loadConfig(c, os.Stderr)
	if err != nil {
		return err
	}

	app, err := newApplication(c.Context, cfg, logger)
	if err != nil {
		return err
	}
	defer app.Close()

	ctx, cancel := context.WithTimeout(c.Context, cfg.Server.RequestTimeout)
	defer cancel()

	out := app.analyzer.Analyze(ctx, uuid.NewString(), repoURL)
	writeOutcome(c.App.Writer, out)

	if !out.OK() {
		return cli.Exit(out.Err.Error(), 1)
	}
	return nil
}

func probeAction(c *cli.Context) error {
	cfg, logger, err := loadConfig(c, os.Stderr)
	if err != nil {
		return err
	}

	app, err := newApplication(c.Context, cfg, logger)
	if err != nil {
		return err
	}
	defer app.Close()

	report := app.groq.Probe(c.Context)
	writeProbe(c.App.Writer, report)

	if !report.Success {
		return cli.Exit(report.Message, 1)
	}
	return nil
}
