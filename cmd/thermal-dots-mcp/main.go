package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/ironsheep/thermal-dots-mcp/internal/analysis"
	"github.com/ironsheep/thermal-dots-mcp/internal/config"
	"github.com/ironsheep/thermal-dots-mcp/internal/detection"
	"github.com/ironsheep/thermal-dots-mcp/internal/logging"
	"github.com/ironsheep/thermal-dots-mcp/internal/recording"
	"github.com/ironsheep/thermal-dots-mcp/internal/report"
	"github.com/ironsheep/thermal-dots-mcp/internal/server"
	"github.com/ironsheep/thermal-dots-mcp/internal/store"
)

// Version information - set by ldflags during build
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "--version", "-v", "version":
			fmt.Printf("thermal-dots-mcp %s\n", Version)
			fmt.Printf("  Build time: %s\n", BuildTime)
			fmt.Printf("  Git commit: %s\n", GitCommit)
			return
		case "--help", "-h", "help":
			printHelp()
			return
		case "analyze":
			os.Exit(runAnalyze(os.Args[2:]))
		}
	}

	env := config.LoadEnv()
	log := logging.New(env.LogLevel)
	log.WithFields(logrus.Fields{
		"version": Version,
		"built":   BuildTime,
		"commit":  GitCommit,
	}).Debug("thermal dots MCP server starting")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	det, err := newDetector(env.Detector)
	if err != nil {
		log.WithError(err).Fatal("failed to create detector")
	}
	runs, err := openStore(env.ResultsDB, log)
	if err != nil {
		log.WithError(err).Fatal("failed to open results database")
	}
	if runs != nil {
		defer runs.Close()
	}

	srv := server.New(server.Options{
		Logger:        log,
		SettingsPath:  env.SettingsPath,
		RecordingsDir: env.RecordingsDir,
		Store:         runs,
		Detector:      det,
		Workers:       env.Workers,
	})
	if err := srv.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Fatal("server error")
	}
}

func printHelp() {
	fmt.Println("thermal-dots-mcp - MCP server for thermal dot tracking")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  thermal-dots-mcp [options]                 Run the MCP server on stdin/stdout")
	fmt.Println("  thermal-dots-mcp analyze <recording> [flags]  Run one batch analysis and print the result")
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  --version, -v    Print version information")
	fmt.Println("  --help, -h       Print this help message")
	fmt.Println()
	fmt.Println("Analyze flags:")
	fmt.Println("  --stride N       Analyze every Nth frame (default: batch_sampling_rate)")
	fmt.Println("  --html FILE      Write an HTML chart")
	fmt.Println("  --png FILE       Write a PNG chart")
	fmt.Println()
	fmt.Println("Environment variables (also read from .env):")
	fmt.Printf("  %s=debug       Log level (debug, info, warn, error)\n", config.EnvLogLevel)
	fmt.Printf("  %s=FILE           Settings file (default %s)\n", config.EnvSettings, config.DefaultSettingsPath)
	fmt.Printf("  %s=FILE         SQLite file for stored runs (unset disables)\n", config.EnvResultsDB)
	fmt.Printf("  %s=N              Batch workers (default one per CPU)\n", config.EnvWorkers)
	fmt.Printf("  %s=DIR     Base directory for relative recording paths\n", config.EnvRecordingsDir)
	fmt.Printf("  %s=opencv         Use the OpenCV detector (gocv builds only)\n", config.EnvDetector)
	fmt.Println()
	fmt.Println("This server communicates via MCP protocol over stdin/stdout.")
	fmt.Println("Configure it in your MCP client (e.g., Claude Desktop).")
}

func newDetector(name string) (detection.Detector, error) {
	switch name {
	case "", "pure":
		return detection.PureDetector{}, nil
	case "opencv":
		return detection.NewCVDetector()
	default:
		return nil, fmt.Errorf("unknown detector %q", name)
	}
}

// openStore opens the results database, or returns nil when path is empty.
func openStore(path string, log logrus.FieldLogger) (*store.Store, error) {
	if path == "" {
		return nil, nil
	}
	return store.Open(path, log)
}

// runAnalyze implements the analyze subcommand and returns the exit code.
func runAnalyze(args []string) int {
	env := config.LoadEnv()
	log := logging.New(env.LogLevel)

	fs := flag.NewFlagSet("analyze", flag.ContinueOnError)
	stride := fs.Int("stride", 0, "analyze every Nth frame")
	htmlOut := fs.String("html", "", "write an HTML chart to `file`")
	pngOut := fs.String("png", "", "write a PNG chart to `file`")

	// The recording may come before or after the flags.
	var path string
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		path, args = args[0], args[1:]
	}
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if path == "" && fs.NArg() > 0 {
		path = fs.Arg(0)
	}
	if path == "" {
		fmt.Fprintln(os.Stderr, "usage: thermal-dots-mcp analyze <recording> [--stride N] [--html FILE] [--png FILE]")
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := analyze(ctx, env, log, path, *stride, *htmlOut, *pngOut); err != nil {
		log.WithError(err).Error("analysis failed")
		return 1
	}
	return 0
}

func analyze(ctx context.Context, env config.Env, log *logrus.Logger, path string, stride int, htmlOut, pngOut string) error {
	st, err := config.Load(env.SettingsPath)
	if err != nil {
		log.WithError(err).Warn("using default settings")
	}
	src, err := recording.OpenSource(path)
	if err != nil {
		return err
	}
	defer src.Close()

	det, err := newDetector(env.Detector)
	if err != nil {
		return err
	}
	runs, err := openStore(env.ResultsDB, log)
	if err != nil {
		return err
	}
	var runStore analysis.RunStore
	if runs != nil {
		defer runs.Close()
		runStore = runs
	}

	req := analysis.Request{
		Source:       src,
		SourceName:   src.Path(),
		HasReference: st.HasReference(),
		Params:       st.DetectionParams(),
		Areas:        st.Areas(),
		Percentiles:  st.Percentiles,
		Render:       st.RenderConfig(),
		Stride:       st.BatchSamplingRate,
	}
	if stride > 0 {
		req.Stride = stride
	}

	svc := analysis.NewService(log, det, runStore, env.Workers)
	out, err := svc.RunBatch(ctx, req, func(done, total int) {
		log.WithFields(logrus.Fields{"done": done, "total": total}).Info("progress")
	})
	if err != nil {
		return err
	}
	if !out.Ran {
		return errors.New("nothing to analyze: set base_x, base_y and at least one named area in the settings file")
	}

	if htmlOut != "" {
		f, err := os.Create(htmlOut)
		if err != nil {
			return fmt.Errorf("failed to create chart: %w", err)
		}
		if err := report.RenderHTML(f, out.Result, src.Path()); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return fmt.Errorf("failed to write chart: %w", err)
		}
	}
	if pngOut != "" {
		if err := report.SavePNG(pngOut, out.Result, src.Path()); err != nil {
			return err
		}
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
