// Command fastcheck runs the F.A.S.T. screening station: the camera loop,
// the local status server and the tray menu.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/ayusman/fastcheck/internal/app"
	"github.com/ayusman/fastcheck/internal/backend"
	"github.com/ayusman/fastcheck/internal/capture"
	"github.com/ayusman/fastcheck/internal/config"
	"github.com/ayusman/fastcheck/internal/detector"
	"github.com/ayusman/fastcheck/internal/logging"
	"github.com/ayusman/fastcheck/internal/screening"
	"github.com/ayusman/fastcheck/internal/server"
	"github.com/ayusman/fastcheck/internal/store"
	"github.com/ayusman/fastcheck/internal/tray"
)

func main() {
	configDir := flag.String("config", ".", "directory holding fastcheck.json and .env")
	flow := flag.String("flow", "", "screening to start right away (arm or face)")
	noTray := flag.Bool("no-tray", false, "run without the tray menu")
	flag.Parse()

	if err := run(*configDir, *flow, *noTray); err != nil {
		fmt.Fprintln(os.Stderr, "fastcheck:", err)
		os.Exit(1)
	}
}

func run(configDir, startFlow string, noTray bool) error {
	cfg, err := config.Load(configDir)
	if err != nil {
		return err
	}

	log, logCloser, err := logging.Setup(logging.Options{Level: cfg.LogLevel, Dir: cfg.LogsDir})
	if err != nil {
		return err
	}
	defer logCloser.Close()

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}
	st, err := store.New(cfg.DBPath())
	if err != nil {
		return err
	}
	defer st.Close()

	client, err := backend.New(backend.Config{
		BaseURL:     cfg.Backend.BaseURL,
		Timeout:     cfg.Backend.Timeout,
		SessionPath: cfg.Backend.SessionPath,
	}, log)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	session := app.NewSession(client, st, log)
	if err := session.Ensure(ctx, backend.Credentials{ID: cfg.Backend.User, Password: cfg.Backend.Password}); err != nil {
		log.Warn().Err(err).Msg("no backend session, log in from the status page")
	}

	det := detector.DefaultConfig(detector.ModeHands)
	det.Python = cfg.Detector.Python
	det.Script = cfg.Detector.Script
	det.MinConfidence = cfg.Detector.MinConfidence
	det.MinTrackingConf = cfg.Detector.MinTrackingConf
	if cfg.Detector.IdleTimeout > 0 {
		det.IdleTimeout = cfg.Detector.IdleTimeout
	}

	a := app.New(app.Config{
		Camera: capture.Config{
			DeviceID: cfg.Camera.DeviceID,
			Width:    cfg.Camera.Width,
			Height:   cfg.Camera.Height,
			FPS:      cfg.Camera.FPS,
		},
		Detector:    det,
		Screening:   cfg.Screening,
		HistoryKeep: cfg.History.Keep,
	}, app.Deps{Store: st, Submitter: client}, log)
	defer a.Stop()

	staticDir := cfg.Server.StaticDir
	if staticDir == "" {
		staticDir = findWebDir(configDir)
	}
	srv := server.New(server.Config{
		StaticDir: staticDir,
		Store:     st,
		App:       a,
		Auth:      session,
		ArmImages: client,
		FPS:       cfg.Camera.FPS,
		Log:       log,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe(cfg.Server.Addr)
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("server shutdown")
		}
	}()

	if startFlow != "" {
		f, err := screening.ParseFlow(startFlow)
		if err != nil {
			return err
		}
		if err := a.Start(f); err != nil {
			log.Error().Err(err).Str("flow", startFlow).Msg("failed to start screening")
		}
	}

	statusURL := "http://" + cfg.Server.Addr + "/"

	if noTray {
		select {
		case <-ctx.Done():
			log.Info().Msg("shutting down")
			return nil
		case err := <-errCh:
			return err
		}
	}

	t := tray.New()
	wireTray(t, a, statusURL, log)

	var serveErr error
	go func() {
		select {
		case <-ctx.Done():
			log.Info().Msg("shutting down")
		case serveErr = <-errCh:
		}
		t.Quit()
	}()
	t.OnQuit(stop)

	// systray needs the main goroutine on some platforms.
	t.Run()
	return serveErr
}

// wireTray connects the tray menu to the app.
func wireTray(t *tray.Tray, a *app.App, statusURL string, log zerolog.Logger) {
	t.OnStart(func(flow screening.Flow) {
		if err := a.Start(flow); err != nil {
			log.Error().Err(err).Str("flow", string(flow)).Msg("failed to start screening")
			t.SetStatus("Error: " + err.Error())
		}
	})
	t.OnStop(func() {
		a.Stop()
		t.SetStatus("Idle")
	})
	t.OnTrigger(func() {
		if err := a.Trigger(); err != nil {
			log.Warn().Err(err).Msg("manual trigger rejected")
		}
	})
	t.OnOpen(func() {
		if err := openBrowser(statusURL); err != nil {
			log.Warn().Err(err).Str("url", statusURL).Msg("failed to open browser")
		}
	})

	a.OnResult(t.SetLastResult)

	var last string
	a.OnOverlay(func(ov screening.Overlay) {
		s := statusLine(ov)
		if s != last {
			last = s
			t.SetStatus(s)
		}
	})
}

// statusLine renders an overlay as "Face: capturing".
func statusLine(ov screening.Overlay) string {
	flow := string(ov.Flow)
	if flow == "" {
		return "Idle"
	}
	return strings.ToUpper(flow[:1]) + flow[1:] + ": " + string(ov.State)
}

func openBrowser(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	return cmd.Start()
}

// findWebDir searches for the web directory next to the config directory,
// then in the working directory and its parents.
func findWebDir(configDir string) string {
	candidates := []string{filepath.Join(configDir, "web"), "web", "../web", "../../web"}
	for _, p := range candidates {
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			if abs, err := filepath.Abs(p); err == nil {
				return abs
			}
			return p
		}
	}
	return ""
}
