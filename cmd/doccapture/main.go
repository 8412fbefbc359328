package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/ayusman/doccapture/internal/app"
	"github.com/ayusman/doccapture/internal/config"
	"github.com/ayusman/doccapture/internal/logger"
	"github.com/ayusman/doccapture/internal/metrics"
	"github.com/ayusman/doccapture/internal/server"
	"github.com/ayusman/doccapture/internal/store"
	"github.com/ayusman/doccapture/internal/tray"
)

func main() {
	configPath := flag.String("config", "doccapture.yaml", "path to the YAML configuration file")
	useTray := flag.Bool("tray", false, "show a system tray menu")
	addr := flag.String("addr", "", "listen address (overrides the config file)")
	device := flag.String("device", "", "camera device index or path (overrides the config file)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "doccapture: %v\n", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	if *device != "" {
		cfg.Camera.Device = *device
	}
	if *useTray {
		cfg.Tray = true
	}

	if err := logger.Init(cfg.Log.Level, cfg.Log.Development); err != nil {
		fmt.Fprintf(os.Stderr, "doccapture: init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg); err != nil {
		logger.L().Error("doccapture exited", zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	log := logger.Named("main")

	if dir := filepath.Dir(cfg.Store.Path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create data directory: %w", err)
		}
	}
	st, err := store.New(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	go m.StartProcessMonitor(ctx, 5*time.Second)

	a := app.New(app.Config{Settings: cfg, Store: st, Metrics: m})
	defer a.Close()

	if err := a.DiscoverPlugins(); err != nil {
		log.Warn("plugin discovery failed", zap.Error(err))
	}

	// The UI still serves without a camera; device selection can start one.
	if err := a.Start(); err != nil {
		log.Warn("camera unavailable", zap.Error(err))
	}

	webDir := findWebDir(cfg.Server.StaticDir)
	if webDir != "" {
		log.Info("serving static files", zap.String("dir", webDir))
	}
	srv := server.New(server.Config{StaticDir: webDir, App: a})

	if !cfg.Tray {
		return serve(ctx, srv, cfg.Server.Addr)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- serve(ctx, srv, cfg.Server.Addr)
	}()

	t := tray.New()
	t.SetStatusSource(a.State)
	t.OnToggle(a.SetEnabled)
	t.OnCapture(func() string {
		res, err := a.Capture(0)
		switch {
		case err != nil:
			log.Warn("tray capture failed", zap.Error(err))
			return "capture failed"
		case res.Document != nil:
			return fmt.Sprintf("%dx%d %s", res.Document.Width, res.Document.Height, res.Document.Mode)
		default:
			openBrowser(pageURL(cfg.Server.Addr) + "/#crop/" + res.Session.ID())
			return "manual crop"
		}
	})
	t.OnOpen(func() { openBrowser(pageURL(cfg.Server.Addr)) })
	t.OnQuit(stop)

	go func() {
		<-ctx.Done()
		t.Quit()
	}()
	t.Run()

	stop()
	return <-errCh
}

func serve(ctx context.Context, srv *server.Server, addr string) error {
	err := srv.Run(ctx, addr)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// findWebDir returns dir if it exists, else the first of "web", "../web" and
// "../../web" that does, else "".
func findWebDir(dir string) string {
	candidates := []string{dir, "web", "../web", "../../web"}
	for _, p := range candidates {
		if p == "" {
			continue
		}
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			if abs, err := filepath.Abs(p); err == nil {
				return abs
			}
			return p
		}
	}
	return ""
}

func pageURL(addr string) string {
	if strings.HasPrefix(addr, ":") {
		addr = "127.0.0.1" + addr
	}
	return "http://" + addr
}

func openBrowser(url string) {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	if err := cmd.Start(); err != nil {
		logger.L().Warn("failed to open browser", zap.String("url", url), zap.Error(err))
		return
	}
	go cmd.Wait()
}
