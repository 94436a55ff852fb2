package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/myki-jim/RapidRAW/internal/config"
	"github.com/myki-jim/RapidRAW/internal/debug"
	"github.com/myki-jim/RapidRAW/internal/hw/gpio"
	"github.com/myki-jim/RapidRAW/internal/hw/tether"
	"github.com/myki-jim/RapidRAW/internal/hw/trigger"
	"github.com/myki-jim/RapidRAW/internal/imaging"
	"github.com/myki-jim/RapidRAW/internal/logic/capture"
	"github.com/myki-jim/RapidRAW/internal/logic/session"
	"github.com/myki-jim/RapidRAW/internal/web"
)

func main() {
	cfgPath := flag.String("config", filepath.Join("configs", "default.yaml"), "path to config file")
	addr := flag.String("addr", "", "listen address override (default from config)")
	monitor := flag.Bool("monitor", true, "start the reconnection loop at boot")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			log.Printf("config %s not found, using defaults", *cfgPath)
			cfg = config.Default()
		} else {
			log.Fatalf("load config failed: %v", err)
		}
	}
	if *addr != "" {
		cfg.Web.Addr = *addr
	}

	debug.Init(cfg.DebugLevel)
	debug.Section("Initialization")
	debug.Value("Config path", *cfgPath)
	debug.Value("Driver", cfg.Driver.Type)
	debug.Value("Capture dir", cfg.CaptureDir)

	debug.Step(1, "Initializing camera driver")
	detect, err := tether.NewDetector(cfg.Driver.Type)
	if err != nil {
		log.Fatalf("init driver failed: %v", err)
	}

	shutter, cleanup, err := newShutterFromConfig(cfg)
	if err != nil {
		log.Fatalf("init wired trigger failed: %v", err)
	}
	if cleanup != nil {
		defer cleanup()
	}

	debug.Step(2, "Starting session")
	broadcaster := web.NewBroadcaster()
	debug.SetOutput(io.MultiWriter(os.Stdout, web.BroadcastWriter(broadcaster)))

	sess := session.New(cfg, detect, broadcaster, imaging.Prober{}, shutter)
	if *monitor {
		if err := sess.StartMonitoring(ctx); err != nil {
			log.Fatalf("start monitoring failed: %v", err)
		}
	}

	debug.Step(3, "Starting web server")
	srv := web.NewServer(cfg.Web.Addr, sess, broadcaster, ctx)
	if err := srv.Run(ctx); err != nil {
		log.Fatalf("web server: %v", err)
	}
}

// newShutterFromConfig builds the optional wired remote release. Returns
// a nil Shutter when disabled, meaning USB shutter release.
func newShutterFromConfig(cfg *config.Config) (capture.Shutter, func(), error) {
	if !cfg.Trigger.Enabled {
		return nil, nil, nil
	}

	debug.Value("Mock GPIO", cfg.Trigger.MockGPIO)
	gpioDriver, err := gpio.NewDriver(cfg.Trigger.MockGPIO)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		if err := gpioDriver.Close(); err != nil {
			log.Printf("closing GPIO driver failed: %v", err)
		}
	}

	remote := trigger.NewRemote(gpioDriver, cfg.Trigger.FocusPin, cfg.Trigger.ShutterPin,
		cfg.FocusDelay(), cfg.ShutterDelay())
	return remote, cleanup, nil
}
