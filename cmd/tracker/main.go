// Command tracker follows a pair of colored markers in a live camera feed
// and shows every processing stage in a debug window.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"marker-tracker/internal/app"
	"marker-tracker/internal/config"
	"marker-tracker/internal/version"
	"marker-tracker/internal/vision/cv"
)

const appTitle = "Marker Tracker"

func main() {
	configPath := flag.String("config", config.DefaultPath, "Path to TOML configuration")
	camera := flag.Int("camera", -1, "Capture device index (overrides config)")
	verbose := flag.Bool("verbose", false, "Log blob counts and selections for every frame")
	noMirror := flag.Bool("no-mirror", false, "Do not flip frames horizontally")
	flag.Parse()

	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Printf("Starting %s %s", appTitle, version.String())

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Config: %v", err)
	}
	if *camera >= 0 {
		cfg.Camera = *camera
	}
	if *verbose {
		cfg.Verbose = true
	}
	if *noMirror {
		cfg.Mirror = false
	}

	lib := cv.NewGoCV()
	state, err := app.NewState(cfg, lib)
	if err != nil {
		log.Fatalf("Startup: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx, state, lib); err != nil {
		log.Printf("Tracker: %v", err)
		stop()
		os.Exit(1)
	}
}
