// Command pairtest runs the tracking pipeline on a still image and prints
// the blobs found for each marker and the selected pair.
package main

import (
	"flag"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"strings"

	"gocv.io/x/gocv"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"

	"marker-tracker/internal/compositor"
	"marker-tracker/internal/config"
	"marker-tracker/internal/params"
	"marker-tracker/internal/pipeline"
	"marker-tracker/internal/vision/cv"
)

func main() {
	imagePath := flag.String("image", "", "Path to image (PNG, JPEG, TIFF or BMP)")
	configPath := flag.String("config", config.DefaultPath, "Path to TOML configuration")
	gridPath := flag.String("grid", "", "Write the stage grid to this file")
	mirror := flag.Bool("mirror", false, "Flip the image horizontally first")
	flag.Parse()

	if *imagePath == "" {
		fmt.Println("Usage: pairtest -image <path> [-config tracker.toml] [-grid out.png] [-mirror]")
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	pair, err := cfg.MarkerPair()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load markers: %v\n", err)
		os.Exit(1)
	}

	f, err := os.Open(*imagePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open image: %v\n", err)
		os.Exit(1)
	}
	img, format, err := image.Decode(f)
	f.Close()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to decode image: %v\n", err)
		os.Exit(1)
	}

	bounds := img.Bounds()
	fmt.Printf("Loaded %s image: %dx%d pixels\n", format, bounds.Dx(), bounds.Dy())
	fmt.Printf("Markers:\n  %s\n  %s\n", pair[0], pair[1])
	fmt.Printf("Parameters: %s\n", cfg.Params)

	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to convert image: %v\n", err)
		os.Exit(1)
	}
	frame := cv.WrapMat(mat)
	defer frame.Close()

	lib := cv.NewGoCV()
	p, err := pipeline.New(lib, pair, pipeline.WithMirror(*mirror))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create pipeline: %v\n", err)
		os.Exit(1)
	}
	store, err := params.NewStore(cfg.Params)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid parameters: %v\n", err)
		os.Exit(1)
	}

	res, err := p.Process(frame, bounds.Dx(), bounds.Dy(), store)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Pipeline failed: %v\n", err)
		os.Exit(1)
	}
	defer res.Close()

	for i, blobs := range res.Blobs {
		fmt.Printf("\n%s: %d blobs\n", pair[i].Name, len(blobs))
		for _, b := range blobs {
			fmt.Printf("  %s\n", b)
		}
	}

	sel := res.Selection
	fmt.Printf("\nEvaluated %d pairs, %d above %.2f\n", sel.Evaluated, len(sel.Accepted), cfg.Params.SimilarityCap)
	fmt.Printf("%-6s %-6s %8s  %s\n", "Upper", "Lower", "Score", "Components")
	fmt.Println(strings.Repeat("-", 60))
	for _, c := range sel.Accepted {
		fmt.Printf("%-6d %-6d %8.3f  %s\n", c.Upper.Label, c.Lower.Label, c.Score.Aggregate, c.Score.Components)
	}

	if res.Position != nil {
		fmt.Printf("\nPosition: (%.1f, %.1f) score %.3f\n", res.Position.X, res.Position.Y, sel.Best.Score.Aggregate)
	} else {
		fmt.Println("\nNo pair selected")
	}

	if *gridPath != "" {
		grid, err := compositor.Render(lib, res.Stages, bounds.Dx(), bounds.Dy())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to render grid: %v\n", err)
			os.Exit(1)
		}
		defer grid.Close()
		if !gocv.IMWrite(*gridPath, grid.(*cv.Mat).Mat()) {
			fmt.Fprintf(os.Stderr, "Failed to write %s\n", *gridPath)
			os.Exit(1)
		}
		fmt.Printf("Grid written to %s (%s)\n", *gridPath, strings.Join(compositor.Names(res.Stages), ", "))
	}
}
