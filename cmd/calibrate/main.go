// Command calibrate picks the HSV range of one marker color from a live
// camera feed. Move the sliders until only the marker stays visible, then
// press q to save the range file the tracker reads.
package main

import (
	"context"
	"flag"
	"fmt"
	"image"
	"log"
	"os"
	"os/signal"

	"gocv.io/x/gocv"

	"marker-tracker/internal/app"
	"marker-tracker/internal/markers"
	"marker-tracker/internal/vision"
	"marker-tracker/internal/vision/cv"
)

// Smoothing applied before thresholding so single noisy pixels don't flicker.
const blurSize = 10

func main() {
	out := flag.String("out", "colors.csv", "Range file to read and save")
	camera := flag.Int("camera", 0, "Capture device index")
	flag.Parse()

	log.SetFlags(log.LstdFlags | log.Lshortfile)

	initial, err := markers.Load(*out)
	if err != nil {
		log.Printf("Calibrate: starting from full range: %v", err)
		initial = markers.Range{High: vision.MaxHSV}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	r, err := calibrate(ctx, *camera, initial)
	if err != nil {
		log.Fatalf("Calibrate: %v", err)
	}
	if err := markers.Save(*out, r); err != nil {
		log.Fatalf("Calibrate: %v", err)
	}
	fmt.Printf("saved %s to %s\n", r, *out)
}

func calibrate(ctx context.Context, camera int, initial markers.Range) (markers.Range, error) {
	capture, err := gocv.VideoCaptureDevice(camera)
	if err != nil {
		return initial, fmt.Errorf("open camera %d: %w", camera, err)
	}
	defer capture.Close()

	window := gocv.NewWindow("calibrate")
	defer window.Close()

	controls := app.NewRangeControls(func(name string, max int) app.Slider {
		return window.CreateTrackbar(name, max)
	}, initial)

	lib := cv.NewGoCV()
	frame := gocv.NewMat()
	defer frame.Close()
	blurred := gocv.NewMat()
	defer blurred.Close()

	current := initial
	for ctx.Err() == nil && app.KeyAction(window.WaitKey(1)) != app.ActionQuit {
		if ok := capture.Read(&frame); !ok || frame.Empty() {
			log.Println("Calibrate: can't receive frame, stopping")
			break
		}

		r, changed := controls.Range()
		if changed {
			log.Printf("Calibrate: %s", r)
		}
		if r.Validate() == nil {
			current = r
		}

		gocv.Blur(frame, &blurred, image.Pt(blurSize, blurSize))
		view, err := maskedView(lib, cv.WrapMat(frame), cv.WrapMat(blurred), current)
		if err != nil {
			return current, err
		}
		window.IMShow(view.(*cv.Mat).Mat())
		view.Close()
	}
	return current, nil
}

// maskedView keeps only the pixels of frame whose blurred HSV value lies
// in r.
func maskedView(lib vision.Library, frame, blurred vision.Image, r markers.Range) (vision.Image, error) {
	hsv, err := lib.ConvertColor(blurred, vision.BGRToHSV)
	if err != nil {
		return nil, err
	}
	defer hsv.Close()

	mask, err := lib.InRange(hsv, r.Low, r.High)
	if err != nil {
		return nil, err
	}
	defer mask.Close()

	return lib.Masked(frame, mask)
}
