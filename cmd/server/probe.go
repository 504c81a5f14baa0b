package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"visionengine/internal/app"
	"visionengine/internal/dto"
	"visionengine/internal/logger"
	"visionengine/internal/service/capture"
	"visionengine/internal/stream"
)

func newProbeCommand() *cobra.Command {
	var (
		frames      int
		videoPath   string
		deviceIndex int
		maxFPS      float64
	)

	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Run detection on a few frames of the camera or a video file and print the results",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()
			log := logger.New(os.Stderr, cfg.LogLevel)

			pool, err := app.NewInferencePool(cfg, log)
			if err != nil {
				return err
			}
			defer pool.Stop()

			engine := stream.NewEngine(capture.NewOpener(log), pool, nil, nil, nil, log, cfg.VideoFallbackFPS)

			var session *stream.Session
			if videoPath != "" {
				session, err = engine.OpenVideo(videoPath, stream.Options{})
			} else {
				if !cmd.Flags().Changed("device") {
					deviceIndex = cfg.CameraDeviceIndex
				}
				desc := stream.ParseCameraSource(cfg.CameraSource, deviceIndex)
				session, err = engine.OpenWebcam(desc, stream.Options{MaxFPS: maxFPS, DeviceIndex: deviceIndex})
			}
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			ctx, cancel := context.WithCancel(ctx)
			defer cancel()

			seen := 0
			return session.Run(ctx, func(v any) error {
				switch msg := v.(type) {
				case *dto.FrameEvent:
					printEvent(msg)
					if seen++; frames > 0 && seen >= frames {
						cancel()
					}
				case dto.StreamEnd:
					if msg.Error != "" {
						color.New(color.FgRed).Printf("stream failed: %s\n", msg.Error)
					} else {
						color.New(color.Faint).Println("end of stream")
					}
				}
				return nil
			})
		},
	}

	cmd.Flags().IntVarP(&frames, "frames", "n", 10, "Number of frames to process, 0 for all")
	cmd.Flags().StringVar(&videoPath, "video", "", "Video file to probe instead of the camera")
	cmd.Flags().IntVar(&deviceIndex, "device", 0, "Camera device index (default CAMERA_DEVICE_INDEX)")
	cmd.Flags().Float64Var(&maxFPS, "max-fps", stream.MaxWebcamFPS, "Camera rate cap")
	return cmd
}

func printEvent(event *dto.FrameEvent) {
	if len(event.Detections) == 0 {
		fmt.Printf("%8.3fs  %s\n", event.T, color.New(color.FgGreen).Sprint("clear"))
		return
	}
	for _, d := range event.Detections {
		fmt.Printf("%8.3fs  %s %.3f %v\n", event.T, color.New(color.FgRed, color.Bold).Sprint(d.Class), d.Confidence, d.BBox)
	}
}
