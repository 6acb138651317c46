package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"gocv.io/x/gocv"

	"facetrack"
	"facetrack/debuglog"
	"facetrack/frame"
	"facetrack/record"
)

// Options holds the run command configuration
type Options struct {
	Input         string
	ConfigPath    string
	DetectorModel string
	LandmarkModel string
	Threshold     float64
	MaxFaces      int
	EnableGaze    bool
	NoLandmarks   bool
	NoPose        bool
	RecordPath    string
	StatusAddr    string
	Debug         bool
	DebugVerbose  bool
}

var runOpts Options

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Track faces in a video file or capture device",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTracking(cmd, runOpts)
	},
}

func init() {
	runCmd.Flags().StringVarP(&runOpts.Input, "input", "i", "", "Video file path or capture device id (required)")
	runCmd.Flags().StringVarP(&runOpts.ConfigPath, "config", "c", "", "JSON tracker configuration file")
	runCmd.Flags().StringVar(&runOpts.DetectorModel, "detector-model", "", "Face detection ONNX model path")
	runCmd.Flags().StringVar(&runOpts.LandmarkModel, "landmark-model", "", "68-point landmark ONNX model path")
	runCmd.Flags().Float64Var(&runOpts.Threshold, "threshold", 0.8, "Detection confidence threshold (0.0-1.0)")
	runCmd.Flags().IntVar(&runOpts.MaxFaces, "max-faces", 4, "Maximum concurrently tracked faces")
	runCmd.Flags().BoolVar(&runOpts.EnableGaze, "gaze", false, "Enable eye gaze estimation")
	runCmd.Flags().BoolVar(&runOpts.NoLandmarks, "no-landmarks", false, "Disable landmark detection (also disables pose and gaze)")
	runCmd.Flags().BoolVar(&runOpts.NoPose, "no-pose", false, "Disable head pose estimation")
	runCmd.Flags().StringVar(&runOpts.RecordPath, "record", "", "Write per-frame results to a msgpack recording file")
	runCmd.Flags().StringVar(&runOpts.StatusAddr, "status-addr", "", "Serve a JSON status endpoint on this address (e.g. :8093)")
	runCmd.Flags().BoolVar(&runOpts.Debug, "debug", false, "Enable debug logging")
	runCmd.Flags().BoolVar(&runOpts.DebugVerbose, "debug-verbose", false, "Enable verbose debug logging")
	runCmd.MarkFlagRequired("input")
}

// buildConfig merges the config file, defaults and explicit flags
func buildConfig(cmd *cobra.Command, opts Options) (facetrack.Config, error) {
	cfg := facetrack.DefaultConfig()
	if opts.ConfigPath != "" {
		var err error
		cfg, err = loadConfigFile(opts.ConfigPath)
		if err != nil {
			return cfg, err
		}
	}

	// Explicit flags win over the config file
	if opts.DetectorModel != "" {
		cfg.DetectorModelPath = opts.DetectorModel
	}
	if opts.LandmarkModel != "" {
		cfg.LandmarkModelPath = opts.LandmarkModel
	}
	if cmd.Flags().Changed("threshold") {
		cfg.ConfidenceThreshold = opts.Threshold
	}
	if cmd.Flags().Changed("max-faces") {
		cfg.MaxFaces = opts.MaxFaces
	}
	if cmd.Flags().Changed("gaze") {
		cfg.EnableGaze = opts.EnableGaze
	}
	if opts.NoLandmarks {
		cfg.EnableLandmarks = false
		cfg.EnablePose = false
		cfg.EnableGaze = false
	}
	if opts.NoPose {
		cfg.EnablePose = false
	}
	return cfg, nil
}

func runTracking(cmd *cobra.Command, opts Options) error {
	debuglog.Enable(opts.Debug)
	debuglog.EnableVerbose(opts.DebugVerbose)

	cfg, err := buildConfig(cmd, opts)
	if err != nil {
		return err
	}

	session := facetrack.NewSession()
	if err := session.Initialize(cfg); err != nil {
		return fmt.Errorf("initialize session: %w", err)
	}
	defer session.Dispose()

	capture, err := gocv.OpenVideoCapture(opts.Input)
	if err != nil {
		return fmt.Errorf("open input %s: %w", opts.Input, err)
	}
	defer capture.Close()

	var bar *progressbar.ProgressBar
	if total := int(capture.Get(gocv.VideoCaptureFrameCount)); total > 0 {
		bar = progressbar.NewOptions(total,
			progressbar.OptionSetDescription("Tracking"),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionShowCount(),
		)
	}

	var recorder *record.Writer
	if opts.RecordPath != "" {
		recorder, err = record.NewWriter(opts.RecordPath, record.Header{
			SessionID:           session.ID().String(),
			CreatedAt:           time.Now(),
			ConfidenceThreshold: cfg.ConfidenceThreshold,
			MaxFaces:            cfg.MaxFaces,
			Landmarks:           cfg.EnableLandmarks,
			Pose:                cfg.EnablePose,
			Gaze:                cfg.EnableGaze,
		})
		if err != nil {
			return err
		}
	}

	var status *statusServer
	if opts.StatusAddr != "" {
		status = newStatusServer(session, opts.StatusAddr)
		status.Start()
		defer status.Shutdown()
	}

	frames := make(chan frame.Frame)
	results, err := session.StartStreaming(frames)
	if err != nil {
		return fmt.Errorf("start streaming: %w", err)
	}

	// Ctrl-C stops the run between frames
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Fprintln(os.Stderr, "\nstopping...")
		session.StopTracking()
	}()

	go produceFrames(capture, frames)

	for res := range results {
		if bar != nil {
			bar.Add(1)
		}
		if res.Err != nil {
			debuglog.Msgf("RUN", "frame %d: %v (%s)", res.FrameIndex, res.Err, facetrack.Classify(res.Err))
		}
		if recorder != nil {
			recorder.Write(record.FromSnapshots(res.FrameIndex, res.Timestamp, res.Faces, res.Err))
		}
		if status != nil {
			status.Update(res)
		}
	}

	if recorder != nil {
		if err := recorder.Close(); err != nil {
			return err
		}
	}

	stats := session.Stats()
	fmt.Printf("\nprocessed %d frames, %d faces detected, %.1f FPS, avg %v/frame\n",
		stats.FramesProcessed, stats.FacesDetected, stats.AverageFPS, stats.AvgTotal.Round(time.Millisecond))
	if stats.DroppedResults > 0 {
		fmt.Printf("%d results dropped under backpressure\n", stats.DroppedResults)
	}
	return nil
}

// produceFrames reads capture frames, converts them to canonical RGB frames
// and closes the channel at end of input.
func produceFrames(capture *gocv.VideoCapture, frames chan<- frame.Frame) {
	defer close(frames)

	mat := gocv.NewMat()
	defer mat.Close()
	rgb := gocv.NewMat()
	defer rgb.Close()

	for capture.Read(&mat) {
		if mat.Empty() {
			continue
		}
		gocv.CvtColor(mat, &rgb, gocv.ColorBGRToRGB)
		data := rgb.ToBytes()
		frames <- frame.Frame{
			Width:     rgb.Cols(),
			Height:    rgb.Rows(),
			Format:    frame.FormatRGB24,
			Data:      data,
			Timestamp: time.Now(),
		}
	}
}
