package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/example/trafficwatch/internal/playback"
)

var (
	playbackCmd = &cobra.Command{
		Use:   "playback",
		Short: "Step through a clip and print the annotation overlay",
		Long: `Plays a clip on a virtual clock and prints which marks are shown at every step.

Marks come from a demo sample (--sample) or a JSON file (--marks) holding
either a list of marks or a sample object with "video" and "marks".`,
		Args: cobra.NoArgs,
		RunE: runPlayback,
	}

	playbackSample   string
	playbackMarks    string
	playbackDuration float64
	playbackStep     float64
	playbackWidth    float64
	playbackHeight   float64
	playbackPNGDir   string
)

func init() {
	playbackCmd.Flags().StringVarP(&playbackSample, "sample", "s", "", "Demo sample ("+strings.Join(playback.SampleNames(), ", ")+")")
	playbackCmd.Flags().StringVarP(&playbackMarks, "marks", "m", "", "JSON file with the marks")
	playbackCmd.Flags().Float64Var(&playbackDuration, "duration", 10, "Clip length in seconds")
	playbackCmd.Flags().Float64Var(&playbackStep, "step", 0.5, "Clock step in seconds")
	playbackCmd.Flags().Float64Var(&playbackWidth, "width", 640, "Rendered video width in pixels")
	playbackCmd.Flags().Float64Var(&playbackHeight, "height", 360, "Rendered video height in pixels")
	playbackCmd.Flags().StringVar(&playbackPNGDir, "png-dir", "", "Write one overlay PNG per step into this directory")
	playbackCmd.MarkFlagsMutuallyExclusive("sample", "marks")
	playbackCmd.MarkFlagsOneRequired("sample", "marks")
}

func loadSample() (playback.Sample, error) {
	if playbackSample != "" {
		s, ok := playback.SampleFor(playbackSample)
		if !ok {
			return s, fmt.Errorf("unknown sample %q", playbackSample)
		}
		return s, nil
	}

	data, err := os.ReadFile(playbackMarks)
	if err != nil {
		return playback.Sample{}, err
	}
	s := playback.Sample{Video: playbackMarks}
	if trimmed := bytes.TrimSpace(data); len(trimmed) > 0 && trimmed[0] == '[' {
		err = json.Unmarshal(trimmed, &s.Marks)
	} else {
		err = json.Unmarshal(trimmed, &s)
	}
	if err != nil {
		return s, fmt.Errorf("failed to parse marks: %w", err)
	}
	if s.Video == "" {
		s.Video = playbackMarks
	}
	return s, nil
}

func runPlayback(cmd *cobra.Command, args []string) error {
	if !(playbackStep > 0) || !(playbackDuration > 0) {
		return fmt.Errorf("step and duration must be positive")
	}
	if playbackPNGDir != "" {
		if err := os.MkdirAll(playbackPNGDir, 0755); err != nil {
			return err
		}
	}

	sample, err := loadSample()
	if err != nil {
		return err
	}

	size := playback.Size{Width: playbackWidth, Height: playbackHeight}
	timeline := playback.NewTimeline(playbackDuration)
	player := playback.NewPlayer(timeline, size)
	defer player.Close()

	var frames []playback.Frame
	var frameErr error
	player.OnOverlay(func(f playback.Frame) {
		frames = append(frames, f)
		if playbackPNGDir != "" && frameErr == nil {
			frameErr = writeFramePNG(len(frames), f, size)
		}
	})

	if err := player.SetSource(sample.Video, sample.Marks); err != nil {
		return err
	}
	timeline.Ready()
	if err := player.Seek(0); err != nil {
		return err
	}
	if err := player.Play(); err != nil {
		return err
	}
	for timeline.Playing() {
		timeline.Advance(playbackStep)
	}
	if frameErr != nil {
		return frameErr
	}

	if outputFormat == "json" {
		return printJSON(cmd.OutOrStdout(), frames)
	}
	out := cmd.OutOrStdout()
	for _, f := range frames {
		fmt.Fprintf(out, "%s (%.2fs)  %d mark(s)\n", playback.FormatTime(f.Time), f.Time, len(f.Boxes))
		for _, b := range f.Boxes {
			fmt.Fprintf(out, "    %-14s %-40s at %.0f,%.0f %.0fx%.0f %s\n", b.Label, b.Description, b.X, b.Y, b.Width, b.Height, b.Color)
		}
	}
	return nil
}

func writeFramePNG(n int, f playback.Frame, size playback.Size) error {
	path := filepath.Join(playbackPNGDir, fmt.Sprintf("frame-%04d.png", n))
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := playback.RenderPNG(file, f.Boxes, size); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}
