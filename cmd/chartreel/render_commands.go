package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"chartreel/internal/api"
	"chartreel/internal/timeline"
	"chartreel/internal/tts"
)

func newRenderCommand(ctx *commandContext) *cobra.Command {
	renderCmd := &cobra.Command{
		Use:   "render",
		Short: "Start, inspect, and cancel renders on the running daemon",
	}

	renderCmd.AddCommand(newRenderStartCommand(ctx))
	renderCmd.AddCommand(newRenderStatusCommand(ctx))
	renderCmd.AddCommand(newRenderCancelCommand(ctx))
	renderCmd.AddCommand(newRenderSavePropsCommand(ctx))
	renderCmd.AddCommand(newRenderCompositionCommand(ctx))

	return renderCmd
}

func newRenderStartCommand(ctx *commandContext) *cobra.Command {
	var follow bool
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start a render of the saved timeline",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				resp, err := client.Start(cmd.Context())
				if err != nil {
					var statusErr *api.StatusError
					if errors.As(err, &statusErr) && statusErr.Code == 409 {
						return errors.New("a render is already in progress; check `chartreel render status`")
					}
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Render started (job %s)\n", resp.JobID)
				if !follow {
					return nil
				}
				return followRender(cmd.Context(), cmd.OutOrStdout(), client, resp.JobID, interval)
			})
		},
	}

	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Poll until the render finishes")
	cmd.Flags().DurationVar(&interval, "interval", time.Second, "Polling interval for --follow")
	return cmd
}

func newRenderStatusCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the current render status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				status, err := client.Status(cmd.Context())
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, status)
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderKeyValues(renderStatusPairs(status)))
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func newRenderCancelCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel",
		Short: "Cancel the running render",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				resp, err := client.Cancel(cmd.Context())
				if err != nil {
					var statusErr *api.StatusError
					if errors.As(err, &statusErr) && statusErr.Code == 409 {
						fmt.Fprintln(cmd.OutOrStdout(), "No render in progress")
						return nil
					}
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Cancelling render %s\n", resp.JobID)
				return nil
			})
		},
	}
}

func newRenderSavePropsCommand(ctx *commandContext) *cobra.Command {
	var (
		narration string
		lang      string
		speed     float64
	)

	cmd := &cobra.Command{
		Use:   "save-props <file|->",
		Short: "Upload a timeline document to the daemon",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}
			if !json.Valid(data) {
				return fmt.Errorf("%s is not valid JSON", args[0])
			}
			if narration != "" {
				data, err = withNarration(ctx, data, narration, lang, speed)
				if err != nil {
					return err
				}
			}
			return ctx.withClient(func(client *api.Client) error {
				resp, err := client.SaveProps(cmd.Context(), data)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), resp.Message)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&narration, "narration", "", "Replace the narration segments with this text file, chunked for the TTS proxy")
	cmd.Flags().StringVar(&lang, "lang", "", "Narration language (defaults to tts.default_language)")
	cmd.Flags().Float64Var(&speed, "speed", 1, "Narration playback speed")
	return cmd
}

// withNarration rebuilds the document's audio segments from a narration file.
func withNarration(ctx *commandContext, data []byte, path, lang string, speed float64) ([]byte, error) {
	if speed <= 0 {
		return nil, fmt.Errorf("--speed must be positive, got %v", speed)
	}
	text, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read narration: %w", err)
	}
	if strings.TrimSpace(string(text)) == "" {
		return nil, fmt.Errorf("narration file %s is empty", path)
	}
	fallback := "en"
	if cfg, err := ctx.ensureConfig(); err == nil && cfg.TTS.DefaultLanguage != "" {
		fallback = cfg.TTS.DefaultLanguage
	}
	props, err := timeline.Decode(data)
	if err != nil {
		return nil, err
	}
	props.AudioURLs = timeline.NarrationSegments(string(text), tts.NormalizeLanguage(lang, fallback), speed)
	props.TTSSpeed = speed
	return json.Marshal(props)
}

func newRenderCompositionCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "composition",
		Short: "Show the composition the saved timeline resolves to",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				resp, err := client.Composition(cmd.Context())
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, resp.Composition)
				}
				comp := resp.Composition
				scenes := 0
				for _, track := range comp.Props.Tracks {
					scenes += len(track.Scenes)
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderKeyValues([][2]string{
					{"Composition", comp.ID},
					{"Resolution", fmt.Sprintf("%dx%d @ %dfps", comp.Width, comp.Height, comp.FPS)},
					{"Codec", comp.Codec},
					{"Duration", fmt.Sprintf("%d frames (%.2fs)", comp.DurationInFrames, comp.DurationSeconds)},
					{"Track frames", strconv.Itoa(comp.TrackFrames)},
					{"Audio frames", strconv.Itoa(comp.AudioFrames)},
					{"Tracks", strconv.Itoa(len(comp.Props.Tracks))},
					{"Scenes", strconv.Itoa(scenes)},
					{"Narration segments", strconv.Itoa(len(comp.Props.AudioURLs))},
				}))
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func renderStatusPairs(status api.RenderStatus) [][2]string {
	pairs := [][2]string{
		{"Status", statusText(status.Status)},
		{"Progress", fmt.Sprintf("%d%%", status.Progress)},
	}
	if status.JobID != "" {
		pairs = append(pairs, [2]string{"Job", status.JobID})
	}
	if status.Phase != "" {
		pairs = append(pairs, [2]string{"Phase", status.Phase})
	}
	if status.TotalFrames > 0 {
		pairs = append(pairs, [2]string{"Frames", fmt.Sprintf("%d/%d", status.Frames, status.TotalFrames)})
	}
	if status.Error != "" {
		pairs = append(pairs, [2]string{"Error", status.Error})
	}
	if n := len(status.Diagnostics); n > 0 {
		pairs = append(pairs, [2]string{"Last output", status.Diagnostics[n-1]})
	}
	if started := api.ParseTime(status.StartedAt); !started.IsZero() {
		pairs = append(pairs, [2]string{"Started", relativeTime(started)})
	}
	if finished := api.ParseTime(status.FinishedAt); !finished.IsZero() {
		pairs = append(pairs, [2]string{"Finished", relativeTime(finished)})
	}
	return pairs
}

// followRender polls until jobID reaches a terminal state. Terminals get a
// progress bar; pipes get one line per change.
func followRender(ctx context.Context, out io.Writer, client *api.Client, jobID string, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Second
	}
	var bar *progressbar.ProgressBar
	if isTerminalWriter(out) {
		bar = progressbar.NewOptions(100,
			progressbar.OptionSetWriter(out),
			progressbar.OptionSetDescription("starting"),
			progressbar.OptionSetWidth(40),
			progressbar.OptionSetPredictTime(false),
			progressbar.OptionShowElapsedTimeOnFinish(),
			progressbar.OptionSetRenderBlankState(true),
		)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	last := ""
	for {
		status, err := client.Status(ctx)
		if err != nil {
			return err
		}
		if status.JobID != "" && jobID != "" && status.JobID != jobID {
			return fmt.Errorf("render %s is no longer current (daemon reports job %s)", jobID, status.JobID)
		}
		phase := status.Phase
		if phase == "" {
			phase = status.Status
		}
		if bar != nil {
			bar.Describe(phase)
			_ = bar.Set(status.Progress)
		} else if line := fmt.Sprintf("%s %d%%", phase, status.Progress); line != last {
			fmt.Fprintln(out, line)
			last = line
		}

		switch status.Status {
		case "done":
			if bar != nil {
				_ = bar.Finish()
				fmt.Fprintln(out)
			}
			fmt.Fprintln(out, "Render complete")
			return nil
		case "error":
			if bar != nil {
				_ = bar.Exit()
				fmt.Fprintln(out)
			}
			msg := "unknown error"
			if strings.TrimSpace(status.Error) != "" {
				msg = status.Error
			}
			return fmt.Errorf("render failed: %s", msg)
		case "idle":
			return errors.New("no render in progress")
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func isTerminalWriter(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}
