package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var enrollName string

var enrollCmd = &cobra.Command{
	Use:   "enroll <file.wav | ->",
	Short: "Enroll the speaker from a 16 kHz WAV recording",
	Long: `Build the speaker profile from a WAV recording without starting the
server. The recording must be 16 kHz; only the first channel is used.
Pass - to read the recording from stdin.

Enrolling replaces the previous profile and clears long-term memory.

Examples:
  talkbuddy enroll --name Ana recordings/ana.wav
  arecord -f S16_LE -r 16000 -d 20 -t wav | talkbuddy enroll -`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		return runEnroll(ctx, cmd.InOrStdin(), args[0])
	},
}

func init() {
	enrollCmd.Flags().StringVar(&enrollName, "name", "", "display name of the speaker")
}

func runEnroll(ctx context.Context, stdin io.Reader, path string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	slog.SetDefault(newLogger(cfg.Server.LogLevel))

	src, filename := stdin, "stdin.wav"
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		src, filename = f, filepath.Base(path)
	}

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = a.Shutdown(context.WithoutCancel(ctx)) }()

	res, err := a.Enroller().Enroll(ctx, enrollName, filename, src)
	if err != nil {
		return fmt.Errorf("enroll %s: %w", filename, err)
	}
	who := res.Name
	if who == "" {
		who = "speaker"
	}
	seconds := float64(res.Samples) / float64(cfg.Audio.SampleRate)
	fmt.Fprintf(cmdOut(), "%s enrolled %s %s\n", styles.ok.Render("✓"), who,
		styles.dim.Render(fmt.Sprintf("(%.1fs of audio in %d chunks)", seconds, res.Chunks)))
	return nil
}
