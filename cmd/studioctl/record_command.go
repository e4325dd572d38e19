package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/aura-webinar/videocreator/internal/bootstrap"
	"github.com/aura-webinar/videocreator/internal/events"
	"github.com/aura-webinar/videocreator/internal/session"
	"github.com/aura-webinar/videocreator/internal/studio"
)

type recordOptions struct {
	duration  time.Duration
	template  string
	preset    string
	countdown int
	encoder   string
}

func newRecordCommand(ctx *commandContext) *cobra.Command {
	var opts recordOptions
	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record one video from the configured camera and save it",
		Long: "Record one video from the configured camera and save it.\n\n" +
			"Recording ends when the duration elapses or on Ctrl-C, after which\n" +
			"the video is saved to the data directory.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := ctx.open()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("encoder") {
				env.cfg.Recording.Encoder = strings.ToLower(opts.encoder)
			}
			if cmd.Flags().Changed("countdown") {
				env.cfg.Recording.Countdown = opts.countdown
			}
			if err := env.cfg.Validate(); err != nil {
				return err
			}

			cfg := bootstrap.StudioConfig(env.cfg, env.gateway, events.Nop{}, env.logger)
			cfg.UserID = env.userID
			return runRecord(cmd.Context(), cmd.ErrOrStderr(), cmd.OutOrStdout(), cfg, opts)
		},
	}

	cmd.Flags().DurationVar(&opts.duration, "duration", 0, "Recording length (default from RECORDING_DEFAULT_DURATION_SEC)")
	cmd.Flags().StringVar(&opts.template, "template", "", "Template to apply before recording (PROFESSIONAL, CREATIVE, MODERN)")
	cmd.Flags().StringVar(&opts.preset, "preset", "", "TOML or YAML preset file with session settings")
	cmd.Flags().IntVar(&opts.countdown, "countdown", 0, "Countdown seconds before recording, 0 to start immediately")
	cmd.Flags().StringVar(&opts.encoder, "encoder", "", "Encoder to use (ffmpeg or mjpeg)")
	return cmd
}

func runRecord(parent context.Context, status, out io.Writer, cfg studio.Config, opts recordOptions) error {
	sigCtx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := studio.Open(parent, cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	if opts.preset != "" {
		p, err := session.LoadPreset(opts.preset)
		if err != nil {
			return err
		}
		if err := s.ApplyPreset(p); err != nil {
			return err
		}
	}
	if opts.template != "" {
		if err := s.ApplyTemplate(strings.ToUpper(opts.template)); err != nil {
			return err
		}
	}

	if err := s.StartRecording(opts.duration); err != nil {
		return err
	}

	interrupted := sigCtx.Done()
	for {
		select {
		case <-interrupted:
			interrupted = nil
			fmt.Fprintln(status, "\nstopping")
			if err := s.StopRecording(); err != nil {
				return err
			}
		case ev, ok := <-s.Events():
			if !ok {
				return studio.ErrClosed
			}
			done, err := reportEvent(status, out, ev)
			if done || err != nil {
				return err
			}
		}
	}
}

// reportEvent prints ev and reports whether the recording is finished.
func reportEvent(status, out io.Writer, ev studio.Event) (bool, error) {
	switch ev.Type {
	case studio.EventCountdown:
		fmt.Fprintf(status, "starting in %d\n", ev.Remaining)
	case studio.EventStateChanged:
		fmt.Fprintf(status, "%s -> %s\n", ev.From, ev.State)
	case studio.EventUploadProgress:
		fmt.Fprintf(status, "\rsaving %3d%%", ev.Percent)
		if ev.Percent >= 100 {
			fmt.Fprintln(status)
		}
	case studio.EventVideoSaved:
		v := ev.Video
		if v == nil {
			return true, nil
		}
		fmt.Fprintf(out, "Saved %s (%s, %s, %s)\n", v.ID, formatDurationMs(v.DurationMs), humanize.IBytes(uint64(v.SizeBytes)), v.TemplateName)
		return true, nil
	case studio.EventError:
		return true, errors.New(ev.Error)
	}
	return false, nil
}
