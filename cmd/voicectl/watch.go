package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/axmen-recycling/voice-agent/cmd/voicectl/ui"
	"github.com/axmen-recycling/voice-agent/internal/cache"
	"github.com/axmen-recycling/voice-agent/internal/caller"
	"github.com/axmen-recycling/voice-agent/internal/monitoring"
)

func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Stream resolutions and callback requests as they happen",
		Long: `Watch subscribes to the events the API server publishes on redis and
prints each resolution and each saved callback or message. Requires the
redis cache driver.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			if a.Redis == nil {
				return errors.New("watch requires cache.driver: redis")
			}
			return watch(ctx, a.Redis)
		},
	}
}

func watch(ctx context.Context, sub cache.Subscriber) error {
	resolutions, stopRes, err := sub.Subscribe(ctx, cache.ChannelResolutions)
	if err != nil {
		return err
	}
	defer stopRes()

	callbacks, stopCb, err := sub.Subscribe(ctx, cache.ChannelCallbacks)
	if err != nil {
		return err
	}
	defer stopCb()

	if !outputJSON {
		ui.Info("Watching %s and %s (Ctrl+C to stop)", cache.ChannelResolutions, cache.ChannelCallbacks)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-resolutions:
			if !ok {
				return nil
			}
			printResolution(msg)
		case msg, ok := <-callbacks:
			if !ok {
				return nil
			}
			printCallerEvent(msg)
		}
	}
}

func printResolution(msg []byte) {
	if outputJSON {
		fmt.Println(string(msg))
		return
	}

	var ev monitoring.ResolutionEvent
	if err := json.Unmarshal(msg, &ev); err != nil {
		logger.Warn().Err(err).Msg("Unreadable resolution event")
		return
	}

	line := fmt.Sprintf("%s  %-10s %q", ev.OccurredAt.Local().Format("15:04:05"), ui.Stage(ev.Stage), ev.Query)
	if ev.Source != "" {
		line += " <- " + ev.Source
	}
	if ev.Cached {
		line += " (cached)"
	}
	line += fmt.Sprintf(" %dms", ev.LatencyMS)
	fmt.Println(line)
	if ev.Degraded {
		ui.Warning("degraded resolution for %q", ev.Query)
	}
}

func printCallerEvent(msg []byte) {
	if outputJSON {
		fmt.Println(string(msg))
		return
	}

	var ev caller.Event
	if err := json.Unmarshal(msg, &ev); err != nil {
		logger.Warn().Err(err).Msg("Unreadable caller event")
		return
	}

	name := ev.Name
	if name == "" {
		name = "Unknown"
	}
	ui.Success("%s  new %s from %s (%s): %s", ev.CreatedAt.Local().Format("15:04:05"), ev.Kind, name, ev.Phone, ev.Detail)
}
