package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/buildguard/buildguard-cli/internal/async"
	"github.com/buildguard/buildguard-cli/internal/events"
)

var (
	flagWatchScenario string
	flagWatchTypes    []string
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream live backend events",
	Long: `Subscribe to the backend event channel and print events as they
arrive. Events are invalidation hints, not state: with --scenario, bursts of
scenario events are coalesced and the scenario is re-fetched once per burst.`,
	RunE: runWatch,
}

var allEventTypes = []events.Type{
	events.BuildUpdate,
	events.RepoUpdate,
	events.ScenarioUpdate,
	events.ScanUpdate,
	events.ScanError,
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	bus, err := events.Dial(ctx, eventsEndpoint(), logger)
	if err != nil {
		return err
	}
	defer bus.Close()

	types := allEventTypes
	if len(flagWatchTypes) > 0 {
		types = make([]events.Type, 0, len(flagWatchTypes))
		for _, t := range flagWatchTypes {
			types = append(types, events.Type(t))
		}
	}

	for _, t := range types {
		unsubscribe := bus.Subscribe(t, func(ev events.Event) {
			fmt.Printf("%-16s %s\n", ev.Type, ev.ResourceID)
		})
		defer unsubscribe()
	}

	// Scenario events arrive in bursts while jobs run; debounce so each burst
	// triggers a single re-fetch.
	if flagWatchScenario != "" {
		debouncer := async.NewDebouncer(async.DefaultDebounce)
		defer debouncer.Cancel()

		refetch := func(gen uint64) {
			fetchCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()

			s, err := apiClient.GetScenario(fetchCtx, flagWatchScenario)
			if err != nil {
				logger.Warn("scenario re-fetch failed", "error", err)
				return
			}
			if !debouncer.Current(gen) {
				// A newer burst superseded this fetch.
				return
			}
			fmt.Printf("scenario %s: %s (%d splits)\n", s.ID, s.Status, len(s.Splits))
		}

		unsubscribe := bus.SubscribeResource(events.ScenarioUpdate, flagWatchScenario, func(events.Event) {
			debouncer.Call(refetch)
		})
		defer unsubscribe()
	}

	fmt.Println("Watching events, Ctrl+C to stop")
	<-ctx.Done()
	return nil
}

func init() {
	watchCmd.Flags().StringVar(&flagWatchScenario, "scenario", "", "re-fetch this scenario on updates")
	watchCmd.Flags().StringSliceVar(&flagWatchTypes, "type", nil, "event types to show (default all)")

	rootCmd.AddCommand(watchCmd)
}
