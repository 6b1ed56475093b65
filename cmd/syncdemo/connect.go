package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/curalink/syncengine"
	"github.com/curalink/syncengine/network"
	"github.com/curalink/syncengine/store"
	"github.com/curalink/syncengine/store/wsstore"
)

var (
	flagBackendURL string
	flagCollection string
)

var connectCmd = &cobra.Command{
	Use:   "connect",
	Short: "Connect to a WebSocket sync backend and tail a collection",
	Long: `Dials the given backend, opens a live query on one collection and
prints every change batch until interrupted.

Example:
  syncdemo connect --url ws://localhost:8090/sync --collection appointments`,
	RunE: runConnect,
}

func init() {
	connectCmd.Flags().StringVar(&flagBackendURL, "url", "ws://localhost:8090/sync", "backend WebSocket URL")
	connectCmd.Flags().StringVar(&flagCollection, "collection", "appointments", "collection to tail")
	_ = connectCmd.MarkFlagRequired("url")
}

func runConnect(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	client, err := wsstore.Dial(ctx, wsstore.Config{URL: flagBackendURL})
	if err != nil {
		return err
	}
	defer client.Close()

	eng, err := syncengine.New(client, network.NewManualSource(true))
	if err != nil {
		return err
	}
	defer eng.Dispose()

	eng.OnSyncError(func(op string, err error) {
		fmt.Printf(">> sync error during %s: %v\n", op, err)
	})

	subID, err := eng.SubscribeTo(ctx, flagCollection, store.Where(), func(events []store.ChangeEvent) {
		for _, ev := range events {
			fmt.Printf("<< %s %s/%s %v\n", ev.Kind, flagCollection, ev.EntityID, ev.Doc)
		}
	})
	if err != nil {
		return err
	}
	defer eng.Unsubscribe(subID)

	fmt.Printf("tailing %q on %s, ctrl-c to stop\n", flagCollection, flagBackendURL)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
	case <-ctx.Done():
	}
	return nil
}
