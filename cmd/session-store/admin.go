package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/streamhive/mqtt-session-store/internal/session"
)

func adminContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 30*time.Second)
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List all known session ids",
	Long:  `Enumerates every session id with a best-effort scan. Order is unspecified.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := setup()
		if err != nil {
			return err
		}
		ctx, cancel := adminContext()
		defer cancel()

		ids, err := store.ListSessions(ctx)
		if err != nil {
			return err
		}
		for _, id := range ids {
			fmt.Println(id)
		}
		return nil
	},
}

var printCmd = &cobra.Command{
	Use:   "print <session-id>",
	Short: "Print the structural snapshot of one session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := setup()
		if err != nil {
			return err
		}
		ctx, cancel := adminContext()
		defer cancel()

		snap, err := store.PrintSession(ctx, args[0])
		if errors.Is(err, session.ErrNotFound) {
			fmt.Printf("session %q not found\n", args[0])
			return nil
		}
		if err != nil {
			return err
		}
		data, err := json.MarshalIndent(snap, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	},
}

var dropCmd = &cobra.Command{
	Use:   "drop <session-id>",
	Short: "Delete one session and all of its rows",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := setup()
		if err != nil {
			return err
		}
		ctx, cancel := adminContext()
		defer cancel()

		if err := store.Delete(ctx, args[0]); err != nil {
			return err
		}
		fmt.Printf("session %q deleted\n", args[0])
		return nil
	},
}
