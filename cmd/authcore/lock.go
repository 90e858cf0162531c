package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newLockCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lock",
		Short: "Inspect and clear login lockouts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "status <identifier>",
		Short: "Show failed attempts and lock expiry of an identifier",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			rt, err := openRuntime(ctx, runtimeOptions{out: cmd.ErrOrStderr()})
			if err != nil {
				return err
			}
			defer rt.Close()

			st, err := rt.engine.LockState(ctx, args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			now := time.Now()
			if st.Locked(now) {
				fmt.Fprintf(out, "%s: locked, attempts=%d, unlocks in %s\n",
					args[0], st.AttemptCount, st.RetryAfter(now).Round(time.Second))
				return nil
			}
			fmt.Fprintf(out, "%s: unlocked, attempts=%d\n", args[0], st.AttemptCount)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "unlock <identifier>",
		Short: "Clear the failure count and any lock of an identifier",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			rt, err := openRuntime(ctx, runtimeOptions{out: cmd.ErrOrStderr()})
			if err != nil {
				return err
			}
			defer rt.Close()

			if err := rt.engine.UnlockIdentifier(ctx, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: unlocked\n", args[0])
			return nil
		},
	})
	return cmd
}
