package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	authcore "github.com/MrEthical07/authcore"
	"github.com/spf13/cobra"
)

func newReportCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "report",
		Short: "Print the effective login and session protections",
		Args:  cobra.NoArgs,
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

			return printReport(cmd.OutOrStdout(), rt.engine.SecurityReport())
		},
	}
}

func printReport(w io.Writer, r authcore.SecurityReport) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if r.RateLimitingActive {
		fmt.Fprintf(tw, "rate limit\t%d requests / %s\n", r.RateMaxRequests, r.RateWindow)
	} else {
		fmt.Fprintf(tw, "rate limit\toff\n")
	}
	if r.LockoutActive {
		fmt.Fprintf(tw, "lockout\t%d failures, %s\n", r.LockoutThreshold, r.LockoutDuration)
	} else {
		fmt.Fprintf(tw, "lockout\toff\n")
	}
	for _, p := range r.Plans {
		fmt.Fprintf(tw, "plan %s\t%d device(s)\n", p.Tag, p.MaxDevices)
	}
	if r.IdleEvictionActive {
		fmt.Fprintf(tw, "idle eviction\t%s\n", r.IdleTimeout)
	}
	if r.TokensEnabled {
		fmt.Fprintf(tw, "tokens\t%s, ttl %s\n", r.SigningAlgorithm, r.TokenTTL)
	} else {
		fmt.Fprintf(tw, "tokens\toff\n")
	}
	if len(r.Permissions) > 0 {
		fmt.Fprintf(tw, "permissions\t%s\n", strings.Join(r.Permissions, ", "))
	}
	fmt.Fprintf(tw, "audit\t%t\n", r.AuditEnabled)
	fmt.Fprintf(tw, "store timeout\t%s\n", r.StoreTimeout)
	return tw.Flush()
}
