// Command authcore exercises the authentication core against Redis: concurrent
// load tests that check the device-limit and rate-limit invariants, lock
// administration, a login demo backed by bcrypt credentials and a posture report.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "authcore",
		Short:         "Login, device-limit and rate-limit tooling for authcore",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(newLoadtestCommand())
	cmd.AddCommand(newLockCommand())
	cmd.AddCommand(newLoginCommand())
	cmd.AddCommand(newReportCommand())
	return cmd
}
