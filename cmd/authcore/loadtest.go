package main

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	authcore "github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/plan"
	"github.com/spf13/cobra"
)

func newLoadtestCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "loadtest",
		Short: "Concurrent load against the shared store, checking invariants",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cmd.AddCommand(newLoadtestSessionsCommand())
	cmd.AddCommand(newLoadtestRateLimitCommand())
	return cmd
}

func quietRuntime(ctx context.Context, cmd *cobra.Command) (*runtime, error) {
	return openRuntime(ctx, runtimeOptions{
		out: cmd.ErrOrStderr(),
		configure: func(cfg *authcore.Config) {
			cfg.Audit.Enabled = false
			cfg.RateLimit.Enabled = false
		},
	})
}

func newLoadtestSessionsCommand() *cobra.Command {
	var (
		userID      string
		planName    string
		devices     int
		concurrency int
		rounds      int
	)

	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Admit many devices for one user at once and check the device limit holds",
		RunE: func(cmd *cobra.Command, args []string) error {
			if devices <= 0 || concurrency <= 0 || rounds <= 0 {
				return fmt.Errorf("devices, concurrency and rounds must be > 0")
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			rt, err := quietRuntime(ctx, cmd)
			if err != nil {
				return err
			}
			defer rt.Close()

			policy := rt.engine.Policy(plan.Tag(planName))
			if !policy.Managed() {
				return fmt.Errorf("plan %q has no device limit", planName)
			}

			out := cmd.OutOrStdout()
			for round := 1; round <= rounds; round++ {
				if _, err := rt.engine.RemoveAllSessions(ctx, userID); err != nil {
					return err
				}
				stats, admitted, err := runSessionRound(ctx, rt.engine, userID, policy.Tag, devices, concurrency)
				if err != nil {
					return err
				}
				active, err := rt.engine.GetUserActiveSessions(ctx, userID)
				if err != nil {
					return err
				}
				printStats(out, fmt.Sprintf("round %d", round), stats)
				fmt.Fprintf(out, "round %d: admitted=%d active=%d limit=%d\n", round, admitted, len(active), policy.MaxDevices)

				want := min(devices, policy.MaxDevices)
				if int(admitted) != want || len(active) != want {
					return fmt.Errorf("device limit violated: admitted=%d active=%d want=%d", admitted, len(active), want)
				}
			}
			fmt.Fprintln(out, "device limit held")
			return nil
		},
	}

	cmd.Flags().StringVar(&userID, "user", "loadtest-user", "User whose devices compete for slots")
	cmd.Flags().StringVar(&planName, "plan", string(plan.Famille), "Plan tag deciding the device limit")
	cmd.Flags().IntVar(&devices, "devices", 64, "Distinct devices logging in per round")
	cmd.Flags().IntVar(&concurrency, "concurrency", 32, "Concurrent workers")
	cmd.Flags().IntVar(&rounds, "rounds", 5, "Rounds to run, each starting from zero sessions")
	return cmd
}

func runSessionRound(ctx context.Context, engine *authcore.Engine, userID string, tag plan.Tag, devices, concurrency int) (phaseStats, int64, error) {
	var (
		wg       sync.WaitGroup
		cursor   int64
		admitted int64
		failures int64
		lat      latencies
		errMu    sync.Mutex
		firstErr error
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= devices {
					return
				}
				devCtx := authcore.WithDeviceID(ctx, fmt.Sprintf("device-%03d", i))
				t0 := time.Now()
				_, err := engine.AddSession(devCtx, userID, tag)
				lat.add(time.Since(t0))
				switch {
				case err == nil:
					atomic.AddInt64(&admitted, 1)
				case isDeviceLimit(err):
				default:
					atomic.AddInt64(&failures, 1)
					errMu.Lock()
					if firstErr == nil {
						firstErr = err
					}
					errMu.Unlock()
				}
			}
		}()
	}
	wg.Wait()

	return computeStats(time.Since(start), lat.samples, failures), admitted, firstErr
}

func newLoadtestRateLimitCommand() *cobra.Command {
	var (
		identifier  string
		requests    int
		maxRequests int
		window      time.Duration
		concurrency int
	)

	cmd := &cobra.Command{
		Use:   "ratelimit",
		Short: "Hammer one identifier and check no more than max requests pass per window",
		RunE: func(cmd *cobra.Command, args []string) error {
			if requests <= 0 || maxRequests <= 0 || concurrency <= 0 || window <= 0 {
				return fmt.Errorf("requests, max, concurrency and window must be > 0")
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			rt, err := quietRuntime(ctx, cmd)
			if err != nil {
				return err
			}
			defer rt.Close()

			key := fmt.Sprintf("%s:%d", identifier, time.Now().UnixNano())
			round, err := runRateRound(ctx, rt.engine, key, requests, maxRequests, window, concurrency)

			out := cmd.OutOrStdout()
			printStats(out, "ratelimit", round.stats)
			fmt.Fprintf(out, "allowed=%d denied=%d max=%d window=%s failed_open=%d\n",
				round.allowed, int64(requests)-round.allowed-round.stats.failures, maxRequests, window, round.failedOpen)
			if err != nil {
				return fmt.Errorf("%d rate checks failed: %w", round.stats.failures, err)
			}

			// Runs longer than the window may legitimately pass more.
			if round.stats.total < window && round.allowed-round.failedOpen > int64(maxRequests) {
				return fmt.Errorf("rate limit violated: %d allowed, max %d", round.allowed, maxRequests)
			}
			fmt.Fprintln(out, "rate limit held")
			return nil
		},
	}

	cmd.Flags().StringVar(&identifier, "identifier", "loadtest", "Identifier prefix; a unique suffix is added per run")
	cmd.Flags().IntVar(&requests, "requests", 1000, "Total requests")
	cmd.Flags().IntVar(&maxRequests, "max", 60, "Requests allowed per window")
	cmd.Flags().DurationVar(&window, "window", time.Minute, "Sliding window length")
	cmd.Flags().IntVar(&concurrency, "concurrency", 32, "Concurrent workers")
	return cmd
}

type rateRound struct {
	stats      phaseStats
	allowed    int64
	failedOpen int64
}

// runRateRound fires requests checks at key. Checks that return an error count as
// failures; the first error is returned.
func runRateRound(ctx context.Context, engine *authcore.Engine, key string, requests, maxRequests int, window time.Duration, concurrency int) (rateRound, error) {
	var (
		wg         sync.WaitGroup
		cursor     int64
		allowed    int64
		failedOpen int64
		failures   int64
		lat        latencies
		errMu      sync.Mutex
		firstErr   error
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= requests {
					return
				}
				t0 := time.Now()
				res, err := engine.CheckRateLimit(ctx, key, window, maxRequests)
				lat.add(time.Since(t0))
				if err != nil {
					atomic.AddInt64(&failures, 1)
					errMu.Lock()
					if firstErr == nil {
						firstErr = err
					}
					errMu.Unlock()
					continue
				}
				if res.FailedOpen {
					atomic.AddInt64(&failedOpen, 1)
				}
				if res.Allowed {
					atomic.AddInt64(&allowed, 1)
				}
			}
		}()
	}
	wg.Wait()

	return rateRound{
		stats:      computeStats(time.Since(start), lat.samples, failures),
		allowed:    allowed,
		failedOpen: failedOpen,
	}, firstErr
}

func isDeviceLimit(err error) bool {
	return errors.Is(err, authcore.ErrDeviceLimitExceeded)
}
