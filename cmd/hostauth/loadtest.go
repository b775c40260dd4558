package main

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/hostauth"
	"github.com/MrEthical07/hostauth/password"
	"github.com/MrEthical07/hostauth/plugin"
	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"
)

type loadtestParams struct {
	users       int
	concurrency int
	ops         int
}

func loadtestCmd() *cli.Command {
	var common commonFlags
	p := loadtestParams{users: 200, concurrency: 64, ops: 20000}
	return &cli.Command{
		Name:  "loadtest",
		Usage: "Measure session lookup and sign-in throughput against a throwaway engine",
		Flags: append(common.flags(),
			&cli.IntFlag{Name: "users", Usage: "Users to seed", Value: p.users, Destination: &p.users},
			&cli.IntFlag{Name: "concurrency", Usage: "Concurrent workers", Value: p.concurrency, Destination: &p.concurrency},
			&cli.IntFlag{Name: "ops", Usage: "Operations per phase", Value: p.ops, Destination: &p.ops},
		),
		Action: func(ctx *cli.Context) error {
			if p.users <= 0 || p.concurrency <= 0 || p.ops <= 0 {
				return fmt.Errorf("users, concurrency and ops must be > 0")
			}
			cfg, err := common.load()
			if err != nil {
				return err
			}
			if cfg.Redis.Addr == "" {
				mr, err := miniredis.Run()
				if err != nil {
					return fmt.Errorf("start miniredis: %w", err)
				}
				defer mr.Close()
				cfg.Redis.Addr = mr.Addr()
				fmt.Fprintf(ctx.App.Writer, "using miniredis at %s\n", mr.Addr())
			}
			return runLoadtest(ctx.Context, ctx.App.Writer, cfg, p, common.logger())
		},
	}
}

func runLoadtest(ctx context.Context, w io.Writer, cfg *plugin.Config, p loadtestParams, logger zerolog.Logger) error {
	// One engine, no instances, cheap hashing so seeding stays fast.
	cfg.Instances = nil
	cfg.Options.EmailAndPassword.Enabled = true
	cfg.Options.RateLimit.Enabled = false
	cfg.Options.Password = password.Config{Memory: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}

	st, err := newStack(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.Close()
	engine := st.engines.Engine

	const pw = "loadtest-password"
	emails := make([]string, p.users)
	tokens := make([]string, p.users)

	fmt.Fprintf(w, "seeding %d users...\n", p.users)
	startSeed := time.Now()
	for i := range emails {
		emails[i] = fmt.Sprintf("load-%d@example.com", i)
		res, err := engine.SignUpEmail(ctx, hostauth.SignUpRequest{Email: emails[i], Password: pw})
		if err != nil {
			return fmt.Errorf("seed user %d: %w", i, err)
		}
		tokens[i] = res.Token
	}
	fmt.Fprintf(w, "seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	lookup := runPhase(p, func(r *rand.Rand) error {
		_, err := engine.GetSession(ctx, tokens[r.Intn(len(tokens))])
		return err
	})
	signIn := runPhase(p, func(r *rand.Rand) error {
		_, err := engine.SignInEmail(ctx, hostauth.SignInRequest{Email: emails[r.Intn(len(emails))], Password: pw})
		return err
	})

	fmt.Fprintln(w, "---- results ----")
	printStats(w, "get-session", lookup)
	printStats(w, "sign-in", signIn)
	return nil
}

func runPhase(p loadtestParams, op func(r *rand.Rand) error) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, p.ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < p.concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*7919))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= p.ops {
					return
				}
				t0 := time.Now()
				err := op(r)
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures)
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	return samples[(len(samples)-1)*p/100]
}

func printStats(w io.Writer, name string, s phaseStats) {
	fmt.Fprintf(w, "%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
