package cmd

import (
	"fmt"
	"io"
	"math/rand"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/procuregov/authcore"
	"github.com/procuregov/authcore/internal/config"
	"github.com/procuregov/authcore/session"
	"github.com/spf13/cobra"
)

var (
	loadSessions    int
	loadConcurrency int
	loadOps         int
	loadRedisAddr   string
)

var loadtestCmd = &cobra.Command{
	Use:   "loadtest",
	Short: "Measure authenticate, rate limit and refresh throughput against Redis",
	Long: `loadtest logs in a pool of sessions, then drives Authenticate, TryAcquire
and Refresh concurrently and prints latency percentiles. Without
--redis-addr it runs against an in-process miniredis.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if loadSessions <= 0 || loadConcurrency <= 0 || loadOps <= 0 {
			return fmt.Errorf("sessions, concurrency and ops must be > 0")
		}
		out := cmd.OutOrStdout()
		ctx := cmd.Context()

		cfg := config.Config{RedisAddrs: []string{loadRedisAddr}}
		rdb, cleanup, err := newRedis(cfg, loadRedisAddr == "")
		if err != nil {
			return err
		}
		defer cleanup()

		engineCfg := authcore.DefaultConfig()
		engineCfg.JWT.AccessSecret = []byte("loadtest-access-secret-0123456789abcdef")
		engineCfg.JWT.RefreshSecret = []byte("loadtest-refresh-secret-0123456789abcdef")
		engineCfg.Password.Memory = 8 * 1024
		engineCfg.Password.Time = 1
		engineCfg.Password.Parallelism = 1
		engineCfg.LoginGuard.Enabled = false
		engineCfg.Device.Enabled = false
		engineCfg.Backend.Timeout = 2 * time.Second

		principals := authcore.NewMemoryPrincipalStore()
		engine, err := authcore.New().
			WithConfig(engineCfg).
			WithRedis(rdb).
			WithPrincipalStore(principals).
			WithRecordStore(session.NewMemoryRecords()).
			Build()
		if err != nil {
			return err
		}
		defer engine.Close()

		hash, err := engine.HashPassword("loadtest-password")
		if err != nil {
			return err
		}
		principals.Put(authcore.Principal{
			ID:           "loadtest",
			Email:        "loadtest@procure.example",
			Role:         authcore.RoleSupplier,
			Status:       authcore.StatusActive,
			PasswordHash: hash,
		})

		fmt.Fprintf(out, "logging in %d sessions...\n", loadSessions)
		start := time.Now()
		pool := make([]*authcore.LoginResult, loadSessions)
		for i := range pool {
			res, err := engine.Login(ctx, "loadtest@procure.example", "loadtest-password")
			if err != nil {
				return fmt.Errorf("login %d: %w", i, err)
			}
			pool[i] = res
		}
		fmt.Fprintf(out, "seeded in %s\n", time.Since(start).Round(time.Millisecond))

		authStats := runPhase(loadOps, loadConcurrency, func(r *rand.Rand, _ int) error {
			_, err := engine.Authenticate(ctx, pool[r.Intn(len(pool))].AccessToken)
			return err
		})
		rateStats := runPhase(loadOps, loadConcurrency, func(r *rand.Rand, i int) error {
			d := engine.TryAcquire(ctx, "loadtest", fmt.Sprintf("198.51.100.%d", r.Intn(250)), 1_000_000, time.Minute)
			if !d.Allowed || d.Degraded {
				return fmt.Errorf("op %d not admitted", i)
			}
			return nil
		})
		refreshStats := runPhase(loadOps, loadConcurrency, func(r *rand.Rand, _ int) error {
			_, err := engine.Refresh(ctx, pool[r.Intn(len(pool))].RefreshToken)
			return err
		})

		fmt.Fprintln(out, "---- results ----")
		printStats(out, "authenticate", authStats)
		printStats(out, "rate_limit", rateStats)
		printStats(out, "refresh", refreshStats)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(loadtestCmd)
	loadtestCmd.Flags().IntVar(&loadSessions, "sessions", 200, "Number of sessions to log in before measuring")
	loadtestCmd.Flags().IntVar(&loadConcurrency, "concurrency", 64, "Concurrent workers per phase")
	loadtestCmd.Flags().IntVar(&loadOps, "ops", 50000, "Operations per phase")
	loadtestCmd.Flags().StringVar(&loadRedisAddr, "redis-addr", "", "Redis address (default: in-process miniredis)")
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

func runPhase(ops, concurrency int, op func(r *rand.Rand, i int) error) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*7919))
			local := make([]time.Duration, 0, ops/concurrency+1)
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					break
				}
				t0 := time.Now()
				if err := op(r, i); err != nil {
					atomic.AddInt64(&failures, 1)
				}
				local = append(local, time.Since(t0))
			}
			mu.Lock()
			latencies = append(latencies, local...)
			mu.Unlock()
		}(w)
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures)
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

