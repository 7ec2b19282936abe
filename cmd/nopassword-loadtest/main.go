// Command nopassword-loadtest issues login codes against a Redis-backed
// engine, then redeems every code from several racing workers and checks
// that each code is accepted exactly once.
package main

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	nopw "github.com/MrEthical07/goNoPassword"
	"github.com/MrEthical07/goNoPassword/codestore"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/pflag"
)

func main() {
	var (
		codes       = pflag.Int("codes", 20000, "number of codes to issue")
		racers      = pflag.Int("racers", 4, "concurrent redemptions per code")
		concurrency = pflag.Int("concurrency", 256, "number of concurrent workers")
		length      = pflag.Int("length", nopw.DefaultCodeLength, "code length")
		numeric     = pflag.Bool("numeric", false, "numeric codes")
		redisAddr   = pflag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		prefix      = pflag.String("prefix", "nplc-load", "code key prefix")
	)
	pflag.Parse()

	if *codes <= 0 || *racers <= 0 || *concurrency <= 0 {
		fmt.Fprintln(os.Stderr, "codes, racers, and concurrency must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var (
		cleanup func()
		client  redis.UniversalClient
	)
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		addr = mr.Addr()
		client = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{addr},
		})
		cleanup = func() {
			_ = client.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", addr)
	} else {
		client = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{addr},
		})
		cleanup = func() { _ = client.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	cfg := nopw.DefaultConfig()
	cfg.Code.Length = *length
	cfg.Code.Numeric = *numeric
	cfg.Code.Secret = []byte("loadtest")

	engine, err := nopw.New().
		WithConfig(cfg).
		WithStore(codestore.NewRedisStore(client, codestore.WithKeyPrefix(*prefix))).
		WithMetricsEnabled(true).
		Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "engine build failed: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	issued, issueStats := runIssuePhase(ctx, engine, *codes, *concurrency)
	redeemStats, wins := runRedeemPhase(ctx, engine, issued, *racers, *concurrency)

	fmt.Println("---- results ----")
	printStats("issue", issueStats)
	printStats("redeem", redeemStats)

	snap := engine.MetricsSnapshot()
	fmt.Printf("collisions=%d rejected_consumed=%d\n",
		snap.Counters[nopw.MetricCodeCollision],
		snap.Counters[nopw.MetricRedeemConsumed],
	)

	bad := 0
	for i, n := range wins {
		if n != 1 {
			bad++
			if bad <= 10 {
				fmt.Fprintf(os.Stderr, "code %d redeemed %d times\n", i, n)
			}
		}
	}
	if bad > 0 || issueStats.failures > 0 {
		fmt.Fprintf(os.Stderr, "FAIL: %d codes not redeemed exactly once, %d issue failures\n", bad, issueStats.failures)
		os.Exit(1)
	}
	fmt.Println("OK: every code redeemed exactly once")
}

func runIssuePhase(ctx context.Context, engine *nopw.Engine, n, concurrency int) ([]string, phaseStats) {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		codes     = make([]string, n)
		latencies = make([]time.Duration, 0, n)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= n {
					return
				}
				p := nopw.Principal{ID: fmt.Sprintf("p-%d", i%1000), Active: true}
				t0 := time.Now()
				code, err := engine.IssueCode(ctx, p, "/")
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				} else {
					codes[i] = code.Code
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	return codes, computeStats(time.Since(start), latencies, failures)
}

// runRedeemPhase shuffles racers copies of every code and redeems them all
// concurrently. wins[i] counts successful redemptions of codes[i].
func runRedeemPhase(ctx context.Context, engine *nopw.Engine, codes []string, racers, concurrency int) (phaseStats, []int32) {
	type attempt struct{ idx int }
	attempts := make([]attempt, 0, len(codes)*racers)
	for i := range codes {
		for r := 0; r < racers; r++ {
			attempts = append(attempts, attempt{idx: i})
		}
	}
	rand.Shuffle(len(attempts), func(i, j int) { attempts[i], attempts[j] = attempts[j], attempts[i] })

	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		wins      = make([]int32, len(codes))
		latencies = make([]time.Duration, 0, len(attempts))
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= len(attempts) {
					return
				}
				idx := attempts[i].idx
				if codes[idx] == "" {
					continue
				}
				t0 := time.Now()
				_, err := engine.Redeem(ctx, codes[idx])
				d := time.Since(t0)
				switch {
				case err == nil:
					atomic.AddInt32(&wins[idx], 1)
				case nopw.RejectionReason(err) == "already_consumed":
				default:
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures), wins
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
		return phaseStats{total: total, failures: failures}
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
	idx := (len(samples) - 1) * p / 100
	return samples[idx]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
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
