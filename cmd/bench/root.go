// Package bench implements a throughput micro-benchmark against a single
// worker's channel, grounded on the teacher's cmd/kv perf command
// (testing.Benchmark-driven put/get/delete/mixed workloads with an
// optional CSV export), adapted from an RPC store client to pkg/client.
package bench

import (
	"encoding/csv"
	"fmt"
	"log"
	"math"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	cmdUtil "github.com/dkvbridge/dkvbridge/cmd/util"
	"github.com/dkvbridge/dkvbridge/internal/ipc"
	"github.com/dkvbridge/dkvbridge/pkg/client"
)

var (
	benchKeyPrefix  = "__bench"
	benchNumThreads = 10
	benchKeySpread  = 100
	benchLargeKB    = 100
	benchSkip       []string
)

// Cmd is the "dkvbridge bench" subcommand.
var Cmd = &cobra.Command{
	Use:     "bench",
	Short:   "Micro-benchmark a worker's channel",
	PreRunE: processConfig,
	RunE:    run,
}

func init() {
	cobra.OnInitialize(cmdUtil.InitEnv)

	key := "worker-id"
	Cmd.Flags().Uint32(key, 0, cmdUtil.WrapString("Worker id to connect to"))
	key = "db-id"
	Cmd.Flags().Uint32(key, 0, cmdUtil.WrapString("Database id"))
	key = "arena-size"
	Cmd.Flags().Int(key, ipc.DefaultArenaSize, cmdUtil.WrapString("Must match the worker's channel config"))
	key = "slot-size"
	Cmd.Flags().Int(key, ipc.DefaultSlotSize, cmdUtil.WrapString("Must match the worker's channel config"))
	key = "slot-count"
	Cmd.Flags().Int(key, ipc.DefaultSlotCount, cmdUtil.WrapString("Must match the worker's channel config"))

	key = "skip"
	Cmd.Flags().String(key, "", cmdUtil.WrapString("Comma-separated benchmarks to skip (put,get,delete,mixed)"))
	key = "threads"
	Cmd.Flags().Int(key, 10, cmdUtil.WrapString("Number of goroutines to run each benchmark with"))
	key = "keys"
	Cmd.Flags().Int(key, 100, cmdUtil.WrapString("How many distinct keys to cycle through"))
	key = "large-value-kb"
	Cmd.Flags().Int(key, 100, cmdUtil.WrapString("Size in KB of the value used by the put-large benchmark"))
	key = "csv"
	Cmd.Flags().String(key, "", cmdUtil.WrapString("Optional path to write benchmark results as CSV"))
}

func processConfig(cmd *cobra.Command, _ []string) error {
	if err := cmdUtil.BindCommandFlags(cmd); err != nil {
		return err
	}
	benchNumThreads = viper.GetInt("threads")
	benchKeySpread = viper.GetInt("keys")
	benchLargeKB = viper.GetInt("large-value-kb")
	if s := viper.GetString("skip"); s != "" {
		benchSkip = strings.Split(s, ",")
	}
	return nil
}

func run(_ *cobra.Command, _ []string) error {
	cfg := ipc.Config{
		ArenaSize: viper.GetInt("arena-size"),
		SlotSize:  viper.GetInt("slot-size"),
		SlotCount: viper.GetInt("slot-count"),
	}
	c, err := client.Connect(viper.GetUint32("worker-id"), viper.GetUint32("db-id"), cfg)
	if err != nil {
		return err
	}
	defer c.Disconnect()
	if err := c.Open("", false, 0, nil); err != nil {
		return err
	}
	defer c.Close()

	fmt.Printf("bench: threads=%d keys=%d\n\n", benchNumThreads, benchKeySpread)

	results := make(map[string]testing.BenchmarkResult)

	results["put"] = testing.Benchmark(func(b *testing.B) {
		if shouldSkip("put") {
			return
		}
		getKey, iter := keyFuncs("put")
		b.Cleanup(func() { iter(func(k string) { _, _ = c.Delete([]byte(k)) }) })
		b.SetParallelism(benchNumThreads)
		b.ResetTimer()
		b.RunParallel(func(pb *testing.PB) {
			counter := 0
			for pb.Next() {
				if err := c.Put([]byte(getKey(counter)), []byte("bench")); err != nil {
					log.Printf("(put) error: %v", err)
				}
				counter++
			}
		})
	})
	printResult("put", results["put"])

	results["put-large"] = testing.Benchmark(func(b *testing.B) {
		if shouldSkip("put-large") {
			return
		}
		value := make([]byte, benchLargeKB*1024)
		getKey, iter := keyFuncs("put-large")
		b.Cleanup(func() { iter(func(k string) { _, _ = c.Delete([]byte(k)) }) })
		b.SetParallelism(benchNumThreads)
		b.ResetTimer()
		b.RunParallel(func(pb *testing.PB) {
			counter := 0
			for pb.Next() {
				if err := c.Put([]byte(getKey(counter)), value); err != nil {
					log.Printf("(put-large) error: %v", err)
				}
				counter++
			}
		})
	})
	printResult("put-large", results["put-large"])

	results["get"] = testing.Benchmark(func(b *testing.B) {
		if shouldSkip("get") {
			return
		}
		getKey, iter := keyFuncs("get")
		iter(func(k string) { _ = c.Put([]byte(k), []byte("bench")) })
		b.Cleanup(func() { iter(func(k string) { _, _ = c.Delete([]byte(k)) }) })
		b.SetParallelism(benchNumThreads)
		b.ResetTimer()
		b.RunParallel(func(pb *testing.PB) {
			counter := 0
			for pb.Next() {
				if _, _, err := c.Get([]byte(getKey(counter))); err != nil {
					log.Printf("(get) error: %v", err)
				}
				counter++
			}
		})
	})
	printResult("get", results["get"])

	results["delete"] = testing.Benchmark(func(b *testing.B) {
		if shouldSkip("delete") {
			return
		}
		getKey, iter := keyFuncs("delete")
		iter(func(k string) { _ = c.Put([]byte(k), []byte("bench")) })
		b.SetParallelism(benchNumThreads)
		b.ResetTimer()
		b.RunParallel(func(pb *testing.PB) {
			counter := 0
			for pb.Next() {
				if _, err := c.Delete([]byte(getKey(counter))); err != nil {
					log.Printf("(delete) error: %v", err)
				}
				counter++
			}
		})
	})
	printResult("delete", results["delete"])

	results["mixed"] = testing.Benchmark(func(b *testing.B) {
		if shouldSkip("mixed") {
			return
		}
		getKey, iter := keyFuncs("mixed")
		iter(func(k string) { _ = c.Put([]byte(k), []byte("bench")) })
		b.Cleanup(func() { iter(func(k string) { _, _ = c.Delete([]byte(k)) }) })
		b.SetParallelism(benchNumThreads)
		b.ResetTimer()
		b.RunParallel(func(pb *testing.PB) {
			counter := 0
			for pb.Next() {
				key := []byte(getKey(counter))
				var err error
				switch counter % 3 {
				case 0:
					err = c.Put(key, []byte("bench"))
				case 1:
					_, _, err = c.Get(key)
				case 2:
					_, err = c.Delete(key)
				}
				if err != nil {
					log.Printf("(mixed) error: %v", err)
				}
				counter++
			}
		})
	})
	printResult("mixed", results["mixed"])

	if csvPath := viper.GetString("csv"); csvPath != "" {
		if err := writeCSV(csvPath, results); err != nil {
			return fmt.Errorf("bench: write csv: %w", err)
		}
		fmt.Printf("results written to %s\n", csvPath)
	}
	return nil
}

func shouldSkip(name string) bool {
	for _, s := range benchSkip {
		if s == name {
			return true
		}
	}
	return false
}

func keyFuncs(prefix string) (func(int) string, func(func(string))) {
	keys := make([]string, benchKeySpread)
	for i := range keys {
		keys[i] = fmt.Sprintf("%s-%s-%d", benchKeyPrefix, prefix, i)
	}
	getKey := func(i int) string { return keys[i%benchKeySpread] }
	iterate := func(fn func(string)) {
		for _, k := range keys {
			fn(k)
		}
	}
	return getKey, iterate
}

func printResult(name string, r testing.BenchmarkResult) {
	if r.NsPerOp() == 0 {
		fmt.Printf("%-14sskipped\n", name)
		return
	}
	nsPerOp := math.Max(float64(r.NsPerOp()), 1)
	opsPerSec := 1.0 / (nsPerOp / 1e9)
	fmt.Printf("%-14s%.0fns/op (%s/op)\t%.0f ops/sec\n", name, nsPerOp, time.Duration(nsPerOp), opsPerSec)
}

func writeCSV(path string, results map[string]testing.BenchmarkResult) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	if err := w.Write([]string{"test", "ns_per_op", "duration_per_op", "ops_per_sec", "skipped", "threads", "keys"}); err != nil {
		return err
	}
	for name, r := range results {
		skipped := "false"
		var nsPerOp, opsPerSec float64
		if r.NsPerOp() == 0 {
			skipped = "true"
		} else {
			nsPerOp = math.Max(float64(r.NsPerOp()), 1)
			opsPerSec = 1.0 / (nsPerOp / 1e9)
		}
		row := []string{
			name,
			fmt.Sprintf("%.0f", nsPerOp),
			time.Duration(nsPerOp).String(),
			fmt.Sprintf("%.0f", opsPerSec),
			skipped,
			strconv.Itoa(benchNumThreads),
			strconv.Itoa(benchKeySpread),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	return nil
}
