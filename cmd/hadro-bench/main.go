package main

import (
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"time"

	"github.com/hadro-db/hadro/pkg/config"
	"github.com/hadro-db/hadro/pkg/keys"
	"github.com/hadro-db/hadro/pkg/logging"
	"github.com/hadro-db/hadro/pkg/memtable"
	"github.com/hadro-db/hadro/pkg/metrics"
	"github.com/hadro-db/hadro/pkg/store"
)

func main() {
	writes := flag.Int("writes", 100000, "Number of writes")
	reads := flag.Int("reads", 10000, "Number of point reads")
	maxRecords := flag.Int("max-records", 10000, "Buffer record ceiling")
	dataDir := flag.String("data-dir", "./data/hadro-bench", "Data directory")
	enableWAL := flag.Bool("wal", false, "Enable the write-ahead log")
	configPath := flag.String("config", "", "YAML config file (overrides the other flags)")
	flag.Parse()

	fmt.Printf("🔥 Hadro Storage Engine Benchmark\n")
	fmt.Printf("=================================\n\n")
	fmt.Printf("Configuration:\n")
	fmt.Printf("  Writes: %d\n", *writes)
	fmt.Printf("  Reads: %d\n", *reads)
	fmt.Printf("  Buffer ceiling: %d records\n", *maxRecords)
	fmt.Printf("  WAL: %v\n\n", *enableWAL)

	cfg := config.Default()
	cfg.DataDir = *dataDir
	cfg.PrimaryKey = "id"
	cfg.Columns = []string{"id", "name", "score", "updated_at"}
	cfg.MaxRecords = *maxRecords
	cfg.EnableWAL = *enableWAL
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
	}

	// Clean up old data
	os.RemoveAll(cfg.DataDir)

	reg := metrics.New()
	st, err := store.Open(cfg, store.Options{
		Logger:  logging.NewJSONLogger(os.Stderr, logging.WarnLevel),
		Metrics: reg,
	})
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}
	defer st.Close()

	fmt.Printf("📝 Benchmark 1: Sequential Writes\n")
	start := time.Now()
	for i := 0; i < *writes; i++ {
		rec := memtable.FieldMap{
			"id":         i,
			"name":       fmt.Sprintf("record-%d", i),
			"score":      i % 100,
			"updated_at": time.Now(),
		}
		if err := st.Put(rec); err != nil {
			log.Fatalf("Failed to write: %v", err)
		}
		if (i+1)%10000 == 0 {
			fmt.Printf("  Written %d records...\n", i+1)
		}
	}
	writeDur := time.Since(start)
	fmt.Printf("  ✅ %d writes in %v (%.0f ops/sec)\n", *writes, writeDur,
		float64(*writes)/writeDur.Seconds())
	fmt.Printf("  Segments on disk: %d\n\n", st.SegmentCount())

	fmt.Printf("🔍 Benchmark 2: Random Point Reads\n")
	hits := 0
	start = time.Now()
	for i := 0; i < *reads; i++ {
		key := keys.Int64(int64(rand.Intn(*writes)))
		if _, ok := st.Get(key); ok {
			hits++
		}
	}
	readDur := time.Since(start)
	fmt.Printf("  ✅ %d reads in %v (%.0f ops/sec, %d hits)\n", *reads, readDur,
		float64(*reads)/readDur.Seconds(), hits)

	fmt.Printf("\n🔍 Benchmark 3: Random Misses (Bloom short-circuit)\n")
	start = time.Now()
	for i := 0; i < *reads; i++ {
		key := keys.Int64(int64(*writes + rand.Intn(*writes)))
		st.Get(key)
	}
	missDur := time.Since(start)
	fmt.Printf("  ✅ %d misses in %v (%.0f ops/sec)\n", *reads, missDur,
		float64(*reads)/missDur.Seconds())

	fmt.Printf("\n📊 Summary\n")
	fmt.Printf("  Write throughput: %.0f ops/sec\n", float64(*writes)/writeDur.Seconds())
	fmt.Printf("  Read throughput:  %.0f ops/sec\n", float64(*reads)/readDur.Seconds())
	fmt.Printf("  Miss throughput:  %.0f ops/sec\n", float64(*reads)/missDur.Seconds())

	families, err := reg.Gatherer().Gather()
	if err == nil {
		for _, mf := range families {
			if mf.GetName() == "hadro_bloom_negatives_total" {
				for _, m := range mf.GetMetric() {
					fmt.Printf("  Bloom negatives:  %.0f\n", m.GetCounter().GetValue())
				}
			}
		}
	}
}
