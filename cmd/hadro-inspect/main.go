package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"sort"
	"time"

	"github.com/hadro-db/hadro/pkg/sstable"
)

func main() {
	dump := flag.Bool("dump", false, "Print every key in the segment")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "Usage: hadro-inspect [-dump] <segment.hadro>\n")
		os.Exit(2)
	}
	path := flag.Arg(0)

	r, err := sstable.OpenFile(path)
	if err != nil {
		log.Fatalf("Failed to open segment: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		log.Fatalf("Failed to stat segment: %v", err)
	}

	fmt.Printf("Segment: %s\n", path)
	fmt.Printf("  Size:       %d bytes\n", info.Size())
	fmt.Printf("  Entries:    %d\n", r.EntryCount())
	fmt.Printf("  Created:    %s\n", time.Unix(0, r.CreatedAtNanos()).Format(time.RFC3339))

	bits, hashes := r.FilterStats()
	fmt.Printf("  Bloom:      %d bits, %d hash functions\n", bits, hashes)

	meta := r.MetaFields()
	if len(meta) > 0 {
		fmt.Printf("  Metadata:\n")
		names := make([]string, 0, len(meta))
		for k := range meta {
			names = append(names, k)
		}
		sort.Strings(names)
		for _, k := range names {
			fmt.Printf("    %s: %s\n", k, meta[k])
		}
	}

	if *dump {
		fmt.Printf("  Keys:\n")
		for _, e := range r.All() {
			fmt.Printf("    %s (%d byte payload)\n", e.Key, len(e.Payload))
		}
	}
}
