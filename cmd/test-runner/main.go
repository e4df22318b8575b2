// Package main - test_runner.go
// Executable to run the economy soak scenarios.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/MRamiBalles/Basecaster/internal/platform/logger"
	"github.com/MRamiBalles/Basecaster/test"
)

func main() {
	steps := flag.Int("steps", 200000, "Operations per scenario")
	seed := flag.Int64("seed", time.Now().UnixNano(), "Random seed")
	flag.Parse()

	fmt.Println("BASECASTER - ECONOMY SOAK SUITE")
	fmt.Println(strings.Repeat("=", 60))
	fmt.Printf("steps=%d seed=%d\n", *steps, *seed)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	results := test.NewEconomySoak(*steps, *seed, logger.NewLogger()).Run(ctx)

	passed, failed := 0, 0
	for _, r := range results {
		if r.Passed {
			passed++
		} else {
			failed++
		}
	}

	fmt.Println("\n" + strings.Repeat("=", 60))
	fmt.Print(test.Summary(results))
	fmt.Println(strings.Repeat("=", 60))
	fmt.Printf("passed: %d  failed: %d\n", passed, failed)

	if failed > 0 {
		fmt.Printf("re-run with -seed=%d to reproduce\n", *seed)
		os.Exit(1)
	}
}
