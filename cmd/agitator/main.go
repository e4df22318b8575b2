// Package main - agitator
// Load generator: N players tapping and buying over WebSocket at once.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/url"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// Config for the agitator
type Config struct {
	ServerURL      string
	NumClients     int
	ActionInterval time.Duration
	TestDuration   time.Duration
	PlayerPrefix   string
	Output         string
}

// Stats tracks performance metrics
type Stats struct {
	MessagesSent     int64
	MessagesReceived int64
	Accepted         int64
	Rejected         int64
	Throttled        int64
	Errors           int64
	Latencies        []time.Duration
	mu               sync.Mutex
}

var cardIDs = []string{"cpu_miner", "gpu_rig", "asic_farm", "base_node", "frame_validator"}

func main() {
	serverURL := flag.String("url", "ws://localhost:8080/ws", "WebSocket server URL")
	numClients := flag.Int("clients", 50, "Number of concurrent players")
	interval := flag.Duration("interval", 100*time.Millisecond, "Intent interval per player")
	duration := flag.Duration("duration", 60*time.Second, "Test duration")
	prefix := flag.String("prefix", "agitator", "Player id prefix")
	output := flag.String("out", "stress_test_results.json", "Results file")
	flag.Parse()

	config := Config{
		ServerURL:      *serverURL,
		NumClients:     *numClients,
		ActionInterval: *interval,
		TestDuration:   *duration,
		PlayerPrefix:   *prefix,
		Output:         *output,
	}

	fmt.Println("=========================================")
	fmt.Println("AGITATOR - Basecaster load test")
	fmt.Println("=========================================")
	fmt.Printf("Server:   %s\n", config.ServerURL)
	fmt.Printf("Players:  %d\n", config.NumClients)
	fmt.Printf("Interval: %v\n", config.ActionInterval)
	fmt.Printf("Duration: %v\n", config.TestDuration)
	fmt.Println("=========================================")

	ctx, cancel := context.WithTimeout(context.Background(), config.TestDuration)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt)
	go func() {
		<-sigChan
		fmt.Println("\nInterrupt received, stopping...")
		cancel()
	}()

	stats := runStressTest(ctx, config)
	printResults(stats, config)
}

func runStressTest(ctx context.Context, config Config) *Stats {
	stats := &Stats{
		Latencies: make([]time.Duration, 0, 10000),
	}

	var wg sync.WaitGroup

	fmt.Println("\nStarting players...")
	for i := 0; i < config.NumClients; i++ {
		wg.Add(1)
		go func(clientID int) {
			defer wg.Done()
			runClient(ctx, clientID, config, stats)
		}(i)

		// Stagger starts so session loads do not all land at once
		time.Sleep(10 * time.Millisecond)
	}
	fmt.Printf("All %d players started\n\n", config.NumClients)

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fmt.Printf("Progress: sent=%d recv=%d accepted=%d rejected=%d throttled=%d errors=%d\n",
					atomic.LoadInt64(&stats.MessagesSent),
					atomic.LoadInt64(&stats.MessagesReceived),
					atomic.LoadInt64(&stats.Accepted),
					atomic.LoadInt64(&stats.Rejected),
					atomic.LoadInt64(&stats.Throttled),
					atomic.LoadInt64(&stats.Errors))
			}
		}
	}()

	wg.Wait()
	return stats
}

type envelope struct {
	Type    string `json:"type"`
	Payload struct {
		RequestID string `json:"request_id"`
		OK        bool   `json:"ok"`
		Reason    string `json:"reason"`
	} `json:"payload"`
}

func runClient(ctx context.Context, clientID int, config Config, stats *Stats) {
	playerID := fmt.Sprintf("%s_%03d", config.PlayerPrefix, clientID)

	u, err := url.Parse(config.ServerURL)
	if err != nil {
		log.Printf("Player %d: URL parse error: %v", clientID, err)
		atomic.AddInt64(&stats.Errors, 1)
		return
	}
	q := u.Query()
	q.Set("player", playerID)
	u.RawQuery = q.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		log.Printf("Player %d: connection failed: %v", clientID, err)
		atomic.AddInt64(&stats.Errors, 1)
		return
	}
	defer conn.Close()

	var inflight sync.Map // request id -> send time

	go func() {
		for {
			var msg envelope
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			atomic.AddInt64(&stats.MessagesReceived, 1)
			switch msg.Type {
			case "RESULT":
				if v, ok := inflight.LoadAndDelete(msg.Payload.RequestID); ok {
					stats.mu.Lock()
					stats.Latencies = append(stats.Latencies, time.Since(v.(time.Time)))
					stats.mu.Unlock()
				}
				if msg.Payload.OK {
					atomic.AddInt64(&stats.Accepted, 1)
				} else {
					atomic.AddInt64(&stats.Rejected, 1)
				}
			case "ERROR":
				if msg.Payload.Reason == "throttled" {
					atomic.AddInt64(&stats.Throttled, 1)
				} else {
					atomic.AddInt64(&stats.Errors, 1)
				}
			}
		}
	}()

	ticker := time.NewTicker(config.ActionInterval)
	defer ticker.Stop()

	rng := rand.New(rand.NewSource(int64(clientID)))
	for seq := 0; ; seq++ {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			reqID := strconv.Itoa(seq)
			intent := generateIntent(rng, reqID)
			inflight.Store(reqID, time.Now())

			if err := conn.WriteJSON(intent); err != nil {
				atomic.AddInt64(&stats.Errors, 1)
				return
			}
			atomic.AddInt64(&stats.MessagesSent, 1)
		}
	}
}

// generateIntent is mostly taps with the occasional purchase or claim.
func generateIntent(rng *rand.Rand, reqID string) map[string]any {
	intent := map[string]any{"type": "TAP", "request_id": reqID}
	switch n := rng.Intn(100); {
	case n < 85:
	case n < 90:
		track := "tap"
		if rng.Intn(2) == 0 {
			track = "energy_cap"
		}
		intent["type"] = "BUY_UPGRADE"
		intent["payload"] = map[string]any{"track": track}
	case n < 97:
		intent["type"] = "BUY_CARD"
		intent["payload"] = map[string]any{"card_id": cardIDs[rng.Intn(len(cardIDs))]}
	case n < 99:
		intent["type"] = "CLAIM_OFFLINE"
	default:
		intent["type"] = "SYNC"
	}
	return intent
}

func printResults(stats *Stats, config Config) {
	fmt.Println("\n=========================================")
	fmt.Println("LOAD TEST RESULTS")
	fmt.Println("=========================================")

	sent := atomic.LoadInt64(&stats.MessagesSent)
	recv := atomic.LoadInt64(&stats.MessagesReceived)
	errs := atomic.LoadInt64(&stats.Errors)

	fmt.Printf("Intents sent:      %d\n", sent)
	fmt.Printf("Messages received: %d\n", recv)
	fmt.Printf("Accepted:          %d\n", atomic.LoadInt64(&stats.Accepted))
	fmt.Printf("Rejected:          %d\n", atomic.LoadInt64(&stats.Rejected))
	fmt.Printf("Throttled:         %d\n", atomic.LoadInt64(&stats.Throttled))
	fmt.Printf("Errors:            %d\n", errs)
	fmt.Printf("Error rate:        %.2f%%\n", float64(errs)/float64(sent+1)*100)

	throughput := float64(sent) / config.TestDuration.Seconds()
	fmt.Printf("Throughput:        %.2f intents/sec\n", throughput)

	stats.mu.Lock()
	lat := append([]time.Duration(nil), stats.Latencies...)
	stats.mu.Unlock()
	var p50, p99 time.Duration
	if len(lat) > 0 {
		sort.Slice(lat, func(i, j int) bool { return lat[i] < lat[j] })
		p50 = lat[len(lat)/2]
		p99 = lat[len(lat)*99/100]
		fmt.Printf("\nRound trip:\n")
		fmt.Printf("  Min: %v\n", lat[0])
		fmt.Printf("  P50: %v\n", p50)
		fmt.Printf("  P99: %v\n", p99)
		fmt.Printf("  Max: %v\n", lat[len(lat)-1])
	}

	fmt.Println("\n-----------------------------------------")
	switch rate := float64(errs) / float64(sent+1); {
	case errs == 0:
		fmt.Println("PASSED: system handled the load")
	case rate < 0.05:
		fmt.Println("WARNING: some errors detected")
	default:
		fmt.Println("FAILED: high error rate")
	}
	fmt.Println("=========================================")

	results := map[string]any{
		"messages_sent":      sent,
		"messages_received":  recv,
		"accepted":           atomic.LoadInt64(&stats.Accepted),
		"rejected":           atomic.LoadInt64(&stats.Rejected),
		"throttled":          atomic.LoadInt64(&stats.Throttled),
		"errors":             errs,
		"throughput_per_sec": throughput,
		"p50_ms":             float64(p50.Microseconds()) / 1000,
		"p99_ms":             float64(p99.Microseconds()) / 1000,
		"config": map[string]any{
			"clients":  config.NumClients,
			"interval": config.ActionInterval.String(),
			"duration": config.TestDuration.String(),
		},
	}

	jsonData, _ := json.MarshalIndent(results, "", "  ")
	if err := os.WriteFile(config.Output, jsonData, 0644); err != nil {
		log.Printf("write results: %v", err)
		return
	}
	fmt.Printf("\nResults saved to %s\n", config.Output)
}
