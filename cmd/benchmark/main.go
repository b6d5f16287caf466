package main

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Config holds the benchmark settings
var (
	targetURL   string
	concurrency int
	duration    time.Duration
	workload    string
	listingID   string
	keySecret   string
)

// Metrics
var (
	totalRequests uint64
	success200    uint64 // Idempotent replays
	success201    uint64 // Created
	fail409       uint64 // Conflicts (Aborts)
	failOther     uint64
)

func init() {
	flag.StringVar(&targetURL, "url", "http://localhost:8080", "API Base URL")
	flag.IntVar(&concurrency, "workers", 10, "Number of concurrent workers")
	flag.DurationVar(&duration, "duration", 30*time.Second, "Test duration")
	flag.StringVar(&workload, "workload", "create", "Workload type: create | purchase")
	flag.StringVar(&listingID, "listing", "", "Listing ID to hammer (purchase workload)")
	flag.StringVar(&keySecret, "secret", "", "Gateway key secret for signing (purchase workload)")
}

func main() {
	flag.Parse()
	if workload == "purchase" && (listingID == "" || keySecret == "") {
		log.Fatal("purchase workload requires -listing and -secret")
	}
	log.Printf("Starting Benchmark: %s | Workers: %d | Duration: %s", workload, concurrency, duration)

	start := time.Now()
	var wg sync.WaitGroup
	wg.Add(concurrency)

	for i := 0; i < concurrency; i++ {
		go worker(&wg, i, start)
	}

	wg.Wait()
	printResults(time.Since(start))
}

func worker(wg *sync.WaitGroup, id int, start time.Time) {
	defer wg.Done()
	client := &http.Client{Timeout: 5 * time.Second}

	for time.Since(start) < duration {
		var req *http.Request
		var err error
		if workload == "purchase" {
			req, err = purchaseRequest()
		} else {
			req, err = createRequest(id)
		}
		if err != nil {
			log.Fatal(err)
		}

		atomic.AddUint64(&totalRequests, 1)
		resp, err := client.Do(req)
		if err != nil {
			atomic.AddUint64(&failOther, 1)
			continue
		}
		switch resp.StatusCode {
		case http.StatusOK:
			atomic.AddUint64(&success200, 1)
		case http.StatusCreated:
			atomic.AddUint64(&success201, 1)
		case http.StatusConflict:
			atomic.AddUint64(&fail409, 1)
		default:
			atomic.AddUint64(&failOther, 1)
		}
		resp.Body.Close()
	}
}

func createRequest(worker int) (*http.Request, error) {
	body, _ := json.Marshal(map[string]any{
		"owner_id": fmt.Sprintf("bench-worker-%d", worker),
		"title":    "Benchmark itinerary " + uuid.New().String(),
		"link":     "https://example.com/bench",
		"price":    1500,
	})
	req, err := http.NewRequest("POST", targetURL+"/api/v1/itineraries", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

func purchaseRequest() (*http.Request, error) {
	orderID := "order_" + uuid.New().String()
	paymentID := "pay_" + uuid.New().String()

	mac := hmac.New(sha256.New, []byte(keySecret))
	fmt.Fprintf(mac, "%s|%s", orderID, paymentID)
	signature := hex.EncodeToString(mac.Sum(nil))

	body, _ := json.Marshal(map[string]any{
		"payment_id":  paymentID,
		"order_id":    orderID,
		"signature":   signature,
		"listing_key": "itineraries/" + listingID,
		"buyer_id":    "bench-buyer",
	})
	req, err := http.NewRequest("POST", targetURL+"/api/v1/purchases", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

func printResults(elapsed time.Duration) {
	total := atomic.LoadUint64(&totalRequests)
	rps := float64(total) / elapsed.Seconds()

	fmt.Println("\n--- Benchmark Results ---")
	fmt.Printf("Duration:       %s\n", elapsed.Round(time.Millisecond))
	fmt.Printf("Total Requests: %d (%.1f req/s)\n", total, rps)
	fmt.Printf("  201 Created:  %d\n", atomic.LoadUint64(&success201))
	fmt.Printf("  200 Replayed: %d\n", atomic.LoadUint64(&success200))
	fmt.Printf("  409 Conflict: %d\n", atomic.LoadUint64(&fail409))
	fmt.Printf("  Other/Error:  %d\n", atomic.LoadUint64(&failOther))
}
