package main

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"sync"
	"time"
)

// account tracks a registered account and its credentials
type account struct {
	Username  string
	AccountID string `json:"account_id"`
	Token     string `json:"token"`
}

// DweetReq defines the request payload for publishing a dweet.
type DweetReq struct {
	Body string `json:"body"`
}

// Dweet represents a dweet entity returned by the API.
type Dweet struct {
	ID             string    `json:"id"`
	AuthorID       string    `json:"author_id"`
	AuthorUsername string    `json:"author_username"`
	Body           string    `json:"body"`
	Created        time.Time `json:"created"`
}

func main() {
	// CLI flags
	var serverAddr string
	var U, F, D, concurrency int

	flag.StringVar(&serverAddr, "server", "https://localhost:8080", "server base URL")
	flag.IntVar(&U, "accounts", 50, "number of accounts to create")
	flag.IntVar(&F, "follows", 10, "average follows per account")
	flag.IntVar(&D, "dweets", 100, "number of dweets to publish")
	flag.IntVar(&concurrency, "c", 20, "concurrency for publishing")
	flag.Parse()

	ctx := context.Background()

	// --- TLS setup for secure communication ---
	cert, err := tls.LoadX509KeyPair("../../certs/cert.pem", "../../certs/key.pem")
	if err != nil {
		panic(fmt.Sprintf("failed to load cert/key: %v", err))
	}

	client := &http.Client{
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				Certificates: []tls.Certificate{cert},
			},
		},
		Timeout: 10 * time.Second,
	}

	// --- 1) Register accounts ---
	fmt.Printf("Registering %d accounts...\n", U)
	accounts := make([]account, 0, U)
	for i := 0; i < U; i++ {
		username := fmt.Sprintf("e2e-user-%d-%d", i, time.Now().UnixNano())
		payload := map[string]string{"username": username, "password": "e2e-password"}
		b, _ := json.Marshal(payload)

		resp, err := client.Post(serverAddr+"/accounts", "application/json", bytes.NewReader(b))
		if err != nil {
			fmt.Printf("register error: %v\n", err)
			os.Exit(1)
		}

		var a account
		if err := json.NewDecoder(resp.Body).Decode(&a); err != nil {
			resp.Body.Close()
			fmt.Printf("decode register resp error: %v\n", err)
			os.Exit(1)
		}
		resp.Body.Close()
		a.Username = username
		accounts = append(accounts, a)
	}
	fmt.Println("Accounts registered.")

	// --- 2) Create follow relationships ---
	// followMap maps author username to the followers' tokens
	fmt.Printf("Creating follows (~%d per account)...\n", F)
	followMap := make(map[string][]string)
	for _, a := range accounts {
		for j := 0; j < F; j++ {
			target := accounts[rand.Intn(len(accounts))]
			if target.AccountID == a.AccountID {
				continue
			}
			payload := map[string]string{"follow": "follow"}
			b, _ := json.Marshal(payload)
			url := serverAddr + "/profiles/" + target.Username + "/follow"
			req, _ := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(b))
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set("Authorization", "Bearer "+a.Token)

			resp, err := client.Do(req)
			if err != nil {
				fmt.Printf("follow error: %v\n", err)
				os.Exit(1)
			}
			resp.Body.Close()
			followMap[target.Username] = append(followMap[target.Username], a.Token)
		}
	}
	fmt.Println("Follow relationships established.")

	// --- 3) Publish dweets concurrently ---
	fmt.Printf("Publishing %d dweets with concurrency %d...\n", D, concurrency)
	type dweetRecord struct {
		DweetID        string
		AuthorUsername string
	}

	var wg sync.WaitGroup
	sem := make(chan struct{}, concurrency) // concurrency limiter
	dweetsCh := make(chan dweetRecord, D)

	for i := 0; i < D; i++ {
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			author := accounts[rand.Intn(len(accounts))]
			reqBody := DweetReq{Body: fmt.Sprintf("e2e dweet %d", rand.Int())}
			b, _ := json.Marshal(reqBody)

			req, _ := http.NewRequestWithContext(ctx, "POST", serverAddr+"/dweets", bytes.NewReader(b))
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set("Authorization", "Bearer "+author.Token)

			resp, err := client.Do(req)
			if err != nil {
				fmt.Printf("dweet error: %v\n", err)
				return
			}

			var d Dweet
			if err := json.NewDecoder(resp.Body).Decode(&d); err != nil {
				resp.Body.Close()
				fmt.Printf("decode dweet error: %v\n", err)
				return
			}
			resp.Body.Close()
			dweetsCh <- dweetRecord{DweetID: d.ID, AuthorUsername: author.Username}
		}()
	}

	wg.Wait()
	close(dweetsCh)

	// --- 4) Verify visibility in followers' feeds and time the reads ---
	fmt.Println("Checking feed visibility...")
	var latencies []float64
	var latMu sync.Mutex
	var missCount int64
	var checksWg sync.WaitGroup

	for dr := range dweetsCh {
		followers := followMap[dr.AuthorUsername]
		for _, token := range followers {
			checksWg.Add(1)
			go func(dr dweetRecord, token string) {
				defer checksWg.Done()

				start := time.Now()
				req, _ := http.NewRequestWithContext(ctx, "GET", serverAddr+"/feed", nil)
				req.Header.Set("Authorization", "Bearer "+token)
				resp, err := client.Do(req)
				if err != nil {
					latMu.Lock()
					missCount++
					latMu.Unlock()
					return
				}

				var dweets []Dweet
				if err := json.NewDecoder(resp.Body).Decode(&dweets); err != nil {
					resp.Body.Close()
					latMu.Lock()
					missCount++
					latMu.Unlock()
					return
				}
				resp.Body.Close()
				lat := time.Since(start).Seconds() * 1000

				found := false
				for _, d := range dweets {
					if d.ID == dr.DweetID {
						found = true
						break
					}
				}

				latMu.Lock()
				if found {
					latencies = append(latencies, lat)
				} else {
					// recent dweets may have been pushed past page one
					missCount++
				}
				latMu.Unlock()
			}(dr, token)
		}
	}

	checksWg.Wait()

	// --- 5) Compute latency statistics and export to CSV ---
	if len(latencies) == 0 {
		fmt.Println("No visible dweets recorded.")
	} else {
		trimPercent := 1.0
		meanVal := trimmedMean(latencies, trimPercent)
		p50 := trimmedPercentile(latencies, 50, trimPercent)
		p90 := trimmedPercentile(latencies, 90, trimPercent)
		p99 := trimmedPercentile(latencies, 99, trimPercent)
		fmt.Printf("Feed read stats (ms): count=%d mean=%.2f p50=%.2f p90=%.2f p99=%.2f misses=%d\n",
			len(latencies), meanVal, p50, p90, p99, missCount)

		// Export latencies to CSV
		f, _ := os.Create("e2e_latencies.csv")
		w := csv.NewWriter(f)
		w.Write([]string{"latency_ms"})
		for _, v := range latencies {
			w.Write([]string{fmt.Sprintf("%.3f", v)})
		}
		w.Flush()
		f.Close()
		fmt.Println("Saved e2e_latencies.csv")
	}
}

// trimmedMean calculates the mean of a dataset excluding extreme values.
func trimmedMean(data []float64, trimPercent float64) float64 {
	if len(data) == 0 {
		return 0
	}
	sort.Float64s(data)
	trim := int(float64(len(data)) * trimPercent / 100.0)
	if trim*2 >= len(data) {
		trim = len(data) / 2
	}
	data = data[trim : len(data)-trim]
	var sum float64
	for _, v := range data {
		sum += v
	}
	return sum / float64(len(data))
}

// trimmedPercentile returns a percentile value after trimming extremes.
func trimmedPercentile(data []float64, p float64, trimPercent float64) float64 {
	if len(data) == 0 {
		return 0
	}
	sort.Float64s(data)
	trim := int(float64(len(data)) * trimPercent / 100.0)
	if trim*2 >= len(data) {
		trim = len(data) / 2
	}
	data = data[trim : len(data)-trim]
	return percentile(data, p)
}

// percentile calculates the requested percentile using linear interpolation.
func percentile(data []float64, p float64) float64 {
	if len(data) == 0 {
		return 0
	}
	k := (p / 100.0) * float64(len(data)-1)
	f := int(k)
	c := f + 1
	if c >= len(data) {
		return data[len(data)-1]
	}
	d0 := data[f] * (float64(c) - k)
	d1 := data[c] * (k - float64(f))
	return d0 + d1
}
