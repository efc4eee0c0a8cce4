package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"medportal/client"
	"medportal/client/session"
	"medportal/internal/metrics"
	"medportal/pkg/logger"

	"go.uber.org/zap"
)

// Configuration
var (
	baseURL  = flag.String("url", "http://localhost:8080", "Practice API base URL")
	email    = flag.String("email", "medecin@cabinet.local", "Login email")
	password = flag.String("password", "medecin1234", "Login password")
	totalVUs = flag.Int("c", 50, "Concurrent calls fired with a stale access token")
	rounds   = flag.Int("rounds", 5, "Number of refresh storms")
	timeout  = flag.Duration("timeout", 10*time.Second, "Per round timeout")
)

// stormObserver counts refreshes and requests on top of the Prometheus
// client metrics.
type stormObserver struct {
	metrics.ClientObserver

	requests     atomic.Int64
	unauthorized atomic.Int64
	refreshes    atomic.Int64
	refreshFails atomic.Int64
	latencySum   atomic.Int64 // microseconds
}

func (o *stormObserver) ObserveRequest(method string, status int, seconds float64) {
	o.ClientObserver.ObserveRequest(method, status, seconds)
	o.requests.Add(1)
	if status == 401 {
		o.unauthorized.Add(1)
	}
	o.latencySum.Add(int64(seconds * 1e6))
}

func (o *stormObserver) RecordRefresh(success bool) {
	o.ClientObserver.RecordRefresh(success)
	o.refreshes.Add(1)
	if !success {
		o.refreshFails.Add(1)
	}
}

func (o *stormObserver) reset() {
	o.requests.Store(0)
	o.unauthorized.Store(0)
	o.refreshes.Store(0)
	o.refreshFails.Store(0)
	o.latencySum.Store(0)
}

func main() {
	flag.Parse()
	logger.InitLogger("dev")
	defer logger.Sync()

	fmt.Printf("Starting refresh storm\n")
	fmt.Printf("   Target: %s\n", *baseURL)
	fmt.Printf("   VUs: %d\n", *totalVUs)
	fmt.Printf("   Rounds: %d\n", *rounds)

	obs := &stormObserver{ClientObserver: metrics.NewPrometheusObserver()}
	store := session.NewStore(nil)
	api, err := client.New(*baseURL, store, client.WithObserver(obs))
	if err != nil {
		logger.Error("client init failed", zap.Error(err))
		os.Exit(1)
	}

	failed := 0
	for round := 1; round <= *rounds; round++ {
		ok, err := storm(api, store, obs)
		if err != nil {
			logger.Error("round failed", zap.Int("round", round), zap.Error(err))
			os.Exit(1)
		}
		if !ok {
			failed++
		}
	}

	if failed > 0 {
		fmt.Printf("%d/%d rounds issued more than one refresh\n", failed, *rounds)
		os.Exit(1)
	}
	fmt.Println("All rounds issued exactly one refresh")
}

// storm logs in, replaces the access token with a stale one and fires the
// concurrent calls. It reports whether a single refresh served them all.
func storm(api *client.Client, store *session.Store, obs *stormObserver) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	tokens, err := api.Login(ctx, *email, *password)
	if err != nil {
		return false, fmt.Errorf("login: %w", err)
	}
	stale := *tokens
	stale.AccessToken = "stale-access-token"
	if err := store.Set(ctx, stale); err != nil {
		return false, err
	}
	obs.reset()

	var (
		wg       sync.WaitGroup
		errCount atomic.Int64
		start    = make(chan struct{})
	)
	for i := 0; i < *totalVUs; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if _, err := api.ListAppointments(ctx); err != nil {
				if errCount.Add(1) == 1 {
					fmt.Printf("Error: %v\n", err)
				}
			}
		}()
	}
	began := time.Now()
	close(start)
	wg.Wait()

	reqs := obs.requests.Load()
	avgLat := float64(0)
	if reqs > 0 {
		avgLat = float64(obs.latencySum.Load()) / float64(reqs) / 1000
	}
	refreshes := obs.refreshes.Load()
	fmt.Printf("[%s] Requests: %d | 401: %d | Refreshes: %d (failed %d) | Errors: %d | Avg Latency: %.2f ms | Wall: %v\n",
		time.Now().Format("15:04:05"), reqs, obs.unauthorized.Load(), refreshes, obs.refreshFails.Load(),
		errCount.Load(), avgLat, time.Since(began).Round(time.Millisecond))

	return refreshes == 1, nil
}
