package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	minOrders     = 10
	maxOrders     = 60
	numWorkers    = 5
	serverAddress = "http://localhost:8080"
)

// init configures the logger for the simulation with pretty printing and timestamp
func init() {
	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}
	log.Logger = zerolog.New(output).With().Timestamp().Logger()
}

// routeStats tracks performance statistics for an API endpoint
type routeStats struct {
	mu         sync.Mutex
	name       string
	durations  []time.Duration
	totalCalls int
	failures   int
}

func (rs *routeStats) add(d time.Duration, ok bool) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.durations = append(rs.durations, d)
	rs.totalCalls++
	if !ok {
		rs.failures++
	}
}

// calculate computes min, max, mean and 95th percentile durations
func (rs *routeStats) calculate() (min, max, mean, p95 time.Duration) {
	if len(rs.durations) == 0 {
		return 0, 0, 0, 0
	}

	sort.Slice(rs.durations, func(i, j int) bool {
		return rs.durations[i] < rs.durations[j]
	})

	min = rs.durations[0]
	max = rs.durations[len(rs.durations)-1]

	var sum time.Duration
	for _, d := range rs.durations {
		sum += d
	}
	mean = sum / time.Duration(len(rs.durations))
	p95 = rs.durations[int(float64(len(rs.durations))*0.95)]
	return min, max, mean, p95
}

type apiResponse struct {
	Success bool `json:"success"`
	Data    struct {
		Token             string `json:"jwt_token"`
		DatacashReference string `json:"datacash_reference"`
	} `json:"data"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type client struct {
	http  *http.Client
	token string
	stats map[string]*routeStats
	mu    sync.Mutex
}

func newClient() *client {
	return &client{
		http:  &http.Client{Timeout: 10 * time.Second},
		stats: make(map[string]*routeStats),
	}
}

func (c *client) statsFor(route string) *routeStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	rs, ok := c.stats[route]
	if !ok {
		rs = &routeStats{name: route}
		c.stats[route] = rs
	}
	return rs
}

// post sends an authenticated JSON request and returns the parsed envelope
func (c *client) post(route, path string, payload interface{}) (*apiResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequest("POST", serverAddress+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	duration := time.Since(start)
	if err != nil {
		c.statsFor(route).add(duration, false)
		return nil, err
	}
	defer resp.Body.Close()

	var parsed apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		c.statsFor(route).add(duration, false)
		return nil, err
	}

	c.statsFor(route).add(duration, parsed.Success)
	return &parsed, nil
}

func (c *client) authenticate() error {
	resp, err := c.post("auth", "/api/v1/auth/token", map[string]string{
		"api_key":    "test-api-key",
		"api_secret": "test-api-secret",
	})
	if err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("authentication failed")
	}
	c.token = resp.Data.Token
	return nil
}

func testCard() map[string]string {
	return map[string]string{
		"number":      "4111111111111111",
		"expiry_date": "01/30",
		"ccv":         fmt.Sprintf("%03d", rand.Intn(1000)),
	}
}

// runOrder drives one order through a randomly chosen payment flow
func (c *client) runOrder(orderNumber string) {
	logger := log.With().Str("order_number", orderNumber).Logger()
	amount := float64(rand.Intn(20000)+100) / 100.0
	base := "/api/v1/payments/" + orderNumber

	switch roll := rand.Float64(); {
	case roll < 0.6:
		// Two-stage: ring-fence then capture
		resp, err := c.post("pre-auth", base+"/pre-auth", map[string]interface{}{
			"amount": amount,
			"card":   testCard(),
			"billing_address": map[string]string{
				"line1":    "1 Egg Street",
				"line2":    "Shelltown",
				"postcode": "N12 9RT",
			},
		})
		if err != nil || !resp.Success {
			logger.Warn().Err(err).Msg("pre-auth not taken")
			return
		}
		_, err = c.post("fulfill", base+"/fulfill", map[string]interface{}{
			"amount":        amount,
			"txn_reference": resp.Data.DatacashReference,
			"auth_code":     "060642",
		})
		if err != nil {
			logger.Warn().Err(err).Msg("fulfill failed")
		}
	case roll < 0.8:
		// Two-stage abandoned: ring-fence then cancel
		resp, err := c.post("pre-auth", base+"/pre-auth", map[string]interface{}{
			"amount": amount,
			"card":   testCard(),
		})
		if err != nil || !resp.Success {
			logger.Warn().Err(err).Msg("pre-auth not taken")
			return
		}
		_, err = c.post("cancel", base+"/cancel", map[string]interface{}{
			"txn_reference": resp.Data.DatacashReference,
		})
		if err != nil {
			logger.Warn().Err(err).Msg("cancel failed")
		}
	default:
		// One-stage: authorise then refund the transaction
		resp, err := c.post("authorise", base+"/authorise", map[string]interface{}{
			"amount": amount,
			"card":   testCard(),
		})
		if err != nil || !resp.Success {
			logger.Warn().Err(err).Msg("authorise not taken")
			return
		}
		_, err = c.post("refund-txn", base+"/refund-txn", map[string]interface{}{
			"amount":        amount,
			"txn_reference": resp.Data.DatacashReference,
		})
		if err != nil {
			logger.Warn().Err(err).Msg("refund failed")
		}
	}
}

func main() {
	c := newClient()
	if err := c.authenticate(); err != nil {
		log.Fatal().Err(err).Msg("failed to authenticate")
	}

	numOrders := rand.Intn(maxOrders-minOrders+1) + minOrders
	log.Info().Int("orders", numOrders).Int("workers", numWorkers).Msg("starting payment simulation")

	orders := make(chan string, numOrders)
	var wg sync.WaitGroup
	for w := 0; w < numWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for orderNumber := range orders {
				c.runOrder(orderNumber)
			}
		}()
	}

	for i := 0; i < numOrders; i++ {
		orders <- fmt.Sprintf("SIM%06d", rand.Intn(1000000))
	}
	close(orders)
	wg.Wait()

	// Print per-route statistics
	routes := make([]string, 0, len(c.stats))
	for name := range c.stats {
		routes = append(routes, name)
	}
	sort.Strings(routes)

	for _, name := range routes {
		rs := c.stats[name]
		min, max, mean, p95 := rs.calculate()
		log.Info().
			Str("route", name).
			Int("calls", rs.totalCalls).
			Int("failures", rs.failures).
			Dur("min", min).
			Dur("max", max).
			Dur("mean", mean).
			Dur("p95", p95).
			Msg("route statistics")
	}
}
