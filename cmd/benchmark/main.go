package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/punchamoorthee/bankledger/internal/logging"
)

// CLIConfig holds the benchmark settings. Every field can come from a flag
// or from a BENCH_ prefixed environment variable.
type CLIConfig struct {
	URL      string        `mapstructure:"url"`
	Workers  int           `mapstructure:"workers"`
	Duration time.Duration `mapstructure:"duration"`
	Workload string        `mapstructure:"workload"`
	Amount   string        `mapstructure:"amount"`
	LogLevel string        `mapstructure:"log-level"`
}

func NewDefaultCLIConfig() *CLIConfig {
	return &CLIConfig{
		URL:      "http://localhost:8080",
		Workers:  10,
		Duration: 30 * time.Second,
		Workload: "uniform",
		Amount:   "1",
		LogLevel: "info",
	}
}

var (
	config = NewDefaultCLIConfig()
	logger *logrus.Entry
)

// Metrics
var (
	totalRequests uint64
	success200    uint64
	fail409       uint64 // Conflicts (Aborts)
	fail4xx       uint64
	failOther     uint64
)

var RootCmd = &cobra.Command{
	Use:     "benchmark",
	Short:   "Drive concurrent transfers against a running ledger server",
	PreRunE: loadConfig,
	RunE:    runBenchmark,
}

func init() {
	RootCmd.Flags().String("url", config.URL, "API Base URL")
	RootCmd.Flags().Int("workers", config.Workers, "Number of concurrent workers")
	RootCmd.Flags().Duration("duration", config.Duration, "Test duration")
	RootCmd.Flags().String("workload", config.Workload, "Workload type: uniform | hotspot")
	RootCmd.Flags().String("amount", config.Amount, "Amount moved by each transfer")
	RootCmd.Flags().String("log-level", config.LogLevel, "debug, info, warn, error, fatal, panic")
}

func main() {
	RootCmd.SilenceUsage = true
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

/*******************************************************************************
* CONFIG
*******************************************************************************/

func loadConfig(cmd *cobra.Command, args []string) error {
	viper.SetEnvPrefix("BENCH")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	conf := NewDefaultCLIConfig()
	if err := viper.Unmarshal(conf); err != nil {
		return err
	}
	if conf.Workload != "uniform" && conf.Workload != "hotspot" {
		return fmt.Errorf("unknown workload %q", conf.Workload)
	}
	if conf.Workers < 1 {
		return fmt.Errorf("workers must be at least 1")
	}
	config = conf

	logger = logging.New("benchmark", config.LogLevel, "development", "")
	logger.WithFields(logrus.Fields{
		"url":      config.URL,
		"workers":  config.Workers,
		"duration": config.Duration,
		"workload": config.Workload,
		"amount":   config.Amount,
	}).Debug("RUN")
	return nil
}

/*******************************************************************************
* BENCHMARK
*******************************************************************************/

func runBenchmark(cmd *cobra.Command, args []string) error {
	client := &http.Client{Timeout: 5 * time.Second}

	accounts, err := fetchAccounts(client)
	if err != nil {
		return err
	}
	if len(accounts) < 2 {
		return fmt.Errorf("need at least 2 accounts, server has %d; run the seeder first", len(accounts))
	}

	logger.WithFields(logrus.Fields{
		"workload": config.Workload,
		"workers":  config.Workers,
		"duration": config.Duration,
		"accounts": len(accounts),
	}).Info("Starting Benchmark")

	start := time.Now()
	var wg sync.WaitGroup
	wg.Add(config.Workers)
	for i := 0; i < config.Workers; i++ {
		go worker(&wg, client, accounts, start)
	}
	wg.Wait()

	return printResults(time.Since(start))
}

type envelope struct {
	Status  int32           `json:"status"`
	Message string          `json:"message"`
	Payload json.RawMessage `json:"payload"`
}

func fetchAccounts(client *http.Client) ([]string, error) {
	resp, err := client.Get(config.URL + "/api/v1/accounts")
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("decode account list: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("list accounts: %d %s", resp.StatusCode, env.Message)
	}
	var accounts []struct {
		AccountNo string `json:"accountNo"`
	}
	if err := json.Unmarshal(env.Payload, &accounts); err != nil {
		return nil, fmt.Errorf("decode account list: %w", err)
	}
	out := make([]string, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, a.AccountNo)
	}
	return out, nil
}

func worker(wg *sync.WaitGroup, client *http.Client, accounts []string, start time.Time) {
	defer wg.Done()

	for time.Since(start) < config.Duration {
		from, to := pickAccounts(accounts)
		body, _ := json.Marshal(map[string]string{
			"fromAccountNo": from,
			"toAccountNo":   to,
			"amount":        config.Amount,
		})

		req, _ := http.NewRequest(http.MethodPost, config.URL+"/api/v1/transfers", bytes.NewBuffer(body))
		req.Header.Set("Content-Type", "application/json")

		resp, err := client.Do(req)
		if err != nil {
			atomic.AddUint64(&failOther, 1)
			continue
		}

		atomic.AddUint64(&totalRequests, 1)
		switch {
		case resp.StatusCode == http.StatusOK:
			atomic.AddUint64(&success200, 1)
		case resp.StatusCode == http.StatusConflict:
			atomic.AddUint64(&fail409, 1)
		case resp.StatusCode >= 400 && resp.StatusCode < 500:
			atomic.AddUint64(&fail4xx, 1)
		default:
			atomic.AddUint64(&failOther, 1)
		}
		resp.Body.Close()
	}
}

func pickAccounts(accounts []string) (string, string) {
	if config.Workload == "hotspot" {
		// Hotspot: 90% of traffic goes between the first two accounts
		if rand.Float32() < 0.90 {
			if rand.Float32() < 0.5 {
				return accounts[0], accounts[1]
			}
			return accounts[1], accounts[0]
		}
	}

	// Uniform Random
	a := rand.Intn(len(accounts))
	b := rand.Intn(len(accounts))
	for a == b {
		b = rand.Intn(len(accounts))
	}
	return accounts[a], accounts[b]
}

func printResults(d time.Duration) error {
	total := atomic.LoadUint64(&totalRequests)
	s200 := atomic.LoadUint64(&success200)
	f409 := atomic.LoadUint64(&fail409)
	f4xx := atomic.LoadUint64(&fail4xx)
	fErr := atomic.LoadUint64(&failOther)

	tps := float64(total) / d.Seconds()
	abortRate := 0.0
	if total > 0 {
		abortRate = float64(f409) / float64(total) * 100
	}

	results := map[string]interface{}{
		"workload":        config.Workload,
		"duration_sec":    d.Seconds(),
		"total_requests":  total,
		"throughput_tps":  tps,
		"success":         s200,
		"aborts_conflict": f409,
		"abort_rate_pct":  abortRate,
		"rejected":        f4xx,
		"errors":          fErr,
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(results); err != nil {
		return err
	}

	file, err := os.Create(fmt.Sprintf("results_%s.json", config.Workload))
	if err != nil {
		return err
	}
	defer file.Close()
	return json.NewEncoder(file).Encode(results)
}
