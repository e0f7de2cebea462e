package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"github.com/spf13/cobra"

	"github.com/punchamoorthee/bankledger/internal/chaincode"
	"github.com/punchamoorthee/bankledger/internal/config"
	"github.com/punchamoorthee/bankledger/internal/logging"
	"github.com/punchamoorthee/bankledger/internal/service"
	"github.com/punchamoorthee/bankledger/internal/store"
)

var (
	totalAccounts  int
	initialBalance float64
	workers        int
)

// RootCmd seeds the configured store with accounts, going through the same
// dispatcher the server uses.
var RootCmd = &cobra.Command{
	Use:   "seeder",
	Short: "Bulk-create customer accounts in the ledger store",
	RunE:  runSeeder,
}

func init() {
	RootCmd.Flags().IntVar(&totalAccounts, "accounts", 1000, "Number of accounts the store should hold")
	RootCmd.Flags().Float64Var(&initialBalance, "balance", 100, "Opening balance of each new account")
	RootCmd.Flags().IntVar(&workers, "workers", 4, "Number of concurrent createAccount invocations")
}

func main() {
	RootCmd.SilenceUsage = true
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func validateFlags() error {
	if workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", workers)
	}
	if totalAccounts < 0 {
		return fmt.Errorf("accounts must not be negative, got %d", totalAccounts)
	}
	if initialBalance < 0 {
		return fmt.Errorf("balance must not be negative, got %v", initialBalance)
	}
	return nil
}

func runSeeder(cmd *cobra.Command, args []string) error {
	if err := validateFlags(); err != nil {
		return err
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := logging.New("seeder", cfg.LogLevel, cfg.Env, cfg.LogFile)
	if cfg.StoreBackend == config.BackendMemory {
		logger.Warn("STORE_BACKEND is memory; seeded accounts vanish when the seeder exits")
	}

	ctx := context.Background()
	backend, err := store.OpenBackend(ctx, store.BackendOptions{
		Kind:      cfg.StoreBackend,
		DBSource:  cfg.DBSource,
		BadgerDir: cfg.BadgerDir,
	}, logger)
	if err != nil {
		return err
	}
	ledger := store.NewLedger(backend, logger)
	defer ledger.Close()

	svc := service.NewAccountService(service.Options{
		CardPrefix:        cfg.BankCardPrefix,
		CardNoMaxAttempts: cfg.CardNoMaxAttempts,
		Overdraft:         service.ParseOverdraftPolicy(cfg.OverdraftPolicy),
	}, logger)
	dispatcher := chaincode.NewDispatcher(ledger, svc, chaincode.RetryPolicy{
		// every creation touches the bank aggregate, so concurrent seeding
		// conflicts far more than normal traffic does
		MaxRetries:   cfg.ConflictMaxRetries + 10*workers,
		BaseInterval: cfg.ConflictRetryBase,
	}, cfg.DefaultHistoryLimit, logger)

	// Check existing
	resp := dispatcher.Invoke(ctx, "getAllAccountList", []string{})
	if !resp.IsOK() {
		return fmt.Errorf("list accounts: %s", resp.Message)
	}
	var existing []json.RawMessage
	if err := json.Unmarshal(resp.Payload, &existing); err != nil {
		return fmt.Errorf("decode account list: %w", err)
	}
	if len(existing) >= totalAccounts {
		logger.Infof("Store already has %d accounts. Skipping.", len(existing))
		return nil
	}

	missing := totalAccounts - len(existing)
	logger.Infof("Creating %d accounts...", missing)

	jobs := make(chan int)
	var created, failed atomic.Int64
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				profile, _ := json.Marshal(map[string]any{
					"realName":       fmt.Sprintf("Seed Customer %d", i),
					"idCardNo":       fmt.Sprintf("SEED%014d", i),
					"mobilePhone":    fmt.Sprintf("1%010d", i),
					"accountBalance": initialBalance,
				})
				resp := dispatcher.Invoke(ctx, "createAccount", []string{string(profile)})
				if !resp.IsOK() {
					failed.Add(1)
					logger.WithField("kind", resp.Kind.String()).Warn(resp.Message)
					continue
				}
				created.Add(1)
			}
		}()
	}
	for i := len(existing); i < totalAccounts; i++ {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	logger.Infof("Successfully seeded %d accounts, %d failed.", created.Load(), failed.Load())
	if failed.Load() > 0 {
		return fmt.Errorf("%d account creations failed", failed.Load())
	}
	return nil
}
