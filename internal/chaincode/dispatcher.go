package chaincode

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/punchamoorthee/bankledger/internal/domain"
	"github.com/punchamoorthee/bankledger/internal/service"
	"github.com/punchamoorthee/bankledger/internal/store"
)

// RetryPolicy controls how many times an invocation that lost an optimistic
// version race is re-run against fresh state.
type RetryPolicy struct {
	MaxRetries   int
	BaseInterval time.Duration
	// MaxInterval caps the wait between two attempts; zero means one second.
	MaxInterval time.Duration
}

type handlerFunc func(ctx context.Context, args []string) Response

// Dispatcher is the invocation layer: it resolves a function name, hands
// the string arguments to the matching handler, and turns any failure,
// panics included, into a Response.
type Dispatcher struct {
	ledger       *store.Ledger
	svc          *service.AccountService
	retry        RetryPolicy
	historyLimit int
	logger       *logrus.Entry
	functions    map[string]handlerFunc
}

func NewDispatcher(ledger *store.Ledger, svc *service.AccountService, retry RetryPolicy, historyLimit int, logger *logrus.Entry) *Dispatcher {
	d := &Dispatcher{
		ledger:       ledger,
		svc:          svc,
		retry:        retry,
		historyLimit: historyLimit,
		logger:       logger.WithField("component", "dispatcher"),
	}
	d.functions = map[string]handlerFunc{
		"init":                            d.initLedger,
		"createAccount":                   d.createAccount,
		"depositMoney":                    d.depositMoney,
		"drawalMoney":                     d.drawalMoney,
		"transferAccount":                 d.transferAccount,
		"getAccountBalance":               d.getAccountBalance,
		"getAllAccountList":               d.getAllAccountList,
		"getAccountTransactionRecordList": d.getAccountTransactionRecordList,
		"getBankBalance":                  d.getBankBalance,
	}
	return d
}

// Invoke runs function with args and never panics.
func (d *Dispatcher) Invoke(ctx context.Context, function string, args []string) (resp Response) {
	start := time.Now()
	log := d.logger.WithFields(logrus.Fields{
		"function": function,
		"args":     len(args),
	})
	log.Debug("invoke start")

	h, ok := d.functions[function]
	label := function
	if !ok {
		label = "unknown"
	}

	defer func() {
		if r := recover(); r != nil {
			err, ok := r.(error)
			if !ok {
				err = fmt.Errorf("%v", r)
			}
			log.WithError(err).Error("invocation panicked")
			resp = Error(err)
		}

		status := "ok"
		if !resp.IsOK() {
			status = resp.Kind.String()
		}
		invocationsTotal.WithLabelValues(label, status).Inc()
		log.WithFields(logrus.Fields{
			"status":   resp.Status,
			"message":  resp.Message,
			"duration": time.Since(start),
		}).Info("invoke end")
	}()

	if !ok {
		return Response{
			Status:  ERROR,
			Kind:    domain.KindNotFound,
			Message: fmt.Sprintf("unknown function: %s", function),
		}
	}

	timer := prometheus.NewTimer(invocationDuration.WithLabelValues(function))
	defer timer.ObserveDuration()

	return h(ctx, args)
}

// execute runs fn as one ledger invocation, re-running it from scratch
// whenever the commit loses an optimistic version race. A losing attempt
// wrote nothing, so re-running cannot apply anything twice.
func (d *Dispatcher) execute(ctx context.Context, function string, fn func(stub service.Stub) error) error {
	attempt := 0
	operation := func() error {
		attempt++
		err := d.ledger.Invoke(ctx, func(tx *store.Txn) error { return fn(tx) })
		if err == nil {
			return nil
		}
		if errors.Is(err, store.ErrConflict) {
			commitConflictsTotal.WithLabelValues(function).Inc()
			d.logger.WithFields(logrus.Fields{
				"function": function,
				"attempt":  attempt,
			}).Debug("version conflict, retrying")
			return err
		}
		return backoff.Permanent(err)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = d.retry.BaseInterval
	b.MaxInterval = time.Second
	if d.retry.MaxInterval > 0 {
		b.MaxInterval = d.retry.MaxInterval
	}
	b.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(d.retry.MaxRetries)), ctx)

	err := backoff.Retry(operation, policy)
	if errors.Is(err, store.ErrConflict) {
		return domain.Conflict(err, "%s gave up after %d attempts", function, attempt)
	}
	return err
}

// SeedBankBalance sets the bank aggregate to balance unless some earlier
// run already set it. It reports whether it wrote anything.
func (d *Dispatcher) SeedBankBalance(ctx context.Context, balance decimal.Decimal) (bool, error) {
	var seeded bool
	err := d.execute(ctx, "seedBankBalance", func(stub service.Stub) error {
		var err error
		seeded, err = d.svc.SeedBankBalance(stub, balance)
		return err
	})
	return seeded, err
}
