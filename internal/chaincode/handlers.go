package chaincode

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/punchamoorthee/bankledger/internal/domain"
	"github.com/punchamoorthee/bankledger/internal/service"
)

// Every handler validates all of its arguments before the ledger is
// touched, so a rejected call has no side effects.

func argCount(function string, args []string, want int) error {
	if len(args) != want {
		return domain.Validation(nil, "%s takes %d argument(s), got %d", function, want, len(args))
	}
	return nil
}

func formatBalance(b float64) []byte {
	return []byte(strconv.FormatFloat(b, 'f', -1, 64))
}

// args: [0] bank balance
func (d *Dispatcher) initLedger(ctx context.Context, args []string) Response {
	if err := argCount("init", args, 1); err != nil {
		return Error(err)
	}
	balance, err := service.ParseBankBalance(args[0])
	if err != nil {
		return Error(err)
	}
	err = d.execute(ctx, "init", func(stub service.Stub) error {
		return d.svc.Init(stub, balance)
	})
	if err != nil {
		return Error(err)
	}
	return Success("ledger initialised", nil)
}

// args: [0] account profile json
func (d *Dispatcher) createAccount(ctx context.Context, args []string) Response {
	if err := argCount("createAccount", args, 1); err != nil {
		return Error(err)
	}
	profile, err := service.ParseProfile(args[0])
	if err != nil {
		return Error(err)
	}
	var payload []byte
	err = d.execute(ctx, "createAccount", func(stub service.Stub) error {
		_, raw, err := d.svc.CreateAccount(stub, profile)
		payload = raw
		return err
	})
	if err != nil {
		return Error(err)
	}
	return Success("account created", payload)
}

// args: [0] account number, [1] amount
func (d *Dispatcher) depositMoney(ctx context.Context, args []string) Response {
	return d.moveCash(ctx, "depositMoney", args, d.svc.Deposit, "deposit succeeded")
}

// args: [0] account number, [1] amount
func (d *Dispatcher) drawalMoney(ctx context.Context, args []string) Response {
	return d.moveCash(ctx, "drawalMoney", args, d.svc.Withdraw, "withdrawal succeeded")
}

func (d *Dispatcher) moveCash(ctx context.Context, function string, args []string,
	op func(service.Stub, string, decimal.Decimal) (float64, error), okMessage string) Response {
	if err := argCount(function, args, 2); err != nil {
		return Error(err)
	}
	accountNo, err := service.ParseAccountNo(args[0])
	if err != nil {
		return Error(err)
	}
	amount, err := service.ParseAmount(args[1])
	if err != nil {
		return Error(err)
	}
	var balance float64
	err = d.execute(ctx, function, func(stub service.Stub) error {
		var err error
		balance, err = op(stub, accountNo, amount)
		return err
	})
	if err != nil {
		return Error(err)
	}
	return Success(okMessage, formatBalance(balance))
}

// args: [0] source account number, [1] destination account number, [2] amount
func (d *Dispatcher) transferAccount(ctx context.Context, args []string) Response {
	if err := argCount("transferAccount", args, 3); err != nil {
		return Error(err)
	}
	from, err := service.ParseAccountNo(args[0])
	if err != nil {
		return Error(err)
	}
	to, err := service.ParseAccountNo(args[1])
	if err != nil {
		return Error(err)
	}
	amount, err := service.ParseAmount(args[2])
	if err != nil {
		return Error(err)
	}
	if from == to {
		return Error(domain.Validation(domain.ErrSelfTransfer, "transfer from %s to itself", from))
	}
	var balance float64
	err = d.execute(ctx, "transferAccount", func(stub service.Stub) error {
		var err error
		balance, err = d.svc.Transfer(stub, from, to, amount)
		return err
	})
	if err != nil {
		return Error(err)
	}
	return Success("transfer succeeded", formatBalance(balance))
}

// args: [0] account number
func (d *Dispatcher) getAccountBalance(ctx context.Context, args []string) Response {
	if err := argCount("getAccountBalance", args, 1); err != nil {
		return Error(err)
	}
	accountNo, err := service.ParseAccountNo(args[0])
	if err != nil {
		return Error(err)
	}
	var balance float64
	err = d.execute(ctx, "getAccountBalance", func(stub service.Stub) error {
		var err error
		balance, err = d.svc.GetBalance(stub, accountNo)
		return err
	})
	if err != nil {
		return Error(err)
	}
	return Success("balance query succeeded", formatBalance(balance))
}

func (d *Dispatcher) getAllAccountList(ctx context.Context, args []string) Response {
	if err := argCount("getAllAccountList", args, 0); err != nil {
		return Error(err)
	}
	var payload []byte
	err := d.execute(ctx, "getAllAccountList", func(stub service.Stub) error {
		var err error
		payload, err = d.svc.ListAccounts(stub)
		return err
	})
	if err != nil {
		return Error(err)
	}
	return Success("account list query succeeded", payload)
}

// args: [0] account number, [1] optional record limit
func (d *Dispatcher) getAccountTransactionRecordList(ctx context.Context, args []string) Response {
	if len(args) < 1 || len(args) > 2 {
		return Error(domain.Validation(nil,
			"getAccountTransactionRecordList takes an account number and an optional limit, got %d argument(s)", len(args)))
	}
	accountNo, err := service.ParseAccountNo(args[0])
	if err != nil {
		return Error(err)
	}
	limit := d.historyLimit
	if len(args) == 2 {
		limit = service.ParseLimit(args[1], d.historyLimit)
	}

	var records []domain.AccountTransactionRecord
	err = d.execute(ctx, "getAccountTransactionRecordList", func(stub service.Stub) error {
		var err error
		records, err = d.svc.ListTransactions(stub, accountNo, limit)
		return err
	})
	if err != nil {
		return Error(err)
	}
	payload, err := json.Marshal(records)
	if err != nil {
		return Error(domain.Internal(err, "encode transaction records"))
	}
	return Success("transaction record query succeeded", payload)
}

func (d *Dispatcher) getBankBalance(ctx context.Context, args []string) Response {
	if err := argCount("getBankBalance", args, 0); err != nil {
		return Error(err)
	}
	var balance float64
	err := d.execute(ctx, "getBankBalance", func(stub service.Stub) error {
		var err error
		balance, err = d.svc.BankBalance(stub)
		return err
	})
	if err != nil {
		return Error(err)
	}
	return Success("bank balance query succeeded", formatBalance(balance))
}
