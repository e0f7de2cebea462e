package service

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/punchamoorthee/bankledger/internal/domain"
	"github.com/punchamoorthee/bankledger/internal/store"
)

// AccountObjectType namespaces customer account keys.
const AccountObjectType = "CUSTOMER_ACCOUNT"

// Stub is the per-invocation view of the ledger store. *store.Txn
// implements it.
type Stub interface {
	GetState(key string) ([]byte, error)
	PutState(key string, value []byte) error
	GetStateByPartialCompositeKey(objectType string, attributes []string) ([]store.KV, error)
	GetHistoryForKey(key string) ([]store.KeyModification, error)
	TxID() string
	TxTimestamp() time.Time
}

type OverdraftPolicy int

const (
	// OverdraftAllow lets withdrawals and transfers drive a balance below
	// zero.
	OverdraftAllow OverdraftPolicy = iota
	// OverdraftReject fails them with ErrInsufficientFunds instead.
	OverdraftReject
)

func ParseOverdraftPolicy(s string) OverdraftPolicy {
	if strings.EqualFold(s, "reject") {
		return OverdraftReject
	}
	return OverdraftAllow
}

type Options struct {
	CardPrefix        string
	CardNoMaxAttempts int
	Overdraft         OverdraftPolicy
	// Location renders createdTime and transactionTime. Nil means time.Local.
	Location *time.Location
}

// AccountService is the account state machine. Every method runs inside one
// invocation and touches the store only through stub; arguments are expected
// to be parsed and validated already.
type AccountService struct {
	opts   Options
	cards  *CardNumberGenerator
	bank   BankAggregate
	logger *logrus.Entry
}

func NewAccountService(opts Options, logger *logrus.Entry) *AccountService {
	if opts.CardNoMaxAttempts < 1 {
		opts.CardNoMaxAttempts = 1
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	return &AccountService{
		opts:   opts,
		cards:  NewCardNumberGenerator(opts.CardPrefix),
		logger: logger.WithField("component", "account-service"),
	}
}

// Init overwrites the bank aggregate.
func (s *AccountService) Init(stub Stub, bankBalance decimal.Decimal) error {
	return s.bank.Set(stub, bankBalance)
}

// SeedBankBalance writes bankBalance only when the aggregate was never set.
func (s *AccountService) SeedBankBalance(stub Stub, bankBalance decimal.Decimal) (bool, error) {
	raw, err := stub.GetState(KeyBankBalance)
	if err != nil {
		return false, domain.Internal(err, "read bank balance")
	}
	if raw != nil {
		return false, nil
	}
	return true, s.bank.Set(stub, bankBalance)
}

func (s *AccountService) BankBalance(stub Stub) (float64, error) {
	total, err := s.bank.Total(stub)
	if err != nil {
		return 0, err
	}
	return total.InexactFloat64(), nil
}

// CreateAccount opens an account for profile and returns the stored
// snapshot and its encoding.
func (s *AccountService) CreateAccount(stub Stub, profile domain.AccountProfile) (*domain.CustomerAccount, []byte, error) {
	accountNo, err := s.allocateAccountNo(stub)
	if err != nil {
		return nil, nil, err
	}

	balance := 0.0
	if profile.AccountBalance != nil {
		balance = *profile.AccountBalance
	}
	account := &domain.CustomerAccount{
		AccountNo:             accountNo,
		RealName:              profile.RealName,
		IDCardNo:              profile.IDCardNo,
		MobilePhone:           profile.MobilePhone,
		AccountBalance:        balance,
		CreatedTime:           stub.TxTimestamp().In(s.opts.Location).Format(DateTimeLayout),
		LatestTransactionType: domain.TxCreateAccount,
	}

	raw, err := s.saveAccount(stub, account)
	if err != nil {
		return nil, nil, err
	}
	if _, err := s.bank.ApplyDelta(stub, decimal.NewFromFloat(balance)); err != nil {
		return nil, nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"tx_id":      stub.TxID(),
		"account_no": accountNo,
		"balance":    balance,
	}).Debug("account created")
	return account, raw, nil
}

// allocateAccountNo draws card numbers until one has no snapshot. Each
// candidate read joins the invocation's read set, so two invocations
// claiming the same number cannot both commit.
func (s *AccountService) allocateAccountNo(stub Stub) (string, error) {
	for attempt := 1; attempt <= s.opts.CardNoMaxAttempts; attempt++ {
		accountNo := s.cards.Next()
		existing, err := s.getAccount(stub, accountNo)
		if err != nil {
			return "", err
		}
		if existing == nil {
			return accountNo, nil
		}
		s.logger.WithFields(logrus.Fields{
			"account_no": accountNo,
			"attempt":    attempt,
		}).Warn("generated account number already taken")
	}
	return "", domain.Internal(nil, "no free account number after %d attempts", s.opts.CardNoMaxAttempts)
}

func (s *AccountService) Deposit(stub Stub, accountNo string, amount decimal.Decimal) (float64, error) {
	return s.moveCash(stub, accountNo, amount, domain.TxDeposit)
}

func (s *AccountService) Withdraw(stub Stub, accountNo string, amount decimal.Decimal) (float64, error) {
	return s.moveCash(stub, accountNo, amount.Neg(), domain.TxWithdraw)
}

func (s *AccountService) moveCash(stub Stub, accountNo string, signedAmount decimal.Decimal, txType domain.TransactionType) (float64, error) {
	account, err := s.mustGetAccount(stub, accountNo, "account")
	if err != nil {
		return 0, err
	}
	if err := s.adjust(account, signedAmount, txType, ""); err != nil {
		return 0, err
	}
	if _, err := s.saveAccount(stub, account); err != nil {
		return 0, err
	}
	if _, err := s.bank.ApplyDelta(stub, signedAmount); err != nil {
		return 0, err
	}
	return account.AccountBalance, nil
}

// Transfer moves amount from one account to another and returns the source
// balance. Both accounts and both aggregate deltas are written within the
// same invocation.
func (s *AccountService) Transfer(stub Stub, fromAccountNo, toAccountNo string, amount decimal.Decimal) (float64, error) {
	if fromAccountNo == toAccountNo {
		return 0, domain.Validation(domain.ErrSelfTransfer, "transfer from %s to itself", fromAccountNo)
	}
	from, err := s.mustGetAccount(stub, fromAccountNo, "source account")
	if err != nil {
		return 0, err
	}
	to, err := s.mustGetAccount(stub, toAccountNo, "destination account")
	if err != nil {
		return 0, err
	}

	if err := s.adjust(from, amount.Neg(), domain.TxTransferOut, toAccountNo); err != nil {
		return 0, err
	}
	if err := s.adjust(to, amount, domain.TxTransferIn, fromAccountNo); err != nil {
		return 0, err
	}

	if _, err := s.saveAccount(stub, from); err != nil {
		return 0, err
	}
	if _, err := s.bank.ApplyDelta(stub, amount.Neg()); err != nil {
		return 0, err
	}
	if _, err := s.saveAccount(stub, to); err != nil {
		return 0, err
	}
	if _, err := s.bank.ApplyDelta(stub, amount); err != nil {
		return 0, err
	}

	s.logger.WithFields(logrus.Fields{
		"tx_id":  stub.TxID(),
		"from":   fromAccountNo,
		"to":     toAccountNo,
		"amount": amount.String(),
	}).Debug("transfer applied")
	return from.AccountBalance, nil
}

func (s *AccountService) GetBalance(stub Stub, accountNo string) (float64, error) {
	account, err := s.mustGetAccount(stub, accountNo, "account")
	if err != nil {
		return 0, err
	}
	return account.AccountBalance, nil
}

// ListAccounts returns every stored account snapshot as one JSON array, in
// store iteration order.
func (s *AccountService) ListAccounts(stub Stub) ([]byte, error) {
	kvs, err := stub.GetStateByPartialCompositeKey(AccountObjectType, nil)
	if err != nil {
		return nil, domain.Internal(err, "scan accounts")
	}
	raws := make([]json.RawMessage, 0, len(kvs))
	for _, kv := range kvs {
		raws = append(raws, json.RawMessage(kv.Value))
	}
	payload, err := json.Marshal(raws)
	if err != nil {
		return nil, domain.Internal(err, "encode account list")
	}
	return payload, nil
}

// ListTransactions reconstructs up to limit transaction records for
// accountNo from its snapshot history.
func (s *AccountService) ListTransactions(stub Stub, accountNo string, limit int) ([]domain.AccountTransactionRecord, error) {
	key, err := accountKey(accountNo)
	if err != nil {
		return nil, err
	}
	mods, err := stub.GetHistoryForKey(key)
	if err != nil {
		return nil, domain.Internal(err, "history of account %s", accountNo)
	}
	return ReconstructTransactions(mods, limit, s.opts.Location)
}

func (s *AccountService) adjust(account *domain.CustomerAccount, signedAmount decimal.Decimal, txType domain.TransactionType, counterparty string) error {
	balance := decimal.NewFromFloat(account.AccountBalance).Add(signedAmount)
	if s.opts.Overdraft == OverdraftReject && balance.IsNegative() {
		return domain.Validation(domain.ErrInsufficientFunds,
			"account (%s) balance %v cannot cover %s", account.AccountNo, account.AccountBalance, signedAmount.Neg())
	}
	if balance.Abs().GreaterThan(MaxBalance) {
		return domain.Validation(domain.ErrBalanceLimit,
			"account (%s) balance would reach %s, limit is %s", account.AccountNo, balance, MaxBalance)
	}
	account.AccountBalance = balance.InexactFloat64()
	account.LatestTransactionType = txType
	account.LatestTransferAccountNo = counterparty
	return nil
}

func (s *AccountService) mustGetAccount(stub Stub, accountNo, role string) (*domain.CustomerAccount, error) {
	account, err := s.getAccount(stub, accountNo)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, domain.NotFound(domain.ErrAccountNotFound, "%s (%s) does not exist", role, accountNo)
	}
	return account, nil
}

func (s *AccountService) getAccount(stub Stub, accountNo string) (*domain.CustomerAccount, error) {
	key, err := accountKey(accountNo)
	if err != nil {
		return nil, err
	}
	raw, err := stub.GetState(key)
	if err != nil {
		return nil, domain.Internal(err, "read account %s", accountNo)
	}
	if raw == nil {
		return nil, nil
	}
	account, err := decodeAccount(raw)
	if err != nil {
		return nil, domain.Internal(err, "decode account %s", accountNo)
	}
	return account, nil
}

func (s *AccountService) saveAccount(stub Stub, account *domain.CustomerAccount) ([]byte, error) {
	key, err := accountKey(account.AccountNo)
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(account)
	if err != nil {
		return nil, domain.Internal(err, "encode account %s", account.AccountNo)
	}
	if err := stub.PutState(key, raw); err != nil {
		return nil, domain.Internal(err, "write account %s", account.AccountNo)
	}
	return raw, nil
}

func accountKey(accountNo string) (string, error) {
	key, err := store.CreateCompositeKey(AccountObjectType, []string{accountNo})
	if err != nil {
		return "", domain.Internal(err, "account key for %q", accountNo)
	}
	return key, nil
}
