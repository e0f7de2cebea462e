package service

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/punchamoorthee/bankledger/internal/domain"
)

var accountNoPattern = regexp.MustCompile(`^\d{16}$`)

// Money is kept in cents. Account balances are stored as float64, which
// represents every cent value up to MaxBalance exactly, so account
// snapshots and the decimal bank aggregate never disagree.
const (
	MoneyScale = 2

	maxMoneyLen = 32
)

var (
	MaxAmount  = decimal.New(1, 12)
	MaxBalance = decimal.New(1, 13)
)

// parseMoney parses raw as a decimal of at most MoneyScale fractional
// digits whose magnitude does not exceed limit. Length and exponent are
// bounded before any arithmetic.
func parseMoney(raw string, limit decimal.Decimal) (decimal.Decimal, bool) {
	if len(raw) > maxMoneyLen {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(raw)
	if err != nil || d.Exponent() > 15 || d.Exponent() < -maxMoneyLen {
		return decimal.Zero, false
	}
	return d, isMoney(d, limit)
}

func isMoney(d, limit decimal.Decimal) bool {
	return !d.Abs().GreaterThan(limit) && d.Equal(d.Round(MoneyScale))
}

// ParseAccountNo trims s and checks it is a 16 digit card number.
func ParseAccountNo(s string) (string, error) {
	accountNo := strings.TrimSpace(s)
	if !accountNoPattern.MatchString(accountNo) {
		return "", domain.Validation(domain.ErrInvalidAccountNo, "invalid account number %q", accountNo)
	}
	return accountNo, nil
}

// ParseAmount accepts a decimal string strictly greater than zero, in
// cents, no larger than MaxAmount.
func ParseAmount(s string) (decimal.Decimal, error) {
	raw := strings.TrimSpace(s)
	amount, ok := parseMoney(raw, MaxAmount)
	if !ok || !amount.IsPositive() {
		return decimal.Zero, domain.Validation(domain.ErrInvalidAmount, "invalid amount %q", raw)
	}
	return amount, nil
}

// ParseBankBalance accepts a decimal string greater than or equal to zero,
// in cents, no larger than MaxBalance.
func ParseBankBalance(s string) (decimal.Decimal, error) {
	raw := strings.TrimSpace(s)
	balance, ok := parseMoney(raw, MaxBalance)
	if !ok || balance.IsNegative() {
		return decimal.Zero, domain.Validation(nil, "bank balance must be a non-negative amount in cents up to %s, got %q", MaxBalance, raw)
	}
	return balance, nil
}

// ParseLimit falls back to def when s is empty, not an integer, or not
// positive.
func ParseLimit(s string, def int) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n <= 0 {
		return def
	}
	return n
}

// ParseProfile decodes a createAccount request body and checks the
// required fields.
func ParseProfile(raw string) (domain.AccountProfile, error) {
	var p domain.AccountProfile
	body := strings.TrimSpace(raw)
	if !strings.HasPrefix(body, "{") {
		return p, domain.Validation(nil, "account profile must be a json object")
	}
	if err := json.Unmarshal([]byte(body), &p); err != nil {
		return p, domain.Validation(err, "account profile must be a json object")
	}
	if strings.TrimSpace(p.RealName) == "" {
		return p, domain.Validation(nil, "realName must not be blank")
	}
	if strings.TrimSpace(p.IDCardNo) == "" {
		return p, domain.Validation(nil, "idCardNo must not be blank")
	}
	if strings.TrimSpace(p.MobilePhone) == "" {
		return p, domain.Validation(nil, "mobilePhone must not be blank")
	}
	if p.AccountBalance != nil {
		if *p.AccountBalance < 0 {
			return p, domain.Validation(nil, "accountBalance must not be negative")
		}
		if !isMoney(decimal.NewFromFloat(*p.AccountBalance), MaxBalance) {
			return p, domain.Validation(domain.ErrInvalidAmount, "accountBalance must be in cents up to %s", MaxBalance)
		}
	}
	return p, nil
}
