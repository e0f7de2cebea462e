package service

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/punchamoorthee/bankledger/internal/domain"
)

// KeyBankBalance is the simple key holding the bank-wide total.
const KeyBankBalance = "BANK_BALANCE"

// BankAggregate keeps the running total of funds held by the bank. Every
// balance-changing operation applies the same signed amount here within
// the same invocation, so the store commits both or neither.
type BankAggregate struct{}

// Total reads the aggregate. An aggregate that was never written is zero.
func (BankAggregate) Total(stub Stub) (decimal.Decimal, error) {
	raw, err := stub.GetState(KeyBankBalance)
	if err != nil {
		return decimal.Zero, domain.Internal(err, "read bank balance")
	}
	if raw == nil {
		return decimal.Zero, nil
	}
	total, err := decimal.NewFromString(string(raw))
	if err != nil {
		return decimal.Zero, domain.Internal(err, "decode bank balance %q", raw)
	}
	return total, nil
}

func (BankAggregate) Set(stub Stub, total decimal.Decimal) error {
	if err := stub.PutState(KeyBankBalance, []byte(total.String())); err != nil {
		return domain.Internal(err, "write bank balance")
	}
	return nil
}

// ApplyDelta adds signedAmount to the aggregate and returns the new total.
func (b BankAggregate) ApplyDelta(stub Stub, signedAmount decimal.Decimal) (decimal.Decimal, error) {
	total, err := b.Total(stub)
	if err != nil {
		return decimal.Zero, err
	}
	total = total.Add(signedAmount)
	if err := b.Set(stub, total); err != nil {
		return decimal.Zero, fmt.Errorf("apply delta %s: %w", signedAmount, err)
	}
	return total, nil
}
