package service

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"github.com/punchamoorthee/bankledger/internal/domain"
	"github.com/punchamoorthee/bankledger/internal/store"
)

// DateTimeLayout is used for createdTime and transactionTime.
const DateTimeLayout = "2006-01-02 15:04:05"

// ReconstructTransactions turns the history of one account key, oldest
// first, into transaction records. Version i is diffed against version
// i-1, so the creation snapshot yields no record of its own. The walk stops
// after limit records; limit <= 0 means no limit. Deleted versions have no
// balance and are skipped together with the record that would diff against
// them.
func ReconstructTransactions(mods []store.KeyModification, limit int, loc *time.Location) ([]domain.AccountTransactionRecord, error) {
	records := []domain.AccountTransactionRecord{}
	if loc == nil {
		loc = time.Local
	}

	var prev *domain.CustomerAccount
	for i, mod := range mods {
		if limit > 0 && len(records) >= limit {
			break
		}
		if mod.IsDelete {
			prev = nil
			continue
		}
		cur, err := decodeAccount(mod.Value)
		if err != nil {
			return nil, domain.Internal(err, "decode version %d of account history", i)
		}
		if prev == nil {
			prev = cur
			continue
		}

		txType, err := domain.ParseTransactionType(string(cur.LatestTransactionType))
		if err != nil {
			return nil, domain.Internal(err, "decode version %d of account %s", i, cur.AccountNo)
		}
		before := decimal.NewFromFloat(prev.AccountBalance)
		after := decimal.NewFromFloat(cur.AccountBalance)

		record := domain.AccountTransactionRecord{
			TransactionID:        mod.TxID,
			TransactionAccountNo: cur.AccountNo,
			TransactionType:      txType,
			TransactionDesc:      txType.Description(),
			BeforeAccountBalance: prev.AccountBalance,
			AfterAccountBalance:  cur.AccountBalance,
			TransactionBalance:   after.Sub(before).InexactFloat64(),
			TransactionTime:      mod.Timestamp.In(loc).Format(DateTimeLayout),
		}
		if txType == domain.TxTransferIn || txType == domain.TxTransferOut {
			record.TransferAccountNo = cur.LatestTransferAccountNo
		}
		records = append(records, record)
		prev = cur
	}
	return records, nil
}

func decodeAccount(raw []byte) (*domain.CustomerAccount, error) {
	account := new(domain.CustomerAccount)
	if err := json.Unmarshal(raw, account); err != nil {
		return nil, err
	}
	return account, nil
}
