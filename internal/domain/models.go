package domain

import "fmt"

// TransactionType tags the operation that produced an account snapshot.
type TransactionType string

const (
	TxCreateAccount TransactionType = "CREATE_ACCOUNT"
	TxDeposit       TransactionType = "DEPOSIT"
	TxWithdraw      TransactionType = "WITHDRAW"
	TxTransferOut   TransactionType = "TRANSFER_OUT"
	TxTransferIn    TransactionType = "TRANSFER_IN"
)

var transactionDescriptions = map[TransactionType]string{
	TxCreateAccount: "account opened",
	TxDeposit:       "cash deposit",
	TxWithdraw:      "cash withdrawal",
	TxTransferOut:   "transfer to another account",
	TxTransferIn:    "transfer from another account",
}

// ParseTransactionType decodes a stored tag. Unknown tags are an error, never
// a guess based on the balance delta.
func ParseTransactionType(s string) (TransactionType, error) {
	t := TransactionType(s)
	if _, ok := transactionDescriptions[t]; !ok {
		return "", fmt.Errorf("unknown transaction type %q", s)
	}
	return t, nil
}

func (t TransactionType) Description() string {
	return transactionDescriptions[t]
}

// CustomerAccount is the snapshot stored under an account's composite key.
// Every committed version of it is kept by the ledger store.
type CustomerAccount struct {
	AccountNo               string          `json:"accountNo"`
	RealName                string          `json:"realName"`
	IDCardNo                string          `json:"idCardNo"`
	MobilePhone             string          `json:"mobilePhone"`
	AccountBalance          float64         `json:"accountBalance"`
	CreatedTime             string          `json:"createdTime"`
	LatestTransactionType   TransactionType `json:"latestTransactionType"`
	LatestTransferAccountNo string          `json:"latestTransferAccountNo,omitempty"`
}

// AccountProfile is the createAccount request body. AccountBalance is a
// pointer so an absent initial balance can be told apart from zero.
type AccountProfile struct {
	RealName       string   `json:"realName"`
	IDCardNo       string   `json:"idCardNo"`
	MobilePhone    string   `json:"mobilePhone"`
	AccountBalance *float64 `json:"accountBalance"`
}

// AccountTransactionRecord is derived from two consecutive snapshots of the
// same account. It is computed on demand and never stored.
type AccountTransactionRecord struct {
	TransactionID        string          `json:"transactionId"`
	TransactionAccountNo string          `json:"transactionAccountNo"`
	TransactionType      TransactionType `json:"transactionType"`
	TransactionDesc      string          `json:"transactionDesc"`
	BeforeAccountBalance float64         `json:"beforeAccountBalance"`
	AfterAccountBalance  float64         `json:"afterAccountBalance"`
	TransactionBalance   float64         `json:"transactionBalance"`
	TransferAccountNo    string          `json:"transferAccountNo,omitempty"`
	TransactionTime      string          `json:"transactionTime"`
}
