package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/punchamoorthee/bankledger/internal/chaincode"
	"github.com/punchamoorthee/bankledger/internal/domain"
	"github.com/punchamoorthee/bankledger/internal/logging"
	"github.com/punchamoorthee/bankledger/internal/service"
	"github.com/punchamoorthee/bankledger/internal/store"
)

type wireEnvelope struct {
	Status  int32           `json:"status"`
	Message string          `json:"message"`
	Payload json.RawMessage `json:"payload"`
}

func newRouter(t *testing.T, invoker Invoker) *mux.Router {
	t.Helper()
	r := mux.NewRouter()
	NewHandler(invoker, logging.NewTestLogger(t)).Register(r)
	return r
}

func newLedgerRouter(t *testing.T) *mux.Router {
	t.Helper()
	logger := logging.NewTestLogger(t)
	ledger := store.NewLedger(store.NewMemoryBackend(), logger)
	t.Cleanup(func() { ledger.Close() })
	svc := service.NewAccountService(service.Options{
		CardPrefix:        "6225",
		CardNoMaxAttempts: 5,
		Overdraft:         service.OverdraftReject,
		Location:          time.UTC,
	}, logger)
	d := chaincode.NewDispatcher(ledger, svc, chaincode.RetryPolicy{MaxRetries: 3, BaseInterval: time.Millisecond}, 10, logger)
	return newRouter(t, d)
}

func do(t *testing.T, r http.Handler, method, path, body string) (int, wireEnvelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	var env wireEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec.Code, env
}

const profile = `{"realName":"Peng San","idCardNo":"342425198607284712","mobilePhone":"15151887280","accountBalance":100}`

func createAccount(t *testing.T, r http.Handler) string {
	t.Helper()
	code, env := do(t, r, http.MethodPost, "/api/v1/accounts", profile)
	require.Equal(t, http.StatusOK, code, env.Message)
	var account domain.CustomerAccount
	require.NoError(t, json.Unmarshal(env.Payload, &account))
	return account.AccountNo
}

func TestHealthCheck(t *testing.T) {
	r := newLedgerRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestAccountLifecycle(t *testing.T) {
	r := newLedgerRouter(t)
	acct := createAccount(t, r)
	other := createAccount(t, r)

	code, env := do(t, r, http.MethodPost, "/api/v1/accounts/"+acct+"/deposits", `{"amount":"25.5"}`)
	require.Equal(t, http.StatusOK, code, env.Message)
	assert.Equal(t, chaincode.OK, env.Status)
	assert.JSONEq(t, `125.5`, string(env.Payload))

	code, env = do(t, r, http.MethodPost, "/api/v1/accounts/"+acct+"/withdrawals", `{"amount":5.5}`)
	require.Equal(t, http.StatusOK, code, env.Message)
	assert.JSONEq(t, `120`, string(env.Payload))

	code, env = do(t, r, http.MethodPost, "/api/v1/transfers",
		`{"fromAccountNo":"`+acct+`","toAccountNo":"`+other+`","amount":"20"}`)
	require.Equal(t, http.StatusOK, code, env.Message)
	assert.JSONEq(t, `100`, string(env.Payload))

	code, env = do(t, r, http.MethodGet, "/api/v1/accounts/"+other+"/balance", "")
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `120`, string(env.Payload))

	code, env = do(t, r, http.MethodGet, "/api/v1/bank/balance", "")
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `220`, string(env.Payload))

	code, env = do(t, r, http.MethodGet, "/api/v1/accounts/"+acct+"/transactions?limit=2", "")
	require.Equal(t, http.StatusOK, code)
	var records []domain.AccountTransactionRecord
	require.NoError(t, json.Unmarshal(env.Payload, &records))
	require.Len(t, records, 2)
	assert.Equal(t, domain.TxDeposit, records[0].TransactionType)
	assert.Equal(t, domain.TxWithdraw, records[1].TransactionType)

	code, env = do(t, r, http.MethodGet, "/api/v1/accounts", "")
	require.Equal(t, http.StatusOK, code)
	var accounts []domain.CustomerAccount
	require.NoError(t, json.Unmarshal(env.Payload, &accounts))
	assert.Len(t, accounts, 2)
}

func TestInvokeByName(t *testing.T) {
	r := newLedgerRouter(t)
	acct := createAccount(t, r)

	code, env := do(t, r, http.MethodPost, "/api/v1/invoke/depositMoney", `{"args":["`+acct+`","1"]}`)
	require.Equal(t, http.StatusOK, code, env.Message)
	assert.JSONEq(t, `101`, string(env.Payload))

	code, env = do(t, r, http.MethodPost, "/api/v1/invoke/closeAccount", `{"args":[]}`)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, chaincode.ERROR, env.Status)
	assert.Equal(t, "unknown function: closeAccount", env.Message)
}

func TestErrorStatusMapping(t *testing.T) {
	r := newLedgerRouter(t)
	acct := createAccount(t, r)

	code, env := do(t, r, http.MethodPost, "/api/v1/accounts/"+acct+"/withdrawals", `{"amount":"1000"}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, env.Message, "insufficient funds")

	code, _ = do(t, r, http.MethodPost, "/api/v1/accounts/"+acct+"/deposits", `{"amount":"-1"}`)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = do(t, r, http.MethodGet, "/api/v1/accounts/6225000000000000/balance", "")
	assert.Equal(t, http.StatusNotFound, code)

	code, env = do(t, r, http.MethodPost, "/api/v1/transfers", `{not json`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "Malformed JSON body", env.Message)
}

type stubInvoker struct {
	resp chaincode.Response
	got  []string
}

func (s *stubInvoker) Invoke(_ context.Context, function string, args []string) chaincode.Response {
	s.got = append([]string{function}, args...)
	return s.resp
}

func TestKindToHTTPStatus(t *testing.T) {
	tests := []struct {
		kind domain.Kind
		want int
	}{
		{domain.KindValidation, http.StatusBadRequest},
		{domain.KindNotFound, http.StatusNotFound},
		{domain.KindConflict, http.StatusConflict},
		{domain.KindInternal, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			inv := &stubInvoker{resp: chaincode.Response{Status: chaincode.ERROR, Kind: tt.kind, Message: "nope"}}
			code, env := do(t, newRouter(t, inv), http.MethodGet, "/api/v1/bank/balance", "")
			assert.Equal(t, tt.want, code)
			assert.Equal(t, "nope", env.Message)
			assert.Equal(t, []string{"getBankBalance"}, inv.got)
		})
	}
}

func TestNonJSONPayloadIsString(t *testing.T) {
	inv := &stubInvoker{resp: chaincode.Success("fine", []byte("not json"))}
	code, env := do(t, newRouter(t, inv), http.MethodGet, "/api/v1/accounts/6225000000000001/transactions?limit=3", "")
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `"not json"`, string(env.Payload))
	assert.Equal(t, []string{"getAccountTransactionRecordList", "6225000000000001", "3"}, inv.got)
}
