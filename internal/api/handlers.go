package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gorilla/mux"
)

type invokeRequest struct {
	Args []string `json:"args"`
}

type amountRequest struct {
	Amount json.Number `json:"amount"`
}

type transferRequest struct {
	FromAccountNo string      `json:"fromAccountNo"`
	ToAccountNo   string      `json:"toAccountNo"`
	Amount        json.Number `json:"amount"`
}

func (h *Handler) HealthCheckHandler(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// InvokeHandler runs any chaincode function by name with the args array
// from the body, exactly as a chaincode client would.
func (h *Handler) InvokeHandler(w http.ResponseWriter, r *http.Request) {
	var req invokeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	h.invoke(w, r, mux.Vars(r)["function"], req.Args...)
}

// CreateAccountHandler passes the body through as the account profile.
func (h *Handler) CreateAccountHandler(w http.ResponseWriter, r *http.Request) {
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	h.invoke(w, r, "createAccount", string(body))
}

func (h *Handler) ListAccountsHandler(w http.ResponseWriter, r *http.Request) {
	h.invoke(w, r, "getAllAccountList")
}

func (h *Handler) GetBalanceHandler(w http.ResponseWriter, r *http.Request) {
	h.invoke(w, r, "getAccountBalance", mux.Vars(r)["accountNo"])
}

func (h *Handler) ListTransactionsHandler(w http.ResponseWriter, r *http.Request) {
	args := []string{mux.Vars(r)["accountNo"]}
	if limit := r.URL.Query().Get("limit"); limit != "" {
		args = append(args, limit)
	}
	h.invoke(w, r, "getAccountTransactionRecordList", args...)
}

func (h *Handler) DepositHandler(w http.ResponseWriter, r *http.Request) {
	var req amountRequest
	if !decodeBody(w, r, &req) {
		return
	}
	h.invoke(w, r, "depositMoney", mux.Vars(r)["accountNo"], req.Amount.String())
}

func (h *Handler) WithdrawHandler(w http.ResponseWriter, r *http.Request) {
	var req amountRequest
	if !decodeBody(w, r, &req) {
		return
	}
	h.invoke(w, r, "drawalMoney", mux.Vars(r)["accountNo"], req.Amount.String())
}

func (h *Handler) TransferHandler(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if !decodeBody(w, r, &req) {
		return
	}
	h.invoke(w, r, "transferAccount", req.FromAccountNo, req.ToAccountNo, req.Amount.String())
}

func (h *Handler) BankBalanceHandler(w http.ResponseWriter, r *http.Request) {
	h.invoke(w, r, "getBankBalance")
}

func (h *Handler) invoke(w http.ResponseWriter, r *http.Request, function string, args ...string) {
	if args == nil {
		args = []string{}
	}
	respondWithResponse(w, h.invoker.Invoke(r.Context(), function, args))
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := readAllLimited(w, r)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondWithError(w, http.StatusRequestEntityTooLarge, "Request body too large")
			return nil, false
		}
		respondWithError(w, http.StatusBadRequest, "Stream read error")
		return nil, false
	}
	return body, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	body, ok := readBody(w, r)
	if !ok {
		return false
	}
	if err := json.Unmarshal(body, dst); err != nil {
		respondWithError(w, http.StatusBadRequest, "Malformed JSON body")
		return false
	}
	return true
}

func readAllLimited(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	return io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
}
