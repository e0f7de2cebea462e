package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"

	"github.com/punchamoorthee/bankledger/internal/chaincode"
	"github.com/punchamoorthee/bankledger/internal/domain"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bankledger_http_requests_total",
		Help: "Total HTTP requests processed, labeled by status code",
	}, []string{"method", "endpoint", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "bankledger_http_request_duration_seconds",
		Help:    "Latency distribution of HTTP requests",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	}, []string{"method", "endpoint"})
)

const maxBodyBytes = 1 << 20

// Invoker runs one named chaincode function.
type Invoker interface {
	Invoke(ctx context.Context, function string, args []string) chaincode.Response
}

type Handler struct {
	invoker Invoker
	logger  *logrus.Entry
}

func NewHandler(invoker Invoker, logger *logrus.Entry) *Handler {
	return &Handler{invoker: invoker, logger: logger.WithField("component", "http")}
}

// Register mounts the health check and the /api/v1 routes on r.
func (h *Handler) Register(r *mux.Router) {
	r.Use(h.instrument)
	r.HandleFunc("/health", h.HealthCheckHandler).Methods(http.MethodGet)

	v1 := r.PathPrefix("/api/v1").Subrouter()
	v1.HandleFunc("/invoke/{function}", h.InvokeHandler).Methods(http.MethodPost)
	v1.HandleFunc("/bank/balance", h.BankBalanceHandler).Methods(http.MethodGet)
	v1.HandleFunc("/accounts", h.CreateAccountHandler).Methods(http.MethodPost)
	v1.HandleFunc("/accounts", h.ListAccountsHandler).Methods(http.MethodGet)
	v1.HandleFunc("/accounts/{accountNo}/balance", h.GetBalanceHandler).Methods(http.MethodGet)
	v1.HandleFunc("/accounts/{accountNo}/transactions", h.ListTransactionsHandler).Methods(http.MethodGet)
	v1.HandleFunc("/accounts/{accountNo}/deposits", h.DepositHandler).Methods(http.MethodPost)
	v1.HandleFunc("/accounts/{accountNo}/withdrawals", h.WithdrawHandler).Methods(http.MethodPost)
	v1.HandleFunc("/transfers", h.TransferHandler).Methods(http.MethodPost)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// instrument records request count and latency under the matched route
// template, so path variables do not explode label cardinality.
func (h *Handler) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		endpoint := r.URL.Path
		if route := mux.CurrentRoute(r); route != nil {
			if tpl, err := route.GetPathTemplate(); err == nil {
				endpoint = tpl
			}
		}
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		elapsed := time.Since(start)
		httpRequestDuration.WithLabelValues(r.Method, endpoint).Observe(elapsed.Seconds())
		httpRequestsTotal.WithLabelValues(r.Method, endpoint, strconv.Itoa(rec.status)).Inc()
		h.logger.WithFields(logrus.Fields{
			"method":   r.Method,
			"endpoint": endpoint,
			"status":   rec.status,
			"duration": elapsed,
		}).Debug("request served")
	})
}

// envelope is the wire form of a chaincode.Response. Payloads that are
// valid JSON are embedded as-is, anything else as a string.
type envelope struct {
	Status  int32  `json:"status"`
	Message string `json:"message"`
	Payload any    `json:"payload,omitempty"`
}

func httpStatus(resp chaincode.Response) int {
	if resp.IsOK() {
		return http.StatusOK
	}
	switch resp.Kind {
	case domain.KindValidation:
		return http.StatusBadRequest
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func respondWithResponse(w http.ResponseWriter, resp chaincode.Response) {
	env := envelope{Status: resp.Status, Message: resp.Message}
	if len(resp.Payload) > 0 {
		if json.Valid(resp.Payload) {
			env.Payload = json.RawMessage(resp.Payload)
		} else {
			env.Payload = string(resp.Payload)
		}
	}
	respondWithJSON(w, httpStatus(resp), env)
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, envelope{Status: chaincode.ERROR, Message: message})
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}
