package rpc

import (
	"encoding/json"
	"errors"
	"log/slog"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"anchorcore/crypto"
	"anchorcore/native/anchor"
)

// Server exposes the protocol transitions and accounting reads over HTTP. It
// is a thin shell: all validation and serialization of state changes happens
// inside the engine.
type Server struct {
	engine *anchor.Engine
	manual *anchor.ManualReference
	logger *slog.Logger
	mux    *http.ServeMux
}

// NewServer wires the HTTP surface to the supplied engine. The manual
// reference is optional; when present, operators can push price overrides
// through the API.
func NewServer(engine *anchor.Engine, manual *anchor.ManualReference, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		engine: engine,
		manual: manual,
		logger: logger,
		mux:    http.NewServeMux(),
	}
	s.mux.HandleFunc("/v1/status", s.handleStatus)
	s.mux.HandleFunc("/v1/transitions/fund", s.transitionHandler("fund"))
	s.mux.HandleFunc("/v1/transitions/defund", s.transitionHandler("defund"))
	s.mux.HandleFunc("/v1/transitions/mint", s.transitionHandler("mint"))
	s.mux.HandleFunc("/v1/transitions/burn", s.transitionHandler("burn"))
	s.mux.HandleFunc("/v1/oracle/manual", s.handleManualPrice)
	s.mux.Handle("/metrics", promhttp.Handler())
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

type statusResponse struct {
	ModuleAccount   string `json:"moduleAccount"`
	PoolWei         string `json:"poolWei"`
	StableSupplyWei string `json:"stableSupplyWei"`
	BufferSupplyWei string `json:"bufferSupplyWei"`
	DebtRatio       string `json:"debtRatio"`
	BufferPrice     string `json:"bufferPrice"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "GET required")
		return
	}
	state, err := s.engine.State()
	if err != nil {
		s.writeEngineError(w, "status", err)
		return
	}
	ratio, err := s.engine.DebtRatio()
	if err != nil {
		s.writeEngineError(w, "status", err)
		return
	}
	price, err := s.engine.LatestBufferPrice()
	if err != nil {
		s.writeEngineError(w, "status", err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{
		ModuleAccount:   anchor.ModuleAccount().String(),
		PoolWei:         state.Pool.String(),
		StableSupplyWei: state.StableSupply.String(),
		BufferSupplyWei: state.BufferSupply.String(),
		DebtRatio:       ratio.FloatString(18),
		BufferPrice:     price.FloatString(18),
	})
}

type transitionRequest struct {
	Account   string `json:"account"`
	AmountWei string `json:"amountWei"`
}

type transitionResponse struct {
	Operation     string `json:"operation"`
	Account       string `json:"account"`
	AmountWei     string `json:"amountWei"`
	MintedWei     string `json:"mintedWei,omitempty"`
	BurnedWei     string `json:"burnedWei,omitempty"`
	CollateralWei string `json:"collateralOutWei,omitempty"`
}

func (s *Server) transitionHandler(operation string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "POST required")
			return
		}
		var req transitionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		account, err := crypto.DecodeAddress(strings.TrimSpace(req.Account))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid account address")
			return
		}
		amount, ok := new(big.Int).SetString(strings.TrimSpace(req.AmountWei), 10)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid amountWei")
			return
		}

		resp := transitionResponse{Operation: operation, Account: req.Account, AmountWei: amount.String()}
		switch operation {
		case "fund":
			receipt, err := s.engine.Fund(account, amount)
			if err != nil {
				s.writeEngineError(w, operation, err)
				return
			}
			resp.MintedWei = receipt.BufferMinted.String()
		case "defund":
			receipt, err := s.engine.Defund(account, amount)
			if err != nil {
				s.writeEngineError(w, operation, err)
				return
			}
			resp.BurnedWei = receipt.BufferBurned.String()
			resp.CollateralWei = receipt.CollateralOut.String()
		case "mint":
			receipt, err := s.engine.Mint(account, amount)
			if err != nil {
				s.writeEngineError(w, operation, err)
				return
			}
			resp.MintedWei = receipt.StableMinted.String()
		case "burn":
			receipt, err := s.engine.Burn(account, amount)
			if err != nil {
				s.writeEngineError(w, operation, err)
				return
			}
			resp.BurnedWei = receipt.StableBurned.String()
			resp.CollateralWei = receipt.CollateralOut.String()
		default:
			writeError(w, http.StatusNotFound, "unknown operation")
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

type manualPriceRequest struct {
	Rate     string `json:"rate"`
	Decimals uint8  `json:"decimals"`
}

func (s *Server) handleManualPrice(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}
	if s.manual == nil {
		writeError(w, http.StatusNotFound, "manual reference not enabled")
		return
	}
	var req manualPriceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.manual.SetDecimal(req.Rate, req.Decimals, time.Now()); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.logger.Info("manual price updated", "rate", req.Rate, "decimals", req.Decimals)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) writeEngineError(w http.ResponseWriter, operation string, err error) {
	status := statusForError(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("transition failed", "operation", operation, "error", err)
	}
	writeError(w, status, err.Error())
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, anchor.ErrInvalidAmount),
		errors.Is(err, anchor.ErrBelowMinimum):
		return http.StatusBadRequest
	case errors.Is(err, anchor.ErrInsufficientBalance),
		errors.Is(err, anchor.ErrBufferRequired),
		errors.Is(err, anchor.ErrDebtRatioExceeded),
		errors.Is(err, anchor.ErrUndercollateralized),
		errors.Is(err, anchor.ErrInsolvent),
		errors.Is(err, anchor.ErrProportionalDrift):
		return http.StatusConflict
	case errors.Is(err, anchor.ErrModulePaused),
		errors.Is(err, anchor.ErrNoFreshSample),
		errors.Is(err, anchor.ErrInvalidPrice):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
