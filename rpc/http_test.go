package rpc

import (
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/btcsuite/btcutil/bech32"

	"anchorcore/crypto"
	"anchorcore/native/anchor"
)

func testAccount(seed byte) crypto.Address {
	buf := make([]byte, 20)
	for i := range buf {
		buf[i] = seed
	}
	return crypto.NewAddress(crypto.AccountPrefix, buf)
}

func newTestServer(t *testing.T) (*Server, *anchor.ManualReference) {
	t.Helper()
	manual := anchor.NewManualReference()
	manual.Set(big.NewInt(250), 0, time.Now())
	engine := anchor.NewEngine(anchor.NewMemoryLedger(), anchor.NewMemoryLedger(), manual, anchor.DefaultParams())
	return NewServer(engine, manual, nil), manual
}

func postJSON(t *testing.T, server *Server, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	recorder := httptest.NewRecorder()
	server.ServeHTTP(recorder, req)
	return recorder
}

func TestStatusEndpoint(t *testing.T) {
	server, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/status", nil)
	recorder := httptest.NewRecorder()
	server.ServeHTTP(recorder, req)

	if recorder.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", recorder.Code, recorder.Body.String())
	}
	var resp statusResponse
	if err := json.Unmarshal(recorder.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.PoolWei != "0" {
		t.Fatalf("expected empty pool, got %s", resp.PoolWei)
	}
	if resp.DebtRatio != "0.000000000000000000" {
		t.Fatalf("expected zero debt ratio, got %s", resp.DebtRatio)
	}
	if !strings.HasPrefix(resp.ModuleAccount, "ancmod") {
		t.Fatalf("expected module treasury identity, got %q", resp.ModuleAccount)
	}
}

func TestFundEndpoint(t *testing.T) {
	server, _ := newTestServer(t)
	account := testAccount(0xAA)

	body := `{"account":"` + account.String() + `","amountWei":"1000000000000000000"}`
	recorder := postJSON(t, server, "/v1/transitions/fund", body)

	if recorder.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", recorder.Code, recorder.Body.String())
	}
	var resp transitionResponse
	if err := json.Unmarshal(recorder.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.MintedWei != "250000000000000000000" {
		t.Fatalf("expected 250 units minted, got %s", resp.MintedWei)
	}
}

func TestMintWithoutBufferConflicts(t *testing.T) {
	server, _ := newTestServer(t)
	account := testAccount(0xBB)

	body := `{"account":"` + account.String() + `","amountWei":"1000000000000000000"}`
	recorder := postJSON(t, server, "/v1/transitions/mint", body)

	if recorder.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", recorder.Code, recorder.Body.String())
	}
}

func TestTransitionRejectsBadInput(t *testing.T) {
	server, _ := newTestServer(t)
	account := testAccount(0xCC)

	recorder := postJSON(t, server, "/v1/transitions/fund", `{"account":"garbage","amountWei":"1"}`)
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad address, got %d", recorder.Code)
	}

	body := `{"account":"` + account.String() + `","amountWei":"not-a-number"}`
	recorder = postJSON(t, server, "/v1/transitions/fund", body)
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad amount, got %d", recorder.Code)
	}

	// Valid bech32 text over too few payload bytes must come back as a 400,
	// never crash the handler.
	conv, err := bech32.ConvertBits(make([]byte, 10), 8, 5, true)
	if err != nil {
		t.Fatalf("convert bits: %v", err)
	}
	shortAddr, err := bech32.Encode(string(crypto.AccountPrefix), conv)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	body = `{"account":"` + shortAddr + `","amountWei":"1000000000000000000"}`
	recorder = postJSON(t, server, "/v1/transitions/fund", body)
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for short address payload, got %d", recorder.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/transitions/fund", nil)
	getRecorder := httptest.NewRecorder()
	server.ServeHTTP(getRecorder, req)
	if getRecorder.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405 for GET, got %d", getRecorder.Code)
	}
}

func TestStaleOracleReportsUnavailable(t *testing.T) {
	manual := anchor.NewManualReference()
	engine := anchor.NewEngine(anchor.NewMemoryLedger(), anchor.NewMemoryLedger(), manual, anchor.DefaultParams())
	server := NewServer(engine, manual, nil)
	account := testAccount(0xDD)

	body := `{"account":"` + account.String() + `","amountWei":"1000000000000000000"}`
	recorder := postJSON(t, server, "/v1/transitions/fund", body)
	if recorder.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 with no price sample, got %d: %s", recorder.Code, recorder.Body.String())
	}
}

func TestManualPriceEndpoint(t *testing.T) {
	server, _ := newTestServer(t)

	recorder := postJSON(t, server, "/v1/oracle/manual", `{"rate":"300","decimals":0}`)
	if recorder.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", recorder.Code, recorder.Body.String())
	}

	recorder = postJSON(t, server, "/v1/oracle/manual", `{"rate":"-1","decimals":0}`)
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for negative rate, got %d", recorder.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	server, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	recorder := httptest.NewRecorder()
	server.ServeHTTP(recorder, req)
	if recorder.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", recorder.Code)
	}
}
