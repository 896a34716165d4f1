package rpc

import (
	"bytes"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"marginvault/config"
	"marginvault/core"
	"marginvault/storage"
	"marginvault/wallet"
)

const testToken = "secret-token"

var (
	testDepositor = [20]byte{0x21}
	testBorrower  = [20]byte{0x22}
	testCollector = [20]byte{0x23}
)

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	t.Setenv("MARGINVAULT_RPC_TOKEN", testToken)

	router := wallet.NewV2Router()
	node, err := core.NewNode(storage.NewMemDB(), core.Options{
		Protocol: config.Protocol{
			MarginFractionBps:    2_000,
			BorrowRateBps:        800,
			PoolAPYBps:           600,
			LoanDurationSeconds:  2_592_000,
			PoolInterestShareBps: 8_000,
		},
		FeeCollector:  testCollector,
		AllowedVenues: []string{"venue-a"},
		AllowedTokens: []string{"WETH"},
		Router:        router,
	})
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	err = node.ApplyGenesis(map[[20]byte]*big.Int{
		testDepositor: big.NewInt(100_000),
		testBorrower:  big.NewInt(5_000),
	})
	if err != nil {
		t.Fatalf("genesis: %v", err)
	}

	server := NewServer(node, nil)
	ts := httptest.NewServer(server.Router())
	t.Cleanup(ts.Close)
	return server, ts
}

func call(t *testing.T, url, token, method string, params interface{}) *RPCResponse {
	t.Helper()
	var rawParams []json.RawMessage
	if params != nil {
		encoded, err := json.Marshal(params)
		if err != nil {
			t.Fatalf("marshal params: %v", err)
		}
		rawParams = []json.RawMessage{encoded}
	}
	payload, err := json.Marshal(RPCRequest{JSONRPC: jsonRPCVersion, Method: method, Params: rawParams, ID: 1})
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	req, err := http.NewRequest(http.MethodPost, url+"/rpc", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()

	decoded := &RPCResponse{}
	if err := json.NewDecoder(resp.Body).Decode(decoded); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return decoded
}

func addrHex(addr [20]byte) string {
	return formatAddress(addr)
}

func TestMutatingMethodsRequireBearerToken(t *testing.T) {
	_, ts := newTestServer(t)

	params := vaultDepositParams{
		Caller:   addrHex(testDepositor),
		Receiver: addrHex(testDepositor),
		Amount:   "10000",
	}
	resp := call(t, ts.URL, "", "vault_deposit", params)
	if resp.Error == nil || resp.Error.Code != codeUnauthorized {
		t.Fatalf("expected unauthorized, got %+v", resp)
	}
	resp = call(t, ts.URL, "wrong-token", "vault_deposit", params)
	if resp.Error == nil || resp.Error.Code != codeUnauthorized {
		t.Fatalf("expected unauthorized for bad token, got %+v", resp)
	}
	resp = call(t, ts.URL, testToken, "vault_deposit", params)
	if resp.Error != nil {
		t.Fatalf("deposit failed: %+v", resp.Error)
	}
}

func TestQueriesNeedNoToken(t *testing.T) {
	_, ts := newTestServer(t)

	resp := call(t, ts.URL, "", "vault_getPool", nil)
	if resp.Error != nil {
		t.Fatalf("pool query failed: %+v", resp.Error)
	}
	resp = call(t, ts.URL, "", "loan_stats", nil)
	if resp.Error != nil {
		t.Fatalf("stats query failed: %+v", resp.Error)
	}
}

func TestUnknownMethodRejected(t *testing.T) {
	_, ts := newTestServer(t)

	resp := call(t, ts.URL, "", "vault_unknown", nil)
	if resp.Error == nil || resp.Error.Code != codeMethodNotFound {
		t.Fatalf("expected method not found, got %+v", resp)
	}
}

func TestLoanLifecycleOverRPC(t *testing.T) {
	_, ts := newTestServer(t)

	resp := call(t, ts.URL, testToken, "vault_deposit", vaultDepositParams{
		Caller:   addrHex(testDepositor),
		Receiver: addrHex(testDepositor),
		Amount:   "10000",
	})
	if resp.Error != nil {
		t.Fatalf("deposit: %+v", resp.Error)
	}

	resp = call(t, ts.URL, testToken, "loan_create", loanCreateParams{
		Borrower: addrHex(testBorrower),
		Amount:   "10000",
	})
	if resp.Error != nil {
		t.Fatalf("create loan: %+v", resp.Error)
	}
	var position loanPositionResult
	rerender(t, resp.Result, &position)
	if !position.Active || position.LoanAmount != "10000" || position.MarginAmount != "2000" {
		t.Fatalf("unexpected position: %+v", position)
	}

	resp = call(t, ts.URL, "", "loan_minimumRequired", loanBorrowerParams{Borrower: addrHex(testBorrower)})
	if resp.Error != nil {
		t.Fatalf("minimum required: %+v", resp.Error)
	}
	var quote vaultQuoteResult
	rerender(t, resp.Result, &quote)
	if quote.Value != "10000" {
		t.Fatalf("unexpected minimum: %+v", quote)
	}

	resp = call(t, ts.URL, testToken, "loan_repay", loanBorrowerParams{Borrower: addrHex(testBorrower)})
	if resp.Error != nil {
		t.Fatalf("repay: %+v", resp.Error)
	}

	resp = call(t, ts.URL, "", "collateral_getRecord", loanBorrowerParams{Borrower: addrHex(testBorrower)})
	if resp.Error != nil {
		t.Fatalf("record query: %+v", resp.Error)
	}
	var record marginRecordResult
	rerender(t, resp.Result, &record)
	if record.Active || record.Outcome != "repaid" {
		t.Fatalf("unexpected record: %+v", record)
	}
}

func TestEngineFailuresMapToErrorCodes(t *testing.T) {
	_, ts := newTestServer(t)

	// Nothing deposited yet, so pool liquidity cannot cover the loan.
	resp := call(t, ts.URL, testToken, "loan_create", loanCreateParams{
		Borrower: addrHex(testBorrower),
		Amount:   "10000",
	})
	if resp.Error == nil || resp.Error.Code != codeLiquidity {
		t.Fatalf("expected liquidity error, got %+v", resp)
	}

	resp = call(t, ts.URL, testToken, "loan_repay", loanBorrowerParams{Borrower: addrHex(testBorrower)})
	if resp.Error == nil || resp.Error.Code != codePrecondition {
		t.Fatalf("expected precondition error, got %+v", resp)
	}

	resp = call(t, ts.URL, testToken, "vault_deposit", vaultDepositParams{
		Caller:   addrHex(testDepositor),
		Receiver: addrHex(testDepositor),
		Amount:   "-5",
	})
	if resp.Error == nil || resp.Error.Code != codeInvalidParams {
		t.Fatalf("expected invalid params, got %+v", resp)
	}
}

func TestRateLimitExhausts(t *testing.T) {
	server, ts := newTestServer(t)
	server.SetRateLimit(0.001, 2)

	for i := 0; i < 2; i++ {
		resp := call(t, ts.URL, "", "vault_getPool", nil)
		if resp.Error != nil && resp.Error.Code == codeRateLimited {
			t.Fatalf("request %d limited too early", i)
		}
	}
	resp := call(t, ts.URL, "", "vault_getPool", nil)
	if resp.Error == nil || resp.Error.Code != codeRateLimited {
		t.Fatalf("expected rate limit, got %+v", resp)
	}
}

func TestHealthEndpoint(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.StatusCode)
	}
}

// rerender round-trips an untyped result into its typed form.
func rerender(t *testing.T, raw interface{}, target interface{}) {
	t.Helper()
	encoded, err := json.Marshal(raw)
	if err != nil {
		t.Fatalf("marshal result: %v", err)
	}
	if err := json.Unmarshal(encoded, target); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
}
