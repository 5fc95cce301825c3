//go:build integration
// +build integration

// Package integration provides end-to-end tests for the Veritas risk
// metrics and alerts engine.
//
// These tests verify the COMPLETE analysis pipeline:
//
//	Statements → Metrics → Score → Alert Rules → Summary
//
// Run with: go test -tags=integration -v ./tests/integration/...
//
// UNDERSTANDING THE DOMAIN:
//
// 1. STATEMENT: One bank statement - an opening balance plus its
//    transactions. Positive amounts are deposits, negative are
//    withdrawals.
//
// 2. METRICS: Deterministic facts computed per statement: NSF count,
//    average daily balance, cash-flow totals, income stability.
//
// 3. SCORE: A creditworthiness value in [300, 850] synthesized from
//    the metrics, with a per-factor breakdown for explainability.
//
// 4. ALERT: A finding emitted by a rule, ranked CRITICAL > HIGH >
//    MEDIUM > LOW. Rules never block each other; a failing rule is
//    skipped, the rest still run.
//
// 5. CUSTOM RULE: An operator-defined CEL expression over the metric
//    variables, mapped to a severity through bands. Database-driven,
//    hot-reloadable via POST /rules/reload.
//
// The server must be running before these tests execute. Custom rule
// scenarios seed their own rules through the API.
package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"testing"
	"time"
)

// TestConfig holds test environment configuration
type TestConfig struct {
	BaseURL  string
	TenantID string
}

func getTestConfig() TestConfig {
	baseURL := os.Getenv("VERITAS_TEST_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	return TestConfig{
		BaseURL:  baseURL,
		TenantID: "test-tenant",
	}
}

// ============================================================================
// API Request/Response Types (matching Veritas's API contract)
// ============================================================================

// Transaction is one statement line item.
type Transaction struct {
	Date        time.Time `json:"date"`
	Description string    `json:"description,omitempty"`
	Amount      float64   `json:"amount"`
}

// Statement is one bank statement in the analyze request.
type Statement struct {
	ID             string        `json:"id,omitempty"`
	AccountName    string        `json:"accountName,omitempty"`
	OpeningBalance float64       `json:"openingBalance"`
	Transactions   []Transaction `json:"transactions"`
}

// Application holds the stated business attributes.
type Application struct {
	BusinessName        string  `json:"businessName,omitempty"`
	Industry            string  `json:"industry,omitempty"`
	StatedAnnualRevenue float64 `json:"statedAnnualRevenue,omitempty"`
	RequestedAmount     float64 `json:"requestedAmount,omitempty"`
	TermMonths          int     `json:"termMonths,omitempty"`
}

// AnalyzeRequest is the body sent to POST /analyze.
type AnalyzeRequest struct {
	Statements  []Statement  `json:"statements"`
	Application *Application `json:"application,omitempty"`
}

// Alert is one finding in the response.
type Alert struct {
	Code     string `json:"code"`
	Severity string `json:"severity"`
	Category string `json:"category"`
	Title    string `json:"title"`
	Message  string `json:"message"`
}

// AnalyzeResponse is what POST /analyze returns.
type AnalyzeResponse struct {
	AnalysisID string `json:"analysisId"`
	Score      struct {
		Value           float64            `json:"value"`
		RiskLevel       string             `json:"riskLevel"`
		FactorBreakdown map[string]float64 `json:"factorBreakdown"`
	} `json:"score"`
	Alerts  []Alert `json:"alerts"`
	Summary struct {
		Total   int    `json:"total"`
		Highest string `json:"highestSeverity"`
	} `json:"summary"`
	Metadata struct {
		TraceID         string `json:"traceId"`
		TotalMs         int64  `json:"totalMs"`
		StatementsCount int    `json:"statementsCount"`
		RulesEvaluated  int    `json:"rulesEvaluated"`
		EngineVersion   string `json:"engineVersion"`
	} `json:"metadata"`
}

// ============================================================================
// Test Helper Functions
// ============================================================================

func doJSON(t *testing.T, config TestConfig, method, path string, payload any) (*http.Response, []byte) {
	t.Helper()

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("Failed to marshal request: %v", err)
		}
		body = bytes.NewReader(raw)
	}

	httpReq, err := http.NewRequest(method, config.BaseURL+path, body)
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Tenant-ID", config.TenantID)

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(httpReq)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read response: %v", err)
	}
	return resp, respBody
}

func analyze(t *testing.T, config TestConfig, req AnalyzeRequest) AnalyzeResponse {
	t.Helper()

	resp, respBody := doJSON(t, config, "POST", "/analyze", req)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", resp.StatusCode, string(respBody))
	}

	var result AnalyzeResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		t.Fatalf("Failed to unmarshal response: %v (body: %s)", err, string(respBody))
	}
	return result
}

func hasAlert(resp AnalyzeResponse, code string) bool {
	for _, a := range resp.Alerts {
		if a.Code == code {
			return true
		}
	}
	return false
}

func day(d int) time.Time {
	return time.Date(2024, 6, d, 12, 0, 0, 0, time.UTC)
}

// healthyStatement is a month of steady activity: regular income,
// ordinary expenses, balance never near zero.
func healthyStatement() Statement {
	return Statement{
		AccountName:    "Cedar Grove Consulting LLC",
		OpeningBalance: 12000,
		Transactions: []Transaction{
			{Date: day(1), Description: "Client invoice 1041", Amount: 4200},
			{Date: day(5), Description: "Office lease", Amount: -2100},
			{Date: day(8), Description: "Client invoice 1042", Amount: 4200},
			{Date: day(12), Description: "Payroll", Amount: -3500},
			{Date: day(15), Description: "Client invoice 1043", Amount: 4200},
			{Date: day(20), Description: "Software subscriptions", Amount: -450},
			{Date: day(22), Description: "Client invoice 1044", Amount: 4200},
			{Date: day(26), Description: "Payroll", Amount: -3500},
			{Date: day(28), Description: "Utilities", Amount: -320},
		},
	}
}

// distressedStatement shows repeated NSF fees and an overdrawn balance.
func distressedStatement() Statement {
	return Statement{
		AccountName:    "Cedar Grove Consulting LLC",
		OpeningBalance: 400,
		Transactions: []Transaction{
			{Date: day(2), Description: "Card settlement", Amount: 600},
			{Date: day(4), Description: "Rent", Amount: -1400},
			{Date: day(5), Description: "NSF fee", Amount: -35},
			{Date: day(9), Description: "Insufficient funds fee", Amount: -35},
			{Date: day(12), Description: "Card settlement", Amount: 500},
			{Date: day(16), Description: "NSF fee", Amount: -35},
			{Date: day(20), Description: "Supplier payment", Amount: -800},
			{Date: day(25), Description: "NSF fee", Amount: -35},
		},
	}
}

// ============================================================================
// SCENARIO 1: Healthy Statement (No High-Severity Alerts)
// ============================================================================

func TestHealthyStatement_CleanAnalysis(t *testing.T) {
	/*
	   SCENARIO: A month of steady consulting-firm activity.

	   EXPECTED BEHAVIOR:
	   - No NSF fees → NSF_THRESHOLD quiet
	   - Balance stays well above the low-balance floor
	   - Score lands comfortably above the high-risk cutoffs
	*/
	config := getTestConfig()

	result := analyze(t, config, AnalyzeRequest{
		Statements: []Statement{healthyStatement()},
	})

	if result.AnalysisID == "" {
		t.Fatal("Expected a non-empty analysisId")
	}
	if result.Score.Value < 300 || result.Score.Value > 850 {
		t.Errorf("Score %v outside [300, 850]", result.Score.Value)
	}
	if hasAlert(result, "HIGH_NSF_COUNT") {
		t.Error("HIGH_NSF_COUNT fired on a statement with no NSF fees")
	}
	if hasAlert(result, "NEGATIVE_BALANCE") {
		t.Error("NEGATIVE_BALANCE fired on a statement that never went negative")
	}
	if result.Summary.Highest == "CRITICAL" {
		t.Errorf("Unexpected critical alert on a healthy statement: %+v", result.Alerts)
	}
	if len(result.Score.FactorBreakdown) == 0 {
		t.Error("Expected a factor breakdown for explainability")
	}
}

// ============================================================================
// SCENARIO 2: Distressed Statement (NSF + Negative Balance)
// ============================================================================

func TestDistressedStatement_AlertsFire(t *testing.T) {
	/*
	   SCENARIO: Four NSF fees in one month and the running balance
	   dips below zero mid-period.

	   EXPECTED BEHAVIOR:
	   - NSF_THRESHOLD fires (4 >= 3)
	   - NEGATIVE_BALANCE fires exactly once (single detector)
	   - Alerts come back sorted most severe first
	*/
	config := getTestConfig()

	result := analyze(t, config, AnalyzeRequest{
		Statements: []Statement{distressedStatement()},
	})

	if !hasAlert(result, "HIGH_NSF_COUNT") {
		t.Errorf("Expected HIGH_NSF_COUNT, got %+v", result.Alerts)
	}

	negatives := 0
	for _, a := range result.Alerts {
		if a.Code == "NEGATIVE_BALANCE" {
			negatives++
		}
	}
	if negatives != 1 {
		t.Errorf("Expected exactly one NEGATIVE_BALANCE alert, got %d", negatives)
	}

	rank := map[string]int{"CRITICAL": 0, "HIGH": 1, "MEDIUM": 2, "LOW": 3}
	for i := 1; i < len(result.Alerts); i++ {
		if rank[result.Alerts[i-1].Severity] > rank[result.Alerts[i].Severity] {
			t.Fatalf("Alerts not sorted by severity: %s before %s",
				result.Alerts[i-1].Severity, result.Alerts[i].Severity)
		}
	}
}

// ============================================================================
// SCENARIO 3: Multi-Statement Application
// ============================================================================

func TestMultiStatement_AppLevelRulesFireOnce(t *testing.T) {
	/*
	   SCENARIO: Two statements analyzed together with an incomplete
	   application (no industry, no stated revenue).

	   EXPECTED BEHAVIOR:
	   - Per-statement rules may fire per statement
	   - MISSING_APPLICATION_DATA fires exactly once, not once per
	     statement
	   - metadata.statementsCount reflects the batch
	*/
	config := getTestConfig()

	result := analyze(t, config, AnalyzeRequest{
		Statements: []Statement{healthyStatement(), distressedStatement()},
		Application: &Application{
			BusinessName: "Cedar Grove Consulting LLC",
		},
	})

	if result.Metadata.StatementsCount != 2 {
		t.Errorf("statementsCount = %d, want 2", result.Metadata.StatementsCount)
	}

	missing := 0
	for _, a := range result.Alerts {
		if a.Code == "MISSING_APPLICATION_DATA" {
			missing++
		}
	}
	if missing != 1 {
		t.Errorf("MISSING_APPLICATION_DATA fired %d times, want exactly 1", missing)
	}
}

// ============================================================================
// SCENARIO 4: Quick Scoring
// ============================================================================

func TestQuickScore(t *testing.T) {
	/*
	   SCENARIO: POST /score with a single statement.

	   EXPECTED BEHAVIOR:
	   - Metrics and score come back without any alert evaluation
	   - Deposit/withdrawal totals match the statement
	*/
	config := getTestConfig()

	resp, respBody := doJSON(t, config, "POST", "/score", map[string]any{
		"statement": healthyStatement(),
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", resp.StatusCode, string(respBody))
	}

	var result struct {
		Metrics struct {
			TotalDeposits    float64 `json:"totalDeposits"`
			TotalWithdrawals float64 `json:"totalWithdrawals"`
			NSFCount         int     `json:"nsfCount"`
		} `json:"metrics"`
		Score struct {
			Value     float64 `json:"value"`
			RiskLevel string  `json:"riskLevel"`
		} `json:"score"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		t.Fatalf("Failed to unmarshal response: %v", err)
	}

	if result.Metrics.TotalDeposits != 16800 {
		t.Errorf("totalDeposits = %v, want 16800", result.Metrics.TotalDeposits)
	}
	if result.Score.RiskLevel == "" {
		t.Error("Expected a risk level")
	}
}

// ============================================================================
// SCENARIO 5: Analysis Retrieval
// ============================================================================

func TestAnalysisRetrieval(t *testing.T) {
	config := getTestConfig()

	created := analyze(t, config, AnalyzeRequest{
		Statements: []Statement{healthyStatement()},
	})

	resp, respBody := doJSON(t, config, "GET", "/analyses/"+created.AnalysisID, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", resp.StatusCode, string(respBody))
	}

	var fetched struct {
		ID    string `json:"id"`
		Score struct {
			Value float64 `json:"value"`
		} `json:"score"`
	}
	if err := json.Unmarshal(respBody, &fetched); err != nil {
		t.Fatalf("Failed to unmarshal response: %v", err)
	}
	if fetched.ID != created.AnalysisID {
		t.Errorf("Fetched id %q, want %q", fetched.ID, created.AnalysisID)
	}
	if fetched.Score.Value != created.Score.Value {
		t.Errorf("Fetched score %v, want %v", fetched.Score.Value, created.Score.Value)
	}

	// The digest endpoint serves the compact cached view.
	resp, respBody = doJSON(t, config, "GET", "/analyses/"+created.AnalysisID+"/digest", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Digest: expected status 200, got %d: %s", resp.StatusCode, string(respBody))
	}

	// Unknown IDs are a clean 404.
	resp, _ = doJSON(t, config, "GET", "/analyses/does-not-exist", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown analysis, got %d", resp.StatusCode)
	}
}

// ============================================================================
// SCENARIO 6: Custom Rule Lifecycle
// ============================================================================

func TestCustomRuleLifecycle(t *testing.T) {
	/*
	   SCENARIO: Create a CEL rule through the API, hot-reload, and
	   verify it fires in the next analysis.

	   RULE: total_deposits < 50000.0 → MEDIUM "deposit volume below
	   underwriting floor"
	*/
	config := getTestConfig()
	ruleID := fmt.Sprintf("itest-deposit-floor-%d", time.Now().UnixNano())

	createBody := map[string]any{
		"id":         ruleID,
		"name":       "deposit volume floor",
		"expression": "total_deposits < 50000.0",
		"enabled":    true,
		"bands": []map[string]any{
			{"alert": true, "severity": "MEDIUM", "reason": "deposit volume below underwriting floor"},
		},
	}

	resp, respBody := doJSON(t, config, "POST", "/rules", createBody)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("Create rule: expected 201, got %d: %s", resp.StatusCode, string(respBody))
	}

	resp, respBody = doJSON(t, config, "POST", "/rules/reload", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Reload rules: expected 200, got %d: %s", resp.StatusCode, string(respBody))
	}

	result := analyze(t, config, AnalyzeRequest{
		Statements: []Statement{healthyStatement()},
	})
	if !hasAlert(result, "CUSTOM_RULE") {
		t.Errorf("Expected CUSTOM_RULE alert after reload, got %+v", result.Alerts)
	}

	// Invalid expressions are rejected before anything is persisted.
	badBody := map[string]any{
		"id":         ruleID + "-bad",
		"name":       "broken",
		"expression": "no_such_variable > 1.0",
		"enabled":    true,
	}
	resp, _ = doJSON(t, config, "POST", "/rules", badBody)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400 for invalid expression, got %d", resp.StatusCode)
	}
}

// ============================================================================
// SCENARIO 7: Request Validation
// ============================================================================

func TestEmptyStatements_Error(t *testing.T) {
	config := getTestConfig()

	resp, _ := doJSON(t, config, "POST", "/analyze", AnalyzeRequest{})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400 for empty statements, got %d", resp.StatusCode)
	}
}

func TestMissingTenantHeader_Error(t *testing.T) {
	config := getTestConfig()

	raw, _ := json.Marshal(AnalyzeRequest{Statements: []Statement{healthyStatement()}})
	httpReq, err := http.NewRequest("POST", config.BaseURL+"/analyze", bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(httpReq)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400 without X-Tenant-ID, got %d", resp.StatusCode)
	}
}

// ============================================================================
// SCENARIO 8: Response Metadata
// ============================================================================

func TestResponseMetadata(t *testing.T) {
	config := getTestConfig()

	result := analyze(t, config, AnalyzeRequest{
		Statements: []Statement{healthyStatement()},
	})

	if result.Metadata.TraceID == "" {
		t.Error("Expected a traceId in metadata")
	}
	if result.Metadata.EngineVersion == "" {
		t.Error("Expected an engineVersion in metadata")
	}
	if result.Metadata.RulesEvaluated <= 0 {
		t.Errorf("rulesEvaluated = %d, want > 0", result.Metadata.RulesEvaluated)
	}
	if result.Metadata.TotalMs < 0 {
		t.Errorf("totalMs = %d, want >= 0", result.Metadata.TotalMs)
	}
}
