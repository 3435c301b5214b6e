package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"vascredit/internal/models"
)

var ErrUnavailable = errors.New("ledger unavailable")

// TransactionRecord is the bookkeeping service's durable record of an
// attempted purchase. Success is tri-state: nil until the gateway's first
// definitive answer is attached.
type TransactionRecord struct {
	ID             string    `json:"_id"`
	EmployeeNumber string    `json:"employeeNumber"`
	ProductCode    string    `json:"productCode"`
	Destination    string    `json:"destination"`
	AmountCents    int64     `json:"amount"`
	Reference      string    `json:"reference,omitempty"`
	Success        *bool     `json:"success,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}

type Balance struct {
	EmployeeNumber string `json:"employeeNumber"`
	ClosingCents   int64  `json:"closingBalance"`
}

// Client talks JSON REST to the bookkeeping service. Its three write calls
// are the orchestrator's crash-consistency synchronization points.
type Client struct {
	baseURL string
	client  *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// CreateTransaction persists purchase intent before anything external
// happens. The returned record carries the ledger-assigned id.
func (c *Client) CreateTransaction(ctx context.Context, ownerID string, req models.PurchaseRequest) (TransactionRecord, error) {
	payload := map[string]any{
		"employeeNumber": ownerID,
		"productCode":    req.ProductCode,
		"destination":    req.Destination,
		"amount":         req.AmountCents,
		"createdAt":      time.Now().UTC().Format(time.RFC3339),
	}

	var rec TransactionRecord
	if err := c.do(ctx, http.MethodPost, "/transactions/save-transaction", payload, &rec); err != nil {
		return TransactionRecord{}, err
	}
	if rec.ID == "" {
		return TransactionRecord{}, fmt.Errorf("%w: transaction created without id", ErrUnavailable)
	}
	return rec, nil
}

// AttachReference is one-shot: called exactly once per transaction, after the
// gateway's first definitive accept/reject, not after settlement.
func (c *Client) AttachReference(ctx context.Context, transactionID, reference string, success bool) error {
	payload := map[string]any{
		"reference": reference,
		"success":   success,
	}
	return c.do(ctx, http.MethodPatch, "/transactions/update-reference/"+transactionID, payload, nil)
}

// RecordCreditUsage posts the entry that actually debits the employee's
// limit. Callers must guarantee at-most-once per settled purchase.
func (c *Client) RecordCreditUsage(ctx context.Context, ownerID string, amountCents int64, reference string) error {
	payload := map[string]any{
		"employeeNumber": ownerID,
		"amount":         amountCents,
		"reference":      reference,
		"createdAt":      time.Now().UTC().Format(time.RFC3339),
	}
	return c.do(ctx, http.MethodPost, "/user-credits", payload, nil)
}

func (c *Client) Balance(ctx context.Context, ownerID string) (Balance, error) {
	var out Balance
	err := c.do(ctx, http.MethodGet, "/user-credits/balance/"+ownerID, nil, &out)
	return out, err
}

func (c *Client) TransactionsByOwner(ctx context.Context, ownerID string) ([]TransactionRecord, error) {
	var out []TransactionRecord
	err := c.do(ctx, http.MethodGet, "/transactions/employee/"+ownerID, nil, &out)
	return out, err
}

func (c *Client) do(ctx context.Context, method, path string, payload any, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(resp.Body)
		trimmed := strings.TrimSpace(string(msg))
		if trimmed != "" {
			return fmt.Errorf("%w: http status %d: %s", ErrUnavailable, resp.StatusCode, trimmed)
		}
		return fmt.Errorf("%w: http status %d", ErrUnavailable, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode response: %v", ErrUnavailable, err)
	}
	return nil
}
