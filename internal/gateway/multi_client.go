package gateway

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"vascredit/internal/models"
)

// MultiClient rotates across several gateway mirrors. Only the idempotent
// operations (ListProducts, PollStatus) fail over between endpoints; purchase
// and confirm calls are pinned to the currently-selected endpoint and issued
// exactly once, since a cross-endpoint retry could double-submit.
type MultiClient struct {
	clients       []*HTTPClient
	index         int
	failCount     int
	failThreshold int
	mu            sync.Mutex
}

func NewMultiClient(endpoints []string, creds Credentials, timeout time.Duration, failThreshold int) (*MultiClient, error) {
	list := sanitizeEndpoints(endpoints)
	if len(list) == 0 {
		return nil, errors.New("gateway endpoints is empty")
	}
	if failThreshold <= 0 {
		failThreshold = 3
	}
	clients := make([]*HTTPClient, 0, len(list))
	for _, ep := range list {
		clients = append(clients, NewHTTPClient(ep, creds, timeout))
	}
	return &MultiClient{
		clients:       clients,
		failThreshold: failThreshold,
	}, nil
}

func (m *MultiClient) BaseURL() string {
	client, _ := m.currentClient()
	return client.baseURL
}

func (m *MultiClient) ListProducts(ctx context.Context, kind models.ServiceKind) ([]Product, error) {
	var out []Product
	err := m.withFailover(func(c *HTTPClient) error {
		var err error
		out, err = c.ListProducts(ctx, kind)
		return err
	})
	return out, err
}

func (m *MultiClient) PollStatus(ctx context.Context, reference string) (SettlementStatus, error) {
	var out SettlementStatus
	err := m.withFailover(func(c *HTTPClient) error {
		var err error
		out, err = c.PollStatus(ctx, reference)
		return err
	})
	return out, err
}

func (m *MultiClient) SubmitPurchase(ctx context.Context, call PurchaseCall) (PurchaseResult, error) {
	client, idx := m.currentClient()
	out, err := client.SubmitPurchase(ctx, call)
	m.note(idx, err)
	return out, err
}

func (m *MultiClient) Confirm(ctx context.Context, confirmationNumber, productCode string, amountCents int64) (PurchaseResult, error) {
	client, idx := m.currentClient()
	out, err := client.Confirm(ctx, confirmationNumber, productCode, amountCents)
	m.note(idx, err)
	return out, err
}

func (m *MultiClient) withFailover(call func(*HTTPClient) error) error {
	var lastErr error
	for attempts := 0; attempts < len(m.clients); attempts++ {
		client, idx := m.currentClient()
		err := call(client)
		if err == nil {
			m.resetFailures(idx)
			return nil
		}
		lastErr = err
		m.noteFailure(idx)
		if len(m.clients) > 1 {
			m.rotate()
		}
	}
	return lastErr
}

// note records the outcome of a pinned (non-failover) call so that repeated
// failures still rotate the active endpoint for later calls.
func (m *MultiClient) note(idx int, err error) {
	if err == nil {
		m.resetFailures(idx)
		return
	}
	m.noteFailure(idx)
	if m.shouldRotate() {
		m.rotate()
	}
}

func (m *MultiClient) currentClient() (*HTTPClient, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.clients[m.index], m.index
}

func (m *MultiClient) resetFailures(idx int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.index == idx {
		m.failCount = 0
	}
}

func (m *MultiClient) noteFailure(idx int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.index == idx {
		m.failCount++
	}
}

func (m *MultiClient) shouldRotate() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.failCount >= m.failThreshold
}

func (m *MultiClient) rotate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.index = (m.index + 1) % len(m.clients)
	m.failCount = 0
}

func sanitizeEndpoints(endpoints []string) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(endpoints))
	for _, ep := range endpoints {
		ep = strings.TrimSpace(ep)
		if ep == "" {
			continue
		}
		ep = strings.TrimRight(ep, "/")
		if _, ok := seen[ep]; ok {
			continue
		}
		seen[ep] = struct{}{}
		out = append(out, ep)
	}
	return out
}
