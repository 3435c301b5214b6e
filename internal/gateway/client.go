package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"vascredit/internal/models"
)

var (
	ErrUnreachable   = errors.New("gateway unreachable")
	ErrProtocolError = errors.New("gateway protocol error")
)

// HTTPClient speaks the VAS provider's form-encoded protocol against one
// base URL. It never retries on its own: the purchase and confirm calls have
// no idempotency key, so retry policy belongs to the caller.
type HTTPClient struct {
	baseURL string
	creds   Credentials
	client  *http.Client
}

func NewHTTPClient(baseURL string, creds Credentials, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		creds:   creds,
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *HTTPClient) BaseURL() string {
	return c.baseURL
}

type PurchaseCall struct {
	Kind            models.ServiceKind
	ProductCode     string
	Destination     string
	AmountCents     int64
	CustomReference string
}

func (c *HTTPClient) ListProducts(ctx context.Context, kind models.ServiceKind) ([]Product, error) {
	form := url.Values{}
	form.Set("vUsername", c.creds.Username)

	body, err := c.postForm(ctx, "/vas/v1/products/"+string(kind), form)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Success     bool      `json:"success"`
		ProductList []Product `json:"product_list"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: decode product list: %v", ErrProtocolError, err)
	}
	if !resp.Success {
		return nil, fmt.Errorf("%w: product list refused", ErrProtocolError)
	}
	return resp.ProductList, nil
}

func (c *HTTPClient) SubmitPurchase(ctx context.Context, call PurchaseCall) (PurchaseResult, error) {
	form := url.Values{}
	form.Set("vUsername", c.creds.Username)
	form.Set("vPassword", c.creds.Password)
	form.Set("vProductCode", call.ProductCode)
	form.Set("vAmount", strconv.FormatInt(call.AmountCents, 10))
	if call.Kind == models.KindElectricity {
		form.Set("vMeterNumber", call.Destination)
		if call.CustomReference != "" {
			form.Set("vCustomReference", call.CustomReference)
		}
	} else {
		form.Set("vMobileNumber", call.Destination)
	}

	body, err := c.postForm(ctx, "/vas/v1/purchase/"+string(call.Kind), form)
	if err != nil {
		return PurchaseResult{}, err
	}
	return parsePurchaseResult(body)
}

// PollStatus is a side-effect-free status lookup, safe to repeat. An empty
// or malformed body classifies as still pending rather than an error.
func (c *HTTPClient) PollStatus(ctx context.Context, reference string) (SettlementStatus, error) {
	form := url.Values{}
	form.Set("vUsername", c.creds.Username)
	form.Set("vPassword", c.creds.Password)
	form.Set("vReference", reference)

	body, err := c.postForm(ctx, "/vas/v1/transactions/status", form)
	if err != nil {
		return SettlementStatus{}, err
	}

	var resp struct {
		Data struct {
			ConfirmationNumber string `json:"confirmation_number"`
			ElecData           struct {
				StdTokens []struct {
					Code string `json:"code"`
				} `json:"std_tokens"`
			} `json:"elec_data"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return SettlementStatus{Raw: body}, nil
	}

	status := SettlementStatus{
		ConfirmationNumber: resp.Data.ConfirmationNumber,
		Raw:                body,
	}
	for _, tok := range resp.Data.ElecData.StdTokens {
		if tok.Code != "" {
			status.Token = tok.Code
			break
		}
	}
	return status, nil
}

func (c *HTTPClient) Confirm(ctx context.Context, confirmationNumber, productCode string, amountCents int64) (PurchaseResult, error) {
	form := url.Values{}
	form.Set("vUsername", c.creds.Username)
	form.Set("vPassword", c.creds.Password)
	form.Set("vProductCode", productCode)
	form.Set("vConfirmationNumber", confirmationNumber)
	form.Set("vAmount", strconv.FormatInt(amountCents, 10))

	body, err := c.postForm(ctx, "/vas/v1/confirm", form)
	if err != nil {
		return PurchaseResult{}, err
	}
	return parsePurchaseResult(body)
}

func parsePurchaseResult(body []byte) (PurchaseResult, error) {
	var resp struct {
		Success   bool   `json:"success"`
		Reference string `json:"reference"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return PurchaseResult{}, fmt.Errorf("%w: decode purchase response: %v", ErrProtocolError, err)
	}
	return PurchaseResult{Accepted: resp.Success, Reference: resp.Reference}, nil
}

func (c *HTTPClient) postForm(ctx context.Context, path string, form url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrUnreachable, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := strings.TrimSpace(string(body))
		if msg != "" {
			return nil, fmt.Errorf("%w: http status %d: %s", ErrProtocolError, resp.StatusCode, msg)
		}
		return nil, fmt.Errorf("%w: http status %d", ErrProtocolError, resp.StatusCode)
	}
	return body, nil
}
