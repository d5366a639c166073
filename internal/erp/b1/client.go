// Package b1 implements the erp.Client boundary against the SAP Business One
// service layer.
package b1

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/stockbridge/stockbridge/internal/erp"
)

// idemKeyField carries the idempotency key on posted documents so that an
// ambiguous outcome can later be reconciled with an OData filter query.
const idemKeyField = "U_IdemKey"

// documentEndpoints maps document types to service layer collections.
var documentEndpoints = map[string]string{
	"GRPO":     "PurchaseDeliveryNotes",
	"TRANSFER": "StockTransfers",
	"INVOICE":  "Invoices",
}

// Config groups connection settings for the service layer.
type Config struct {
	BaseURL   string
	Username  string
	Password  string
	CompanyDB string
	Timeout   time.Duration
}

// Client talks to the SAP B1 service layer. Safe for concurrent use; the
// session cookie is shared and refreshed on 401.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *slog.Logger

	mu       sync.Mutex
	loggedIn bool
}

// NewClient constructs a service layer client.
func NewClient(cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("b1: base url required")
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		cfg:    cfg,
		logger: logger,
		httpClient: &http.Client{
			Timeout: timeout,
			Jar:     jar,
		},
	}, nil
}

// ValidateSerials implements erp.Client.
func (c *Client) ValidateSerials(ctx context.Context, serials []string) (map[string]erp.SerialLookup, error) {
	if len(serials) == 0 {
		return map[string]erp.SerialLookup{}, nil
	}
	if err := c.ensureLoggedIn(ctx); err != nil {
		return nil, err
	}
	body := map[string]string{
		"ParamList": fmt.Sprintf("serials='%s'", strings.Join(serials, ",")),
	}
	var out struct {
		Value []struct {
			DistNumber string `json:"DistNumber"`
			ItemCode   string `json:"ItemCode"`
			ItemName   string `json:"ItemName"`
			WhsCode    string `json:"WhsCode"`
			WhsName    string `json:"WhsName"`
			BPLID      int64  `json:"BPLid"`
			BPLName    string `json:"BPLName"`
		} `json:"value"`
	}
	if err := c.call(ctx, http.MethodPost, "/b1s/v1/SQLQueries('serial_validation')/List", body, &out); err != nil {
		return nil, err
	}
	results := make(map[string]erp.SerialLookup, len(out.Value))
	for _, row := range out.Value {
		results[row.DistNumber] = erp.SerialLookup{
			Serial:        row.DistNumber,
			ItemCode:      row.ItemCode,
			ItemName:      row.ItemName,
			WarehouseCode: row.WhsCode,
			WarehouseName: row.WhsName,
			BranchID:      row.BPLID,
			BranchName:    row.BPLName,
			InStock:       true,
		}
	}
	return results, nil
}

// PostDocument implements erp.Client. The idempotency key is written into
// the document body so FindPostedDocument can match it later.
func (c *Client) PostDocument(ctx context.Context, payload erp.DocumentPayload, idempotencyKey uuid.UUID) (erp.RemoteID, error) {
	endpoint, ok := documentEndpoints[payload.Type]
	if !ok {
		return erp.RemoteID{}, fmt.Errorf("b1: unsupported document type %q", payload.Type)
	}
	if err := c.ensureLoggedIn(ctx); err != nil {
		return erp.RemoteID{}, err
	}
	var body map[string]any
	if err := json.Unmarshal(payload.Body, &body); err != nil {
		return erp.RemoteID{}, fmt.Errorf("b1: decode payload: %w", err)
	}
	body[idemKeyField] = idempotencyKey.String()

	var out struct {
		DocEntry int64           `json:"DocEntry"`
		DocNum   json.Number     `json:"DocNum"`
		Error    json.RawMessage `json:"error"`
	}
	if err := c.call(ctx, http.MethodPost, "/b1s/v1/"+endpoint, body, &out); err != nil {
		return erp.RemoteID{}, err
	}
	return erp.RemoteID{DocEntry: out.DocEntry, DocNum: out.DocNum.String()}, nil
}

// FindPostedDocument implements erp.Client. The key alone does not reveal
// the collection, so all document endpoints are searched in order.
func (c *Client) FindPostedDocument(ctx context.Context, idempotencyKey uuid.UUID) (erp.RemoteID, error) {
	if err := c.ensureLoggedIn(ctx); err != nil {
		return erp.RemoteID{}, err
	}
	filter := url.Values{}
	filter.Set("$select", "DocEntry,DocNum")
	filter.Set("$filter", fmt.Sprintf("%s eq '%s'", idemKeyField, idempotencyKey.String()))
	for _, endpoint := range []string{"PurchaseDeliveryNotes", "StockTransfers", "Invoices"} {
		var out struct {
			Value []struct {
				DocEntry int64       `json:"DocEntry"`
				DocNum   json.Number `json:"DocNum"`
			} `json:"value"`
		}
		path := "/b1s/v1/" + endpoint + "?" + filter.Encode()
		if err := c.call(ctx, http.MethodGet, path, nil, &out); err != nil {
			return erp.RemoteID{}, err
		}
		if len(out.Value) > 0 {
			return erp.RemoteID{DocEntry: out.Value[0].DocEntry, DocNum: out.Value[0].DocNum.String()}, nil
		}
	}
	return erp.RemoteID{}, erp.ErrNotFound
}

// ensureLoggedIn establishes a service layer session when none is active.
func (c *Client) ensureLoggedIn(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loggedIn {
		return nil
	}
	return c.login(ctx)
}

func (c *Client) login(ctx context.Context) error {
	body, err := json.Marshal(map[string]string{
		"CompanyDB": c.cfg.CompanyDB,
		"UserName":  c.cfg.Username,
		"Password":  c.cfg.Password,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/b1s/v1/Login", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return classifyTransport(err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("b1: login failed with status %d: %w", resp.StatusCode, erp.ErrUnavailable)
	}
	c.loggedIn = true
	return nil
}

func (c *Client) call(ctx context.Context, method, path string, body any, out any) error {
	err := c.do(ctx, method, path, body, out)
	if errors.Is(err, errSessionExpired) {
		c.mu.Lock()
		c.loggedIn = false
		loginErr := c.login(ctx)
		c.mu.Unlock()
		if loginErr != nil {
			return loginErr
		}
		err = c.do(ctx, method, path, body, out)
	}
	return err
}

var errSessionExpired = errors.New("b1: session expired")

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Prefer", "odata.maxpagesize=0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return classifyTransport(err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return classifyTransport(err)
	}
	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return errSessionExpired
	case resp.StatusCode >= 500:
		return fmt.Errorf("b1: status %d: %w", resp.StatusCode, erp.ErrUnavailable)
	case resp.StatusCode >= 400:
		detail := serviceLayerError(data)
		return fmt.Errorf("b1: %s: %w", detail, erp.ErrRejected)
	}
	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			// A garbled response after the request was sent is an
			// unknown outcome, not a clean failure.
			return fmt.Errorf("b1: malformed response: %w", erp.ErrAmbiguous)
		}
	}
	return nil
}

// classifyTransport maps transport failures onto the boundary error
// taxonomy. Timeouts and resets happen after the request may have been
// received, so they are ambiguous rather than failed.
func classifyTransport(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.EPIPE),
		errors.As(err, &netErr) && netErr.Timeout():
		return fmt.Errorf("b1: %v: %w", err, erp.ErrAmbiguous)
	case errors.Is(err, syscall.ECONNREFUSED):
		// Never reached the remote; safe to treat as plain failure.
		return fmt.Errorf("b1: %v: %w", err, erp.ErrUnavailable)
	default:
		return fmt.Errorf("b1: %v: %w", err, erp.ErrAmbiguous)
	}
}

func serviceLayerError(data []byte) string {
	var out struct {
		Error struct {
			Message struct {
				Value string `json:"value"`
			} `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &out); err == nil && out.Error.Message.Value != "" {
		return out.Error.Message.Value
	}
	return "rejected by service layer"
}
