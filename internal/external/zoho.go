package external

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"reorder/internal/types"
)

const (
	defaultInventoryBase = "https://inventory.zoho.com/api/v1"
	salesPerPage         = 200
	maxErrorBody         = 4096
)

// ZohoClientConfig holds the inventory API settings.
type ZohoClientConfig struct {
	BaseURL string
	OrgID   string
	Tokens  TokenProvider
	Logger  *slog.Logger
}

// ZohoClient reads the catalog, item stock and invoices from Zoho Inventory.
// It satisfies the item lister, detail and sales source interfaces consumed
// by the precompute package.
type ZohoClient struct {
	base    *BaseClient
	baseURL string
	orgID   string
	tokens  TokenProvider
	logger  *slog.Logger
}

// NewZohoClient creates a ZohoClient on top of a configured BaseClient.
func NewZohoClient(base *BaseClient, cfg ZohoClientConfig) *ZohoClient {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultInventoryBase
	}
	return &ZohoClient{
		base:    base,
		baseURL: strings.TrimRight(baseURL, "/"),
		orgID:   cfg.OrgID,
		tokens:  cfg.Tokens,
		logger:  logger,
	}
}

// ListItems returns one catalog page.
func (c *ZohoClient) ListItems(ctx context.Context, page, perPage int) (types.ItemPage, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("per_page", strconv.Itoa(perPage))

	body, err := c.get(ctx, "list items", "/items", q)
	if err != nil {
		return types.ItemPage{}, err
	}

	env, err := decodeEnvelope(body, "list items")
	if err != nil {
		return types.ItemPage{}, err
	}
	var payload struct {
		Items []rawObject `json:"items"`
	}
	if err := decodeRaw(bytes.NewReader(body), &payload); err != nil {
		return types.ItemPage{}, badResponse("list items", err)
	}

	items := make([]types.Item, 0, len(payload.Items))
	for _, raw := range payload.Items {
		items = append(items, normalizeItem(raw))
	}
	return types.ItemPage{Items: items, HasMore: env.PageContext.HasMorePage}, nil
}

// GetItemDetail returns per-location stock for one item.
func (c *ZohoClient) GetItemDetail(ctx context.Context, itemID string) (types.ItemDetail, error) {
	body, err := c.get(ctx, "item detail", "/items/"+url.PathEscape(itemID), nil)
	if err != nil {
		return types.ItemDetail{}, err
	}
	if _, err := decodeEnvelope(body, "item detail"); err != nil {
		return types.ItemDetail{}, err
	}
	var payload struct {
		Item rawObject `json:"item"`
	}
	if err := decodeRaw(bytes.NewReader(body), &payload); err != nil {
		return types.ItemDetail{}, badResponse("item detail", err)
	}
	if payload.Item == nil {
		return types.ItemDetail{}, badResponse("item detail", fmt.Errorf("response has no item object"))
	}
	detail := normalizeItemDetail(payload.Item)
	if detail.ItemID == "" {
		detail.ItemID = itemID
	}
	return detail, nil
}

// ListSalesRecords returns one page of invoices containing itemID dated
// within [from, to].
func (c *ZohoClient) ListSalesRecords(ctx context.Context, itemID string, from, to time.Time, page int) (types.SalesPage, error) {
	q := url.Values{}
	q.Set("item_id", itemID)
	q.Set("date_start", from.UTC().Format(time.DateOnly))
	q.Set("date_end", to.UTC().Format(time.DateOnly))
	q.Set("page", strconv.Itoa(page))
	q.Set("per_page", strconv.Itoa(salesPerPage))

	body, err := c.get(ctx, "list invoices", "/invoices", q)
	if err != nil {
		return types.SalesPage{}, err
	}
	env, err := decodeEnvelope(body, "list invoices")
	if err != nil {
		return types.SalesPage{}, err
	}
	var payload struct {
		Invoices []rawObject `json:"invoices"`
	}
	if err := decodeRaw(bytes.NewReader(body), &payload); err != nil {
		return types.SalesPage{}, badResponse("list invoices", err)
	}

	records := make([]types.SalesRecord, 0, len(payload.Invoices))
	for _, raw := range payload.Invoices {
		records = append(records, normalizeSalesRecord(raw))
	}
	return types.SalesPage{Records: records, HasMore: env.PageContext.HasMorePage}, nil
}

// GetSalesRecord returns one invoice with its line items.
func (c *ZohoClient) GetSalesRecord(ctx context.Context, recordID string) (types.SalesRecord, error) {
	body, err := c.get(ctx, "invoice detail", "/invoices/"+url.PathEscape(recordID), nil)
	if err != nil {
		return types.SalesRecord{}, err
	}
	if _, err := decodeEnvelope(body, "invoice detail"); err != nil {
		return types.SalesRecord{}, err
	}
	var payload struct {
		Invoice rawObject `json:"invoice"`
	}
	if err := decodeRaw(bytes.NewReader(body), &payload); err != nil {
		return types.SalesRecord{}, badResponse("invoice detail", err)
	}
	if payload.Invoice == nil {
		return types.SalesRecord{}, badResponse("invoice detail", fmt.Errorf("response has no invoice object"))
	}
	return normalizeSalesRecord(payload.Invoice), nil
}

// get performs an authenticated GET and returns the body of a 2xx response.
func (c *ZohoClient) get(ctx context.Context, op, path string, q url.Values) ([]byte, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, types.NewAppError(
			types.ErrCodeInternalUnexpected,
			fmt.Sprintf("failed to create zoho %s request", op),
			err,
		)
	}
	req.Header.Set("Authorization", "Zoho-oauthtoken "+token)
	req.Header.Set("X-com-zoho-inventory-organizationid", c.orgID)
	req.Header.Set("Accept", "application/json")

	resp, err := c.base.Do(req)
	if err != nil {
		return nil, wrapError(op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, c.handleErrorResponse(ctx, resp, op)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, types.NewAppError(
			types.ErrCodeUpstreamUnavailable,
			fmt.Sprintf("zoho %s: reading response", op),
			err,
		)
	}
	return body, nil
}

// handleErrorResponse maps a non-2xx response to an AppError. Responses that
// reach here as 429 or 5xx have already exhausted the retry budget.
func (c *ZohoClient) handleErrorResponse(ctx context.Context, resp *http.Response, op string) *types.AppError {
	bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	bodyStr := string(bodyBytes)

	c.logger.WarnContext(ctx, "zoho API error",
		"operation", op,
		"status_code", resp.StatusCode,
		"response_body", bodyStr,
	)

	cause := fmt.Errorf("zoho %s returned %d: %s", op, resp.StatusCode, bodyStr)
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return types.NewAppError(
			types.ErrCodeUpstreamAuthFailed,
			fmt.Sprintf("zoho rejected credentials (%d): %s", resp.StatusCode, op),
			cause,
		)
	case resp.StatusCode == http.StatusTooManyRequests:
		return types.NewAppError(
			types.ErrCodeUpstreamRateLimited,
			fmt.Sprintf("zoho rate limit exceeded: %s", op),
			cause,
		)
	case resp.StatusCode >= 500:
		return types.NewAppError(
			types.ErrCodeUpstreamUnavailable,
			fmt.Sprintf("zoho server error (%d): %s", resp.StatusCode, op),
			cause,
		)
	default:
		return types.NewAppError(
			types.ErrCodeUpstreamBadResponse,
			fmt.Sprintf("zoho client error (%d): %s", resp.StatusCode, op),
			cause,
		)
	}
}

// wrapError prefixes an error from BaseClient.Do with the operation name
// while keeping its code.
func wrapError(op string, err error) error {
	if code := types.CodeOf(err); code != "" {
		return types.NewAppError(code, fmt.Sprintf("zoho %s", op), err)
	}
	return types.NewAppError(types.ErrCodeUpstreamUnavailable, fmt.Sprintf("zoho %s failed", op), err)
}

func badResponse(op string, err error) *types.AppError {
	return types.NewAppError(
		types.ErrCodeUpstreamBadResponse,
		fmt.Sprintf("zoho %s: malformed response", op),
		err,
	)
}
