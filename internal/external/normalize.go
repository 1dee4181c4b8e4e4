package external

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"reorder/internal/types"
)

// rawObject is a provider JSON object decoded with UseNumber. Zoho returns some
// numeric fields as strings depending on the endpoint and account settings, so
// fields are resolved by key with loose typing instead of struct tags.
type rawObject map[string]any

// decodeRaw decodes r into dst with json.Number for all numeric values.
func decodeRaw(r io.Reader, dst any) error {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	return dec.Decode(dst)
}

// str returns the first key holding a non-empty value, rendered as a string.
func (o rawObject) str(keys ...string) string {
	for _, k := range keys {
		switch v := o[k].(type) {
		case string:
			if v != "" {
				return v
			}
		case json.Number:
			if v != "" && v != "0" {
				return v.String()
			}
		}
	}
	return ""
}

// num returns the first key holding a nonzero number. Zero, empty and
// unparseable values fall through to the next key, so "stock_on_hand": 0 with a
// positive available_stock resolves to available_stock.
func (o rawObject) num(keys ...string) (float64, bool) {
	for _, k := range keys {
		f, ok := toFloat(o[k])
		if ok && f != 0 {
			return f, true
		}
	}
	return 0, false
}

// has reports whether key is present with a parseable numeric value, zero
// included.
func (o rawObject) has(key string) (float64, bool) {
	return toFloat(o[key])
}

func (o rawObject) objects(key string) []rawObject {
	list, _ := o[key].([]any)
	out := make([]rawObject, 0, len(list))
	for _, el := range list {
		if m, ok := el.(map[string]any); ok {
			out = append(out, rawObject(m))
		}
	}
	return out
}

func (o rawObject) object(key string) rawObject {
	m, _ := o[key].(map[string]any)
	return rawObject(m)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	case float64:
		return n, true
	}
	return 0, false
}

// normalizeItem maps a catalog list entry to types.Item.
func normalizeItem(o rawObject) types.Item {
	item := types.Item{
		ItemID:         o.str("item_id"),
		SKU:            o.str("sku", "item_id"),
		Description:    o.str("name", "description"),
		Supplier:       o.str("vendor_name", "preferred_vendor"),
		Category:       o.str("category_name", "item_type"),
		TrackInventory: o["track_inventory"] != false,
	}
	item.CurrentStock, _ = o.num("stock_on_hand", "available_stock")
	item.ReorderPoint, _ = o.num("reorder_level")
	item.UnitCost, _ = o.num("purchase_rate", "cost_price")

	if v, ok := o.num("maximum_stock_level"); ok {
		item.MaxStock = v
	} else {
		item.MaxStock = 100
	}
	if item.Supplier == "" {
		item.Supplier = "Unknown"
	}
	if item.Category == "" {
		item.Category = "General"
	}
	return item
}

// normalizeItemDetail maps an /items/{id} payload. Newer accounts report
// locations[], older ones warehouses[].
func normalizeItemDetail(o rawObject) types.ItemDetail {
	detail := types.ItemDetail{ItemID: o.str("item_id")}
	if v, ok := o.has("available_stock"); ok {
		detail.AvailableStock = &v
	}

	for _, loc := range o.objects("locations") {
		l := types.Location{
			LocationID: loc.str("location_id"),
			Name:       loc.str("location_name"),
		}
		l.StockOnHand, _ = loc.has("location_stock_on_hand")
		l.AvailableStock, _ = loc.has("location_available_stock")
		detail.Locations = append(detail.Locations, l)
	}
	if len(detail.Locations) == 0 {
		for _, wh := range o.objects("warehouses") {
			l := types.Location{
				LocationID: wh.str("warehouse_id"),
				Name:       wh.str("warehouse_name"),
			}
			l.StockOnHand, _ = wh.has("warehouse_stock_on_hand")
			l.AvailableStock, _ = wh.has("warehouse_available_stock")
			detail.Locations = append(detail.Locations, l)
		}
	}
	return detail
}

// normalizeSalesRecord maps an invoice list entry or detail payload. List
// entries carry no line_items.
func normalizeSalesRecord(o rawObject) types.SalesRecord {
	rec := types.SalesRecord{
		RecordID: o.str("invoice_id"),
		Date:     o.str("date"),
	}
	for _, li := range o.objects("line_items") {
		qty, _ := li.has("quantity")
		rec.Lines = append(rec.Lines, types.SalesLine{
			ItemID:   li.str("item_id"),
			Quantity: qty,
		})
	}
	return rec
}

// envelope is the common Zoho response wrapper. Code is nonzero on logical
// errors that still come back as HTTP 200.
type envelope struct {
	Code        json.Number `json:"code"`
	Message     string      `json:"message"`
	PageContext struct {
		HasMorePage bool `json:"has_more_page"`
	} `json:"page_context"`
}

func decodeEnvelope(body []byte, op string) (envelope, error) {
	var env envelope
	if err := decodeRaw(bytes.NewReader(body), &env); err != nil {
		return env, types.NewAppError(
			types.ErrCodeUpstreamBadResponse,
			fmt.Sprintf("zoho %s: malformed response", op),
			err,
		)
	}
	if env.Code != "" && env.Code != "0" {
		return env, types.NewAppError(
			types.ErrCodeUpstreamBadResponse,
			fmt.Sprintf("zoho %s: code %s: %s", op, env.Code, env.Message),
			nil,
		)
	}
	return env, nil
}
