package external

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"reorder/internal/config"
)

func TestNewZohoFromConfig(t *testing.T) {
	var tokenCalls, itemCalls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/oauth/v2/token":
			tokenCalls.Add(1)
			w.Write([]byte(`{"access_token":"at-wired","token_type":"Bearer","expires_in":3600}`))
		case "/api/v1/items":
			itemCalls.Add(1)
			if got := r.Header.Get("Authorization"); got != "Zoho-oauthtoken at-wired" {
				t.Errorf("Authorization = %q", got)
			}
			if got := r.Header.Get("User-Agent"); got != "reorder-test" {
				t.Errorf("User-Agent = %q", got)
			}
			w.Write([]byte(`{"code":0,"items":[{"item_id":"1","sku":"A"}],"page_context":{"has_more_page":false}}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	client, closeFn, err := NewZohoFromConfig(config.ZohoConfig{
		OrgID:             "org-1",
		InventoryBase:     server.URL + "/api/v1/",
		AccountsBase:      server.URL,
		ClientID:          "cid",
		ClientSecret:      "secret",
		RefreshToken:      "rt",
		RequestsPerMinute: 6000,
		MaxRetries:        0,
		BaseBackoff:       time.Millisecond,
		HTTPTimeout:       5 * time.Second,
	}, config.CacheConfig{}, "reorder-test", nil)
	if err != nil {
		t.Fatalf("NewZohoFromConfig: %v", err)
	}
	defer closeFn()

	for i := 0; i < 2; i++ {
		page, err := client.ListItems(context.Background(), 1, 10)
		if err != nil {
			t.Fatalf("ListItems: %v", err)
		}
		if len(page.Items) != 1 || page.Items[0].SKU != "A" {
			t.Fatalf("unexpected page %+v", page)
		}
	}
	if tokenCalls.Load() != 1 {
		t.Errorf("token refreshed %d times, want 1", tokenCalls.Load())
	}
	if itemCalls.Load() != 2 {
		t.Errorf("item calls = %d, want 2", itemCalls.Load())
	}
}

func TestNewZohoFromConfig_BadRedisURL(t *testing.T) {
	_, closeFn, err := NewZohoFromConfig(config.ZohoConfig{RequestsPerMinute: 60},
		config.CacheConfig{RedisURL: "not a url"}, "", nil)
	if err == nil {
		t.Fatal("expected error for malformed REDIS_URL")
	}
	if closeFn == nil {
		t.Fatal("close func must never be nil")
	}
	if err := closeFn(); err != nil {
		t.Errorf("close: %v", err)
	}
}

func TestNewZohoFromConfig_FixedAccessToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/oauth/v2/token" {
			t.Error("refresh flow must not run with a fixed access token")
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if got := r.Header.Get("Authorization"); got != "Zoho-oauthtoken at-local" {
			t.Errorf("Authorization = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"code":0,"items":[],"page_context":{"has_more_page":false}}`))
	}))
	defer server.Close()

	client, closeFn, err := NewZohoFromConfig(config.ZohoConfig{
		OrgID:             "org-1",
		InventoryBase:     server.URL + "/api/v1/",
		AccountsBase:      server.URL,
		AccessToken:       "at-local",
		RequestsPerMinute: 6000,
		HTTPTimeout:       5 * time.Second,
	}, config.CacheConfig{RedisURL: "not a url"}, "reorder-test", nil)
	if err != nil {
		t.Fatalf("NewZohoFromConfig: %v", err)
	}
	defer closeFn()

	if _, err := client.ListItems(context.Background(), 1, 10); err != nil {
		t.Fatalf("ListItems: %v", err)
	}
}
