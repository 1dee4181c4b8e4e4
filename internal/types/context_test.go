package types

import (
	"context"
	"testing"
)

func TestRequestIDRoundTrip(t *testing.T) {
	ctx := WithRequestID(context.Background(), "req-42")
	if got := GetRequestID(ctx); got != "req-42" {
		t.Errorf("GetRequestID() = %q, want %q", got, "req-42")
	}
	if got := GetRequestID(context.Background()); got != "" {
		t.Errorf("GetRequestID() on empty context = %q, want empty", got)
	}
}

func TestRealClockIsUTC(t *testing.T) {
	if loc := (RealClock{}).Now().Location(); loc.String() != "UTC" {
		t.Errorf("RealClock location = %v, want UTC", loc)
	}
}
