package config

import "testing"

func TestNewBuildInfoDefaults(t *testing.T) {
	info := NewBuildInfo()

	if info.Version != "dev" || info.Commit != "none" || info.BuildTime != "unknown" {
		t.Errorf("NewBuildInfo() = %+v, want dev/none/unknown defaults", info)
	}
}

func TestBuildInfoUserAgent(t *testing.T) {
	tests := []struct {
		info BuildInfo
		want string
	}{
		{BuildInfo{Version: "dev", Commit: "none"}, "reorder-precompute/dev"},
		{BuildInfo{Version: "1.4.0", Commit: "a1b2c3d"}, "reorder-precompute/1.4.0 (a1b2c3d)"},
		{BuildInfo{Version: "1.4.0"}, "reorder-precompute/1.4.0"},
	}
	for _, tt := range tests {
		if got := tt.info.UserAgent("reorder-precompute"); got != tt.want {
			t.Errorf("UserAgent(%+v) = %q, want %q", tt.info, got, tt.want)
		}
	}
}
