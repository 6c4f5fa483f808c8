package collector

import (
	"context"
	"testing"
)

func TestClamp01(t *testing.T) {
	cases := map[float64]float64{
		-1.5:    0,
		-0.0001: 0,
		0:       0,
		0.5:     0.5,
		1:       1,
		1.5:     1,
	}
	for in, want := range cases {
		if got := clamp01(in); got != want {
			t.Errorf("clamp01(%v) = %v, want %v", in, got, want)
		}
	}
}

func TestVendorFromDescription(t *testing.T) {
	cases := map[string]string{
		"NVIDIA Corporation GA104 [GeForce RTX 3070]": "NVIDIA",
		"Advanced Micro Devices, Inc. [AMD/ATI] Navi": "AMD",
		"Intel Corporation UHD Graphics 630":          "Intel",
		"Matrox Electronics Systems Ltd. G200":        "",
	}
	for desc, want := range cases {
		if got := vendorFromDescription(desc); got != want {
			t.Errorf("vendorFromDescription(%q) = %q, want %q", desc, got, want)
		}
	}
}

func TestRootPath(t *testing.T) {
	if got := rootPath(); got == "" {
		t.Error("rootPath() returned an empty string")
	}
}

// These exercise the real gopsutil/exec-backed collectors against whatever
// host runs the test. They only assert the wire-level invariants Validate()
// already enforces, never exact values, since the sampled host is whatever
// CI or dev machine happens to run this.
func TestMetricsReturnsValidPayload(t *testing.T) {
	payload, err := Metrics(context.Background())
	if err != nil {
		t.Fatalf("Metrics() error = %v", err)
	}
	if err := payload.Validate(); err != nil {
		t.Errorf("Metrics() produced an invalid payload: %v", err)
	}
}

func TestSystemInfoReturnsValidPayload(t *testing.T) {
	info, err := SystemInfo(context.Background(), "1.0.0", "abc123", "2026-01-01T00:00:00Z")
	if err != nil {
		t.Fatalf("SystemInfo() error = %v", err)
	}
	if err := info.Validate(); err != nil {
		t.Errorf("SystemInfo() produced an invalid payload: %v", err)
	}
	if info.AgentVersion != "1.0.0" || info.AgentCommit != "abc123" {
		t.Errorf("SystemInfo() did not pass through build metadata: %+v", info)
	}
	if info.Hostname == "" {
		t.Error("SystemInfo() returned an empty hostname")
	}
}
