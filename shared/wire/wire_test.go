package wire

import "testing"

func validMetrics() MetricsPayload {
	return MetricsPayload{
		V: PayloadVersion, TS: 1000,
		CPU: 0.5, MemUsed: 512, MemTotal: 1024,
		DiskUsed: 10, DiskTotal: 100,
		NetRx: 0, NetTx: 0,
	}
}

func TestMetricsPayloadValidateOK(t *testing.T) {
	if err := validMetrics().Validate(); err != nil {
		t.Errorf("Validate() error = %v, want nil", err)
	}
}

func TestMetricsPayloadValidateRejects(t *testing.T) {
	cases := map[string]func(*MetricsPayload){
		"wrong version":     func(p *MetricsPayload) { p.V = 2 },
		"non-positive ts":   func(p *MetricsPayload) { p.TS = 0 },
		"cpu below 0":       func(p *MetricsPayload) { p.CPU = -0.1 },
		"cpu above 1":       func(p *MetricsPayload) { p.CPU = 1.1 },
		"negative mem used": func(p *MetricsPayload) { p.MemUsed = -1 },
		"zero mem total":    func(p *MetricsPayload) { p.MemTotal = 0 },
		"negative disk":     func(p *MetricsPayload) { p.DiskUsed = -1 },
		"zero disk total":   func(p *MetricsPayload) { p.DiskTotal = 0 },
		"negative net rx":   func(p *MetricsPayload) { p.NetRx = -1 },
		"negative net tx":   func(p *MetricsPayload) { p.NetTx = -1 },
	}

	for name, mutate := range cases {
		p := validMetrics()
		mutate(&p)
		if err := p.Validate(); err == nil {
			t.Errorf("%s: Validate() = nil, want error", name)
		}
	}
}

func validSystemInfo() SystemInfo {
	return SystemInfo{
		OSPlatform: "linux", OSArch: "amd64", Hostname: "node-1",
		CPUCores: 4, MemTotal: 1024,
		GPUs: []GPUInfo{{Name: "Test GPU"}},
	}
}

func TestSystemInfoValidateOK(t *testing.T) {
	if err := validSystemInfo().Validate(); err != nil {
		t.Errorf("Validate() error = %v, want nil", err)
	}
}

func TestSystemInfoValidateRejects(t *testing.T) {
	cases := map[string]func(*SystemInfo){
		"missing os platform": func(s *SystemInfo) { s.OSPlatform = "" },
		"missing os arch":     func(s *SystemInfo) { s.OSArch = "" },
		"missing hostname":    func(s *SystemInfo) { s.Hostname = "" },
		"non-positive cores":  func(s *SystemInfo) { s.CPUCores = 0 },
		"non-positive mem":    func(s *SystemInfo) { s.MemTotal = 0 },
		"unnamed gpu":         func(s *SystemInfo) { s.GPUs = []GPUInfo{{Name: ""}} },
	}

	for name, mutate := range cases {
		s := validSystemInfo()
		mutate(&s)
		if err := s.Validate(); err == nil {
			t.Errorf("%s: Validate() = nil, want error", name)
		}
	}
}

func TestSystemInfoValidateNegativeGPUMemory(t *testing.T) {
	s := validSystemInfo()
	neg := int64(-1)
	s.GPUs = []GPUInfo{{Name: "GPU", MemoryBytes: &neg}}
	if err := s.Validate(); err == nil {
		t.Error("Validate() = nil, want error for negative GPU memory")
	}
}

func TestTopicBuilders(t *testing.T) {
	if got, want := MetricsTopic("abc"), "statix/nodes/abc/metrics"; got != want {
		t.Errorf("MetricsTopic() = %q, want %q", got, want)
	}
	if got, want := SystemTopic("abc"), "statix/nodes/abc/system"; got != want {
		t.Errorf("SystemTopic() = %q, want %q", got, want)
	}
}
