// Package wire defines the JSON payload shapes exchanged between the agent
// and the server over the message broker, and the validation rules the
// server applies before trusting a payload. Both the agent (when publishing)
// and the server (when decoding) import this package, so the shapes never
// drift apart.
package wire

import "fmt"

// PayloadVersion is the only supported value of the "v" field on every
// broker payload. A mismatched version is treated as malformed.
const PayloadVersion = 1

// MetricsPayload is published to statix/nodes/<nodeId>/metrics, QoS 1,
// not retained. Unknown JSON keys are ignored by the decoder.
type MetricsPayload struct {
	V         int     `json:"v"`
	TS        int64   `json:"ts"`
	CPU       float64 `json:"cpu"`
	MemUsed   float64 `json:"mem_used"`
	MemTotal  float64 `json:"mem_total"`
	DiskUsed  float64 `json:"disk_used"`
	DiskTotal float64 `json:"disk_total"`
	NetRx     float64 `json:"net_rx"`
	NetTx     float64 `json:"net_tx"`
}

// Validate checks MetricsPayload against the numeric bounds the system
// relies on. It is the sole gate between an untrusted broker message and a
// Store write.
func (p MetricsPayload) Validate() error {
	if p.V != PayloadVersion {
		return fmt.Errorf("wire: unsupported metrics payload version %d", p.V)
	}
	if p.TS <= 0 {
		return fmt.Errorf("wire: metrics ts must be positive")
	}
	if p.CPU < 0 || p.CPU > 1 {
		return fmt.Errorf("wire: cpu must be within [0,1], got %v", p.CPU)
	}
	if p.MemUsed < 0 {
		return fmt.Errorf("wire: mem_used must be non-negative")
	}
	if p.MemTotal <= 0 {
		return fmt.Errorf("wire: mem_total must be positive")
	}
	if p.DiskUsed < 0 {
		return fmt.Errorf("wire: disk_used must be non-negative")
	}
	if p.DiskTotal <= 0 {
		return fmt.Errorf("wire: disk_total must be positive")
	}
	if p.NetRx < 0 || p.NetTx < 0 {
		return fmt.Errorf("wire: net_rx/net_tx must be non-negative")
	}
	return nil
}

// GPUInfo describes a single GPU discovered by the agent's best-effort probe.
type GPUInfo struct {
	Name          string `json:"name"`
	Vendor        string `json:"vendor,omitempty"`
	MemoryBytes   *int64 `json:"memoryBytes,omitempty"`
	DriverVersion string `json:"driverVersion,omitempty"`
}

// SystemInfo is the descriptive inventory body hashed by the agent and
// carried inside SystemInfoPayload.Info.
type SystemInfo struct {
	OSPlatform  string    `json:"osPlatform"`
	OSRelease   string    `json:"osRelease"`
	OSArch      string    `json:"osArch"`
	Hostname    string    `json:"hostname"`
	CPUModel    string    `json:"cpuModel"`
	CPUCores    int       `json:"cpuCores"`
	MemTotal    float64   `json:"memTotal"`
	AgentVersion string   `json:"agentVersion,omitempty"`
	AgentCommit  string   `json:"agentCommit,omitempty"`
	AgentBuiltAt string   `json:"agentBuiltAt,omitempty"`
	GPUs         []GPUInfo `json:"gpus"`
}

// Validate checks SystemInfo against the bounds the schema requires.
func (s SystemInfo) Validate() error {
	if s.OSPlatform == "" {
		return fmt.Errorf("wire: osPlatform is required")
	}
	if s.OSArch == "" {
		return fmt.Errorf("wire: osArch is required")
	}
	if s.Hostname == "" {
		return fmt.Errorf("wire: hostname is required")
	}
	if s.CPUCores <= 0 {
		return fmt.Errorf("wire: cpuCores must be positive, got %d", s.CPUCores)
	}
	if s.MemTotal <= 0 {
		return fmt.Errorf("wire: memTotal must be positive")
	}
	for i, g := range s.GPUs {
		if g.Name == "" {
			return fmt.Errorf("wire: gpus[%d].name is required", i)
		}
		if g.MemoryBytes != nil && *g.MemoryBytes < 0 {
			return fmt.Errorf("wire: gpus[%d].memoryBytes must be non-negative", i)
		}
	}
	return nil
}

// SystemInfoPayload is published to statix/nodes/<nodeId>/system, QoS 1,
// retained. hash is computed by the agent over Info via stablehash and
// trusted by the server for change detection — the server never
// recomputes it against Info, only validates the schema.
type SystemInfoPayload struct {
	V    int        `json:"v"`
	TS   int64      `json:"ts"`
	Hash string     `json:"hash"`
	Info SystemInfo `json:"info"`
}

// Validate checks SystemInfoPayload's envelope and nested Info.
func (p SystemInfoPayload) Validate() error {
	if p.V != PayloadVersion {
		return fmt.Errorf("wire: unsupported system payload version %d", p.V)
	}
	if p.TS <= 0 {
		return fmt.Errorf("wire: system ts must be positive")
	}
	if p.Hash == "" {
		return fmt.Errorf("wire: hash is required")
	}
	return p.Info.Validate()
}

// Topic builders — the sole place the broker topic grammar is spelled out,
// shared by the agent (publishing) and the ingest subscriber (matching).
const (
	TopicFilter = "statix/nodes/+/+"
)

// MetricsTopic returns the topic a node publishes metrics samples to.
func MetricsTopic(nodeID string) string {
	return "statix/nodes/" + nodeID + "/metrics"
}

// SystemTopic returns the topic a node publishes retained inventory to.
func SystemTopic(nodeID string) string {
	return "statix/nodes/" + nodeID + "/system"
}
