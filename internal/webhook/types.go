package webhook

import (
	"context"

	"github.com/mattjoyce/milestone-hook/internal/milestone"
)

// Processor turns a verified-or-not delivery into a response.
type Processor interface {
	Process(ctx context.Context, req milestone.Request) milestone.Outcome
}

// Config holds webhook server configuration.
type Config struct {
	Listen string

	// Path is the URL path milestone events are posted to.
	Path string

	// SignatureHeader is the HTTP header containing the HMAC-SHA1 signature.
	SignatureHeader string

	// MaxBodySize is the maximum allowed request body size in bytes (default: 1MB)
	MaxBodySize int64
}

// HealthResponse is the JSON body of GET /healthz.
type HealthResponse struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

// DeliveryHeader carries GitHub's per-delivery GUID.
const DeliveryHeader = "X-GitHub-Delivery"

// Default values
const (
	DefaultMaxBodySize     = 1048576 // 1 MB
	DefaultPath            = "/api/milestones"
	DefaultSignatureHeader = "X-Hub-Signature"
)
