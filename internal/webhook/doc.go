// Package webhook implements the HTTP surface that receives GitHub milestone
// events, and the HMAC-SHA1 signature check used to authenticate them.
//
// # Security Model
//
// - HMAC-SHA1 over the exact request body, compared in constant time
// - Body size limits enforced before any other check
// - Request logging excludes payloads and signature values
// - Secrets loaded from environment variables (never hardcoded)
//
// # Request Flow
//
//  1. HTTP POST arrives at the configured path
//  2. Body size checked (reject with 413 if too large)
//  3. Signature and X-GitHub-Delivery headers extracted
//  4. The milestone engine runs its gates and any label updates
//  5. The outcome is written as {"success": bool, "message": string}
//
// # Error Responses
//
// - 400 Bad Request: null payload or malformed milestone event
// - 401 Unauthorized: missing or invalid signature
// - 413 Payload Too Large: body exceeds max_body_size
// - 502 Bad Gateway: the issue tracker failed
//
// # Example Usage
//
//	verifier := webhook.NewHMACVerifier([]byte(os.Getenv("GITHUB_WEBHOOK_SECRET")))
//	engine := milestone.NewEngine(verifier, tracker, milestone.Config{}, logger)
//
//	server := webhook.New(webhook.Config{
//		Listen:          "127.0.0.1:8081",
//		Path:            "/api/milestones",
//		SignatureHeader: "X-Hub-Signature",
//	}, engine, logger)
//	if err := server.Start(ctx); err != nil {
//		log.Fatal(err)
//	}
package webhook
