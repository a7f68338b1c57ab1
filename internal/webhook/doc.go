// Package webhook exposes HMAC-SHA256 signed endpoints that fire start events.
//
// Each endpoint maps a POST path to one start opcode (whenflagclicked or
// whenthisspriteclicked). A request whose body verifies against the endpoint
// secret is forwarded to the bridge's fire-and-forget click path:
//
//	webhooks:
//	  listen: "127.0.0.1:8091"
//	  endpoints:
//	    - path: /hooks/start
//	      opcode: whenflagclicked
//	      secret: ${START_HOOK_SECRET}
//	      signature_header: X-Hub-Signature-256
//	      max_body_size: 64KB
//
// Responses:
//
//   - 202 Accepted: dispatched (or no handler registered), body carries the code
//   - 403 Forbidden: missing or invalid signature, no details
//   - 413 Payload Too Large: body exceeds max_body_size
//   - 429 Too Many Requests: the start-click gate suppressed the event (code -4)
//   - 502 Bad Gateway: the handler faulted (code -110)
//
// The request body is only used for signature verification; start events carry no payload.
package webhook
