// Package httpapi exposes the verification engine over JSON-over-HTTP.
//
// The route surface is small: issuance and confirmation for the public
// registration and recovery flows, the same pair behind bearer auth for the
// in-profile email change, and the availability probe that backs the
// client's debounced duplicate-email check. Request bodies are statically
// typed and validated; the engine's collapsed error taxonomy maps onto the
// wire reasons, so the API never distinguishes why a code was rejected.
package httpapi
