// Package stubserver implements an in-memory stand-in for the Veazy backend.
//
// It serves the complete wire surface the client speaks: thread creation,
// SSE run streaming with canned assistant replies, document upload
// acceptance, and the phone OTP registration flow issuing real HS256 session
// tokens. Errors use the backend's {"detail": "..."} shape.
//
// State is held in memory and disappears on restart. Issued OTP codes are
// written to the log, which is the development substitute for SMS delivery.
package stubserver
