// ABOUTME: Package documentation for the phone verification state machine.
// ABOUTME: Describes steps, timers, resend policy, and cancellation semantics.

// Package verify drives phone-based identity verification through ordered
// steps:
//
//	PhoneEntry → CodeEntry → ProfileEntry → PreferenceEntry → Complete
//
// with a Cancelled terminal state reachable from any non-terminal step.
// The issued code is valid for ten minutes, counted down locally; resend is
// permitted after a one-minute cooldown and resets both the countdown and
// the entered digits. No network call happens until the corresponding submit
// method; local validation failures never reach the wire.
//
// The flow does not own a loading flag: it assumes the orchestrating caller
// serializes submissions and disables input while one is pending.
package verify
