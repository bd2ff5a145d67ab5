// Package flow implements the client-side state machine that sequences a
// verification screen: debounced availability checks, code issuance,
// countdown timers, resend gating, and lockout display.
//
// The portal originally carried three near-identical copies of this logic
// (registration, password recovery, and the in-profile email change), so
// the machine is parameterized by identity key and purpose and shared by
// all three screens.
//
// A [Machine] is pure: it never starts goroutines, never reads the wall
// clock, and never performs I/O. The caller feeds it user input, clock
// ticks, and request results, and executes the [Command] values it emits.
// That makes every timing path deterministic under test. All of the
// machine's timers are advisory, for display and gating only: the server's
// stored expiry is the binding check, and a countdown that drifts from it
// simply produces one extra round trip that fails with the generic invalid
// result.
package flow
