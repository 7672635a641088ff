// Package dedupe keeps repeated content and repeated side effects away
// from users.
//
// Apply and IsDuplicate filter events against the per-category
// last-emitted slots of a session. EffectGuard is a process-local claim
// set that workers take before an outbound side effect.
package dedupe
