// Package audit keeps a bounded, in-memory trail of capability invocations.
//
// Every remote call made through a capability proxy, successful or not, is
// recorded as an [Entry]. The [Log] holds at most its capacity (default
// [DefaultCapacity]); once full, the oldest entry is overwritten first.
//
// The trail is diagnostic only. It is not persisted and it never validates
// what it is given.
package audit
