// Package scheduler arms, fires, cancels and restores reminder timer pairs.
//
// A reminder fires twice: the primary delivery at the requested local time
// and a follow-up ten minutes later. Cancellation races are resolved at fire
// time (registry membership + record existence), never by assuming a
// canceled timer cannot already be in flight.
package scheduler
