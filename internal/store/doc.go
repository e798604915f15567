// Package store owns the durable reminder collections and per-user timezone
// preferences. Positional indices into an owner's list are the public handle
// for a reminder; every mutation persists the full snapshot write-through.
package store
