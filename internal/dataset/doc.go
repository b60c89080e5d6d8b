/*
Package dataset owns the fixed-size collection of synthetic user records.

A Store allocates N slots up front and fills them exactly once, in increasing id
order, on a goroutine it owns. Generation is triggered by EnsureGeneration, which
is safe to call from any number of request goroutines: the first caller flips the
state from NotStarted to InProgress under a mutex and starts the run, everyone else
observes the run already in flight.

# States

	NotStarted ──EnsureGeneration──▶ InProgress ──last slot──▶ Complete
	     ▲                               │
	     └────────── Stop ───────────────┘

The state never leaves Complete. An interrupted run goes back to NotStarted; slots
already written stay visible and a later run resumes after them. Close stops the
current run and refuses new ones.

# Policies

PolicyBackground returns to the caller right away and queries run against whatever
prefix is populated. PolicyBlocking makes callers wait for Complete.

# Readers

CurrentView returns the populated prefix without locking. A slot is written before
the atomic fill counter moves past it, so readers may see fewer records than exist
but never a partially written one.
*/
package dataset
