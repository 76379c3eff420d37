// Package pipeline sequences one sync run.
//
// Each event goes through the local cache and then the remote reconciler
// before the next event starts:
//
//	created / updated -> Reconcile(allowCreate=true,  cleanup=true), record id
//	skipped           -> Reconcile(allowCreate=false, cleanup=true), record id if it moved
//
// Skipped events are still reconciled so duplicates that appeared remotely
// since the last run are cleaned up. A failing event is logged, counted and
// passed over; only a missing destination calendar aborts the run.
//
// Run adds the message stage in front: detect the provider, look up its
// parser, parse, then process the event. Messages that yield no event are
// counted as skipped.
package pipeline
