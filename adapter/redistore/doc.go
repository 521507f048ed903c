package redistore

// Package redistore provides a Redis-backed Store for stashbus.
//
// Layout: one hash per topic partition keyed "<prefix>:t:<topic>", with the
// event id as the hash field and the codec-encoded envelope as the value.
// Registered topics live in the set "<prefix>:topics" so that an empty
// partition still exists.
//
// The observation tracker and its garbage-collection discipline stay
// in-process; this adapter only moves payload bytes server-side so fetchable
// events survive a process restart.
//
// Example builder usage:
//
//	store := redistore.NewStore(redistore.Defaults(), nil)
//	bus, _ := stashbus.NewBusBuilder().
//	    WithStore(store).
//	    Build()
