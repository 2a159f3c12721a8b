// Package timer provides the precision frame-rate scheduler shared by
// concentrators.
//
// A Registry owns one timer goroutine per (frames per second, processing
// interval) key. Concentrators with identical keys subscribe to the same
// timer, which fires every subscriber callback on each tick and is torn down
// when the last subscription is released.
//
// Example:
//
//	reg := timer.NewRegistry()
//	defer reg.Close()
//
//	sub, err := reg.Subscribe(30, -1, func() { signal() })
//	if err != nil {
//	    return err
//	}
//	defer sub.Unsubscribe()
package timer
