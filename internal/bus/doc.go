// Package bus is the event dispatch bus. Handlers register per event kind and
// run synchronously, in registration order, on the dispatching goroutine.
// A handler that returns an error or panics is a fault: it is logged and
// counted, and the remaining handlers still run.
//
// A Registry is an explicit owned object. There is no package-level default.
package bus
