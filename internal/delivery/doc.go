// Package delivery hands rendered notifications to a transport.
//
// A Notification names its targets by transport id; a nil target list means
// every target in the Directory. The Service is fire-and-forget: Deliver
// enqueues and returns, workers send with a rate limit and a dedup window,
// and failures are logged and counted but never retried.
package delivery
