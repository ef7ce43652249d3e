// Package notifier delivers status messages to the relay chat.
//
// Delivery is fire-and-forget: failures are logged and reported as a false
// return value, never as an error, so a flaky Bot API cannot stop the poll
// loop. A token bucket bounds the send rate and every call has its own
// timeout.
//
// # History
//
// For debugging, the service keeps a small in-memory history of recently
// delivered messages.
package notifier
