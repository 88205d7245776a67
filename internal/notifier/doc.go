// Package notifier drains the outbox.
//
// A ticker loop loads unsent messages in delivery order, groups them by
// destination and hands each group to a worker pool. Within a group messages
// go out strictly in order; the first failure stops the group so a later
// message never overtakes an earlier one. Sent messages are stamped in the
// store; failed ones stay pending for the next tick.
//
// All sends share one token-bucket rate limiter and retry with exponential
// backoff and jitter.
package notifier
