// Package syncengine is a real-time synchronization and offline consistency
// engine for document stores. It multiplexes live-query subscriptions,
// queues local mutations while offline with bounded retries and exponential
// backoff, detects optimistic-concurrency conflicts and resolves them with
// pluggable strategies, and reports connectivity transitions and sync
// failures through a typed event bus.
//
// The Engine type is the composition root: construct it with New, passing a
// store.Store adapter and a network.ConnectivitySource, then drive it
// through SubscribeTo, EnqueueMutation, CheckConsistency and friends.
// Sub-packages (subscription, queue, consistency, network, eventbus) are
// usable on their own when finer control is needed.
package syncengine
