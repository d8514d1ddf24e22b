// Package queue defines the provider-neutral message queue facade.
//
// Service groups the operations every queue provider offers: create,
// delete and list queues, and post and get messages. Each call performs one
// HTTP exchange and returns a freshly built response value; nothing here
// caches or retries.
//
// Providers live in subpackages (internal/queue/azure) and are selected at
// construction time by internal/provider.
package queue
