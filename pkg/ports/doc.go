/*
Package ports defines the driven ports (interfaces) of the session coordinator.

These interfaces decouple the coordinator from the worker runtime it talks
to and from the storage backend it serves.

# Key Interfaces

  - KVStore: the persistent key/value store proxied to the worker (memory, file, Redis, SQLite).
  - Container: registration, connect/disconnect and controller-change notifications.
  - Registration: a handle on an installed worker.
  - Dialer: opens a message.Link to a worker (in-process pipe or websocket).
*/
package ports
