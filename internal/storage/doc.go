// Package storage provides the widget's two key-value scopes.
//
// # Overview
//
// The durable scope survives restarts of the embedding process and is shared
// by every tab (every Session) of the same visitor. The ephemeral scope lives
// as long as one tab. Both are reached through an Adapter, which never returns
// errors: when the durable driver fails, reads and writes fall back to the
// ephemeral scope, and when the ephemeral driver fails they fall back to a
// process-lifetime map. Failures are logged, never surfaced.
//
// # Drivers
//
//   - MemoryDriver: in-process map, used for the ephemeral scope and as the
//     durable scope when nothing persistent is configured.
//   - SQLiteDriver: durable scope in a local SQLite file (modernc.org/sqlite).
//   - RedisDriver: durable scope shared by several processes (go-redis).
//
// # Usage
//
//	durable, err := storage.NewSQLiteDriver(path)
//	adapter := storage.NewAdapter(durable, storage.NewMemoryDriver(), logger)
//	adapter.Write(ctx, storage.Durable, storage.KeyVisitorSession, id)
package storage
