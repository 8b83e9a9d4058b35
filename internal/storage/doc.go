// Package storage provides the key-value persistence layer used by the
// notification engine.
//
// Values are opaque strings (the engine stores JSON blobs). Supported drivers:
//   - "memory": process-local map, lost on restart
//   - "file":   a single JSON snapshot file, rewritten atomically
//   - "sqlite": a kv table in a SQLite database (modernc.org/sqlite, no cgo)
//   - "redis":  plain GET/SET/DEL under a key prefix
package storage
