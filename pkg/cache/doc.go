// Package cache implements the engine's query result cache: a TTL'd
// map from normalized command string to its serialized result, with a
// reverse index that lets a mutation on a single top-level key
// invalidate every dependent cached query in one pass.
package cache
