// Package command implements the verb dispatch table described in
// spec.md §4.1-§4.5, §4.9-§4.11: SET, DEL, INCR, DECR, RENAME, CONFIG,
// KEYS, COUNT, QUERY, INDICES, SUB, UNSUB, SUBLIST, SCHEDULE, FLUSHALL,
// FLUSHCACHE, BACKUP, ROLLBACK, REPLICATE, RESHARD, SERVERSTOP,
// CHECKUPDATE and the blockchain verbs, all routed through one
// Processor.Execute entry point. Grounded on
// original_source/mgindb/command_processing.py's CommandProcessor
// dispatch map and the per-handler classes it delegates to, reshaped
// from a coroutine-per-verb table into a Go method table keyed the
// same way.
package command
