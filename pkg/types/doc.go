/*
Package types defines the core data structures used throughout mgindb.

This package is the foundation of the engine's data model. It defines:

  - Value: the tagged union backing every document leaf and index
    bucket key, with one canonical serializer (Value.Canonical) used for
    value equality and reshard redistribution. Blockchain txids and
    checksums are hashed from pkg/blockchain's own structs instead.
  - ScheduledTask: a single cron-driven entry in the scheduler registry.
  - Session: a live WebSocket connection's subscription state.

All types are designed to be JSON-serializable so they round-trip through
the on-disk snapshot layout described in SPEC_FULL.md §2.15.
*/
package types
