/*
Package document implements the engine's in-memory data model: the
colon-path document tree (pkg/document.Tree) and the TTL store that
expires paths out of it (pkg/document.TTLStore).

Both types are safe for concurrent use, but neither enforces the
engine's single-writer discipline on its own — that is the command
processor's job. The locks here only protect concurrent readers (e.g.
a backup snapshot) against an in-flight writer.
*/
package document
