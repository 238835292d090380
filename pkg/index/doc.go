/*
Package index implements mgindb's secondary index engine: a tree of
index descriptors keyed by field path, each either a unique string
index or a multi-valued set index. Indices are maintained incrementally
as OnAdd/OnRemove calls arrive from the command processor, and can be
regenerated from scratch via Rebuild.
*/
package index
