/*
Package pubsub fans out document mutations to subscribed WebSocket
sessions. It replaces the cluster event broker the original codebase
used for service/task/node lifecycle events with a key-addressed
notification broker matching mgindb's SUB/UNSUB/MONITOR/NODE protocol.
*/
package pubsub
