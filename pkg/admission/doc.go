// Package admission holds connection intents while the backend is not
// ready to serve them.
//
// The queue is a bounded FIFO. Each intent carries the client socket
// and a deadline; an intent that is not released to a forwarder before
// its deadline expires is failed with a gateway-timeout response. The
// client socket has exactly one owner at any time: the queue while
// enqueued, then either the forwarder or the failure writer.
package admission
