// Package fluentdforward provides an output for fluentd "Forward" protocol, split into:
//
// - eventSerializer serializes instrument chunks into msgpack formatted events
//
// - encoder joins and compresses events into msgpack Forward messages, equal to entire requests in the protocol
//
// - forwardConnection sends out the messages to upstream fluentd and reads ACKs, while the common ClientWorker handles
// retrying, pinging and pipelining
package fluentdforward
