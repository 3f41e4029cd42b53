// Package transport moves raw LSNP datagrams over UDP.
//
// A node binds one socket on the LSNP port, receives from the whole local
// network, and sends either subnet broadcasts or unicast replies from the
// same socket. The transport carries bytes only; framing and dispatch
// belong to the callers.
//
// # Receiving
//
// The receive loop reads with short deadlines so shutdown never blocks on
// a quiet network. Each datagram is handed to the registered handler on
// its own goroutine, so a slow handler cannot stall the socket.
//
// # Rate limiting
//
// RateGate bounds how many datagrams per second a single source host may
// deliver. The gate only answers Allow; deciding where to apply it is the
// caller's concern.
package transport
