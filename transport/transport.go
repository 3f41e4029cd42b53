package transport

import "net"

// Handler processes one received datagram. The data slice is owned by the
// handler and survives the call.
type Handler func(data []byte, addr *net.UDPAddr)

// Transport sends and receives raw datagrams. Implementations are safe for
// concurrent use.
type Transport interface {
	// Broadcast sends data to every node on the local network.
	Broadcast(data []byte) error
	// SendTo sends data to a single peer.
	SendTo(data []byte, addr *net.UDPAddr) error
	// SetHandler registers the receive callback. It must be set before
	// datagrams arrive; a nil handler drops everything.
	SetHandler(h Handler)
	// LocalAddr returns the bound address.
	LocalAddr() *net.UDPAddr
	// Close stops the receive loop and closes the socket.
	Close() error
}
