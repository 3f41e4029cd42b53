package transport

import (
	"context"
	"fmt"
	"net"
	"sync"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/opd-ai/lsnp/limits"
)

// UDP is the broadcast socket an LSNP node runs. It satisfies the
// Transport interface.
type UDP struct {
	conn      *net.UDPConn
	broadcast *net.UDPAddr
	handler   Handler
	mu        sync.RWMutex
	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewUDP binds port on every interface and starts the receive loop.
// broadcastAddr is where Broadcast sends, normally the limited broadcast
// address 255.255.255.255. Port 0 picks an ephemeral port and aims
// broadcasts at it.
func NewUDP(port int, broadcastAddr string) (*UDP, error) {
	ip := net.ParseIP(broadcastAddr)
	if ip == nil {
		return nil, fmt.Errorf("bad broadcast address %q", broadcastAddr)
	}

	lc := net.ListenConfig{Control: broadcastControl}
	pc, err := lc.ListenPacket(context.Background(), "udp4", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, fmt.Errorf("bind udp port %d: %w", port, err)
	}
	conn := pc.(*net.UDPConn)

	target := &net.UDPAddr{IP: ip, Port: port}
	if port == 0 {
		target.Port = conn.LocalAddr().(*net.UDPAddr).Port
	}

	ctx, cancel := context.WithCancel(context.Background())
	t := &UDP{
		conn:      conn,
		broadcast: target,
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
	}

	logrus.WithFields(logrus.Fields{
		"function":  "NewUDP",
		"addr":      conn.LocalAddr().String(),
		"broadcast": target.String(),
	}).Info("UDP transport listening")

	go t.receiveLoop()
	return t, nil
}

// broadcastControl prepares the socket before bind: it must opt in to
// broadcast sends before the first one, and address reuse lets a
// restarting node rebind while old datagrams drain.
func broadcastControl(network, address string, c syscall.RawConn) error {
	var sockErr error
	err := c.Control(func(fd uintptr) {
		sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
		if sockErr != nil {
			return
		}
		sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_BROADCAST, 1)
	})
	if err != nil {
		return err
	}
	return sockErr
}

// SetHandler registers the receive callback.
func (t *UDP) SetHandler(h Handler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handler = h
}

// Broadcast sends data to the whole local network.
func (t *UDP) Broadcast(data []byte) error {
	if err := limits.ValidateDatagram(data); err != nil {
		return err
	}
	_, err := t.conn.WriteToUDP(data, t.broadcast)
	return err
}

// SendTo sends data to a single peer.
func (t *UDP) SendTo(data []byte, addr *net.UDPAddr) error {
	if err := limits.ValidateDatagram(data); err != nil {
		return err
	}
	_, err := t.conn.WriteToUDP(data, addr)
	return err
}

// LocalAddr returns the bound address.
func (t *UDP) LocalAddr() *net.UDPAddr {
	return t.conn.LocalAddr().(*net.UDPAddr)
}

// Close stops the receive loop and closes the socket.
func (t *UDP) Close() error {
	t.cancel()
	err := t.conn.Close()
	<-t.done
	return err
}

// receiveLoop reads datagrams until the transport closes.
func (t *UDP) receiveLoop() {
	defer close(t.done)

	buffer := make([]byte, limits.MaxDatagram)
	for {
		select {
		case <-t.ctx.Done():
			return
		default:
			t.receiveOne(buffer)
		}
	}
}

// receiveOne reads a single datagram with a short deadline so the loop
// can notice shutdown on a quiet network.
func (t *UDP) receiveOne(buffer []byte) {
	_ = t.conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))

	n, addr, err := t.conn.ReadFromUDP(buffer)
	if err != nil {
		if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
			return
		}
		if t.ctx.Err() == nil {
			logrus.WithFields(logrus.Fields{
				"function": "receiveOne",
				"error":    err.Error(),
			}).Debug("UDP read failed")
		}
		return
	}
	if n == 0 {
		return
	}

	t.mu.RLock()
	handler := t.handler
	t.mu.RUnlock()
	if handler == nil {
		return
	}

	// The read buffer is reused; hand the handler its own copy.
	data := make([]byte, n)
	copy(data, buffer[:n])
	go handler(data, addr)
}

// LocalIP discovers the machine's outbound IPv4 address by dialing a
// well-known public address. No packet is sent; a connected UDP socket
// just picks a source address. Falls back to loopback when offline.
func LocalIP() string {
	conn, err := net.Dial("udp4", "8.8.8.8:80")
	if err != nil {
		return "127.0.0.1"
	}
	defer conn.Close()
	if addr, ok := conn.LocalAddr().(*net.UDPAddr); ok {
		return addr.IP.String()
	}
	return "127.0.0.1"
}
