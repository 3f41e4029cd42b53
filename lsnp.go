package lsnp

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/opd-ai/lsnp/auth"
	"github.com/opd-ai/lsnp/config"
	"github.com/opd-ai/lsnp/file"
	"github.com/opd-ai/lsnp/game"
	"github.com/opd-ai/lsnp/limits"
	"github.com/opd-ai/lsnp/metrics"
	"github.com/opd-ai/lsnp/state"
	"github.com/opd-ai/lsnp/transport"
	"github.com/opd-ai/lsnp/wire"
)

// ErrAlreadyStarted indicates Start was called on a running node.
var ErrAlreadyStarted = errors.New("node already started")

// ErrUnknownPeer indicates a unicast target whose address cannot be
// resolved from the peer table or the user id.
var ErrUnknownPeer = errors.New("unknown peer")

// Options configures a Node. Zero values fall back to the defaults of
// NewOptions when the node is created.
type Options struct {
	// UserID is the node's identity on the wire, conventionally name@ip.
	// Empty derives hostname@local-ip.
	UserID      string
	DisplayName string
	Status      string
	AvatarPath  string

	// Port is the shared UDP port of the broadcast domain.
	Port          int
	BroadcastAddr string

	// PresenceInterval spaces the periodic PROFILE and PING beats.
	PresenceInterval time.Duration

	// DefaultTTL is the validity window in seconds for posts and for
	// every minted token.
	DefaultTTL int64

	// PeerExpiry prunes peers not heard from for this long. Zero keeps
	// peers forever.
	PeerExpiry time.Duration

	AutoAcceptFiles bool
	DownloadDir     string

	// CachePath is the JSON snapshot location. Empty disables
	// persistence.
	CachePath string

	// MetricsAddr serves Prometheus metrics when set, e.g. ":9090".
	MetricsAddr string

	// RateLimitRPS caps datagrams processed per second per source
	// address. Zero disables limiting.
	RateLimitRPS   float64
	RateLimitBurst int
}

// NewOptions creates default options. The identity fields stay empty and
// are derived from the machine when the node is created.
func NewOptions() *Options {
	return &Options{
		Status:           "Exploring LSNP!",
		Port:             50999,
		BroadcastAddr:    "255.255.255.255",
		PresenceInterval: 30 * time.Second,
		DefaultTTL:       wire.DefaultTTL,
		AutoAcceptFiles:  true,
		DownloadDir:      "downloads",
		RateLimitRPS:     20,
		RateLimitBurst:   40,
	}
}

// FromConfig maps loaded configuration onto node options.
func FromConfig(cfg *config.Config) *Options {
	return &Options{
		UserID:           cfg.UserID,
		DisplayName:      cfg.DisplayName,
		Status:           cfg.Status,
		AvatarPath:       cfg.AvatarPath,
		Port:             cfg.Port,
		BroadcastAddr:    cfg.BroadcastAddr,
		PresenceInterval: cfg.PresenceInterval,
		DefaultTTL:       cfg.DefaultTTL,
		PeerExpiry:       cfg.PeerExpiry,
		AutoAcceptFiles:  cfg.AutoAcceptFiles,
		DownloadDir:      cfg.DownloadDir,
		CachePath:        cfg.CachePath,
		MetricsAddr:      cfg.MetricsAddr,
		RateLimitRPS:     cfg.RateLimitRPS,
		RateLimitBurst:   cfg.RateLimitBurst,
	}
}

// applyDefaults fills empty fields so every code path can rely on them.
func (o *Options) applyDefaults() {
	if o.UserID == "" {
		host, err := os.Hostname()
		if err != nil || host == "" {
			host = "lsnp"
		}
		o.UserID = fmt.Sprintf("%s@%s", host, transport.LocalIP())
	}
	if o.DisplayName == "" {
		o.DisplayName, _, _ = strings.Cut(o.UserID, "@")
	}
	if o.Status == "" {
		o.Status = "Exploring LSNP!"
	}
	if o.BroadcastAddr == "" {
		o.BroadcastAddr = "255.255.255.255"
	}
	if o.PresenceInterval <= 0 {
		o.PresenceInterval = 30 * time.Second
	}
	if o.DefaultTTL <= 0 {
		o.DefaultTTL = wire.DefaultTTL
	}
	if o.DownloadDir == "" {
		o.DownloadDir = "downloads"
	}
}

// Node is one LSNP peer: a UDP transport, the durable social state, the
// transfer and game managers, and the dispatch pipeline tying them
// together.
type Node struct {
	opts *Options

	// Wiring
	transport transport.Transport
	gate      *transport.RateGate
	store     *state.Store
	files     *file.Manager
	games     *game.Manager
	metrics   *metrics.Metrics
	specs     map[string]msgSpec

	avatar     []byte
	avatarType string

	clock func() int64

	// Lifecycle
	mu      sync.Mutex
	running bool
	dirty   bool
	cancel  context.CancelFunc
	group   *errgroup.Group

	// Callbacks, registered before Start.
	peerCallback         PeerCallback
	postCallback         PostCallback
	dmCallback           DMCallback
	ackCallback          AckCallback
	followCallback       FollowCallback
	likeCallback         LikeCallback
	fileOfferCallback    FileOfferCallback
	fileProgressCallback FileProgressCallback
	fileCompleteCallback FileCompleteCallback
	fileFailedCallback   FileFailedCallback
	groupCreateCallback  GroupCallback
	groupUpdateCallback  GroupCallback
	groupMessageCallback GroupMessageCallback
	gameInviteCallback   GameInviteCallback
	gameUpdateCallback   GameUpdateCallback
	gameOverCallback     GameOverCallback
}

// New creates a node bound to the shared LSNP port. The node receives as
// soon as New returns; Start launches the presence loop and metrics
// listener.
func New(opts *Options) (*Node, error) {
	if opts == nil {
		opts = NewOptions()
	}
	opts.applyDefaults()

	tr, err := transport.NewUDP(opts.Port, opts.BroadcastAddr)
	if err != nil {
		return nil, err
	}
	n, err := newWithTransport(opts, tr)
	if err != nil {
		tr.Close()
		return nil, err
	}
	return n, nil
}

// newWithTransport wires a node onto an existing transport.
func newWithTransport(opts *Options, tr transport.Transport) (*Node, error) {
	n := &Node{
		opts:      opts,
		transport: tr,
		gate:      transport.NewRateGate(opts.RateLimitRPS, opts.RateLimitBurst),
		store:     state.New(),
		files:     file.NewManager(opts.DownloadDir, opts.AutoAcceptFiles),
		games:     game.NewManager(),
		metrics:   metrics.New(),
		clock:     func() int64 { return time.Now().Unix() },
	}
	n.specs = n.buildSpecs()
	n.loadAvatar()
	n.loadCache()
	n.wireFileEvents()
	tr.SetHandler(n.onDatagram)

	logrus.WithFields(logrus.Fields{
		"function": "newWithTransport",
		"user_id":  opts.UserID,
		"port":     opts.Port,
	}).Info("LSNP node created")
	return n, nil
}

// UserID returns the node's own identity.
func (n *Node) UserID() string {
	return n.opts.UserID
}

// Store exposes the durable social state for queries.
func (n *Node) Store() *state.Store {
	return n.store
}

// Files exposes the file transfer manager.
func (n *Node) Files() *file.Manager {
	return n.files
}

// Games exposes the tic-tac-toe session manager.
func (n *Node) Games() *game.Manager {
	return n.games
}

// Start launches the presence loop and, when configured, the metrics
// listener. It returns immediately; Stop tears both down.
func (n *Node) Start() error {
	n.mu.Lock()
	if n.running {
		n.mu.Unlock()
		return ErrAlreadyStarted
	}
	ctx, cancel := context.WithCancel(context.Background())
	g, gctx := errgroup.WithContext(ctx)
	n.running = true
	n.cancel = cancel
	n.group = g
	n.mu.Unlock()

	g.Go(func() error {
		n.presenceLoop(gctx)
		return nil
	})
	if n.opts.MetricsAddr != "" {
		g.Go(func() error {
			return n.metrics.Serve(gctx, n.opts.MetricsAddr)
		})
	}

	logrus.WithFields(logrus.Fields{
		"function": "Start",
		"user_id":  n.opts.UserID,
		"interval": n.opts.PresenceInterval.String(),
	}).Info("LSNP node started")
	return nil
}

// Stop shuts down the loops, closes the transport, and writes a final
// state snapshot. Stopping a node that never started still closes the
// transport.
func (n *Node) Stop() error {
	n.mu.Lock()
	running := n.running
	cancel := n.cancel
	g := n.group
	n.running = false
	n.cancel = nil
	n.group = nil
	n.mu.Unlock()

	var err error
	if running {
		cancel()
		err = g.Wait()
	}
	if cerr := n.transport.Close(); err == nil {
		err = cerr
	}
	n.saveNow()

	logrus.WithFields(logrus.Fields{
		"function": "Stop",
		"user_id":  n.opts.UserID,
	}).Info("LSNP node stopped")
	return err
}

// presenceLoop beats immediately, then on every tick until ctx ends.
func (n *Node) presenceLoop(ctx context.Context) {
	n.beat()
	ticker := time.NewTicker(n.opts.PresenceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n.beat()
		}
	}
}

// beat broadcasts one PROFILE and one PING, prunes expired peers, and
// flushes batched state changes to disk.
func (n *Node) beat() {
	if err := n.SendProfile(); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "beat",
			"error":    err.Error(),
		}).Warn("Presence PROFILE broadcast failed")
	}
	if err := n.SendPing(); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "beat",
			"error":    err.Error(),
		}).Warn("Presence PING broadcast failed")
	}

	if n.opts.PeerExpiry > 0 {
		cutoff := n.now() - int64(n.opts.PeerExpiry/time.Second)
		if pruned := n.store.PrunePeers(cutoff); pruned > 0 {
			n.markDirty()
			n.metrics.KnownPeers.Set(float64(n.store.PeerCount()))
			logrus.WithFields(logrus.Fields{
				"function": "beat",
				"pruned":   pruned,
			}).Info("Expired peers pruned")
		}
	}
	n.flushDirty()
}

// markDirty batches a liveness-class change for the next flush.
func (n *Node) markDirty() {
	n.mu.Lock()
	n.dirty = true
	n.mu.Unlock()
}

// flushDirty writes the snapshot if anything was batched since the last
// save.
func (n *Node) flushDirty() {
	n.mu.Lock()
	dirty := n.dirty
	n.dirty = false
	n.mu.Unlock()
	if dirty {
		n.saveNow()
	}
}

// saveNow writes the state snapshot immediately. Persistence failures are
// logged, never fatal; the node keeps its in-memory state.
func (n *Node) saveNow() {
	if n.opts.CachePath == "" {
		return
	}
	n.mu.Lock()
	n.dirty = false
	n.mu.Unlock()
	if err := n.store.SaveFile(n.opts.CachePath); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "saveNow",
			"path":     n.opts.CachePath,
			"error":    err.Error(),
		}).Warn("State snapshot write failed")
	}
}

// loadCache restores the previous snapshot. A missing file is a fresh
// start; a corrupt one is logged and ignored.
func (n *Node) loadCache() {
	if n.opts.CachePath == "" {
		return
	}
	err := n.store.LoadFile(n.opts.CachePath)
	switch {
	case err == nil:
		n.metrics.KnownPeers.Set(float64(n.store.PeerCount()))
	case os.IsNotExist(err):
		logrus.WithFields(logrus.Fields{
			"function": "loadCache",
			"path":     n.opts.CachePath,
		}).Debug("No state snapshot, starting fresh")
	default:
		logrus.WithFields(logrus.Fields{
			"function": "loadCache",
			"path":     n.opts.CachePath,
			"error":    err.Error(),
		}).Warn("State snapshot unreadable, starting fresh")
	}
}

// loadAvatar reads the node's own avatar for PROFILE broadcasts. Problems
// cost the avatar, not the node.
func (n *Node) loadAvatar() {
	path := n.opts.AvatarPath
	if path == "" {
		return
	}
	data, err := os.ReadFile(path)
	if err == nil {
		err = limits.ValidateAvatar(data)
	}
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "loadAvatar",
			"path":     path,
			"error":    err.Error(),
		}).Warn("Avatar not loaded")
		return
	}
	n.avatar = data
	n.avatarType = mime.TypeByExtension(filepath.Ext(path))
	if n.avatarType == "" {
		n.avatarType = "image/png"
	}
}

// wireFileEvents forwards transfer manager events to the node's callbacks
// and the transfer outcome metric.
func (n *Node) wireFileEvents() {
	n.files.OnProgress(func(t *file.Transfer) {
		if cb := n.fileProgressCallback; cb != nil {
			cb(t)
		}
	})
	n.files.OnComplete(func(t *file.Transfer, path string) {
		n.metrics.FileTransfers.WithLabelValues(metrics.OutcomeCompleted).Inc()
		if cb := n.fileCompleteCallback; cb != nil {
			cb(t, path)
		}
	})
	n.files.OnFailed(func(t *file.Transfer, err error) {
		n.metrics.FileTransfers.WithLabelValues(metrics.OutcomeFailed).Inc()
		if cb := n.fileFailedCallback; cb != nil {
			cb(t, err)
		}
	})
}

// now returns the node's current Unix time.
func (n *Node) now() int64 {
	return n.clock()
}

// token mints a capability token for one of the node's own messages.
func (n *Node) token(scope auth.Scope) string {
	return auth.Mint(n.opts.UserID, scope, n.now(), n.opts.DefaultTTL)
}

// peerAddr resolves a user id to a UDP address: the address the peer was
// last seen at, or the host part of the id.
func (n *Node) peerAddr(userID string) (*net.UDPAddr, error) {
	host := ""
	if p, ok := n.store.Peer(userID); ok {
		host = p.Address
	}
	if host == "" {
		if _, after, found := strings.Cut(userID, "@"); found {
			host = after
		}
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return nil, fmt.Errorf("%w: no address for %q", ErrUnknownPeer, userID)
	}
	return &net.UDPAddr{IP: ip, Port: n.opts.Port}, nil
}

// broadcastRecord encodes and broadcasts a record.
func (n *Node) broadcastRecord(r *wire.Record) error {
	if err := n.transport.Broadcast(wire.Encode(r)); err != nil {
		return fmt.Errorf("broadcast %s: %w", r.Type(), err)
	}
	n.metrics.MessagesSent.WithLabelValues(r.Type()).Inc()
	logrus.WithFields(logrus.Fields{
		"function": "broadcastRecord",
		"type":     r.Type(),
	}).Debug("Message broadcast")
	return nil
}

// sendRecord encodes and unicasts a record.
func (n *Node) sendRecord(r *wire.Record, addr *net.UDPAddr) error {
	if err := n.transport.SendTo(wire.Encode(r), addr); err != nil {
		return fmt.Errorf("send %s: %w", r.Type(), err)
	}
	n.metrics.MessagesSent.WithLabelValues(r.Type()).Inc()
	logrus.WithFields(logrus.Fields{
		"function": "sendRecord",
		"type":     r.Type(),
		"to":       addr.String(),
	}).Debug("Message sent")
	return nil
}

// sendToPeer resolves a peer and unicasts a record to it.
func (n *Node) sendToPeer(r *wire.Record, userID string) error {
	addr, err := n.peerAddr(userID)
	if err != nil {
		return err
	}
	return n.sendRecord(r, addr)
}
