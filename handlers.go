package lsnp

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/lsnp/auth"
	"github.com/opd-ai/lsnp/file"
	"github.com/opd-ai/lsnp/game"
	"github.com/opd-ai/lsnp/limits"
	"github.com/opd-ai/lsnp/metrics"
	"github.com/opd-ai/lsnp/state"
	"github.com/opd-ai/lsnp/wire"
)

// handlerFunc processes one validated message and returns a drop reason,
// or "" when the message took effect.
type handlerFunc func(r *wire.Record, origin string, addr *net.UDPAddr) string

// msgSpec describes how the dispatcher treats one message type: the token
// scope it demands (empty for tokenless types), whether its TO field must
// name this node, and its required fields.
type msgSpec struct {
	scope     auth.Scope
	addressed bool
	required  []string
	handle    handlerFunc
}

func (n *Node) buildSpecs() map[string]msgSpec {
	return map[string]msgSpec{
		wire.TypeProfile: {
			required: []string{wire.FieldUserID, wire.FieldDisplayName, wire.FieldStatus},
			handle:   n.handleProfile,
		},
		wire.TypePost: {
			scope: auth.ScopeBroadcast,
			required: []string{
				wire.FieldUserID, wire.FieldContent, wire.FieldTTL,
				wire.FieldTimestamp, wire.FieldMessageID, wire.FieldToken,
			},
			handle: n.handlePost,
		},
		wire.TypeDM: {
			scope:     auth.ScopeChat,
			addressed: true,
			required: []string{
				wire.FieldFrom, wire.FieldTo, wire.FieldContent,
				wire.FieldTimestamp, wire.FieldMessageID, wire.FieldToken,
			},
			handle: n.handleDM,
		},
		wire.TypePing: {
			scope:    auth.ScopeBroadcast,
			required: []string{wire.FieldUserID, wire.FieldToken},
			handle:   n.handlePing,
		},
		wire.TypeAck: {
			scope:    auth.ScopeBroadcast,
			required: []string{wire.FieldMessageID, wire.FieldStatus, wire.FieldToken},
			handle:   n.handleAck,
		},
		wire.TypeFollow: {
			scope:     auth.ScopeFollow,
			addressed: true,
			required: []string{
				wire.FieldFrom, wire.FieldTo, wire.FieldTimestamp,
				wire.FieldMessageID, wire.FieldToken,
			},
			handle: n.handleFollow,
		},
		wire.TypeUnfollow: {
			scope:     auth.ScopeFollow,
			addressed: true,
			required: []string{
				wire.FieldFrom, wire.FieldTo, wire.FieldTimestamp,
				wire.FieldMessageID, wire.FieldToken,
			},
			handle: n.handleUnfollow,
		},
		wire.TypeLike: {
			scope:     auth.ScopeChat,
			addressed: true,
			required: []string{
				wire.FieldFrom, wire.FieldTo, wire.FieldPostTimestamp,
				wire.FieldAction, wire.FieldTimestamp, wire.FieldToken,
			},
			handle: n.handleLike,
		},
		wire.TypeFileOffer: {
			scope:     auth.ScopeFile,
			addressed: true,
			required: []string{
				wire.FieldFrom, wire.FieldTo, wire.FieldFileName,
				wire.FieldFileSize, wire.FieldFileType, wire.FieldFileID,
				wire.FieldTotalChunks, wire.FieldTimestamp, wire.FieldToken,
			},
			handle: n.handleFileOffer,
		},
		wire.TypeFileChunk: {
			scope:     auth.ScopeFile,
			addressed: true,
			required: []string{
				wire.FieldFrom, wire.FieldTo, wire.FieldFileID,
				wire.FieldChunkIndex, wire.FieldTotalChunks,
				wire.FieldChunkSize, wire.FieldData, wire.FieldToken,
			},
			handle: n.handleFileChunk,
		},
		wire.TypeFileReceived: {
			addressed: true,
			required: []string{
				wire.FieldFrom, wire.FieldTo, wire.FieldFileID,
				wire.FieldStatus, wire.FieldTimestamp,
			},
			handle: n.handleFileReceived,
		},
		wire.TypeGroupCreate: {
			scope: auth.ScopeGroup,
			required: []string{
				wire.FieldFrom, wire.FieldGroupID, wire.FieldGroupName,
				wire.FieldMembers, wire.FieldTimestamp, wire.FieldToken,
			},
			handle: n.handleGroupCreate,
		},
		wire.TypeGroupUpdate: {
			scope: auth.ScopeGroup,
			required: []string{
				wire.FieldFrom, wire.FieldGroupID, wire.FieldTimestamp,
				wire.FieldToken,
			},
			handle: n.handleGroupUpdate,
		},
		wire.TypeGroupMessage: {
			scope: auth.ScopeGroup,
			required: []string{
				wire.FieldFrom, wire.FieldGroupID, wire.FieldContent,
				wire.FieldTimestamp, wire.FieldToken,
			},
			handle: n.handleGroupMessage,
		},
		wire.TypeTicTacToeInvite: {
			scope:     auth.ScopeGame,
			addressed: true,
			required: []string{
				wire.FieldFrom, wire.FieldTo, wire.FieldGameID,
				wire.FieldMessageID, wire.FieldSymbol, wire.FieldTimestamp,
				wire.FieldToken,
			},
			handle: n.handleGameInvite,
		},
		wire.TypeTicTacToeMove: {
			scope:     auth.ScopeGame,
			addressed: true,
			required: []string{
				wire.FieldFrom, wire.FieldTo, wire.FieldGameID,
				wire.FieldMessageID, wire.FieldPosition, wire.FieldSymbol,
				wire.FieldTurn, wire.FieldToken,
			},
			handle: n.handleGameMove,
		},
		wire.TypeTicTacToeReply: {
			addressed: true,
			required: []string{
				wire.FieldFrom, wire.FieldTo, wire.FieldGameID,
				wire.FieldMessageID, wire.FieldBoard, wire.FieldCurrentTurn,
				wire.FieldWhoseTurn, wire.FieldFinished, wire.FieldTimestamp,
			},
			handle: n.handleGameReply,
		},
		wire.TypeTicTacToeResult: {
			scope:     auth.ScopeGame,
			addressed: true,
			required: []string{
				wire.FieldFrom, wire.FieldTo, wire.FieldGameID,
				wire.FieldMessageID, wire.FieldResult, wire.FieldSymbol,
				wire.FieldTimestamp, wire.FieldToken,
			},
			handle: n.handleGameResult,
		},
	}
}

// onDatagram is the transport handler: rate limit, decode, validate,
// record liveness, dispatch. Failed messages are dropped silently and
// counted by reason; LSNP never replies with an error.
func (n *Node) onDatagram(data []byte, addr *net.UDPAddr) {
	source := addr.IP.String()
	if !n.gate.Allow(source) {
		n.metrics.MessagesDropped.WithLabelValues(metrics.DropRateLimited).Inc()
		return
	}

	r, err := wire.Decode(data)
	if err != nil {
		n.drop(metrics.DropMalformed, "", source, err)
		return
	}

	spec, ok := n.specs[r.Type()]
	if !ok {
		n.drop(metrics.DropUnknownType, r.Type(), source, nil)
		return
	}

	// Our own broadcasts echo back from the network.
	origin := originOf(r)
	if origin == n.opts.UserID {
		n.metrics.MessagesDropped.WithLabelValues(metrics.DropSelf).Inc()
		return
	}

	if err := r.Require(spec.required...); err != nil {
		n.drop(metrics.DropMissingField, r.Type(), source, err)
		return
	}
	if spec.scope != "" {
		if res := auth.Validate(r.Get(wire.FieldToken), spec.scope, n.now()); res != auth.Ok {
			n.drop(metrics.DropBadToken, r.Type(), source, fmt.Errorf("token %s", res))
			return
		}
	}
	if spec.addressed && r.Get(wire.FieldTo) != n.opts.UserID {
		n.drop(metrics.DropNotAddressed, r.Type(), source, nil)
		return
	}

	// Any valid message is proof of life.
	if origin != "" && n.store.TouchPeer(origin, source, n.now()) {
		n.markDirty()
		n.metrics.KnownPeers.Set(float64(n.store.PeerCount()))
	}

	if reason := spec.handle(r, origin, addr); reason != "" {
		n.drop(reason, r.Type(), source, nil)
		return
	}
	n.metrics.MessagesReceived.WithLabelValues(r.Type()).Inc()
}

// originOf names the message's sender: USER_ID for broadcast-origin
// types, FROM for directed ones, and the token's minter as a last resort
// (ACK carries neither).
func originOf(r *wire.Record) string {
	if v := r.Get(wire.FieldUserID); v != "" {
		return v
	}
	if v := r.Get(wire.FieldFrom); v != "" {
		return v
	}
	if tok, err := auth.Parse(r.Get(wire.FieldToken)); err == nil {
		return tok.UserID
	}
	return ""
}

func (n *Node) drop(reason, msgType, source string, err error) {
	n.metrics.MessagesDropped.WithLabelValues(reason).Inc()

	fields := logrus.Fields{
		"function": "onDatagram",
		"reason":   reason,
		"source":   source,
	}
	if msgType != "" {
		fields["type"] = msgType
	}
	if err != nil {
		fields["error"] = err.Error()
	}
	logrus.WithFields(fields).Debug("Datagram dropped")
}

func (n *Node) handleProfile(r *wire.Record, origin string, addr *net.UDPAddr) string {
	changed := n.store.UpsertPeer(origin, r.Get(wire.FieldDisplayName), r.Get(wire.FieldStatus), addr.IP.String(), n.now())
	n.metrics.KnownPeers.Set(float64(n.store.PeerCount()))

	if r.Has(wire.FieldAvatarData) && n.applyAvatar(r, origin) {
		changed = true
	}
	if changed {
		n.markDirty()
		if cb := n.peerCallback; cb != nil {
			if p, ok := n.store.Peer(origin); ok {
				cb(p)
			}
		}
	}
	return ""
}

// applyAvatar caches a profile's avatar bytes. A bad avatar costs only the
// avatar; the rest of the profile stands.
func (n *Node) applyAvatar(r *wire.Record, origin string) bool {
	data, err := wire.DecodePayload(r.Get(wire.FieldAvatarData), r.Get(wire.FieldAvatarSize))
	if err == nil {
		err = limits.ValidateAvatar(data)
	}
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "applyAvatar",
			"peer":     origin,
			"error":    err.Error(),
		}).Debug("Avatar rejected")
		return false
	}
	return n.store.SetPeerAvatar(origin, r.Get(wire.FieldAvatarType), data)
}

func (n *Node) handlePing(r *wire.Record, origin string, addr *net.UDPAddr) string {
	// Liveness was already recorded on the way in.
	return ""
}

func (n *Node) handlePost(r *wire.Record, origin string, addr *net.UDPAddr) string {
	ts, err := r.Int(wire.FieldTimestamp)
	if err != nil {
		return metrics.DropMalformed
	}
	ttl, err := r.Int(wire.FieldTTL)
	if err != nil {
		return metrics.DropMalformed
	}
	content := r.Get(wire.FieldContent)
	if err := limits.ValidateContent(content); err != nil {
		return metrics.DropRejected
	}

	post := state.Post{
		Author:    origin,
		Timestamp: ts,
		Content:   content,
		TTL:       ttl,
		MessageID: r.Get(wire.FieldMessageID),
	}
	if !n.store.AddPost(post) {
		return metrics.DropDuplicate
	}
	n.saveNow()

	// Posts from anyone are kept so a later follow reveals the history,
	// but only followed authors reach the feed.
	if !n.store.IsFollowing(n.opts.UserID, origin) {
		return metrics.DropNotFollowed
	}
	if cb := n.postCallback; cb != nil {
		cb(post)
	}
	return ""
}

func (n *Node) handleDM(r *wire.Record, origin string, addr *net.UDPAddr) string {
	ts, err := r.Int(wire.FieldTimestamp)
	if err != nil {
		return metrics.DropMalformed
	}
	// TTL is optional on the wire; a DM without one lives for the default
	// validity window.
	ttl := n.opts.DefaultTTL
	if r.Has(wire.FieldTTL) {
		ttl, err = r.Int(wire.FieldTTL)
		if err != nil {
			return metrics.DropMalformed
		}
	}
	content := r.Get(wire.FieldContent)
	if err := limits.ValidateContent(content); err != nil {
		return metrics.DropRejected
	}

	// Ack before the dedup check: a retransmitted DM means the sender
	// never heard the first ack.
	ack := wire.NewRecord(wire.TypeAck).
		Set(wire.FieldMessageID, r.Get(wire.FieldMessageID)).
		Set(wire.FieldStatus, wire.StatusReceived).
		Set(wire.FieldToken, n.token(auth.ScopeBroadcast))
	if err := n.sendRecord(ack, addr); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "handleDM",
			"peer":     origin,
			"error":    err.Error(),
		}).Warn("DM ack failed")
	}

	dm := state.DirectMessage{
		From:      origin,
		To:        n.opts.UserID,
		Timestamp: ts,
		Content:   content,
		TTL:       ttl,
		MessageID: r.Get(wire.FieldMessageID),
	}
	if !n.store.AddDM(dm) {
		return metrics.DropDuplicate
	}
	n.saveNow()
	if cb := n.dmCallback; cb != nil {
		cb(dm)
	}
	return ""
}

func (n *Node) handleAck(r *wire.Record, origin string, addr *net.UDPAddr) string {
	if cb := n.ackCallback; cb != nil {
		cb(r.Get(wire.FieldMessageID), r.Get(wire.FieldStatus))
	}
	return ""
}

func (n *Node) handleFollow(r *wire.Record, origin string, addr *net.UDPAddr) string {
	if !n.store.AddFollow(origin, n.opts.UserID) {
		return metrics.DropDuplicate
	}
	n.saveNow()
	if cb := n.followCallback; cb != nil {
		cb(origin, true)
	}
	return ""
}

func (n *Node) handleUnfollow(r *wire.Record, origin string, addr *net.UDPAddr) string {
	if !n.store.RemoveFollow(origin, n.opts.UserID) {
		return metrics.DropDuplicate
	}
	n.saveNow()
	if cb := n.followCallback; cb != nil {
		cb(origin, false)
	}
	return ""
}

func (n *Node) handleLike(r *wire.Record, origin string, addr *net.UDPAddr) string {
	postTS, err := r.Int(wire.FieldPostTimestamp)
	if err != nil {
		return metrics.DropMalformed
	}
	ts, err := r.Int(wire.FieldTimestamp)
	if err != nil {
		return metrics.DropMalformed
	}
	var liked bool
	switch r.Get(wire.FieldAction) {
	case wire.ActionLike:
		liked = true
	case wire.ActionUnlike:
		liked = false
	default:
		return metrics.DropRejected
	}

	// LIKE is addressed to the post's author, so the referenced post is
	// one of ours.
	postID := state.PostID(n.opts.UserID, postTS)
	if !n.store.HasPost(postID) {
		return metrics.DropRejected
	}
	if !n.store.SetLike(postID, origin, liked, ts) {
		return metrics.DropDuplicate
	}
	n.saveNow()
	if cb := n.likeCallback; cb != nil {
		cb(origin, postID, liked)
	}
	return ""
}

func (n *Node) handleFileOffer(r *wire.Record, origin string, addr *net.UDPAddr) string {
	size, err := r.Int(wire.FieldFileSize)
	if err != nil {
		return metrics.DropMalformed
	}
	chunks, err := r.Int(wire.FieldTotalChunks)
	if err != nil {
		return metrics.DropMalformed
	}
	ts, err := r.Int(wire.FieldTimestamp)
	if err != nil {
		return metrics.DropMalformed
	}

	t, created, err := n.files.Offer(origin, r.Get(wire.FieldFileID), r.Get(wire.FieldFileName),
		r.Get(wire.FieldFileType), r.Get(wire.FieldDescription), size, int(chunks), ts)
	if err != nil {
		return metrics.DropRejected
	}
	if !created {
		return metrics.DropDuplicate
	}
	if cb := n.fileOfferCallback; cb != nil {
		cb(t)
	}
	return ""
}

func (n *Node) handleFileChunk(r *wire.Record, origin string, addr *net.UDPAddr) string {
	index, err := r.Int(wire.FieldChunkIndex)
	if err != nil {
		return metrics.DropMalformed
	}
	data, err := wire.DecodePayload(r.Get(wire.FieldData), r.Get(wire.FieldChunkSize))
	if err != nil {
		return metrics.DropMalformed
	}

	fileID := r.Get(wire.FieldFileID)
	_, _, done, err := n.files.AddChunk(origin, fileID, int(index), data)
	switch {
	case errors.Is(err, file.ErrFinished):
		return metrics.DropDuplicate
	case err != nil:
		return metrics.DropRejected
	}
	if done {
		n.ackFileComplete(origin, fileID, addr)
	}
	return ""
}

// ackFileComplete tells the sender their file arrived intact.
func (n *Node) ackFileComplete(origin, fileID string, addr *net.UDPAddr) {
	r := wire.NewRecord(wire.TypeFileReceived).
		Set(wire.FieldFrom, n.opts.UserID).
		Set(wire.FieldTo, origin).
		Set(wire.FieldFileID, fileID).
		Set(wire.FieldStatus, wire.StatusComplete)
	if err := n.sendRecord(r, addr); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "ackFileComplete",
			"peer":     origin,
			"file_id":  fileID,
			"error":    err.Error(),
		}).Warn("FILE_RECEIVED send failed")
	}
}

func (n *Node) handleFileReceived(r *wire.Record, origin string, addr *net.UDPAddr) string {
	t, changed := n.files.MarkReceived(origin, r.Get(wire.FieldFileID))
	if changed {
		return ""
	}
	if t != nil && t.Direction == file.TransferOutgoing {
		return metrics.DropDuplicate
	}
	return metrics.DropRejected
}

func (n *Node) handleGroupCreate(r *wire.Record, origin string, addr *net.UDPAddr) string {
	ts, err := r.Int(wire.FieldTimestamp)
	if err != nil {
		return metrics.DropMalformed
	}
	group := state.Group{
		ID:      r.Get(wire.FieldGroupID),
		Name:    r.Get(wire.FieldGroupName),
		Creator: origin,
		Members: splitList(r.Get(wire.FieldMembers)),
		Created: ts,
	}
	if group.ID == "" || len(group.Members) > limits.MaxGroupMembers {
		return metrics.DropRejected
	}
	// Groups we are not named into are someone else's business.
	if !group.HasMember(n.opts.UserID) {
		return metrics.DropNotMember
	}
	if !n.store.CreateGroup(group) {
		return metrics.DropDuplicate
	}
	n.saveNow()
	if cb := n.groupCreateCallback; cb != nil {
		if g, ok := n.store.GroupByID(group.ID); ok {
			cb(g)
		}
	}
	return ""
}

func (n *Node) handleGroupUpdate(r *wire.Record, origin string, addr *net.UDPAddr) string {
	groupID := r.Get(wire.FieldGroupID)
	g, ok := n.store.GroupByID(groupID)
	if !ok {
		return metrics.DropRejected
	}
	// Only the creator steers membership.
	if g.Creator != origin {
		return metrics.DropRejected
	}
	if !n.store.UpdateGroup(groupID, splitList(r.Get(wire.FieldAdd)), splitList(r.Get(wire.FieldRemove))) {
		return metrics.DropDuplicate
	}
	n.saveNow()
	if cb := n.groupUpdateCallback; cb != nil {
		if updated, ok := n.store.GroupByID(groupID); ok {
			cb(updated)
		}
	}
	return ""
}

func (n *Node) handleGroupMessage(r *wire.Record, origin string, addr *net.UDPAddr) string {
	groupID := r.Get(wire.FieldGroupID)
	if !n.store.IsMember(groupID, n.opts.UserID) || !n.store.IsMember(groupID, origin) {
		return metrics.DropNotMember
	}
	content := r.Get(wire.FieldContent)
	if err := limits.ValidateContent(content); err != nil {
		return metrics.DropRejected
	}
	if cb := n.groupMessageCallback; cb != nil {
		cb(origin, groupID, content)
	}
	return ""
}

func (n *Node) handleGameInvite(r *wire.Record, origin string, addr *net.UDPAddr) string {
	ts, err := r.Int(wire.FieldTimestamp)
	if err != nil {
		return metrics.DropMalformed
	}
	report, created, err := n.games.Invite(r.Get(wire.FieldGameID), origin, n.opts.UserID, r.Get(wire.FieldSymbol), ts)
	if err != nil {
		return metrics.DropRejected
	}
	if !created {
		return metrics.DropDuplicate
	}
	if cb := n.gameInviteCallback; cb != nil {
		cb(report, origin)
	}
	return ""
}

func (n *Node) handleGameMove(r *wire.Record, origin string, addr *net.UDPAddr) string {
	position, err := r.Int(wire.FieldPosition)
	if err != nil {
		return metrics.DropMalformed
	}
	turn, err := r.Int(wire.FieldTurn)
	if err != nil {
		return metrics.DropMalformed
	}

	gameID := r.Get(wire.FieldGameID)
	report, err := n.games.Move(gameID, origin, int(position), int(turn), r.Get(wire.FieldSymbol))
	if err != nil {
		return metrics.DropRejected
	}

	n.replyMoveResponse(report, origin, addr)
	if report.Finished {
		n.metrics.GamesFinished.Inc()
		if cb := n.gameOverCallback; cb != nil {
			cb(report)
		}
	} else if cb := n.gameUpdateCallback; cb != nil {
		cb(report)
	}
	return ""
}

// replyMoveResponse mirrors the board back to the mover so both sides can
// spot divergence.
func (n *Node) replyMoveResponse(report game.Report, to string, addr *net.UDPAddr) {
	r := wire.NewRecord(wire.TypeTicTacToeReply).
		Set(wire.FieldFrom, n.opts.UserID).
		Set(wire.FieldTo, to).
		Set(wire.FieldGameID, report.GameID).
		Set(wire.FieldMessageID, wire.NewMessageID()).
		Set(wire.FieldBoard, boardWire(report.Board)).
		SetInt(wire.FieldCurrentTurn, int64(report.Turn)).
		Set(wire.FieldWhoseTurn, report.WhoseTurn).
		Set(wire.FieldFinished, strconv.FormatBool(report.Finished))
	if report.Winner != "" {
		r.Set(wire.FieldWinner, report.Winner)
	}
	if err := n.sendRecord(r, addr); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "replyMoveResponse",
			"game_id":  report.GameID,
			"error":    err.Error(),
		}).Warn("Move response send failed")
	}
}

func (n *Node) handleGameReply(r *wire.Record, origin string, addr *net.UDPAddr) string {
	gameID := r.Get(wire.FieldGameID)
	report, err := n.games.Get(gameID)
	if err != nil {
		return metrics.DropRejected
	}
	if board := boardLocal(r.Get(wire.FieldBoard)); board != report.Board {
		logrus.WithFields(logrus.Fields{
			"function": "handleGameReply",
			"game_id":  gameID,
			"peer":     origin,
			"local":    report.Board,
			"remote":   board,
		}).Warn("Game boards diverged")
	}
	if cb := n.gameUpdateCallback; cb != nil {
		cb(report)
	}
	return ""
}

func (n *Node) handleGameResult(r *wire.Record, origin string, addr *net.UDPAddr) string {
	var winner string
	var draw bool
	switch r.Get(wire.FieldResult) {
	case wire.ResultWin:
		winner = origin
	case wire.ResultLoss:
		winner = n.opts.UserID
	case wire.ResultForfeit:
		// The sender resigned.
		winner = n.opts.UserID
	case wire.ResultDraw:
		draw = true
	default:
		return metrics.DropRejected
	}

	report, changed, err := n.games.Conclude(r.Get(wire.FieldGameID), winner, draw)
	if err != nil {
		return metrics.DropRejected
	}
	if !changed {
		return metrics.DropDuplicate
	}
	n.metrics.GamesFinished.Inc()
	if cb := n.gameOverCallback; cb != nil {
		cb(report)
	}
	return ""
}

// splitList parses a comma-separated user list, dropping empties.
func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// boardWire substitutes dots for empty cells. The codec strips leading
// whitespace from values, so a space-padded board does not survive a
// round trip.
func boardWire(board string) string {
	return strings.ReplaceAll(board, " ", ".")
}

func boardLocal(board string) string {
	return strings.ReplaceAll(board, ".", " ")
}
