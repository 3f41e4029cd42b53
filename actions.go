package lsnp

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/lsnp/auth"
	"github.com/opd-ai/lsnp/game"
	"github.com/opd-ai/lsnp/limits"
	"github.com/opd-ai/lsnp/state"
	"github.com/opd-ai/lsnp/wire"
)

// SendProfile broadcasts the node's profile, including its avatar when one
// is loaded. The presence loop calls this on every beat.
func (n *Node) SendProfile() error {
	r := wire.NewRecord(wire.TypeProfile).
		Set(wire.FieldUserID, n.opts.UserID).
		Set(wire.FieldDisplayName, n.opts.DisplayName).
		Set(wire.FieldStatus, n.opts.Status)
	if len(n.avatar) > 0 {
		r.Set(wire.FieldAvatarType, n.avatarType).
			Set(wire.FieldAvatarEncoding, "base64").
			SetInt(wire.FieldAvatarSize, int64(len(n.avatar))).
			Set(wire.FieldAvatarData, wire.EncodePayload(n.avatar))
	}
	return n.broadcastRecord(r)
}

// SendPing broadcasts a liveness beacon.
func (n *Node) SendPing() error {
	r := wire.NewRecord(wire.TypePing).
		Set(wire.FieldUserID, n.opts.UserID).
		Set(wire.FieldToken, n.token(auth.ScopeBroadcast))
	return n.broadcastRecord(r)
}

// SendPost broadcasts a post and stores it locally. The returned post
// carries the timestamp peers will reference in likes.
func (n *Node) SendPost(content string) (state.Post, error) {
	if err := limits.ValidateContent(content); err != nil {
		return state.Post{}, err
	}
	post := state.Post{
		Author:    n.opts.UserID,
		Timestamp: n.now(),
		Content:   content,
		TTL:       n.opts.DefaultTTL,
		MessageID: wire.NewMessageID(),
	}

	r := wire.NewRecord(wire.TypePost).
		Set(wire.FieldUserID, post.Author).
		Set(wire.FieldContent, post.Content).
		SetInt(wire.FieldTTL, post.TTL).
		SetInt(wire.FieldTimestamp, post.Timestamp).
		Set(wire.FieldMessageID, post.MessageID).
		Set(wire.FieldToken, n.token(auth.ScopeBroadcast))
	if err := n.broadcastRecord(r); err != nil {
		return state.Post{}, err
	}
	if n.store.AddPost(post) {
		n.saveNow()
	}
	return post, nil
}

// SendDM unicasts a direct message and stores it locally.
func (n *Node) SendDM(to, content string) (state.DirectMessage, error) {
	if err := limits.ValidateContent(content); err != nil {
		return state.DirectMessage{}, err
	}
	dm := state.DirectMessage{
		From:      n.opts.UserID,
		To:        to,
		Timestamp: n.now(),
		Content:   content,
		TTL:       n.opts.DefaultTTL,
		MessageID: wire.NewMessageID(),
	}

	r := wire.NewRecord(wire.TypeDM).
		Set(wire.FieldFrom, dm.From).
		Set(wire.FieldTo, dm.To).
		Set(wire.FieldContent, dm.Content).
		SetInt(wire.FieldTimestamp, dm.Timestamp).
		SetInt(wire.FieldTTL, dm.TTL).
		Set(wire.FieldMessageID, dm.MessageID).
		Set(wire.FieldToken, n.token(auth.ScopeChat))
	if err := n.sendToPeer(r, to); err != nil {
		return state.DirectMessage{}, err
	}
	if n.store.AddDM(dm) {
		n.saveNow()
	}
	return dm, nil
}

// Follow tells peer we follow them and records the edge locally, which
// admits their posts to our feed.
func (n *Node) Follow(peer string) error {
	r := wire.NewRecord(wire.TypeFollow).
		Set(wire.FieldFrom, n.opts.UserID).
		Set(wire.FieldTo, peer).
		SetInt(wire.FieldTimestamp, n.now()).
		Set(wire.FieldMessageID, wire.NewMessageID()).
		Set(wire.FieldToken, n.token(auth.ScopeFollow))
	if err := n.sendToPeer(r, peer); err != nil {
		return err
	}
	if n.store.AddFollow(n.opts.UserID, peer) {
		n.saveNow()
	}
	return nil
}

// Unfollow withdraws a follow.
func (n *Node) Unfollow(peer string) error {
	r := wire.NewRecord(wire.TypeUnfollow).
		Set(wire.FieldFrom, n.opts.UserID).
		Set(wire.FieldTo, peer).
		SetInt(wire.FieldTimestamp, n.now()).
		Set(wire.FieldMessageID, wire.NewMessageID()).
		Set(wire.FieldToken, n.token(auth.ScopeFollow))
	if err := n.sendToPeer(r, peer); err != nil {
		return err
	}
	if n.store.RemoveFollow(n.opts.UserID, peer) {
		n.saveNow()
	}
	return nil
}

// Like tells peer we like the post they published at postTimestamp.
func (n *Node) Like(peer string, postTimestamp int64) error {
	return n.sendLike(peer, postTimestamp, wire.ActionLike)
}

// Unlike withdraws a like.
func (n *Node) Unlike(peer string, postTimestamp int64) error {
	return n.sendLike(peer, postTimestamp, wire.ActionUnlike)
}

func (n *Node) sendLike(peer string, postTimestamp int64, action string) error {
	ts := n.now()
	r := wire.NewRecord(wire.TypeLike).
		Set(wire.FieldFrom, n.opts.UserID).
		Set(wire.FieldTo, peer).
		SetInt(wire.FieldPostTimestamp, postTimestamp).
		Set(wire.FieldAction, action).
		SetInt(wire.FieldTimestamp, ts).
		Set(wire.FieldToken, n.token(auth.ScopeChat))
	if err := n.sendToPeer(r, peer); err != nil {
		return err
	}
	// Track our own stance when we hold the post.
	if n.store.SetLike(state.PostID(peer, postTimestamp), n.opts.UserID, action == wire.ActionLike, ts) {
		n.saveNow()
	}
	return nil
}

// SendFile offers a local file to peer and streams its chunks. The
// transfer completes when the peer's FILE_RECEIVED arrives. Returns the
// file id identifying the transfer.
func (n *Node) SendFile(to, path, description string) (string, error) {
	addr, err := n.peerAddr(to)
	if err != nil {
		return "", err
	}
	fileID := wire.NewMessageID()
	t, chunks, err := n.files.OfferOutgoing(to, fileID, path, description, n.now())
	if err != nil {
		return "", err
	}

	offer := wire.NewRecord(wire.TypeFileOffer).
		Set(wire.FieldFrom, n.opts.UserID).
		Set(wire.FieldTo, to).
		Set(wire.FieldFileName, t.FileName).
		SetInt(wire.FieldFileSize, t.FileSize).
		Set(wire.FieldFileType, t.FileType).
		Set(wire.FieldFileID, fileID).
		SetInt(wire.FieldTotalChunks, int64(t.TotalChunks)).
		SetInt(wire.FieldTimestamp, t.Created).
		Set(wire.FieldToken, n.token(auth.ScopeFile))
	if description != "" {
		offer.Set(wire.FieldDescription, description)
	}
	if err := n.sendRecord(offer, addr); err != nil {
		return "", err
	}

	for i, chunk := range chunks {
		msg := wire.NewRecord(wire.TypeFileChunk).
			Set(wire.FieldFrom, n.opts.UserID).
			Set(wire.FieldTo, to).
			Set(wire.FieldFileID, fileID).
			SetInt(wire.FieldChunkIndex, int64(i)).
			SetInt(wire.FieldTotalChunks, int64(t.TotalChunks)).
			SetInt(wire.FieldChunkSize, int64(len(chunk))).
			Set(wire.FieldData, wire.EncodePayload(chunk)).
			Set(wire.FieldToken, n.token(auth.ScopeFile))
		if err := n.sendRecord(msg, addr); err != nil {
			return fileID, fmt.Errorf("chunk %d: %w", i, err)
		}
	}
	return fileID, nil
}

// AcceptFile admits the chunks of an offered transfer, for nodes running
// without auto-accept.
func (n *Node) AcceptFile(peer, fileID string) error {
	return n.files.Accept(peer, fileID)
}

// CreateGroup creates a group with this node as creator and broadcasts
// it. An empty groupID gets a generated one. The returned group's member
// list always contains the creator.
func (n *Node) CreateGroup(groupID, name string, members []string) (state.Group, error) {
	if groupID == "" {
		groupID = wire.NewMessageID()
	}
	if len(members) > limits.MaxGroupMembers {
		return state.Group{}, fmt.Errorf("%w: %d members", limits.ErrPayloadTooLarge, len(members))
	}
	group := state.Group{
		ID:      groupID,
		Name:    name,
		Creator: n.opts.UserID,
		Members: members,
		Created: n.now(),
	}
	if !n.store.CreateGroup(group) {
		return state.Group{}, fmt.Errorf("group %q already exists", groupID)
	}
	stored, _ := n.store.GroupByID(groupID)

	r := wire.NewRecord(wire.TypeGroupCreate).
		Set(wire.FieldFrom, n.opts.UserID).
		Set(wire.FieldGroupID, stored.ID).
		Set(wire.FieldGroupName, stored.Name).
		Set(wire.FieldMembers, strings.Join(stored.Members, ",")).
		SetInt(wire.FieldTimestamp, stored.Created).
		Set(wire.FieldToken, n.token(auth.ScopeGroup))
	if err := n.broadcastRecord(r); err != nil {
		return stored, err
	}
	n.saveNow()
	return stored, nil
}

// UpdateGroup adds and removes members of a group this node created and
// broadcasts the change.
func (n *Node) UpdateGroup(groupID string, add, remove []string) (state.Group, error) {
	g, ok := n.store.GroupByID(groupID)
	if !ok {
		return state.Group{}, fmt.Errorf("unknown group %q", groupID)
	}
	if g.Creator != n.opts.UserID {
		return state.Group{}, fmt.Errorf("only the creator of %q can change members", groupID)
	}

	r := wire.NewRecord(wire.TypeGroupUpdate).
		Set(wire.FieldFrom, n.opts.UserID).
		Set(wire.FieldGroupID, groupID)
	if len(add) > 0 {
		r.Set(wire.FieldAdd, strings.Join(add, ","))
	}
	if len(remove) > 0 {
		r.Set(wire.FieldRemove, strings.Join(remove, ","))
	}
	r.SetInt(wire.FieldTimestamp, n.now()).
		Set(wire.FieldToken, n.token(auth.ScopeGroup))
	if err := n.broadcastRecord(r); err != nil {
		return g, err
	}
	if n.store.UpdateGroup(groupID, add, remove) {
		n.saveNow()
	}
	updated, _ := n.store.GroupByID(groupID)
	return updated, nil
}

// SendGroupMessage broadcasts a message to a group this node belongs to.
func (n *Node) SendGroupMessage(groupID, content string) error {
	if err := limits.ValidateContent(content); err != nil {
		return err
	}
	if !n.store.IsMember(groupID, n.opts.UserID) {
		return fmt.Errorf("not a member of group %q", groupID)
	}
	r := wire.NewRecord(wire.TypeGroupMessage).
		Set(wire.FieldFrom, n.opts.UserID).
		Set(wire.FieldGroupID, groupID).
		Set(wire.FieldContent, content).
		SetInt(wire.FieldTimestamp, n.now()).
		Set(wire.FieldToken, n.token(auth.ScopeGroup))
	return n.broadcastRecord(r)
}

// InviteGame invites peer to tic-tac-toe, playing as symbol ("X" or "O")
// ourselves. Whoever holds X moves first.
func (n *Node) InviteGame(to, symbol string) (game.Report, error) {
	ts := n.now()
	gameID := wire.NewMessageID()
	report, _, err := n.games.Invite(gameID, n.opts.UserID, to, symbol, ts)
	if err != nil {
		return game.Report{}, err
	}

	r := wire.NewRecord(wire.TypeTicTacToeInvite).
		Set(wire.FieldFrom, n.opts.UserID).
		Set(wire.FieldTo, to).
		Set(wire.FieldGameID, gameID).
		Set(wire.FieldMessageID, wire.NewMessageID()).
		Set(wire.FieldSymbol, symbol).
		SetInt(wire.FieldTimestamp, ts).
		Set(wire.FieldToken, n.token(auth.ScopeGame))
	if err := n.sendToPeer(r, to); err != nil {
		return report, err
	}
	return report, nil
}

// SendMove plays position (0-8) in a running game and sends the move. A
// move that ends the game also announces the result.
func (n *Node) SendMove(gameID string, position int) (game.Report, error) {
	before, err := n.games.Get(gameID)
	if err != nil {
		return game.Report{}, err
	}
	symbol := before.Symbol(n.opts.UserID)
	if symbol == "" {
		return game.Report{}, game.ErrNotPlayer
	}
	turn := before.Turn

	report, err := n.games.Move(gameID, n.opts.UserID, position, turn, symbol)
	if err != nil {
		return game.Report{}, err
	}
	opponent := report.Invitee
	if n.opts.UserID == report.Invitee {
		opponent = report.Inviter
	}

	r := wire.NewRecord(wire.TypeTicTacToeMove).
		Set(wire.FieldFrom, n.opts.UserID).
		Set(wire.FieldTo, opponent).
		Set(wire.FieldGameID, gameID).
		Set(wire.FieldMessageID, wire.NewMessageID()).
		SetInt(wire.FieldPosition, int64(position)).
		Set(wire.FieldSymbol, symbol).
		SetInt(wire.FieldTurn, int64(turn)).
		Set(wire.FieldToken, n.token(auth.ScopeGame))
	if err := n.sendToPeer(r, opponent); err != nil {
		return report, err
	}

	if report.Finished {
		n.announceResult(report, opponent, symbol)
		n.metrics.GamesFinished.Inc()
		if cb := n.gameOverCallback; cb != nil {
			cb(report)
		}
	}
	return report, nil
}

// announceResult sends TICTACTOE_RESULT for a game our own move ended.
// Our move can only win for us or draw, never lose.
func (n *Node) announceResult(report game.Report, opponent, symbol string) {
	result := wire.ResultDraw
	if report.Winner == n.opts.UserID {
		result = wire.ResultWin
	}
	r := wire.NewRecord(wire.TypeTicTacToeResult).
		Set(wire.FieldFrom, n.opts.UserID).
		Set(wire.FieldTo, opponent).
		Set(wire.FieldGameID, report.GameID).
		Set(wire.FieldMessageID, wire.NewMessageID()).
		Set(wire.FieldResult, result).
		Set(wire.FieldSymbol, symbol).
		SetInt(wire.FieldTimestamp, n.now()).
		Set(wire.FieldToken, n.token(auth.ScopeGame))
	if len(report.Line) > 0 {
		r.Set(wire.FieldWinningLine, game.FormatLine(report.Line))
	}
	if err := n.sendToPeer(r, opponent); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "announceResult",
			"game_id":  report.GameID,
			"error":    err.Error(),
		}).Warn("Game result send failed")
	}
}

// ForfeitGame resigns a running game, handing the win to the opponent.
func (n *Node) ForfeitGame(gameID string) (game.Report, error) {
	report, err := n.games.Forfeit(gameID, n.opts.UserID)
	if err != nil {
		return game.Report{}, err
	}
	opponent := report.Winner

	r := wire.NewRecord(wire.TypeTicTacToeResult).
		Set(wire.FieldFrom, n.opts.UserID).
		Set(wire.FieldTo, opponent).
		Set(wire.FieldGameID, gameID).
		Set(wire.FieldMessageID, wire.NewMessageID()).
		Set(wire.FieldResult, wire.ResultForfeit).
		Set(wire.FieldSymbol, report.Symbol(n.opts.UserID)).
		SetInt(wire.FieldTimestamp, n.now()).
		Set(wire.FieldToken, n.token(auth.ScopeGame))
	if err := n.sendToPeer(r, opponent); err != nil {
		return report, err
	}
	n.metrics.GamesFinished.Inc()
	if cb := n.gameOverCallback; cb != nil {
		cb(report)
	}
	return report, nil
}

// SaveAvatar writes a peer's cached avatar to path. A path without an
// extension gets one matching the avatar's MIME type.
func (n *Node) SaveAvatar(peer, path string) error {
	p, ok := n.store.Peer(peer)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownPeer, peer)
	}
	if len(p.Avatar) == 0 {
		return fmt.Errorf("peer %q has no avatar", peer)
	}
	if filepath.Ext(path) == "" {
		path += avatarExt(p.AvatarType)
	}
	if err := os.WriteFile(path, p.Avatar, 0600); err != nil {
		return fmt.Errorf("write avatar: %w", err)
	}
	logrus.WithFields(logrus.Fields{
		"function": "SaveAvatar",
		"peer":     peer,
		"path":     path,
		"bytes":    len(p.Avatar),
	}).Info("Avatar saved")
	return nil
}

// avatarExt picks a file extension for a stored avatar's MIME type.
func avatarExt(mimeType string) string {
	switch mimeType {
	case "image/png":
		return ".png"
	case "image/jpeg":
		return ".jpg"
	case "image/gif":
		return ".gif"
	case "image/bmp":
		return ".bmp"
	case "image/webp":
		return ".webp"
	default:
		return ".bin"
	}
}
