package lsnp

import (
	"github.com/opd-ai/lsnp/file"
	"github.com/opd-ai/lsnp/game"
	"github.com/opd-ai/lsnp/state"
)

// PeerCallback is invoked when a peer's profile is first seen or changes.
type PeerCallback func(peer state.Peer)

// PostCallback is invoked for each new post from a followed author.
type PostCallback func(post state.Post)

// DMCallback is invoked for each new direct message addressed to this
// node.
type DMCallback func(dm state.DirectMessage)

// AckCallback is invoked when a peer acknowledges one of our messages.
type AckCallback func(messageID, status string)

// FollowCallback is invoked when a peer follows (followed true) or
// unfollows this node.
type FollowCallback func(follower string, followed bool)

// LikeCallback is invoked when a peer likes or unlikes one of our posts.
type LikeCallback func(liker, postID string, liked bool)

// FileOfferCallback is invoked when a peer offers a file. With auto-accept
// off, call AcceptFile to let the chunks through.
type FileOfferCallback func(t *file.Transfer)

// FileProgressCallback is invoked after each buffered chunk of an incoming
// transfer.
type FileProgressCallback func(t *file.Transfer)

// FileCompleteCallback is invoked when a transfer finishes. For incoming
// transfers path is the persisted file; for outgoing ones it is empty.
type FileCompleteCallback func(t *file.Transfer, path string)

// FileFailedCallback is invoked when a transfer fails.
type FileFailedCallback func(t *file.Transfer, err error)

// GroupCallback is invoked when a group is created or its membership
// changes.
type GroupCallback func(group state.Group)

// GroupMessageCallback is invoked for each message in a group this node
// belongs to.
type GroupMessageCallback func(from, groupID, content string)

// GameInviteCallback is invoked when a peer invites this node to
// tic-tac-toe.
type GameInviteCallback func(report game.Report, from string)

// GameUpdateCallback is invoked after each applied move in a running
// game.
type GameUpdateCallback func(report game.Report)

// GameOverCallback is invoked once when a game finishes, however it ends.
type GameOverCallback func(report game.Report)

// OnPeer sets the callback for peer profile changes.
func (n *Node) OnPeer(callback PeerCallback) {
	n.peerCallback = callback
}

// OnPost sets the callback for new posts.
func (n *Node) OnPost(callback PostCallback) {
	n.postCallback = callback
}

// OnDM sets the callback for new direct messages.
func (n *Node) OnDM(callback DMCallback) {
	n.dmCallback = callback
}

// OnAck sets the callback for delivery acknowledgements.
func (n *Node) OnAck(callback AckCallback) {
	n.ackCallback = callback
}

// OnFollow sets the callback for follow and unfollow notices.
func (n *Node) OnFollow(callback FollowCallback) {
	n.followCallback = callback
}

// OnLike sets the callback for likes on our posts.
func (n *Node) OnLike(callback LikeCallback) {
	n.likeCallback = callback
}

// OnFileOffer sets the callback for incoming file offers.
func (n *Node) OnFileOffer(callback FileOfferCallback) {
	n.fileOfferCallback = callback
}

// OnFileProgress sets the callback for transfer progress.
func (n *Node) OnFileProgress(callback FileProgressCallback) {
	n.fileProgressCallback = callback
}

// OnFileComplete sets the callback for finished transfers.
func (n *Node) OnFileComplete(callback FileCompleteCallback) {
	n.fileCompleteCallback = callback
}

// OnFileFailed sets the callback for failed transfers.
func (n *Node) OnFileFailed(callback FileFailedCallback) {
	n.fileFailedCallback = callback
}

// OnGroupCreate sets the callback for groups this node is added to at
// creation.
func (n *Node) OnGroupCreate(callback GroupCallback) {
	n.groupCreateCallback = callback
}

// OnGroupUpdate sets the callback for group membership changes.
func (n *Node) OnGroupUpdate(callback GroupCallback) {
	n.groupUpdateCallback = callback
}

// OnGroupMessage sets the callback for group messages.
func (n *Node) OnGroupMessage(callback GroupMessageCallback) {
	n.groupMessageCallback = callback
}

// OnGameInvite sets the callback for tic-tac-toe invites.
func (n *Node) OnGameInvite(callback GameInviteCallback) {
	n.gameInviteCallback = callback
}

// OnGameUpdate sets the callback for game progress.
func (n *Node) OnGameUpdate(callback GameUpdateCallback) {
	n.gameUpdateCallback = callback
}

// OnGameOver sets the callback for finished games.
func (n *Node) OnGameOver(callback GameOverCallback) {
	n.gameOverCallback = callback
}
