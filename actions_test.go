package lsnp

import (
	"bytes"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/lsnp/auth"
	"github.com/opd-ai/lsnp/file"
	"github.com/opd-ai/lsnp/game"
	"github.com/opd-ai/lsnp/limits"
	"github.com/opd-ai/lsnp/metrics"
	"github.com/opd-ai/lsnp/state"
	"github.com/opd-ai/lsnp/wire"
)

func TestSendPostBroadcastsAndStores(t *testing.T) {
	n, tr := newTestNode(t, nil)

	post, err := n.SendPost("hello lan")
	require.NoError(t, err)
	assert.Equal(t, selfID, post.Author)
	assert.Equal(t, testNow, post.Timestamp)
	assert.NotEmpty(t, post.MessageID)

	msgs := tr.messages()
	require.Len(t, msgs, 1)
	assert.Nil(t, msgs[0].addr, "posts go out as broadcasts")

	posts := sentOfType(t, tr, wire.TypePost)
	require.Len(t, posts, 1)
	r := posts[0]
	assert.Equal(t, selfID, r.Get(wire.FieldUserID))
	assert.Equal(t, "hello lan", r.Get(wire.FieldContent))
	assert.Equal(t, "3600", r.Get(wire.FieldTTL))
	assert.Equal(t, strconv.FormatInt(testNow, 10), r.Get(wire.FieldTimestamp))
	assert.Equal(t, post.MessageID, r.Get(wire.FieldMessageID))
	assert.Equal(t, auth.Ok, auth.Validate(r.Get(wire.FieldToken), auth.ScopeBroadcast, testNow))

	assert.True(t, n.store.HasPost(post.ID()))
	assert.Equal(t, 1.0, testutil.ToFloat64(n.metrics.MessagesSent.WithLabelValues(wire.TypePost)))

	_, err = n.SendPost("")
	assert.ErrorIs(t, err, limits.ErrPayloadEmpty)
}

func TestSendDMResolvesPeerAddress(t *testing.T) {
	n, tr := newTestNode(t, nil)
	deliver(n, profileRecord(peerID, "Bob", "here"))
	tr.reset()

	dm, err := n.SendDM(peerID, "dinner?")
	require.NoError(t, err)

	msgs := tr.messages()
	require.Len(t, msgs, 1)
	require.NotNil(t, msgs[0].addr)
	assert.Equal(t, "192.168.1.11:50999", msgs[0].addr.String(),
		"a seen peer is addressed where it last spoke from")

	r, _ := lastSent(t, tr)
	assert.Equal(t, wire.TypeDM, r.Type())
	assert.Equal(t, selfID, r.Get(wire.FieldFrom))
	assert.Equal(t, peerID, r.Get(wire.FieldTo))
	assert.Equal(t, "dinner?", r.Get(wire.FieldContent))
	assert.Equal(t, "3600", r.Get(wire.FieldTTL))
	assert.Equal(t, int64(3600), dm.TTL, "sent DMs age out like received ones")
	assert.Equal(t, dm.MessageID, r.Get(wire.FieldMessageID))
	assert.Equal(t, auth.Ok, auth.Validate(r.Get(wire.FieldToken), auth.ScopeChat, testNow))
	assert.Len(t, n.store.DMs(selfID, true, testNow), 1)

	// Never-seen peers resolve through the host part of their id.
	_, err = n.SendDM("carol@10.0.0.9", "hi")
	require.NoError(t, err)
	_, addr := lastSent(t, tr)
	assert.Equal(t, "10.0.0.9:50999", addr.String())

	_, err = n.SendDM("broken", "hi")
	assert.ErrorIs(t, err, ErrUnknownPeer)
	assert.Len(t, n.store.DMs(selfID, true, testNow), 2)
}

func TestFollowRecordsEdge(t *testing.T) {
	n, tr := newTestNode(t, nil)

	require.NoError(t, n.Follow(peerID))
	assert.True(t, n.store.IsFollowing(selfID, peerID))

	follows := sentOfType(t, tr, wire.TypeFollow)
	require.Len(t, follows, 1)
	assert.Equal(t, peerID, follows[0].Get(wire.FieldTo))
	assert.Equal(t, auth.Ok, auth.Validate(follows[0].Get(wire.FieldToken), auth.ScopeFollow, testNow))

	require.NoError(t, n.Unfollow(peerID))
	assert.False(t, n.store.IsFollowing(selfID, peerID))
	assert.Len(t, sentOfType(t, tr, wire.TypeUnfollow), 1)
}

func TestLikeTracksOwnStance(t *testing.T) {
	n, tr := newTestNode(t, nil)
	deliver(n, postRecord(peerToken(auth.ScopeBroadcast)))
	tr.reset()

	require.NoError(t, n.Like(peerID, testNow))

	likes := sentOfType(t, tr, wire.TypeLike)
	require.Len(t, likes, 1)
	assert.Equal(t, peerID, likes[0].Get(wire.FieldTo))
	assert.Equal(t, wire.ActionLike, likes[0].Get(wire.FieldAction))
	assert.Equal(t, strconv.FormatInt(testNow, 10), likes[0].Get(wire.FieldPostTimestamp))

	postID := state.PostID(peerID, testNow)
	assert.Equal(t, []string{selfID}, n.store.Likers(postID))

	require.NoError(t, n.Unlike(peerID, testNow))
	assert.Empty(t, n.store.Likers(postID))
	assert.Len(t, sentOfType(t, tr, wire.TypeLike), 2)
}

func TestSendFileEmitsOfferAndChunks(t *testing.T) {
	n, tr := newTestNode(t, nil)
	payload := testPayload(file.ChunkSize + 200)
	src := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(src, payload, 0o644))

	var completions int
	var completedPath string
	n.OnFileComplete(func(ft *file.Transfer, path string) {
		completions++
		completedPath = path
	})

	fileID, err := n.SendFile(peerID, src, "meeting notes")
	require.NoError(t, err)
	require.NotEmpty(t, fileID)

	offers := sentOfType(t, tr, wire.TypeFileOffer)
	require.Len(t, offers, 1)
	assert.Equal(t, "notes.txt", offers[0].Get(wire.FieldFileName))
	assert.Equal(t, strconv.Itoa(len(payload)), offers[0].Get(wire.FieldFileSize))
	assert.Equal(t, "2", offers[0].Get(wire.FieldTotalChunks))
	assert.Equal(t, "meeting notes", offers[0].Get(wire.FieldDescription))
	assert.Equal(t, fileID, offers[0].Get(wire.FieldFileID))

	chunks := sentOfType(t, tr, wire.TypeFileChunk)
	require.Len(t, chunks, 2)
	want := file.Split(payload)
	for i, c := range chunks {
		assert.Equal(t, strconv.Itoa(i), c.Get(wire.FieldChunkIndex))
		data, err := wire.DecodePayload(c.Get(wire.FieldData), c.Get(wire.FieldChunkSize))
		require.NoError(t, err)
		assert.True(t, bytes.Equal(want[i], data), "chunk %d payload", i)
	}
	for _, m := range tr.messages() {
		require.NotNil(t, m.addr)
		assert.Equal(t, "192.168.1.11:50999", m.addr.String())
	}

	tfr, ok := n.files.Get(peerID, fileID)
	require.True(t, ok)
	assert.Equal(t, file.TransferOffered, tfr.State(), "outgoing transfers wait for the recipient's ack")

	ack := wire.NewRecord(wire.TypeFileReceived).
		Set(wire.FieldFrom, peerID).
		Set(wire.FieldTo, selfID).
		Set(wire.FieldFileID, fileID).
		Set(wire.FieldStatus, wire.StatusComplete).
		SetInt(wire.FieldTimestamp, testNow)
	deliver(n, ack)

	assert.Equal(t, file.TransferCompleted, tfr.State())
	assert.Equal(t, 1.0, testutil.ToFloat64(n.metrics.FileTransfers.WithLabelValues(metrics.OutcomeCompleted)))
	assert.Equal(t, 1, completions)
	assert.Empty(t, completedPath, "nothing is written for outgoing transfers")

	deliver(n, ack)
	assert.Equal(t, 1.0, dropped(n, metrics.DropDuplicate))
	assert.Equal(t, 1, completions)
}

func TestCreateGroupIncludesCreator(t *testing.T) {
	n, tr := newTestNode(t, nil)

	g, err := n.CreateGroup("g1", "Friends", []string{peerID})
	require.NoError(t, err)
	assert.Equal(t, selfID, g.Creator)
	assert.Equal(t, []string{selfID, peerID}, g.Members)

	bcast := sentOfType(t, tr, wire.TypeGroupCreate)
	require.Len(t, bcast, 1)
	assert.Equal(t, "Friends", bcast[0].Get(wire.FieldGroupName))
	assert.Equal(t, selfID+","+peerID, bcast[0].Get(wire.FieldMembers))
	assert.Nil(t, tr.messages()[0].addr, "group creation is broadcast")

	_, err = n.CreateGroup("g1", "Friends", nil)
	assert.Error(t, err, "group ids are unique")

	generated, err := n.CreateGroup("", "Chess", nil)
	require.NoError(t, err)
	assert.NotEmpty(t, generated.ID)
}

func TestUpdateGroupCreatorGate(t *testing.T) {
	n, _ := newTestNode(t, nil)
	_, err := n.CreateGroup("g1", "Friends", []string{peerID})
	require.NoError(t, err)

	updated, err := n.UpdateGroup("g1", []string{carolID}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{selfID, peerID, carolID}, updated.Members)

	updated, err = n.UpdateGroup("g1", nil, []string{peerID})
	require.NoError(t, err)
	assert.Equal(t, []string{selfID, carolID}, updated.Members)

	_, err = n.UpdateGroup("ghost", []string{carolID}, nil)
	assert.Error(t, err)

	// Groups created by someone else are not ours to change.
	deliver(n, groupCreateRecord("gbob", peerID+","+selfID))
	_, err = n.UpdateGroup("gbob", []string{carolID}, nil)
	assert.Error(t, err)
}

func TestSendGroupMessageRequiresMembership(t *testing.T) {
	n, tr := newTestNode(t, nil)
	_, err := n.CreateGroup("g1", "Friends", []string{peerID})
	require.NoError(t, err)

	require.NoError(t, n.SendGroupMessage("g1", "movie night"))
	msgs := sentOfType(t, tr, wire.TypeGroupMessage)
	require.Len(t, msgs, 1)
	assert.Equal(t, "g1", msgs[0].Get(wire.FieldGroupID))
	assert.Equal(t, "movie night", msgs[0].Get(wire.FieldContent))

	assert.Error(t, n.SendGroupMessage("ghost", "anyone?"))
	assert.ErrorIs(t, n.SendGroupMessage("g1", ""), limits.ErrPayloadEmpty)
}

func TestInviteGameAssignsOpposingSymbol(t *testing.T) {
	n, tr := newTestNode(t, nil)

	report, err := n.InviteGame(peerID, game.SymbolO)
	require.NoError(t, err)
	assert.Equal(t, game.SymbolO, report.InviterSymbol)
	assert.Equal(t, game.SymbolX, report.InviteeSymbol)
	assert.Equal(t, peerID, report.WhoseTurn, "whoever holds X opens")

	invites := sentOfType(t, tr, wire.TypeTicTacToeInvite)
	require.Len(t, invites, 1)
	assert.Equal(t, game.SymbolO, invites[0].Get(wire.FieldSymbol))
	assert.Equal(t, report.GameID, invites[0].Get(wire.FieldGameID))

	_, err = n.InviteGame(peerID, "W")
	assert.ErrorIs(t, err, game.ErrBadSymbol)
}

func TestSendMoveLifecycle(t *testing.T) {
	n, tr := newTestNode(t, nil)

	var over []game.Report
	n.OnGameOver(func(report game.Report) { over = append(over, report) })

	invited, err := n.InviteGame(peerID, game.SymbolX)
	require.NoError(t, err)
	gameID := invited.GameID

	// We take the top row while Bob works on the middle one.
	_, err = n.SendMove(gameID, 0)
	require.NoError(t, err)
	deliver(n, gameMoveRecord(gameID, 3, 2, game.SymbolO))
	_, err = n.SendMove(gameID, 1)
	require.NoError(t, err)
	deliver(n, gameMoveRecord(gameID, 4, 4, game.SymbolO))
	final, err := n.SendMove(gameID, 2)
	require.NoError(t, err)

	assert.True(t, final.Finished)
	assert.Equal(t, selfID, final.Winner)
	assert.Equal(t, []int{0, 1, 2}, final.Line)
	assert.Equal(t, "XXXOO    ", final.Board)

	moves := sentOfType(t, tr, wire.TypeTicTacToeMove)
	require.Len(t, moves, 3)
	for i, turn := range []string{"1", "3", "5"} {
		assert.Equal(t, turn, moves[i].Get(wire.FieldTurn))
		assert.Equal(t, game.SymbolX, moves[i].Get(wire.FieldSymbol))
		assert.Equal(t, peerID, moves[i].Get(wire.FieldTo))
	}

	results := sentOfType(t, tr, wire.TypeTicTacToeResult)
	require.Len(t, results, 1)
	assert.Equal(t, wire.ResultWin, results[0].Get(wire.FieldResult))
	assert.Equal(t, "0,1,2", results[0].Get(wire.FieldWinningLine))
	assert.Equal(t, gameID, results[0].Get(wire.FieldGameID))

	assert.Equal(t, 1.0, testutil.ToFloat64(n.metrics.GamesFinished))
	require.Len(t, over, 1)
	assert.Equal(t, selfID, over[0].Winner)

	_, err = n.SendMove(gameID, 5)
	assert.ErrorIs(t, err, game.ErrFinished)
	_, err = n.SendMove("ghost", 0)
	assert.ErrorIs(t, err, game.ErrUnknownGame)
}

func TestForfeitGame(t *testing.T) {
	n, tr := newTestNode(t, nil)

	var over []game.Report
	n.OnGameOver(func(report game.Report) { over = append(over, report) })

	invited, err := n.InviteGame(peerID, game.SymbolX)
	require.NoError(t, err)
	_, err = n.SendMove(invited.GameID, 4)
	require.NoError(t, err)

	report, err := n.ForfeitGame(invited.GameID)
	require.NoError(t, err)
	assert.True(t, report.Forfeit)
	assert.Equal(t, peerID, report.Winner, "resigning hands Bob the win")

	results := sentOfType(t, tr, wire.TypeTicTacToeResult)
	require.Len(t, results, 1)
	assert.Equal(t, wire.ResultForfeit, results[0].Get(wire.FieldResult))
	assert.Equal(t, peerID, results[0].Get(wire.FieldTo))

	assert.Equal(t, 1.0, testutil.ToFloat64(n.metrics.GamesFinished))
	assert.Len(t, over, 1)

	_, err = n.ForfeitGame(invited.GameID)
	assert.ErrorIs(t, err, game.ErrFinished)
}

func TestSendProfileCarriesAvatar(t *testing.T) {
	dir := t.TempDir()
	avatar := testPayload(256)
	path := filepath.Join(dir, "face.png")
	require.NoError(t, os.WriteFile(path, avatar, 0o644))

	n, tr := newTestNode(t, func(o *Options) { o.AvatarPath = path })
	require.NoError(t, n.SendProfile())

	profiles := sentOfType(t, tr, wire.TypeProfile)
	require.Len(t, profiles, 1)
	r := profiles[0]
	assert.Equal(t, "image/png", r.Get(wire.FieldAvatarType))
	assert.Equal(t, "base64", r.Get(wire.FieldAvatarEncoding))
	assert.Equal(t, "256", r.Get(wire.FieldAvatarSize))
	data, err := wire.DecodePayload(r.Get(wire.FieldAvatarData), r.Get(wire.FieldAvatarSize))
	require.NoError(t, err)
	assert.True(t, bytes.Equal(avatar, data))

	// An unreadable avatar costs the avatar fields, nothing else.
	n2, tr2 := newTestNode(t, func(o *Options) {
		o.AvatarPath = filepath.Join(dir, "ghost.png")
	})
	require.NoError(t, n2.SendProfile())
	bare := sentOfType(t, tr2, wire.TypeProfile)
	require.Len(t, bare, 1)
	assert.False(t, bare[0].Has(wire.FieldAvatarData))
}

func TestSaveAvatar(t *testing.T) {
	n, _ := newTestNode(t, nil)
	avatar := testPayload(64)
	r := profileRecord(peerID, "Bob", "here").
		Set(wire.FieldAvatarType, "image/jpeg").
		Set(wire.FieldAvatarEncoding, "base64").
		SetInt(wire.FieldAvatarSize, int64(len(avatar))).
		Set(wire.FieldAvatarData, wire.EncodePayload(avatar))
	deliver(n, r)

	dest := filepath.Join(t.TempDir(), "bob")
	require.NoError(t, n.SaveAvatar(peerID, dest))
	got, err := os.ReadFile(dest + ".jpg")
	require.NoError(t, err)
	assert.True(t, bytes.Equal(avatar, got))

	assert.ErrorIs(t, n.SaveAvatar("ghost@1.2.3.4", dest), ErrUnknownPeer)

	deliver(n, profileRecord(carolID, "Carol", "hi"))
	assert.Error(t, n.SaveAvatar(carolID, dest), "peers without avatars have nothing to save")
}
