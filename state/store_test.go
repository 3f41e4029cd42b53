package state

import (
	"reflect"
	"testing"
)

const now = int64(1756080000)

func TestAddPostIdempotent(t *testing.T) {
	s := New()
	post := Post{Author: "alice@10.0.0.1", Timestamp: now, Content: "hello", TTL: 3600}

	if !s.AddPost(post) {
		t.Fatal("first insert should report a change")
	}
	if s.AddPost(post) {
		t.Error("second insert of the same (author, timestamp) should report no change")
	}
	if got := len(s.Posts(true, now)); got != 1 {
		t.Errorf("store holds %d posts, want 1", got)
	}
}

func TestPostValidityFiltering(t *testing.T) {
	s := New()
	s.AddPost(Post{Author: "alice@10.0.0.1", Timestamp: now - 7200, Content: "old", TTL: 3600})
	s.AddPost(Post{Author: "alice@10.0.0.1", Timestamp: now - 10, Content: "fresh", TTL: 3600})
	s.AddPost(Post{Author: "alice@10.0.0.1", Timestamp: now - 99999, Content: "eternal", TTL: 0})

	valid := s.Posts(false, now)
	if len(valid) != 2 {
		t.Fatalf("got %d valid posts, want 2 (fresh + eternal): %+v", len(valid), valid)
	}
	all := s.Posts(true, now)
	if len(all) != 3 {
		t.Errorf("got %d total posts, want 3", len(all))
	}
}

func TestVisibilityFollowGating(t *testing.T) {
	s := New()
	self := "bob@10.0.0.2"
	s.AddPost(Post{Author: "alice@10.0.0.1", Timestamp: now, Content: "from alice", TTL: 3600})
	s.AddPost(Post{Author: self, Timestamp: now + 1, Content: "own post", TTL: 3600})

	visible := s.VisiblePosts(self, false, now)
	if len(visible) != 1 || visible[0].Author != self {
		t.Fatalf("before following, only own post should be visible, got %+v", visible)
	}
	if got := len(s.Posts(false, now)); got != 2 {
		t.Fatalf("non-followed post must still be stored, store has %d", got)
	}

	s.AddFollow(self, "alice@10.0.0.1")
	visible = s.VisiblePosts(self, false, now)
	if len(visible) != 2 {
		t.Errorf("after following, both posts should be visible, got %+v", visible)
	}
}

func TestUpsertPeerLastSeenMonotonic(t *testing.T) {
	s := New()
	if !s.UpsertPeer("alice@10.0.0.1", "Alice", "Online", "10.0.0.1:50999", now) {
		t.Fatal("first upsert should report a change")
	}
	if s.UpsertPeer("alice@10.0.0.1", "Alice", "Online", "10.0.0.1:50999", now-100) {
		t.Error("older profile with identical fields should report no change")
	}
	p, _ := s.Peer("alice@10.0.0.1")
	if p.LastSeen != now {
		t.Errorf("LastSeen = %d, want %d (must not move backwards)", p.LastSeen, now)
	}

	if !s.UpsertPeer("alice@10.0.0.1", "Alice A.", "", "", now-100) {
		t.Error("renamed profile should report a change even with an old timestamp")
	}
	p, _ = s.Peer("alice@10.0.0.1")
	if p.DisplayName != "Alice A." || p.Status != "Online" {
		t.Errorf("empty fields must not clobber stored values: %+v", p)
	}
}

func TestTouchPeerCreatesAndBumps(t *testing.T) {
	s := New()
	if !s.TouchPeer("carol@10.0.0.3", "10.0.0.3:50999", now) {
		t.Fatal("first touch should create the peer")
	}
	if s.TouchPeer("carol@10.0.0.3", "", now-5) {
		t.Error("older touch should report no change")
	}
	if !s.TouchPeer("carol@10.0.0.3", "", now+5) {
		t.Error("newer touch should report a change")
	}
	if s.PeerCount() != 1 {
		t.Errorf("PeerCount = %d, want 1", s.PeerCount())
	}
}

func TestSetPeerAvatar(t *testing.T) {
	s := New()
	avatar := []byte{0x89, 0x50, 0x4e, 0x47}

	if s.SetPeerAvatar("ghost@10.0.0.9", "image/png", avatar) {
		t.Error("avatar for an unknown peer should report no change")
	}

	s.UpsertPeer("alice@10.0.0.1", "Alice", "Online", "", now)
	if !s.SetPeerAvatar("alice@10.0.0.1", "image/png", avatar) {
		t.Error("first avatar should report a change")
	}
	if s.SetPeerAvatar("alice@10.0.0.1", "image/png", avatar) {
		t.Error("identical avatar should report no change")
	}
	p, _ := s.Peer("alice@10.0.0.1")
	if !reflect.DeepEqual(p.Avatar, avatar) {
		t.Errorf("stored avatar = %v, want %v", p.Avatar, avatar)
	}
}

func TestSetLike(t *testing.T) {
	s := New()
	postID := PostID("alice@10.0.0.1", now)

	if s.SetLike(postID, "bob@10.0.0.2", true, now+1) {
		t.Error("like on an unknown post must be a no-op")
	}

	s.AddPost(Post{Author: "alice@10.0.0.1", Timestamp: now, Content: "hi", TTL: 3600})

	if !s.SetLike(postID, "bob@10.0.0.2", true, now+1) {
		t.Error("first like should report a change")
	}
	if s.SetLike(postID, "bob@10.0.0.2", true, now+1) {
		t.Error("repeated identical like should report no change")
	}
	if !s.SetLike(postID, "bob@10.0.0.2", false, now+2) {
		t.Error("newer unlike should report a change")
	}
	// Assumption, not protocol guarantee: when timestamps tie, the message
	// processed last wins.
	if !s.SetLike(postID, "bob@10.0.0.2", true, now+2) {
		t.Error("equal-timestamp flip should apply (last processed wins)")
	}
	if s.SetLike(postID, "bob@10.0.0.2", false, now+1) {
		t.Error("stale unlike must not override newer state")
	}
	if got := s.Likers(postID); len(got) != 1 || got[0] != "bob@10.0.0.2" {
		t.Errorf("Likers = %v, want [bob@10.0.0.2]", got)
	}
}

func TestLikeThenUnlikeEndsUnliked(t *testing.T) {
	s := New()
	postID := PostID("alice@10.0.0.1", now)
	s.AddPost(Post{Author: "alice@10.0.0.1", Timestamp: now, Content: "hi", TTL: 3600})

	s.SetLike(postID, "bob@10.0.0.2", true, now+1)
	s.SetLike(postID, "bob@10.0.0.2", false, now+2)

	if got := s.Likers(postID); len(got) != 0 {
		t.Errorf("Likers = %v, want empty after unlike", got)
	}
}

func TestFollowEdges(t *testing.T) {
	s := New()
	if !s.AddFollow("bob@10.0.0.2", "alice@10.0.0.1") {
		t.Fatal("new follow should report a change")
	}
	if s.AddFollow("bob@10.0.0.2", "alice@10.0.0.1") {
		t.Error("duplicate follow should report no change")
	}
	if !s.IsFollowing("bob@10.0.0.2", "alice@10.0.0.1") {
		t.Error("IsFollowing should see the edge")
	}
	if s.IsFollowing("alice@10.0.0.1", "bob@10.0.0.2") {
		t.Error("follow edges are directional")
	}
	if got := s.Followers("alice@10.0.0.1"); len(got) != 1 || got[0] != "bob@10.0.0.2" {
		t.Errorf("Followers = %v", got)
	}
	if !s.RemoveFollow("bob@10.0.0.2", "alice@10.0.0.1") {
		t.Error("unfollow should report a change")
	}
	if s.RemoveFollow("bob@10.0.0.2", "alice@10.0.0.1") {
		t.Error("repeated unfollow should report no change")
	}
	if got := s.Follows("bob@10.0.0.2"); len(got) != 0 {
		t.Errorf("Follows = %v, want empty", got)
	}
}

func TestCreateGroupNormalizesMembers(t *testing.T) {
	s := New()
	ok := s.CreateGroup(Group{
		ID:      "g1",
		Name:    "climbers",
		Creator: "alice@10.0.0.1",
		Members: []string{"bob@10.0.0.2", "bob@10.0.0.2", "carol@10.0.0.3", ""},
		Created: now,
	})
	if !ok {
		t.Fatal("create should report a change")
	}
	g, found := s.GroupByID("g1")
	if !found {
		t.Fatal("group not found after create")
	}
	want := []string{"alice@10.0.0.1", "bob@10.0.0.2", "carol@10.0.0.3"}
	if !reflect.DeepEqual(g.Members, want) {
		t.Errorf("Members = %v, want %v (creator first, deduplicated)", g.Members, want)
	}
	if s.CreateGroup(Group{ID: "g1", Creator: "mallory@10.9.9.9"}) {
		t.Error("duplicate group id should report no change")
	}
}

func TestUpdateGroupMembership(t *testing.T) {
	s := New()
	s.CreateGroup(Group{ID: "g1", Name: "climbers", Creator: "alice@10.0.0.1",
		Members: []string{"bob@10.0.0.2"}, Created: now})

	if !s.UpdateGroup("g1", []string{"dave@10.0.0.4"}, []string{"bob@10.0.0.2"}) {
		t.Fatal("add+remove should report a change")
	}
	if s.IsMember("g1", "bob@10.0.0.2") {
		t.Error("bob should be removed")
	}
	if !s.IsMember("g1", "dave@10.0.0.4") {
		t.Error("dave should be added")
	}
	if s.UpdateGroup("g1", nil, []string{"alice@10.0.0.1"}) {
		t.Error("removing the creator must be a no-op")
	}
	if !s.IsMember("g1", "alice@10.0.0.1") {
		t.Error("creator must remain a member")
	}
	if s.UpdateGroup("g9", []string{"x@y"}, nil) {
		t.Error("updating an unknown group should report no change")
	}
	if s.IsMember("g9", "x@y") {
		t.Error("unknown groups have no members")
	}
}

func TestAddDMDeduplicates(t *testing.T) {
	s := New()
	dm := DirectMessage{From: "alice@10.0.0.1", To: "bob@10.0.0.2",
		Timestamp: now, Content: "psst", TTL: 3600, MessageID: "m1"}

	if !s.AddDM(dm) {
		t.Fatal("first DM should report a change")
	}
	if s.AddDM(dm) {
		t.Error("replayed DM should report no change")
	}
	got := s.DMs("bob@10.0.0.2", false, now)
	if len(got) != 1 {
		t.Fatalf("DMs for bob = %d, want 1", len(got))
	}
	if len(s.DMs("alice@10.0.0.1", false, now)) != 1 {
		t.Error("sender's view should include the DM")
	}
	if len(s.DMs("carol@10.0.0.3", false, now)) != 0 {
		t.Error("third parties must not see the DM")
	}
}

func TestPrunePeers(t *testing.T) {
	s := New()
	s.TouchPeer("old@10.0.0.8", "", now-1000)
	s.TouchPeer("fresh@10.0.0.9", "", now)

	if got := s.PrunePeers(now - 500); got != 1 {
		t.Errorf("pruned %d peers, want 1", got)
	}
	if _, ok := s.Peer("old@10.0.0.8"); ok {
		t.Error("stale peer should be gone")
	}
	if _, ok := s.Peer("fresh@10.0.0.9"); !ok {
		t.Error("fresh peer should remain")
	}
}
