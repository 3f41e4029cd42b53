package state

import (
	"bytes"
	"sort"
	"sync"
)

// Store holds all durable node state behind one mutex: the receive path and
// the presence loop are its only writers and never see each other's partial
// updates. Every mutator reports whether observable state changed.
type Store struct {
	mu      sync.RWMutex
	peers   map[string]*Peer
	posts   map[string]*Post
	dms     map[string]*DirectMessage
	likes   map[string]*LikeState
	follows map[string]map[string]bool
	groups  map[string]*Group
}

// New creates an empty store.
func New() *Store {
	return &Store{
		peers:   make(map[string]*Peer),
		posts:   make(map[string]*Post),
		dms:     make(map[string]*DirectMessage),
		likes:   make(map[string]*LikeState),
		follows: make(map[string]map[string]bool),
		groups:  make(map[string]*Group),
	}
}

// UpsertPeer creates or updates a peer from a PROFILE. Empty fields leave
// the stored value alone; LastSeen never moves backwards. Returns false for
// a duplicate that bumps nothing.
func (s *Store) UpsertPeer(userID, displayName, status, address string, seen int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.peers[userID]
	if !ok {
		s.peers[userID] = &Peer{
			UserID:      userID,
			DisplayName: displayName,
			Status:      status,
			Address:     address,
			LastSeen:    seen,
		}
		return true
	}
	changed := false
	if displayName != "" && p.DisplayName != displayName {
		p.DisplayName = displayName
		changed = true
	}
	if status != "" && p.Status != status {
		p.Status = status
		changed = true
	}
	if address != "" && p.Address != address {
		p.Address = address
		changed = true
	}
	if seen > p.LastSeen {
		p.LastSeen = seen
		changed = true
	}
	return changed
}

// TouchPeer records liveness for a peer, creating it on first contact.
func (s *Store) TouchPeer(userID, address string, seen int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.peers[userID]
	if !ok {
		s.peers[userID] = &Peer{UserID: userID, Address: address, LastSeen: seen}
		return true
	}
	changed := false
	if address != "" && p.Address != address {
		p.Address = address
		changed = true
	}
	if seen > p.LastSeen {
		p.LastSeen = seen
		changed = true
	}
	return changed
}

// SetPeerAvatar caches avatar bytes for an existing peer. The peer must
// already be upserted; unknown peers report no change.
func (s *Store) SetPeerAvatar(userID, avatarType string, avatar []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.peers[userID]
	if !ok {
		return false
	}
	if p.AvatarType == avatarType && bytes.Equal(p.Avatar, avatar) {
		return false
	}
	p.AvatarType = avatarType
	p.Avatar = append([]byte(nil), avatar...)
	return true
}

// Peer returns a copy of the named peer.
func (s *Store) Peer(userID string) (Peer, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.peers[userID]
	if !ok {
		return Peer{}, false
	}
	return *p, true
}

// Peers returns copies of all known peers, ordered by user id.
func (s *Store) Peers() []Peer {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Peer, 0, len(s.peers))
	for _, p := range s.peers {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

// PeerCount returns the number of known peers.
func (s *Store) PeerCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.peers)
}

// PrunePeers drops peers last seen before cutoff and returns how many went.
func (s *Store) PrunePeers(cutoff int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	pruned := 0
	for id, p := range s.peers {
		if p.LastSeen < cutoff {
			delete(s.peers, id)
			pruned++
		}
	}
	return pruned
}

// AddPost stores a post. Duplicate (author, timestamp) pairs are ignored and
// report no change.
func (s *Store) AddPost(p Post) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := p.ID()
	if _, ok := s.posts[id]; ok {
		return false
	}
	cp := p
	s.posts[id] = &cp
	return true
}

// HasPost reports whether the post id is known locally.
func (s *Store) HasPost(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.posts[id]
	return ok
}

// PostByID returns a copy of the named post.
func (s *Store) PostByID(id string) (Post, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.posts[id]
	if !ok {
		return Post{}, false
	}
	return *p, true
}

// Posts returns all posts ordered by timestamp. Expired posts are filtered
// unless includeExpired is set.
func (s *Store) Posts(includeExpired bool, now int64) []Post {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.postsLocked(includeExpired, now, func(string) bool { return true })
}

// VisiblePosts returns the posts shown to viewer by default: their own plus
// those from authors they follow, minus expired ones.
func (s *Store) VisiblePosts(viewer string, includeExpired bool, now int64) []Post {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.postsLocked(includeExpired, now, func(author string) bool {
		return author == viewer || s.follows[viewer][author]
	})
}

func (s *Store) postsLocked(includeExpired bool, now int64, visible func(author string) bool) []Post {
	out := make([]Post, 0, len(s.posts))
	for _, p := range s.posts {
		if !includeExpired && p.Expired(now) {
			continue
		}
		if !visible(p.Author) {
			continue
		}
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Timestamp != out[j].Timestamp {
			return out[i].Timestamp < out[j].Timestamp
		}
		return out[i].Author < out[j].Author
	})
	return out
}

// AddDM stores a direct message, deduplicated by message id.
func (s *Store) AddDM(d DirectMessage) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := d.key()
	if _, ok := s.dms[k]; ok {
		return false
	}
	cp := d
	s.dms[k] = &cp
	return true
}

// DMs returns copies of every direct message involving user, ordered by
// timestamp.
func (s *Store) DMs(user string, includeExpired bool, now int64) []DirectMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]DirectMessage, 0, len(s.dms))
	for _, d := range s.dms {
		if d.From != user && d.To != user {
			continue
		}
		if !includeExpired && d.Expired(now) {
			continue
		}
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Timestamp != out[j].Timestamp {
			return out[i].Timestamp < out[j].Timestamp
		}
		return out[i].MessageID < out[j].MessageID
	})
	return out
}

// SetLike applies a like or unlike from liker on a post. Unknown posts are a
// no-op. Older timestamps lose to the stored state; equal timestamps apply,
// so the last message processed wins.
func (s *Store) SetLike(postID, liker string, liked bool, ts int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.posts[postID]; !ok {
		return false
	}
	k := likeKey(postID, liker)
	cur, ok := s.likes[k]
	if !ok {
		s.likes[k] = &LikeState{PostID: postID, Liker: liker, Liked: liked, Timestamp: ts}
		return liked
	}
	if ts < cur.Timestamp {
		return false
	}
	changed := cur.Liked != liked
	cur.Liked = liked
	cur.Timestamp = ts
	return changed
}

// Likers returns the users currently liking the post, ordered by user id.
func (s *Store) Likers(postID string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []string
	for _, l := range s.likes {
		if l.PostID == postID && l.Liked {
			out = append(out, l.Liker)
		}
	}
	sort.Strings(out)
	return out
}

// AddFollow records follower following followee.
func (s *Store) AddFollow(follower, followee string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	set := s.follows[follower]
	if set == nil {
		set = make(map[string]bool)
		s.follows[follower] = set
	}
	if set[followee] {
		return false
	}
	set[followee] = true
	return true
}

// RemoveFollow erases a follow edge.
func (s *Store) RemoveFollow(follower, followee string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	set := s.follows[follower]
	if !set[followee] {
		return false
	}
	delete(set, followee)
	if len(set) == 0 {
		delete(s.follows, follower)
	}
	return true
}

// IsFollowing reports whether follower follows followee.
func (s *Store) IsFollowing(follower, followee string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.follows[follower][followee]
}

// Follows returns everyone user follows, ordered by user id.
func (s *Store) Follows(user string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []string
	for followee := range s.follows[user] {
		out = append(out, followee)
	}
	sort.Strings(out)
	return out
}

// Followers returns everyone following user, ordered by user id.
func (s *Store) Followers(user string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []string
	for follower, set := range s.follows {
		if set[user] {
			out = append(out, follower)
		}
	}
	sort.Strings(out)
	return out
}

// CreateGroup stores a new group. The member list is deduplicated in order
// and always contains the creator. An existing group id reports no change.
func (s *Store) CreateGroup(g Group) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.groups[g.ID]; ok {
		return false
	}
	cp := g
	cp.Members = normalizeMembers(g.Creator, g.Members)
	s.groups[g.ID] = &cp
	return true
}

// UpdateGroup applies membership adds and removes. The creator cannot be
// removed. Returns whether the member list actually changed.
func (s *Store) UpdateGroup(id string, add, remove []string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.groups[id]
	if !ok {
		return false
	}
	changed := false
	for _, user := range add {
		if user == "" || g.HasMember(user) {
			continue
		}
		g.Members = append(g.Members, user)
		changed = true
	}
	for _, user := range remove {
		if user == g.Creator {
			continue
		}
		for i, m := range g.Members {
			if m == user {
				g.Members = append(g.Members[:i], g.Members[i+1:]...)
				changed = true
				break
			}
		}
	}
	return changed
}

// IsMember reports whether user belongs to the group. Unknown groups have
// no members.
func (s *Store) IsMember(groupID, user string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	g, ok := s.groups[groupID]
	return ok && g.HasMember(user)
}

// GroupByID returns a copy of the named group.
func (s *Store) GroupByID(id string) (Group, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	g, ok := s.groups[id]
	if !ok {
		return Group{}, false
	}
	return groupCopy(g), true
}

// Groups returns copies of all groups, ordered by id.
func (s *Store) Groups() []Group {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Group, 0, len(s.groups))
	for _, g := range s.groups {
		out = append(out, groupCopy(g))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func groupCopy(g *Group) Group {
	cp := *g
	cp.Members = append([]string(nil), g.Members...)
	return cp
}

func normalizeMembers(creator string, members []string) []string {
	seen := make(map[string]bool, len(members)+1)
	out := make([]string, 0, len(members)+1)
	if creator != "" {
		seen[creator] = true
		out = append(out, creator)
	}
	for _, m := range members {
		if m == "" || seen[m] {
			continue
		}
		seen[m] = true
		out = append(out, m)
	}
	return out
}
