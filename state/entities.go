package state

import (
	"fmt"
	"strconv"
)

// Peer is a node identity seen on the network.
type Peer struct {
	UserID      string
	DisplayName string
	Status      string
	Address     string
	LastSeen    int64
	AvatarType  string
	Avatar      []byte
}

// Post is a broadcast status update.
type Post struct {
	Author    string
	Timestamp int64
	Content   string
	TTL       int64
	MessageID string
}

// ID returns the post's unique identifier, derived from author and
// timestamp. Duplicate broadcasts collapse onto it.
func (p *Post) ID() string {
	return PostID(p.Author, p.Timestamp)
}

// PostID builds the identifier a LIKE message references: the post author
// plus the post's creation timestamp.
func PostID(author string, timestamp int64) string {
	return author + "|" + strconv.FormatInt(timestamp, 10)
}

// Expired reports whether the post has outlived its TTL at the given time.
// A TTL of zero or less never expires.
func (p *Post) Expired(now int64) bool {
	return p.TTL > 0 && now >= p.Timestamp+p.TTL
}

// DirectMessage is a unicast message between two peers.
type DirectMessage struct {
	From      string
	To        string
	Timestamp int64
	Content   string
	TTL       int64
	MessageID string
}

func (d *DirectMessage) key() string {
	if d.MessageID != "" {
		return d.MessageID
	}
	return fmt.Sprintf("%s|%s|%d|%s", d.From, d.To, d.Timestamp, d.Content)
}

// Expired reports whether the message has outlived its TTL.
func (d *DirectMessage) Expired(now int64) bool {
	return d.TTL > 0 && now >= d.Timestamp+d.TTL
}

// LikeState tracks one liker's latest stance on one post. Newer timestamps
// win; the entry survives an unlike so stale likes cannot resurrect it.
type LikeState struct {
	PostID    string
	Liker     string
	Liked     bool
	Timestamp int64
}

func likeKey(postID, liker string) string {
	return postID + "|" + liker
}

// Group is a named member set. Only the creator's updates are honored.
type Group struct {
	ID      string
	Name    string
	Creator string
	Members []string
	Created int64
}

// HasMember reports whether user is in the group's member list.
func (g *Group) HasMember(user string) bool {
	for _, m := range g.Members {
		if m == user {
			return true
		}
	}
	return false
}

// FollowEdge is one (follower, followee) pair, used in snapshots.
type FollowEdge struct {
	Follower string
	Followee string
}
