package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
)

// SnapshotVersion identifies the cache file schema.
const SnapshotVersion = 1

// ErrBadSnapshot indicates a cache blob that does not parse or carries an
// unsupported version.
var ErrBadSnapshot = errors.New("bad snapshot")

// Snapshot is the serializable durable state of a node.
type Snapshot struct {
	Version int
	SavedAt int64
	Peers   []Peer
	Posts   []Post
	DMs     []DirectMessage
	Likes   []LikeState
	Follows []FollowEdge
	Groups  []Group
}

// Snapshot captures the store's durable entities, sorted for deterministic
// serialization.
func (s *Store) Snapshot() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := &Snapshot{Version: SnapshotVersion, SavedAt: time.Now().Unix()}
	for _, p := range s.peers {
		snap.Peers = append(snap.Peers, *p)
	}
	sort.Slice(snap.Peers, func(i, j int) bool { return snap.Peers[i].UserID < snap.Peers[j].UserID })

	for _, p := range s.posts {
		snap.Posts = append(snap.Posts, *p)
	}
	sort.Slice(snap.Posts, func(i, j int) bool { return snap.Posts[i].ID() < snap.Posts[j].ID() })

	for _, d := range s.dms {
		snap.DMs = append(snap.DMs, *d)
	}
	sort.Slice(snap.DMs, func(i, j int) bool { return snap.DMs[i].key() < snap.DMs[j].key() })

	for _, l := range s.likes {
		snap.Likes = append(snap.Likes, *l)
	}
	sort.Slice(snap.Likes, func(i, j int) bool {
		return likeKey(snap.Likes[i].PostID, snap.Likes[i].Liker) < likeKey(snap.Likes[j].PostID, snap.Likes[j].Liker)
	})

	for follower, set := range s.follows {
		for followee := range set {
			snap.Follows = append(snap.Follows, FollowEdge{Follower: follower, Followee: followee})
		}
	}
	sort.Slice(snap.Follows, func(i, j int) bool {
		if snap.Follows[i].Follower != snap.Follows[j].Follower {
			return snap.Follows[i].Follower < snap.Follows[j].Follower
		}
		return snap.Follows[i].Followee < snap.Follows[j].Followee
	})

	for _, g := range s.groups {
		snap.Groups = append(snap.Groups, groupCopy(g))
	}
	sort.Slice(snap.Groups, func(i, j int) bool { return snap.Groups[i].ID < snap.Groups[j].ID })

	return snap
}

// Serialize renders the store's durable state as a JSON blob.
func (s *Store) Serialize() ([]byte, error) {
	return json.Marshal(s.Snapshot())
}

// LoadSnapshot parses a snapshot blob.
func LoadSnapshot(data []byte) (*Snapshot, error) {
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadSnapshot, err)
	}
	if snap.Version != SnapshotVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrBadSnapshot, snap.Version)
	}
	return &snap, nil
}

// Restore replaces the store's contents with the snapshot's. Meant for
// startup; anything already in the store is discarded.
func (s *Store) Restore(snap *Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.peers = make(map[string]*Peer, len(snap.Peers))
	for i := range snap.Peers {
		p := snap.Peers[i]
		s.peers[p.UserID] = &p
	}
	s.posts = make(map[string]*Post, len(snap.Posts))
	for i := range snap.Posts {
		p := snap.Posts[i]
		s.posts[p.ID()] = &p
	}
	s.dms = make(map[string]*DirectMessage, len(snap.DMs))
	for i := range snap.DMs {
		d := snap.DMs[i]
		s.dms[d.key()] = &d
	}
	s.likes = make(map[string]*LikeState, len(snap.Likes))
	for i := range snap.Likes {
		l := snap.Likes[i]
		s.likes[likeKey(l.PostID, l.Liker)] = &l
	}
	s.follows = make(map[string]map[string]bool)
	for _, e := range snap.Follows {
		set := s.follows[e.Follower]
		if set == nil {
			set = make(map[string]bool)
			s.follows[e.Follower] = set
		}
		set[e.Followee] = true
	}
	s.groups = make(map[string]*Group, len(snap.Groups))
	for i := range snap.Groups {
		g := groupCopy(&snap.Groups[i])
		s.groups[g.ID] = &g
	}
}

// SaveFile writes the snapshot to path, creating parent directories and
// replacing the previous file atomically via a temp file rename.
func (s *Store) SaveFile(path string) error {
	data, err := s.Serialize()
	if err != nil {
		return fmt.Errorf("serialize snapshot: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace snapshot: %w", err)
	}
	logrus.WithFields(logrus.Fields{
		"function": "SaveFile",
		"path":     path,
		"bytes":    len(data),
	}).Debug("state snapshot written")
	return nil
}

// LoadFile reads and restores a snapshot from path. Callers treat a missing
// or corrupt file as an empty start, not a failure.
func (s *Store) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	snap, err := LoadSnapshot(data)
	if err != nil {
		return err
	}
	s.Restore(snap)
	logrus.WithFields(logrus.Fields{
		"function": "LoadFile",
		"path":     path,
		"peers":    len(snap.Peers),
		"posts":    len(snap.Posts),
		"dms":      len(snap.DMs),
	}).Info("state snapshot restored")
	return nil
}
