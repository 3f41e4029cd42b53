package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/opd-ai/lsnp/config"
	"github.com/opd-ai/lsnp/state"
)

var showAll bool

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Display cached peers, posts, messages, and groups",
}

var showPeersCmd = &cobra.Command{
	Use:   "peers",
	Short: "List every peer seen on the network",
	RunE:  runShowPeers,
}

var showPostsCmd = &cobra.Command{
	Use:   "posts",
	Short: "List your feed: your posts plus those of peers you follow",
	RunE:  runShowPosts,
}

var showDMsCmd = &cobra.Command{
	Use:   "dms",
	Short: "List your direct message history",
	RunE:  runShowDMs,
}

var showGroupsCmd = &cobra.Command{
	Use:   "groups",
	Short: "List groups you belong to",
	RunE:  runShowGroups,
}

func init() {
	rootCmd.AddCommand(showCmd)
	showCmd.AddCommand(showPeersCmd, showPostsCmd, showDMsCmd, showGroupsCmd)
	showCmd.PersistentFlags().BoolVar(&showAll, "all", false, "include expired entries, unfollowed authors, and foreign groups")
}

// cachedState loads the snapshot the node persists between runs. The
// network is not touched.
func cachedState() (*config.Config, *state.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	st := state.New()
	if err := st.LoadFile(cfg.CachePath); err != nil && !os.IsNotExist(err) {
		return nil, nil, fmt.Errorf("read cache %s: %w", cfg.CachePath, err)
	}
	return cfg, st, nil
}

func runShowPeers(cmd *cobra.Command, args []string) error {
	_, st, err := cachedState()
	if err != nil {
		return err
	}
	peers := st.Peers()
	if len(peers) == 0 {
		fmt.Println("No peers seen yet.")
		return nil
	}
	for _, p := range peers {
		fmt.Printf("%s (%s)  last seen %s  %s\n", p.UserID, p.DisplayName, timeOf(p.LastSeen), p.Status)
	}
	return nil
}

func runShowPosts(cmd *cobra.Command, args []string) error {
	cfg, st, err := cachedState()
	if err != nil {
		return err
	}
	now := time.Now().Unix()
	var posts []state.Post
	if showAll {
		posts = st.Posts(true, now)
	} else {
		posts = st.VisiblePosts(cfg.UserID, false, now)
	}
	if len(posts) == 0 {
		fmt.Println("No posts.")
		return nil
	}
	for _, p := range posts {
		likers := st.Likers(p.ID())
		suffix := ""
		if len(likers) > 0 {
			suffix = fmt.Sprintf("  [%d likes]", len(likers))
		}
		fmt.Printf("[%s] %s: %s%s\n", timeOf(p.Timestamp), p.Author, p.Content, suffix)
	}
	return nil
}

func runShowDMs(cmd *cobra.Command, args []string) error {
	cfg, st, err := cachedState()
	if err != nil {
		return err
	}
	dms := st.DMs(cfg.UserID, showAll, time.Now().Unix())
	if len(dms) == 0 {
		fmt.Println("No direct messages.")
		return nil
	}
	for _, d := range dms {
		direction, other := "from", d.From
		if d.From == cfg.UserID {
			direction, other = "to", d.To
		}
		fmt.Printf("[%s] %s %s: %s\n", timeOf(d.Timestamp), direction, other, d.Content)
	}
	return nil
}

func runShowGroups(cmd *cobra.Command, args []string) error {
	cfg, st, err := cachedState()
	if err != nil {
		return err
	}
	shown := 0
	for _, g := range st.Groups() {
		if !showAll && !g.HasMember(cfg.UserID) {
			continue
		}
		shown++
		fmt.Printf("%s (%s) by %s: %s\n", g.ID, g.Name, g.Creator, strings.Join(g.Members, ", "))
	}
	if shown == 0 {
		fmt.Println("No groups.")
	}
	return nil
}
