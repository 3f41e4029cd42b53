package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/opd-ai/lsnp"
	"github.com/opd-ai/lsnp/file"
	"github.com/opd-ai/lsnp/game"
	"github.com/opd-ai/lsnp/state"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a node in the foreground, printing network events",
	RunE:  runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	n, err := lsnp.New(lsnp.FromConfig(cfg))
	if err != nil {
		return err
	}
	printEvents(n)

	if err := n.Start(); err != nil {
		n.Stop()
		return err
	}
	fmt.Printf("%s listening on port %d. Ctrl-C stops.\n", n.UserID(), cfg.Port)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	fmt.Println("\nShutting down.")
	return n.Stop()
}

// printEvents renders every callback as one line on stdout.
func printEvents(n *lsnp.Node) {
	n.OnPeer(func(p state.Peer) {
		fmt.Printf("[peer] %s (%s) %s\n", p.DisplayName, p.UserID, p.Status)
	})
	n.OnPost(func(p state.Post) {
		fmt.Printf("[post] %s: %s\n", p.Author, p.Content)
	})
	n.OnDM(func(d state.DirectMessage) {
		fmt.Printf("[dm] %s: %s\n", d.From, d.Content)
	})
	// ACKs are liveness chatter; only verbose runs show them.
	if verbose {
		n.OnAck(func(messageID, status string) {
			fmt.Printf("[ack] %s %s\n", messageID, status)
		})
	}
	n.OnFollow(func(follower string, followed bool) {
		if followed {
			fmt.Printf("[follow] %s now follows you\n", follower)
		} else {
			fmt.Printf("[follow] %s unfollowed you\n", follower)
		}
	})
	n.OnLike(func(liker, postID string, liked bool) {
		if liked {
			fmt.Printf("[like] %s likes %s\n", liker, postID)
		} else {
			fmt.Printf("[like] %s unliked %s\n", liker, postID)
		}
	})
	n.OnFileOffer(func(t *file.Transfer) {
		fmt.Printf("[file] %s offers %s (%d bytes): %s\n", t.Peer, t.FileName, t.FileSize, t.Description)
	})
	n.OnFileProgress(func(t *file.Transfer) {
		fmt.Printf("[file] %s %.0f%%\n", t.FileName, t.Progress())
	})
	n.OnFileComplete(func(t *file.Transfer, path string) {
		if path == "" {
			fmt.Printf("[file] %s delivered to %s\n", t.FileName, t.Peer)
		} else {
			fmt.Printf("[file] %s saved as %s\n", t.FileName, path)
		}
	})
	n.OnFileFailed(func(t *file.Transfer, err error) {
		fmt.Printf("[file] %s failed: %v\n", t.FileName, err)
	})
	n.OnGroupCreate(func(g state.Group) {
		fmt.Printf("[group] %s created %q with %d members\n", g.Creator, g.Name, len(g.Members))
	})
	n.OnGroupUpdate(func(g state.Group) {
		fmt.Printf("[group] %q now has %d members\n", g.Name, len(g.Members))
	})
	n.OnGroupMessage(func(from, groupID, content string) {
		fmt.Printf("[group %s] %s: %s\n", groupID, from, content)
	})
	n.OnGameInvite(func(r game.Report, from string) {
		fmt.Printf("[game] %s invites you to game %s, you play %s\n", from, r.GameID, r.InviteeSymbol)
	})
	n.OnGameUpdate(func(r game.Report) {
		fmt.Printf("[game %s] turn %d, %s to move\n%s\n", r.GameID, r.Turn, r.WhoseTurn, game.FormatBoard(r.Board))
	})
	n.OnGameOver(func(r game.Report) {
		switch {
		case r.Winner == "":
			fmt.Printf("[game %s] draw\n", r.GameID)
		case r.Forfeit:
			fmt.Printf("[game %s] %s wins by forfeit\n", r.GameID, r.Winner)
		default:
			fmt.Printf("[game %s] %s wins\n", r.GameID, r.Winner)
		}
	})
}
