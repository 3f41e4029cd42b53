package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/opd-ai/lsnp"
	"github.com/opd-ai/lsnp/game"
)

var symbol string

var ticCmd = &cobra.Command{
	Use:   "tictactoe",
	Short: "Play tic-tac-toe against a peer",
	Long: `Game sessions live in node memory, so drive a whole game from one
running process: invite from "lsnp run" or keep the node alive while the
game lasts. Positions number the board 0-8, left to right, top to bottom.`,
}

var ticInviteCmd = &cobra.Command{
	Use:   "invite <user>",
	Short: "Invite a peer to a new game",
	Args:  cobra.ExactArgs(1),
	RunE:  runTicInvite,
}

var ticMoveCmd = &cobra.Command{
	Use:   "move <game-id> <position>",
	Short: "Play a position in a running game",
	Args:  cobra.ExactArgs(2),
	RunE:  runTicMove,
}

var ticForfeitCmd = &cobra.Command{
	Use:   "forfeit <game-id>",
	Short: "Resign a running game",
	Args:  cobra.ExactArgs(1),
	RunE:  runTicForfeit,
}

func init() {
	rootCmd.AddCommand(ticCmd)
	ticCmd.AddCommand(ticInviteCmd, ticMoveCmd, ticForfeitCmd)

	ticInviteCmd.Flags().StringVarP(&symbol, "symbol", "s", game.SymbolX, "symbol to play, X or O (X moves first)")
}

func runTicInvite(cmd *cobra.Command, args []string) error {
	return withNode(func(n *lsnp.Node) error {
		report, err := n.InviteGame(args[0], symbol)
		if err != nil {
			return err
		}
		fmt.Printf("Invited %s to game %s; you play %s\n", args[0], report.GameID, report.InviterSymbol)
		if report.WhoseTurn == n.UserID() {
			fmt.Println("Your move.")
		} else {
			fmt.Println("They move first.")
		}
		return nil
	})
}

func runTicMove(cmd *cobra.Command, args []string) error {
	pos, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("position %q is not a number", args[1])
	}
	return withNode(func(n *lsnp.Node) error {
		report, err := n.SendMove(args[0], pos)
		if err != nil {
			return err
		}
		fmt.Println(game.FormatBoard(report.Board))
		switch {
		case !report.Finished:
			fmt.Printf("%s to move.\n", report.WhoseTurn)
		case report.Winner == "":
			fmt.Println("Draw.")
		default:
			fmt.Printf("%s wins.\n", report.Winner)
		}
		return nil
	})
}

func runTicForfeit(cmd *cobra.Command, args []string) error {
	return withNode(func(n *lsnp.Node) error {
		report, err := n.ForfeitGame(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("Forfeited; %s wins.\n", report.Winner)
		return nil
	})
}
