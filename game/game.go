package game

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrUnknownGame indicates a move or result for a game never invited.
var ErrUnknownGame = errors.New("unknown game")

// ErrFinished indicates a move against a concluded game.
var ErrFinished = errors.New("game already finished")

// ErrNotPlayer indicates the mover is not part of the game.
var ErrNotPlayer = errors.New("player not in this game")

// ErrNotYourTurn indicates a move by the player whose turn it is not.
var ErrNotYourTurn = errors.New("not your turn")

// ErrTurnNumber indicates a move carrying the wrong turn number.
var ErrTurnNumber = errors.New("turn number mismatch")

// ErrWrongSymbol indicates a move with a symbol the mover does not hold.
var ErrWrongSymbol = errors.New("wrong symbol")

// ErrBadPosition indicates a position outside the board.
var ErrBadPosition = errors.New("position out of range")

// ErrCellOccupied indicates a move onto a taken cell.
var ErrCellOccupied = errors.New("position already occupied")

// ErrBadSymbol indicates a symbol other than X or O.
var ErrBadSymbol = errors.New("symbol must be X or O")

// Player symbols. X always moves first.
const (
	SymbolX = "X"
	SymbolO = "O"
)

// EmptyCell marks an unoccupied position in a serialized board.
const EmptyCell = ' '

// winLines are every row, column, and diagonal as board positions.
var winLines = [8][3]int{
	{0, 1, 2}, {3, 4, 5}, {6, 7, 8},
	{0, 3, 6}, {1, 4, 7}, {2, 5, 8},
	{0, 4, 8}, {2, 4, 6},
}

// Session is one board shared by two players. All access goes through a
// Manager, which owns the locking.
type Session struct {
	ID      string
	Inviter string
	Invitee string
	Created int64

	symbols   map[string]string
	board     [9]byte
	turn      int
	whoseTurn string
	finished  bool
	draw      bool
	forfeit   bool
	winner    string
	line      []int
}

// Report is a point-in-time view of a session, safe to hold after the
// manager's lock is released.
type Report struct {
	GameID        string
	Inviter       string
	Invitee       string
	InviterSymbol string
	InviteeSymbol string
	Board         string
	Turn          int    // next expected turn number
	WhoseTurn     string // empty once finished
	Finished      bool
	Draw          bool
	Forfeit       bool
	Winner        string // user id of the winner, empty for a draw
	WinnerSymbol  string
	Line          []int // winning positions, nil otherwise
}

func newSession(id, inviter, invitee, inviterSymbol string, created int64) *Session {
	inviteeSymbol := SymbolO
	if inviterSymbol == SymbolO {
		inviteeSymbol = SymbolX
	}

	s := &Session{
		ID:      id,
		Inviter: inviter,
		Invitee: invitee,
		Created: created,
		symbols: map[string]string{
			inviter: inviterSymbol,
			invitee: inviteeSymbol,
		},
		turn: 1,
	}
	for i := range s.board {
		s.board[i] = EmptyCell
	}
	s.whoseTurn = inviter
	if inviterSymbol != SymbolX {
		s.whoseTurn = invitee
	}
	return s
}

// apply validates one move in the order the protocol specifies and mutates
// the board when every check passes.
func (s *Session) apply(player string, position, turn int, symbol string) error {
	if s.finished {
		return ErrFinished
	}
	if _, ok := s.symbols[player]; !ok {
		return fmt.Errorf("%w: %s", ErrNotPlayer, player)
	}
	if player != s.whoseTurn {
		return ErrNotYourTurn
	}
	if turn != s.turn {
		return fmt.Errorf("%w: got %d, expected %d", ErrTurnNumber, turn, s.turn)
	}
	if symbol != s.symbols[player] {
		return fmt.Errorf("%w: got %s, assigned %s", ErrWrongSymbol, symbol, s.symbols[player])
	}
	if position < 0 || position > 8 {
		return fmt.Errorf("%w: %d", ErrBadPosition, position)
	}
	if s.board[position] != EmptyCell {
		return fmt.Errorf("%w: %d", ErrCellOccupied, position)
	}

	s.board[position] = symbol[0]
	s.turn++
	s.whoseTurn = s.opponent(player)

	if line, ok := s.winningLine(); ok {
		s.finished = true
		s.winner = player
		s.line = line
		s.whoseTurn = ""
	} else if s.full() {
		s.finished = true
		s.draw = true
		s.whoseTurn = ""
	}
	return nil
}

func (s *Session) opponent(player string) string {
	if player == s.Inviter {
		return s.Invitee
	}
	return s.Inviter
}

func (s *Session) winningLine() ([]int, bool) {
	for _, line := range winLines {
		a, b, c := s.board[line[0]], s.board[line[1]], s.board[line[2]]
		if a != EmptyCell && a == b && b == c {
			return []int{line[0], line[1], line[2]}, true
		}
	}
	return nil, false
}

func (s *Session) full() bool {
	for _, cell := range s.board {
		if cell == EmptyCell {
			return false
		}
	}
	return true
}

func (s *Session) report() Report {
	r := Report{
		GameID:        s.ID,
		Inviter:       s.Inviter,
		Invitee:       s.Invitee,
		InviterSymbol: s.symbols[s.Inviter],
		InviteeSymbol: s.symbols[s.Invitee],
		Board:         string(s.board[:]),
		Turn:          s.turn,
		WhoseTurn:     s.whoseTurn,
		Finished:      s.finished,
		Draw:          s.draw,
		Forfeit:       s.forfeit,
		Winner:        s.winner,
	}
	if s.winner != "" {
		r.WinnerSymbol = s.symbols[s.winner]
	}
	if s.line != nil {
		r.Line = append([]int(nil), s.line...)
	}
	return r
}

// Symbol returns the symbol player holds in this game, or empty for a
// non-player.
func (r Report) Symbol(player string) string {
	switch player {
	case r.Inviter:
		return r.InviterSymbol
	case r.Invitee:
		return r.InviteeSymbol
	}
	return ""
}

// FormatLine renders winning positions as the wire form "0,1,2".
func FormatLine(line []int) string {
	parts := make([]string, len(line))
	for i, p := range line {
		parts[i] = strconv.Itoa(p)
	}
	return strings.Join(parts, ",")
}

// FormatBoard renders a serialized board as a 3x3 grid for display, showing
// the position number in empty cells.
func FormatBoard(board string) string {
	var b strings.Builder
	for row := 0; row < 3; row++ {
		if row > 0 {
			b.WriteString("\n---------\n")
		}
		for col := 0; col < 3; col++ {
			if col > 0 {
				b.WriteString(" | ")
			}
			pos := row*3 + col
			cell := byte('0' + pos)
			if pos < len(board) && board[pos] != EmptyCell {
				cell = board[pos]
			}
			b.WriteByte(cell)
		}
	}
	return b.String()
}
