package game

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

// Manager tracks every session by game id and serializes access to them.
type Manager struct {
	mu    sync.RWMutex
	games map[string]*Session
}

// NewManager creates an empty session registry.
func NewManager() *Manager {
	return &Manager{games: make(map[string]*Session)}
}

// Invite registers a game created by inviter holding inviterSymbol. A
// replayed invite for a known game id returns the existing session with
// created false, whatever its fields say.
func (m *Manager) Invite(gameID, inviter, invitee, inviterSymbol string, created int64) (Report, bool, error) {
	if inviterSymbol != SymbolX && inviterSymbol != SymbolO {
		return Report{}, false, fmt.Errorf("%w: %q", ErrBadSymbol, inviterSymbol)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.games[gameID]; ok {
		return s.report(), false, nil
	}

	s := newSession(gameID, inviter, invitee, inviterSymbol, created)
	m.games[gameID] = s

	logrus.WithFields(logrus.Fields{
		"function": "Invite",
		"game_id":  gameID,
		"inviter":  inviter,
		"invitee":  invitee,
		"symbol":   inviterSymbol,
	}).Info("Tictactoe game created")

	return s.report(), true, nil
}

// Move validates and applies one move, returning the state after it.
func (m *Manager) Move(gameID, player string, position, turn int, symbol string) (Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.games[gameID]
	if !ok {
		return Report{}, fmt.Errorf("%w: %s", ErrUnknownGame, gameID)
	}
	if err := s.apply(player, position, turn, symbol); err != nil {
		return Report{}, err
	}

	r := s.report()
	log := logrus.WithFields(logrus.Fields{
		"function": "Move",
		"game_id":  gameID,
		"player":   player,
		"position": position,
		"turn":     turn,
	})
	if r.Finished {
		log.WithFields(logrus.Fields{
			"winner": r.Winner,
			"draw":   r.Draw,
		}).Info("Tictactoe game finished")
	} else {
		log.Debug("Tictactoe move applied")
	}
	return r, nil
}

// Forfeit ends the game, awarding the win to quitter's opponent.
func (m *Manager) Forfeit(gameID, quitter string) (Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.games[gameID]
	if !ok {
		return Report{}, fmt.Errorf("%w: %s", ErrUnknownGame, gameID)
	}
	if s.finished {
		return Report{}, ErrFinished
	}
	if _, ok := s.symbols[quitter]; !ok {
		return Report{}, fmt.Errorf("%w: %s", ErrNotPlayer, quitter)
	}

	s.finished = true
	s.forfeit = true
	s.winner = s.opponent(quitter)
	s.whoseTurn = ""

	logrus.WithFields(logrus.Fields{
		"function": "Forfeit",
		"game_id":  gameID,
		"quitter":  quitter,
		"winner":   s.winner,
	}).Info("Tictactoe game forfeited")

	return s.report(), nil
}

// Conclude records a result announced by the other side. An already
// finished session is left alone and reported with changed false, so a
// duplicated result datagram changes nothing.
func (m *Manager) Conclude(gameID, winner string, draw bool) (Report, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.games[gameID]
	if !ok {
		return Report{}, false, fmt.Errorf("%w: %s", ErrUnknownGame, gameID)
	}
	if s.finished {
		return s.report(), false, nil
	}

	s.finished = true
	s.draw = draw
	if !draw {
		s.winner = winner
	}
	s.whoseTurn = ""

	logrus.WithFields(logrus.Fields{
		"function": "Conclude",
		"game_id":  gameID,
		"winner":   winner,
		"draw":     draw,
	}).Info("Tictactoe result recorded")

	return s.report(), true, nil
}

// Get returns a snapshot of one session.
func (m *Manager) Get(gameID string) (Report, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.games[gameID]
	if !ok {
		return Report{}, fmt.Errorf("%w: %s", ErrUnknownGame, gameID)
	}
	return s.report(), nil
}

// Count returns the number of tracked sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.games)
}
