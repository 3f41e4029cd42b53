// Package game implements tictactoe sessions played over LSNP.
//
// A session starts with an invite naming the inviter's symbol; the invitee
// holds the other one and whoever holds X moves first. Moves carry a turn
// number starting at 1 so replayed or reordered datagrams cannot apply
// twice. The Manager validates every move against the session state and
// reports the board, the winner, and the winning line once the game ends.
package game
