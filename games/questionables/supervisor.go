package questionables

import (
	"time"
)

// Session-ended reasons.
const (
	ReasonNoPlayers = "no_players"
	ReasonIdle      = "idle"
)

// LeaveSession removes id from the session. An answer or vote it already
// cast this round stays counted. If the leader left, the earliest-joined
// remaining participant (preferring connected ones) takes over. When the
// last participant leaves the session is discarded.
//
// The returned messages are, in order: the lobby snapshot (or the
// session-ended notice) and, if the departure completed the current phase,
// the message announcing the next one. It returns nil if id was not in a
// session.
func (s *Store) LeaveSession(id string) []Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.leave(id)
}

// RemoveIfDisconnected removes id like LeaveSession, but only if it has no
// live connection. The check and the removal happen under one lock, so a
// reconnect either keeps the seat or arrives after the player was removed.
func (s *Store) RemoveIfDisconnected(id string) []Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.presence.IsConnected(id) {
		return nil
	}

	return s.leave(id)
}

func (s *Store) leave(id string) []Message {
	sess := s.session
	if sess == nil {
		return nil
	}

	idx := sess.indexOf(id)
	if idx < 0 {
		return nil
	}

	left := sess.Participants[idx]
	sess.Participants = append(sess.Participants[:idx], sess.Participants[idx+1:]...)
	sess.lastActive = s.now()

	s.logf("GAMES: Player %q left session %s", left.DisplayName, sess.Code)

	if len(sess.Participants) == 0 {
		s.logf("GAMES: No players left, clearing session %s", sess.Code)
		s.session = nil

		return []Message{SessionEndedMessage{Type: "session_ended", Reason: ReasonNoPlayers}}
	}

	if left.ID == sess.LeaderID {
		s.reelect(sess)
	}

	msgs := []Message{projectLobby(sess, s.presence)}
	if next := s.advanceIfComplete(sess); next != nil {
		msgs = append(msgs, next)
	}

	return msgs
}

// Disconnect handles the loss of id's last connection. The participant
// stays in the session, keeps whatever it already submitted, and stops
// counting towards completion under CompletionConnected. A disconnected
// leader hands over to the earliest-joined connected participant before
// anything is broadcast.
func (s *Store) Disconnect(id string) []Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.session
	if sess == nil || !sess.has(id) {
		return nil
	}

	if sess.LeaderID == id {
		s.reelect(sess)
	}

	msgs := []Message{projectLobby(sess, s.presence)}
	if next := s.advanceIfComplete(sess); next != nil {
		msgs = append(msgs, next)
	}

	return msgs
}

// Connect handles a participant's first live connection. If the current
// leader is unreachable, leadership moves to a connected participant. The
// returned lobby snapshot announces the presence change to everyone; the
// caller sends Sync to the reconnecting client itself.
func (s *Store) Connect(id string) []Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.session
	if sess == nil || !sess.has(id) {
		return nil
	}

	if !s.presence.IsConnected(sess.LeaderID) {
		s.reelect(sess)
	}

	return []Message{projectLobby(sess, s.presence)}
}

// reelect reassigns leadership with ElectLeader. A leader that is merely
// unreachable keeps the role when nobody else is connected either.
func (s *Store) reelect(sess *Session) {
	idx := ElectLeader(sess.Participants, s.presence.IsConnected)
	if idx < 0 {
		return
	}

	current := sess.indexOf(sess.LeaderID)
	candidate := sess.Participants[idx]
	if current >= 0 && !s.presence.IsConnected(candidate.ID) {
		return
	}
	if candidate.ID == sess.LeaderID {
		return
	}

	sess.assignLeader(idx)

	s.logf("GAMES: %q is now leading session %s", candidate.DisplayName, sess.Code)
}

// Reap discards the session if it has been idle for longer than timeout and
// reports the session-ended notice to broadcast.
func (s *Store) Reap(timeout time.Duration) (Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.session
	if sess == nil || timeout <= 0 {
		return nil, false
	}

	if s.now().Sub(sess.lastActive) <= timeout {
		return nil, false
	}

	s.logf("GAMES: Reaping idle session %s", sess.Code)
	s.session = nil

	return SessionEndedMessage{Type: "session_ended", Reason: ReasonIdle}, true
}

// IsMember reports whether id belongs to the live session.
func (s *Store) IsMember(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.session != nil && s.session.has(id)
}
