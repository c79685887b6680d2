/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package questionables implements the Questionables party game: players
// answer a prompt, vote anonymously for their favourite answer, and collect
// one point per vote received over a fixed number of rounds.
//
// Only one session is live per Store at a time. All mutations go through
// the Store, which serializes them and hands back the message to broadcast.
package questionables

import (
	"slices"
	"time"
)

// Phase is the current step of a session.
type Phase string

const (
	PhaseLobby        Phase = "lobby"
	PhaseAnswering    Phase = "answering"
	PhaseVoting       Phase = "voting"
	PhaseRoundResults Phase = "round_results"
	PhaseFinished     Phase = "finished"
)

// GameName is shown to clients in the lobby.
const GameName = "Questionables"

// Participant is a player in the session. Participants keep their join
// order for the life of the session.
type Participant struct {
	ID          string
	DisplayName string
	Score       int
	IsLeader    bool
	JoinedAt    time.Time
}

// Session is the single live game. It is only ever accessed under the
// owning Store's lock.
type Session struct {
	Code          string
	Name          string
	TotalRounds   int
	CurrentRound  int
	Phase         Phase
	LeaderID      string
	Participants  []Participant
	CurrentPrompt string

	// Answers maps participant ID to submitted text. Votes maps voter ID to
	// the ID of the answer's owner.
	Answers map[string]string
	Votes   map[string]string

	// tallies counts votes per answer owner for the current round. ballot
	// maps opaque ballot references to answer owners.
	tallies map[string]int
	ballot  map[string]string

	epoch      uint64
	createdAt  time.Time
	lastActive time.Time
}

func (sess *Session) indexOf(id string) int {
	for i, p := range sess.Participants {
		if p.ID == id {
			return i
		}
	}

	return -1
}

func (sess *Session) has(id string) bool {
	return sess.indexOf(id) >= 0
}

// resetRound clears per-round state ahead of a new Answering phase.
func (sess *Session) resetRound() {
	sess.Answers = make(map[string]string)
	sess.Votes = make(map[string]string)
	sess.tallies = make(map[string]int)
	sess.ballot = make(map[string]string)
}

// openVoting seeds a zero tally for every participant and assigns each
// answer a fresh ballot reference.
func (sess *Session) openVoting(r Random) {
	sess.Phase = PhaseVoting
	sess.Votes = make(map[string]string)
	sess.tallies = make(map[string]int, len(sess.Participants))
	for _, p := range sess.Participants {
		sess.tallies[p.ID] = 0
	}

	sess.ballot = make(map[string]string, len(sess.Answers))
	for _, owner := range sess.answerOwners() {
		for {
			ref := newRef(r)
			if _, taken := sess.ballot[ref]; !taken {
				sess.ballot[ref] = owner
				break
			}
		}
	}
}

// answerOwners lists the owners of this round's answers: current
// participants in join order first, then departed owners sorted by ID so
// the result does not depend on map iteration order.
func (sess *Session) answerOwners() []string {
	owners := make([]string, 0, len(sess.Answers))
	seen := make(map[string]bool, len(sess.Answers))

	for _, p := range sess.Participants {
		if _, ok := sess.Answers[p.ID]; ok {
			owners = append(owners, p.ID)
			seen[p.ID] = true
		}
	}

	var departed []string
	for id := range sess.Answers {
		if !seen[id] {
			departed = append(departed, id)
		}
	}
	slices.Sort(departed)

	return append(owners, departed...)
}

// closeVoting adds each participant's tally to their score.
func (sess *Session) closeVoting() {
	sess.Phase = PhaseRoundResults
	for i := range sess.Participants {
		sess.Participants[i].Score += sess.tallies[sess.Participants[i].ID]
	}
}

// phaseComplete reports whether every participant who counts under policy
// has acted in the given record. At least one action is required.
func (sess *Session) phaseComplete(acted map[string]string, policy Completion, presence Presence) bool {
	if len(acted) == 0 {
		return false
	}

	counted := 0
	for _, p := range sess.Participants {
		if policy == CompletionConnected && !presence.IsConnected(p.ID) {
			continue
		}
		counted++
		if _, ok := acted[p.ID]; !ok {
			return false
		}
	}

	return counted > 0
}
