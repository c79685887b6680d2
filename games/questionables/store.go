/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package questionables

import (
	"context"
	"fmt"
	"maps"
	"strings"
	"sync"
	"time"
)

// Completion decides who must act before an answering or voting phase ends.
type Completion string

const (
	// CompletionConnected waits only for participants with a live
	// connection, so a dropped player cannot stall the round.
	CompletionConnected Completion = "connected"

	// CompletionRegistered waits for every participant in the session,
	// connected or not.
	CompletionRegistered Completion = "registered"
)

// DefaultRounds is used when a session is created without a round count.
const DefaultRounds = 3

type Config struct {
	DefaultRounds    int
	Completion       Completion
	DisallowSelfVote bool
	PromptTimeout    time.Duration

	Prompts  PromptSource
	Presence Presence
	Random   Random

	Now  func() time.Time
	Logf func(format string, args ...any)
}

// Store owns zero or one live session and serializes every operation on
// it. Prompt fetches happen outside the lock; their result is applied in a
// separate short critical section.
type Store struct {
	mu      sync.Mutex
	session *Session
	epoch   uint64

	// pending is set while a round start is fetching its prompt.
	pending bool

	defaultRounds    int
	completion       Completion
	disallowSelfVote bool
	promptTimeout    time.Duration

	prompts  PromptSource
	presence Presence
	random   Random
	now      func() time.Time
	logFunc  func(format string, args ...any)
}

func NewStore(cfg Config) *Store {
	s := &Store{
		defaultRounds:    cfg.DefaultRounds,
		completion:       cfg.Completion,
		disallowSelfVote: cfg.DisallowSelfVote,
		promptTimeout:    cfg.PromptTimeout,
		prompts:          cfg.Prompts,
		presence:         cfg.Presence,
		random:           cfg.Random,
		now:              cfg.Now,
		logFunc:          cfg.Logf,
	}

	if s.defaultRounds < 1 {
		s.defaultRounds = DefaultRounds
	}
	if s.completion == "" {
		s.completion = CompletionConnected
	}
	if s.promptTimeout <= 0 {
		s.promptTimeout = DefaultPromptTimeout
	}
	if s.presence == nil {
		s.presence = alwaysConnected{}
	}
	if s.random == nil {
		seed, err := NewSeed()
		if err != nil {
			seed = uint64(time.Now().UnixNano())
		}
		s.random = NewRandom(seed)
	}
	if s.now == nil {
		s.now = time.Now
	}

	return s
}

func (s *Store) logf(format string, args ...any) {
	if s.logFunc != nil {
		s.logFunc(format, args...)
	}
}

func displayName(name string, n int) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Sprintf("Player %d", n)
	}

	return name
}

// CreateSession starts a new session in the lobby with the requester as its
// sole participant and leader.
func (s *Store) CreateSession(leaderID, name string, rounds int) (LobbyMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session != nil {
		return LobbyMessage{}, ErrSessionExists
	}

	if rounds == 0 {
		rounds = s.defaultRounds
	}
	rounds = max(1, rounds)

	now := s.now()
	s.epoch++

	sess := &Session{
		Code:         newCode(s.random),
		Name:         GameName,
		TotalRounds:  rounds,
		CurrentRound: 1,
		Phase:        PhaseLobby,
		LeaderID:     leaderID,
		Participants: []Participant{{
			ID:          leaderID,
			DisplayName: displayName(name, 1),
			IsLeader:    true,
			JoinedAt:    now,
		}},
		epoch:      s.epoch,
		createdAt:  now,
		lastActive: now,
	}
	sess.resetRound()

	s.session = sess
	s.pending = false

	s.logf("GAMES: Created session %s (%d rounds) led by %q", sess.Code, rounds, sess.Participants[0].DisplayName)

	return projectLobby(sess, s.presence), nil
}

// JoinSession adds the requester to the session. Joining again with the same
// identity returns the current lobby unchanged.
func (s *Store) JoinSession(id, name, code string) (LobbyMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.session
	if sess == nil {
		return LobbyMessage{}, ErrNoSession
	}

	if !strings.EqualFold(strings.TrimSpace(code), sess.Code) {
		return LobbyMessage{}, fmt.Errorf("join %q: %w", code, ErrInvalidCode)
	}

	if !sess.has(id) {
		now := s.now()
		sess.Participants = append(sess.Participants, Participant{
			ID:          id,
			DisplayName: displayName(name, len(sess.Participants)+1),
			JoinedAt:    now,
		})
		sess.lastActive = now

		s.logf("GAMES: Player %q joined session %s", sess.Participants[len(sess.Participants)-1].DisplayName, sess.Code)
	}

	return projectLobby(sess, s.presence), nil
}

// checkRoundStart validates a request to start the next round, either from
// the lobby (startRound) or from round results (continueGame).
func (s *Store) checkRoundStart(by string, phases ...Phase) (*Session, error) {
	sess := s.session
	if sess == nil {
		return nil, ErrNoSession
	}
	if sess.LeaderID != by {
		return nil, ErrNotLeader
	}

	allowed := false
	for _, p := range phases {
		if sess.Phase == p {
			allowed = true
			break
		}
	}
	if !allowed || s.pending {
		return nil, fmt.Errorf("start round in %s: %w", sess.Phase, ErrInvalidState)
	}

	return sess, nil
}

// StartRound moves the session from the lobby, or from round results when
// rounds remain, into the answering phase of the next round.
func (s *Store) StartRound(ctx context.Context, by string) (RoundStartedMessage, error) {
	s.mu.Lock()
	sess, err := s.checkRoundStart(by, PhaseLobby, PhaseRoundResults)
	if err == nil && sess.Phase == PhaseRoundResults && sess.CurrentRound >= sess.TotalRounds {
		err = fmt.Errorf("start round after the last round: %w", ErrInvalidState)
	}
	if err != nil {
		s.mu.Unlock()
		return RoundStartedMessage{}, err
	}
	s.pending = true
	epoch := sess.epoch
	s.mu.Unlock()

	return s.applyRoundStart(epoch, by, s.fetchPrompt(ctx))
}

// ContinueGame either starts the next round or, after the last round,
// reports the final standings and discards the session.
func (s *Store) ContinueGame(ctx context.Context, by string) (Message, error) {
	s.mu.Lock()
	sess, err := s.checkRoundStart(by, PhaseRoundResults)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}

	if sess.CurrentRound >= sess.TotalRounds {
		defer s.mu.Unlock()

		sess.Phase = PhaseFinished
		final := projectFinalResults(sess)
		s.session = nil

		s.logf("GAMES: Session %s finished after %d rounds", sess.Code, sess.TotalRounds)

		return final, nil
	}

	s.pending = true
	epoch := sess.epoch
	s.mu.Unlock()

	started, err := s.applyRoundStart(epoch, by, s.fetchPrompt(ctx))
	if err != nil {
		return nil, err
	}

	return started, nil
}

// applyRoundStart re-checks the guards of checkRoundStart, since the
// session may have changed hands while the prompt was being fetched.
func (s *Store) applyRoundStart(epoch uint64, by, prompt string) (RoundStartedMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.session
	if sess == nil || sess.epoch != epoch {
		return RoundStartedMessage{}, ErrNoSession
	}
	s.pending = false

	if sess.LeaderID != by {
		return RoundStartedMessage{}, fmt.Errorf("leadership changed while fetching the prompt: %w", ErrNotLeader)
	}

	if sess.Phase != PhaseLobby && sess.Phase != PhaseRoundResults {
		return RoundStartedMessage{}, fmt.Errorf("start round in %s: %w", sess.Phase, ErrInvalidState)
	}

	if sess.Phase == PhaseRoundResults {
		sess.CurrentRound++
	}
	sess.resetRound()
	sess.CurrentPrompt = prompt
	sess.Phase = PhaseAnswering
	sess.lastActive = s.now()

	s.logf("GAMES: Round %d/%d of %s started: %s", sess.CurrentRound, sess.TotalRounds, sess.Code, prompt)

	return projectRoundStarted(sess), nil
}

// SubmitAnswer records a participant's answer. Once everyone who counts has
// answered, voting opens and the ballot is returned; otherwise the returned
// message is a status update.
func (s *Store) SubmitAnswer(id, text string) (Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.session
	if sess == nil {
		return nil, ErrNoSession
	}
	if sess.Phase != PhaseAnswering {
		return nil, fmt.Errorf("answer in %s: %w", sess.Phase, ErrInvalidState)
	}
	if !sess.has(id) {
		return nil, fmt.Errorf("answer from non-participant: %w", ErrInvalidState)
	}
	if _, ok := sess.Answers[id]; ok {
		return nil, fmt.Errorf("answer already submitted: %w", ErrInvalidState)
	}

	sess.Answers[id] = strings.TrimSpace(text)
	sess.lastActive = s.now()

	if msg := s.advanceIfComplete(sess); msg != nil {
		return msg, nil
	}

	return projectStatus(sess, s.presence), nil
}

// SubmitVote records voterID's vote for the answer owned by ownerID. Once
// everyone who counts has voted, tallies are added to scores and the round
// results are returned; otherwise the returned message is a status update.
func (s *Store) SubmitVote(voterID, ownerID string) (Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.submitVote(voterID, ownerID)
}

// SubmitBallotVote votes using the opaque reference from the ballot.
func (s *Store) SubmitBallotVote(voterID, ref string) (Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session == nil {
		return nil, ErrNoSession
	}
	if s.session.Phase != PhaseVoting {
		return nil, fmt.Errorf("vote in %s: %w", s.session.Phase, ErrInvalidState)
	}

	owner, ok := s.session.ballot[ref]
	if !ok {
		return nil, fmt.Errorf("unknown ballot entry %q: %w", ref, ErrInvalidOwner)
	}

	return s.submitVote(voterID, owner)
}

func (s *Store) submitVote(voterID, ownerID string) (Message, error) {
	sess := s.session
	if sess == nil {
		return nil, ErrNoSession
	}
	if sess.Phase != PhaseVoting {
		return nil, fmt.Errorf("vote in %s: %w", sess.Phase, ErrInvalidState)
	}
	if !sess.has(voterID) {
		return nil, fmt.Errorf("vote from non-participant: %w", ErrInvalidState)
	}
	if _, ok := sess.Answers[ownerID]; !ok {
		return nil, ErrInvalidOwner
	}
	if s.disallowSelfVote && voterID == ownerID {
		return nil, fmt.Errorf("self vote: %w", ErrInvalidOwner)
	}
	if _, ok := sess.Votes[voterID]; ok {
		return nil, ErrAlreadyVoted
	}

	sess.Votes[voterID] = ownerID
	sess.tallies[ownerID]++
	sess.lastActive = s.now()

	if msg := s.advanceIfComplete(sess); msg != nil {
		return msg, nil
	}

	return projectStatus(sess, s.presence), nil
}

// advanceIfComplete ends the answering or voting phase once everyone who
// counts has acted, returning the message announcing the new phase.
func (s *Store) advanceIfComplete(sess *Session) Message {
	switch sess.Phase {
	case PhaseAnswering:
		if !sess.phaseComplete(sess.Answers, s.completion, s.presence) {
			return nil
		}
		sess.openVoting(s.random)

		s.logf("GAMES: All answers in for round %d of %s, voting on %d answers", sess.CurrentRound, sess.Code, len(sess.ballot))

		return projectBallot(sess, s.random)

	case PhaseVoting:
		if !sess.phaseComplete(sess.Votes, s.completion, s.presence) {
			return nil
		}
		sess.closeVoting()

		s.logf("GAMES: All votes in for round %d of %s", sess.CurrentRound, sess.Code)

		return projectRoundResults(sess)
	}

	return nil
}

// SessionInfoMessage is sent privately to a client when it connects, so it
// knows whether to offer creating or joining a session.
type SessionInfoMessage struct {
	Type       string `json:"type"` // "session_info"
	You        string `json:"you"`
	HasSession bool   `json:"has_session"`
	IsMember   bool   `json:"is_member"`
	IsLeader   bool   `json:"is_leader"`
}

func (SessionInfoMessage) MessageType() string { return "session_info" }

func (s *Store) Info(id string) SessionInfoMessage {
	s.mu.Lock()
	defer s.mu.Unlock()

	info := SessionInfoMessage{
		Type: "session_info",
		You:  PublicID(id),
	}

	if sess := s.session; sess != nil {
		info.HasSession = true
		info.IsMember = sess.has(id)
		info.IsLeader = sess.LeaderID == id
	}

	return info
}

// Sync returns everything a reconnecting member needs to resume: the lobby
// snapshot and the view of the current phase. Nothing is replayed from
// earlier broadcasts. It returns nil when id is not in a live session.
func (s *Store) Sync(id string) []Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.session
	if sess == nil || !sess.has(id) {
		return nil
	}

	msgs := []Message{projectLobby(sess, s.presence)}

	switch sess.Phase {
	case PhaseAnswering:
		msgs = append(msgs, projectRoundStarted(sess), projectStatus(sess, s.presence))
	case PhaseVoting:
		msgs = append(msgs, projectBallot(sess, s.random), projectStatus(sess, s.presence))
	case PhaseRoundResults:
		msgs = append(msgs, projectRoundResults(sess))
	}

	return msgs
}

// Lobby returns the current lobby snapshot, if a session is live.
func (s *Store) Lobby() (LobbyMessage, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session == nil {
		return LobbyMessage{}, false
	}

	return projectLobby(s.session, s.presence), true
}

// Code returns the join code of the live session.
func (s *Store) Code() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session == nil {
		return "", false
	}

	return s.session.Code, true
}

// Snapshot returns a deep copy of the live session for inspection.
func (s *Store) Snapshot() (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session == nil {
		return Session{}, false
	}

	cp := *s.session
	cp.Participants = append([]Participant(nil), s.session.Participants...)
	cp.Answers = maps.Clone(s.session.Answers)
	cp.Votes = maps.Clone(s.session.Votes)
	cp.tallies = maps.Clone(s.session.tallies)
	cp.ballot = maps.Clone(s.session.ballot)

	return cp, true
}
