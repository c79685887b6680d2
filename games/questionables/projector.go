package questionables

import (
	"crypto/sha256"
	"encoding/hex"
	"slices"
	"strings"
)

// Message is an outbound view of the session. Every message marshals with
// a "type" field so clients can dispatch on it.
type Message interface {
	MessageType() string
}

// PublicID is how a participant is identified to other clients: a digest
// of their identity, never the identity itself, since that doubles as
// their cookie.
func PublicID(id string) string {
	sum := sha256.Sum256([]byte(id))
	return hex.EncodeToString(sum[:6])
}

type LobbyPlayer struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Score     int    `json:"score"`
	Leader    bool   `json:"leader"`
	Connected bool   `json:"connected"`
}

// LobbyMessage is the lobby snapshot. It carries no answers or votes.
type LobbyMessage struct {
	Type         string        `json:"type"` // "lobby"
	Code         string        `json:"code"`
	Name         string        `json:"name"`
	TotalRounds  int           `json:"total_rounds"`
	CurrentRound int           `json:"current_round"`
	Phase        Phase         `json:"phase"`
	Players      []LobbyPlayer `json:"players"`
}

type RoundStartedMessage struct {
	Type        string `json:"type"` // "round_started"
	Prompt      string `json:"prompt"`
	Round       int    `json:"round"`
	TotalRounds int    `json:"total_rounds"`
}

// BallotEntry pairs an answer with an opaque reference to vote with.
type BallotEntry struct {
	Ref  string `json:"ref"`
	Text string `json:"text"`
}

type VotingStartedMessage struct {
	Type   string        `json:"type"` // "voting_started"
	Round  int           `json:"round"`
	Prompt string        `json:"prompt"`
	Ballot []BallotEntry `json:"ballot"`
}

type RoundResult struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Votes int    `json:"votes"`
	Score int    `json:"score"`
}

type RoundResultsMessage struct {
	Type        string        `json:"type"` // "round_results"
	Round       int           `json:"round"`
	TotalRounds int           `json:"total_rounds"`
	Final       bool          `json:"final"`
	Results     []RoundResult `json:"results"`
}

type FinalScore struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Score int    `json:"score"`
}

type FinalResultsMessage struct {
	Type   string       `json:"type"` // "final_results"
	Rounds int          `json:"rounds"`
	Scores []FinalScore `json:"scores"`
}

type PlayerStatus struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Leader    bool   `json:"leader"`
	Connected bool   `json:"connected"`
	Answered  bool   `json:"answered"`
	Voted     bool   `json:"voted"`
}

// StatusMessage tells everyone who has acted in the current phase, without
// revealing what they submitted.
type StatusMessage struct {
	Type    string         `json:"type"` // "participant_status"
	Round   int            `json:"round"`
	Phase   Phase          `json:"phase"`
	Players []PlayerStatus `json:"players"`
}

type SessionEndedMessage struct {
	Type   string `json:"type"` // "session_ended"
	Reason string `json:"reason"`
}

// ErrorMessage is only ever sent to the requester of a failed operation.
type ErrorMessage struct {
	Type    string `json:"type"` // "error"
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (LobbyMessage) MessageType() string         { return "lobby" }
func (RoundStartedMessage) MessageType() string  { return "round_started" }
func (VotingStartedMessage) MessageType() string { return "voting_started" }
func (RoundResultsMessage) MessageType() string  { return "round_results" }
func (FinalResultsMessage) MessageType() string  { return "final_results" }
func (StatusMessage) MessageType() string        { return "participant_status" }
func (SessionEndedMessage) MessageType() string  { return "session_ended" }
func (ErrorMessage) MessageType() string         { return "error" }

// NewErrorMessage converts an operation error into its wire form.
func NewErrorMessage(err error) ErrorMessage {
	return ErrorMessage{
		Type:    "error",
		Error:   Kind(err),
		Message: err.Error(),
	}
}

func projectLobby(sess *Session, presence Presence) LobbyMessage {
	players := make([]LobbyPlayer, 0, len(sess.Participants))
	for _, p := range sess.Participants {
		players = append(players, LobbyPlayer{
			ID:        PublicID(p.ID),
			Name:      p.DisplayName,
			Score:     p.Score,
			Leader:    p.IsLeader,
			Connected: presence.IsConnected(p.ID),
		})
	}

	return LobbyMessage{
		Type:         "lobby",
		Code:         sess.Code,
		Name:         sess.Name,
		TotalRounds:  sess.TotalRounds,
		CurrentRound: sess.CurrentRound,
		Phase:        sess.Phase,
		Players:      players,
	}
}

func projectRoundStarted(sess *Session) RoundStartedMessage {
	return RoundStartedMessage{
		Type:        "round_started",
		Prompt:      sess.CurrentPrompt,
		Round:       sess.CurrentRound,
		TotalRounds: sess.TotalRounds,
	}
}

// projectBallot shuffles on every call, so two projections of the same
// session carry the same entries in independent orders.
func projectBallot(sess *Session, r Random) VotingStartedMessage {
	entries := make([]BallotEntry, 0, len(sess.ballot))
	for ref, owner := range sess.ballot {
		entries = append(entries, BallotEntry{
			Ref:  ref,
			Text: sess.Answers[owner],
		})
	}

	// Map iteration order is random but not seedable; sort first so the
	// shuffle alone decides the order.
	slices.SortFunc(entries, func(a, b BallotEntry) int {
		return strings.Compare(a.Ref, b.Ref)
	})

	r.Shuffle(len(entries), func(i, j int) {
		entries[i], entries[j] = entries[j], entries[i]
	})

	return VotingStartedMessage{
		Type:   "voting_started",
		Round:  sess.CurrentRound,
		Prompt: sess.CurrentPrompt,
		Ballot: entries,
	}
}

func projectRoundResults(sess *Session) RoundResultsMessage {
	results := make([]RoundResult, 0, len(sess.Participants))
	for _, p := range sess.Participants {
		results = append(results, RoundResult{
			ID:    PublicID(p.ID),
			Name:  p.DisplayName,
			Votes: sess.tallies[p.ID],
			Score: p.Score,
		})
	}

	slices.SortStableFunc(results, func(a, b RoundResult) int {
		return b.Votes - a.Votes
	})

	return RoundResultsMessage{
		Type:        "round_results",
		Round:       sess.CurrentRound,
		TotalRounds: sess.TotalRounds,
		Final:       sess.CurrentRound >= sess.TotalRounds,
		Results:     results,
	}
}

func projectFinalResults(sess *Session) FinalResultsMessage {
	scores := make([]FinalScore, 0, len(sess.Participants))
	for _, p := range sess.Participants {
		scores = append(scores, FinalScore{
			ID:    PublicID(p.ID),
			Name:  p.DisplayName,
			Score: p.Score,
		})
	}

	slices.SortStableFunc(scores, func(a, b FinalScore) int {
		return b.Score - a.Score
	})

	return FinalResultsMessage{
		Type:   "final_results",
		Rounds: sess.TotalRounds,
		Scores: scores,
	}
}

func projectStatus(sess *Session, presence Presence) StatusMessage {
	players := make([]PlayerStatus, 0, len(sess.Participants))
	for _, p := range sess.Participants {
		_, answered := sess.Answers[p.ID]
		_, voted := sess.Votes[p.ID]
		players = append(players, PlayerStatus{
			ID:        PublicID(p.ID),
			Name:      p.DisplayName,
			Leader:    p.IsLeader,
			Connected: presence.IsConnected(p.ID),
			Answered:  answered,
			Voted:     voted,
		})
	}

	return StatusMessage{
		Type:    "participant_status",
		Round:   sess.CurrentRound,
		Phase:   sess.Phase,
		Players: players,
	}
}
