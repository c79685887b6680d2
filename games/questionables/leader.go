package questionables

// ElectLeader returns the index of the participant who should hold
// leadership: the earliest-joined participant that is connected, or the
// earliest-joined participant at all when nobody is connected. It returns
// -1 for an empty list. isConnected may be nil, meaning everyone is.
func ElectLeader(participants []Participant, isConnected func(id string) bool) int {
	if len(participants) == 0 {
		return -1
	}

	if isConnected != nil {
		for i, p := range participants {
			if isConnected(p.ID) {
				return i
			}
		}
	}

	return 0
}

// assignLeader makes participants[idx] the sole leader.
func (sess *Session) assignLeader(idx int) {
	for i := range sess.Participants {
		sess.Participants[i].IsLeader = i == idx
	}

	if idx >= 0 && idx < len(sess.Participants) {
		sess.LeaderID = sess.Participants[idx].ID
	} else {
		sess.LeaderID = ""
	}
}
