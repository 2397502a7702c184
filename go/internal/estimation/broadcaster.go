package estimation

// Broadcaster delivers a snapshot to observers. Implementations must not
// block: Session calls Broadcast while holding its lock.
type Broadcaster interface {
	Broadcast(snapshot Snapshot)
}

// Broadcasters fans a snapshot out to several broadcasters in order.
type Broadcasters []Broadcaster

func (b Broadcasters) Broadcast(snapshot Snapshot) {
	for _, target := range b {
		if target != nil {
			target.Broadcast(snapshot)
		}
	}
}
