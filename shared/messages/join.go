package messages

import "github.com/automoto/bodysync/shared/netconfig"

// JoinRequest is sent by a peer after connecting to request joining the
// session.
type JoinRequest struct {
	Version string
	Name    string
}

// JoinAccepted is sent by the server when a peer's join request is accepted.
// Source is the identity the peer must stamp on its snapshots.
type JoinAccepted struct {
	Source     netconfig.SourceID
	ServerName string
	TickRate   int
}

// JoinRejected is sent by the server when a peer's join request is rejected.
type JoinRejected struct {
	Reason string
}
