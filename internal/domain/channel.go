package domain

// ChannelState is the lifecycle state of the push-notification channel.
type ChannelState int

const (
	ChannelDisconnected ChannelState = iota
	ChannelConnecting
	ChannelConnected
	ChannelReconnecting
)

var channelStateNames = map[ChannelState]string{
	ChannelDisconnected: "disconnected",
	ChannelConnecting:   "connecting",
	ChannelConnected:    "connected",
	ChannelReconnecting: "reconnecting",
}

// String returns the lower-case state name.
func (s ChannelState) String() string {
	if name, ok := channelStateNames[s]; ok {
		return name
	}
	return "unknown"
}

// MarshalText renders the state name in JSON payloads.
func (s ChannelState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// CanTransition reports whether from -> to is a legal edge.
//
//	Disconnected -> Connecting -> Connected -> Reconnecting -> Connecting
//	Connecting -> Reconnecting (dial failed)
//	any -> Disconnected (teardown)
func CanTransition(from, to ChannelState) bool {
	if to == ChannelDisconnected {
		return true
	}
	switch from {
	case ChannelDisconnected:
		return to == ChannelConnecting
	case ChannelConnecting:
		return to == ChannelConnected || to == ChannelReconnecting
	case ChannelConnected:
		return to == ChannelReconnecting
	case ChannelReconnecting:
		return to == ChannelConnecting
	}
	return false
}
