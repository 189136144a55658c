package venue

// SubscribeRequest is the outbound frame registering interest in a
// venue channel. Part of the wire contract.
type SubscribeRequest struct {
	Event   string `json:"event"`
	Channel string `json:"channel"`
	Symbol  string `json:"symbol,omitempty"`
}

// NewSubscribeRequest builds a subscribe frame.
func NewSubscribeRequest(channel, symbol string) SubscribeRequest {
	return SubscribeRequest{
		Event:   "subscribe",
		Channel: channel,
		Symbol:  symbol,
	}
}
