package market

// Quote is one streamed instrument record. The feeder sends the price as a
// formatted string; Rate is the change rate against the previous close.
type Quote struct {
	Ticker string  `json:"ticker"`
	Price  string  `json:"price"`
	Rate   float64 `json:"rate"`
}

// ConnState is the socket connection state.
type ConnState int

const (
	Disconnected ConnState = iota
	Connecting
	Connected
)

func (s ConnState) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "disconnected"
	}
}
