package bridge

import "time"

// Payload keys shared by commands and acknowledgements
const (
	KeyCorrelationID = "correlation_id"
	// KeyLegacyMessageID is the join key sent by display firmware predating correlation_id
	KeyLegacyMessageID = "msg_id"
	KeyStatus          = "status"
)

// Ack statuses
const (
	StatusAcked   = "acked"
	StatusTimeout = "timeout"
)

// commandTimeFormat matches the display firmware's expected timestamp layout
const commandTimeFormat = "2006-01-02T15:04:05Z"

// Product is what a display shows
type Product struct {
	Name            string
	CountryOfOrigin string
	Price           float64
}

// DisplayCommand is published to {base}/shelf/{shelf}/display/cmd
type DisplayCommand struct {
	CorrelationID string  `json:"correlation_id"`
	Shelf         int     `json:"shelf"`
	Name          string  `json:"name"`
	Country       string  `json:"country"`
	Price         float64 `json:"price"`
	Currency      string  `json:"currency"`
	Timestamp     string  `json:"timestamp"`
}

// NewDisplayCommand builds the command content for a product. Shelf, correlation
// id and timestamp are filled in when the command is sent.
func NewDisplayCommand(p Product, currency string) DisplayCommand {
	return DisplayCommand{
		Name:     p.Name,
		Country:  p.CountryOfOrigin,
		Price:    p.Price,
		Currency: currency,
	}
}

// Ack is the outcome of a delivered command: either the display's acknowledgement
// body or a synthesized timeout marker.
type Ack struct {
	CorrelationID string         `json:"correlation_id"`
	Status        string         `json:"status"`
	Body          map[string]any `json:"body"`
}

// TimedOut reports whether no acknowledgement arrived in time
func (a *Ack) TimedOut() bool {
	return a.Status == StatusTimeout
}

func timeoutAck(correlationID string) *Ack {
	return &Ack{
		CorrelationID: correlationID,
		Status:        StatusTimeout,
		Body: map[string]any{
			KeyStatus:        StatusTimeout,
			KeyCorrelationID: correlationID,
		},
	}
}

func formatCommandTime(t time.Time) string {
	return t.UTC().Format(commandTimeFormat)
}

// correlationID extracts the join key from an inbound body
func correlationID(body map[string]any) string {
	for _, k := range []string{KeyCorrelationID, KeyLegacyMessageID} {
		if id, ok := body[k].(string); ok && id != "" {
			return id
		}
	}
	return ""
}
