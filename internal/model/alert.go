package model

// AlertState tracks a commit through its lifecycle. Only Confirmed alerts
// are ever handed to subscribers.
type AlertState string

const (
	AlertPending   AlertState = "pending"
	AlertSubmitted AlertState = "submitted"
	AlertConfirmed AlertState = "confirmed"
	AlertFailed    AlertState = "failed"
)

// CategoryViolation is the only alert category emitted today.
const CategoryViolation = "violation"

// Alert is a durably recorded policy violation. ID is the sequential id
// assigned by the on-chain alert registry; TxRef and BlockRef are the
// externally verifiable proof of the commit. Immutable once confirmed.
type Alert struct {
	ID        uint64 `json:"id"`
	Vault     string `json:"vault"`
	Manager   string `json:"manager"`
	Reason    string `json:"reason"`
	Timestamp int64  `json:"timestamp"`
	Category  string `json:"category"`
	TxRef     string `json:"txRef"`
	BlockRef  uint64 `json:"blockRef"`
}
