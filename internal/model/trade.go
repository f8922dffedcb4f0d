package model

// TradeEvent is a decoded vault trade enriched with its chain position.
type TradeEvent struct {
	Vault       string `json:"vault"`
	Manager     string `json:"manager"`
	TokenIn     string `json:"token_in"`
	TokenOut    string `json:"token_out"`
	Amount      string `json:"amount"`
	BlockNumber uint64 `json:"block_number"`
	TxHash      string `json:"tx_hash"`
	LogIndex    uint64 `json:"log_index"`
}
