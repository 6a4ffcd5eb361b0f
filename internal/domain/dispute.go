package domain

// Disputes are owned by an external subsystem; this core only reacts to their
// notifications. DisputeEvent arrives when a dispute opens, DisputeResolution
// when it closes.

type DisputeEvent struct {
	DisputeID string `json:"dispute_id"`
	PaymentID string `json:"payment_id"`
	Reason    string `json:"reason"`
}

type DisputeResolution struct {
	DisputeID string `json:"dispute_id"`
	PaymentID string `json:"payment_id"`
	// ToPayee directs Amount to the payee; the remaining held funds go to the
	// payer. When false the split is reversed.
	ToPayee bool   `json:"to_payee"`
	Amount  int64  `json:"amount"`
	Note    string `json:"note"`
}
