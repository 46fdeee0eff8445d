package ledger

import "time"

// TransactionTypeCFTIssued marks credits issued for a restoration project.
const TransactionTypeCFTIssued = "CFT_ISSUED"

// Transaction is one immutable ledger entry.
type Transaction struct {
	Type      string    `json:"type"`
	Amount    int64     `json:"amount"`
	Timestamp time.Time `json:"timestamp"`
	ProjectID string    `json:"projectId,omitempty"`
}

// Wallet is the community wallet. Transactions are newest first and
// Balance always equals the sum of their amounts.
type Wallet struct {
	Address      string        `json:"address"`
	Balance      int64         `json:"balance"`
	Transactions []Transaction `json:"transactions"`
}

func (w *Wallet) clone() Wallet {
	c := *w
	c.Transactions = append([]Transaction(nil), w.Transactions...)
	if c.Transactions == nil {
		c.Transactions = []Transaction{}
	}
	return c
}

// Sum recomputes the balance from the transaction log.
func (w *Wallet) Sum() int64 {
	var total int64
	for _, tx := range w.Transactions {
		total += tx.Amount
	}
	return total
}
