package amqp

import (
	"encoding/json"
	"time"
)

// ExpenseCreatedMessage announces a freshly appended ledger record. It
// carries the fields the reaction worker needs to rebuild the notification
// body without re-reading the expense row.
type ExpenseCreatedMessage struct {
	CoupleID    string    `json:"coupleId"`
	ExpenseID   string    `json:"expenseId"`
	AmountCents int64     `json:"amountCents"`
	PaidBy      string    `json:"paidBy"`
	Note        string    `json:"note"`
	Timestamp   time.Time `json:"timestamp"`
}

func NewExpenseCreatedMessage(coupleID, expenseID string, amountCents int64, paidBy, note string) *ExpenseCreatedMessage {
	return &ExpenseCreatedMessage{
		CoupleID:    coupleID,
		ExpenseID:   expenseID,
		AmountCents: amountCents,
		PaidBy:      paidBy,
		Note:        note,
		Timestamp:   time.Now(),
	}
}

func (m *ExpenseCreatedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func ExpenseCreatedMessageFromJSON(data []byte) (*ExpenseCreatedMessage, error) {
	var msg ExpenseCreatedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
