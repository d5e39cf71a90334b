package domain

import "time"

type MessageStatus string

const MessageSent MessageStatus = "sent"

type Message struct {
	ID            int64         `json:"id"`
	OrderID       int64         `json:"order_id"`
	Recipient     string        `json:"recipient"`
	ProviderMsgID string        `json:"provider_msg_id"`
	Status        MessageStatus `json:"status"`
	CreatedAt     time.Time     `json:"created_at"`
}
