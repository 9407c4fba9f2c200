package messages

import "time"

// Message is a direct message between two users. It is written once and never updated.
type Message struct {
	ID         string    `gorm:"column:id;primaryKey;size:64;not null" bson:"_id" json:"id"`
	SenderID   string    `gorm:"column:sender_id;size:64;not null;index:idx_messages_pair,priority:1" bson:"sender_id" json:"senderId"`
	ReceiverID string    `gorm:"column:receiver_id;size:64;not null;index:idx_messages_pair,priority:2" bson:"receiver_id" json:"receiverId"`
	Text       string    `gorm:"column:text;type:text;not null;default:''" bson:"text,omitempty" json:"text,omitempty"`
	Image      string    `gorm:"column:image;size:1024;not null;default:''" bson:"image,omitempty" json:"image,omitempty"`
	CreatedAt  time.Time `gorm:"column:created_at;not null;index:idx_messages_pair,priority:3" bson:"created_at" json:"createdAt"`
	UpdatedAt  time.Time `gorm:"column:updated_at;not null" bson:"updated_at" json:"updatedAt"`
}

// TableName provides the explicit table binding for GORM.
func (Message) TableName() string {
	return "messages"
}

// Involves reports whether userID is the sender or the receiver.
func (m Message) Involves(userID string) bool {
	return m.SenderID == userID || m.ReceiverID == userID
}
