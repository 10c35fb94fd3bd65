// models/models.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Verse form tags, stored and sent exactly as the clients expect them.
const (
	Type575 = "575"
	Type77  = "77"
)

// Participant roles are advisory labels for the client; nothing in the
// server gates on them.
const (
	RoleAdmin       = "admin"
	RoleParticipant = "participant"
)

// Renku is one linked-verse composition. The whole document is read and
// rewritten on every mutation; there are no field-level updates.
type Renku struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"_id"`
	Title        string             `bson:"title" json:"title"`
	Participants []Participant      `bson:"participants" json:"participants"`
	Verses       []Verse            `bson:"verses" json:"verses"`
	CurrentTurn  int                `bson:"currentTurn" json:"currentTurn"`
	CreatedAt    time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt    time.Time          `bson:"updatedAt" json:"updatedAt"`
	Completed    bool               `bson:"completed" json:"completed"`
}

type Participant struct {
	ID       string    `bson:"id" json:"id"`
	Name     string    `bson:"name" json:"name"`
	JoinedAt time.Time `bson:"joinedAt" json:"joinedAt"`
	Role     string    `bson:"role,omitempty" json:"role,omitempty"`
}

// Verse is one stanza. ParticipantName is a copy of the author's display
// name taken when the verse was posted; renaming a participant rewrites
// these copies explicitly, nothing else keeps them in sync.
type Verse struct {
	ID              string    `bson:"id" json:"id"`
	ParticipantID   string    `bson:"participantId" json:"participantId"`
	ParticipantName string    `bson:"participantName" json:"participantName"`
	Text            string    `bson:"text" json:"text"`
	Type            string    `bson:"type" json:"type"`
	Order           int       `bson:"order" json:"order"`
	CreatedAt       time.Time `bson:"createdAt" json:"createdAt"`
	SeasonWord      string    `bson:"seasonWord,omitempty" json:"seasonWord,omitempty"`
}
