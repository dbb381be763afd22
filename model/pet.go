package model

import (
	"time"

	"gorm.io/datatypes"
)

// PetState is the durable snapshot of one pet: needs and position, keyed by
// the configured pet key so several pets can share a database.
type PetState struct {
	PetKey    string         `gorm:"primaryKey;size:64" json:"pet_key"`
	Needs     datatypes.JSON `gorm:"not null" json:"needs"`
	X         float64        `json:"x"`
	Y         float64        `json:"y"`
	Behavior  string         `gorm:"size:64" json:"behavior"`
	SavedAt   time.Time      `gorm:"not null" json:"saved_at"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime:milli" json:"updated_at"`
}

func (PetState) TableName() string { return "pet_states" }
