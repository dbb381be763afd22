package model

import (
	"time"

	"gorm.io/datatypes"
)

// BehaviorTransition journals one behavior switch.
type BehaviorTransition struct {
	ID            int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	RunID         string         `gorm:"index:idx_transition_run;size:36;not null" json:"run_id"`
	PetKey        string         `gorm:"index:idx_transition_pet;size:64;not null" json:"pet_key"`
	Tick          uint64         `json:"tick"`
	Seq           uint64         `json:"seq"`
	FromBehavior  string         `gorm:"size:64" json:"from"`
	ToBehavior    string         `gorm:"size:64;not null" json:"to"`
	Reason        string         `gorm:"size:32;not null" json:"reason"`
	Utility       float64        `json:"utility"`
	ActiveUtility float64        `json:"active_utility"`
	Needs         datatypes.JSON `json:"needs"`
	Candidates    datatypes.JSON `json:"candidates"`
	OccurredAt    time.Time      `gorm:"index:idx_transition_at;not null" json:"occurred_at"`
	CreatedAt     time.Time      `gorm:"autoCreateTime:milli" json:"created_at"`
}

func (BehaviorTransition) TableName() string { return "behavior_transitions" }
