package model_test

import (
	"testing"
	"time"

	"github.com/kasuganosora/desktoppet/model"
	"github.com/kasuganosora/desktoppet/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func TestAutoMigrate_InsertAndQuery(t *testing.T) {
	db := testutil.SetupTestDB(t)

	st := &model.PetState{
		PetKey:  "default",
		Needs:   datatypes.JSON(`{"hunger":0.5}`),
		X:       10,
		Y:       20,
		SavedAt: time.Now(),
	}
	require.NoError(t, db.Create(st).Error)

	var found model.PetState
	require.NoError(t, db.First(&found, "pet_key = ?", "default").Error)
	assert.Equal(t, 10.0, found.X)
	assert.JSONEq(t, `{"hunger":0.5}`, string(found.Needs))

	tr := &model.BehaviorTransition{
		RunID:      "run-1",
		PetKey:     "default",
		ToBehavior: "idle",
		Reason:     "no_active",
		OccurredAt: time.Now(),
	}
	require.NoError(t, db.Create(tr).Error)
	assert.Positive(t, tr.ID)
}

func TestAutoMigrate_Idempotent(t *testing.T) {
	db := testutil.SetupTestDB(t)
	assert.NoError(t, model.AutoMigrate(db))
}
