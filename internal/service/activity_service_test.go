package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/fir-api/internal/models"
	appErrors "github.com/noah-isme/fir-api/pkg/errors"
)

func TestActivityFeedScope(t *testing.T) {
	env := newTestEnv(t)
	station := env.store.addStation("PS001")
	alice := env.citizen(t, "alice")
	bob := env.officer(t, "bob", station)
	root := env.admin(t, "root")
	ctx := context.Background()

	first := env.file(t, alice, station)
	env.file(t, alice, station)
	_, err := env.firs.Approve(ctx, bob, first.ID)
	require.NoError(t, err)

	all, err := env.activity.Recent(ctx, root, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, models.AuditActionFIRApproved, all[0].Action, "newest first")
	assert.Greater(t, all[0].ID, all[1].ID)

	own, err := env.activity.Recent(ctx, alice, 50)
	require.NoError(t, err)
	require.Len(t, own, 2)
	for _, e := range own {
		require.NotNil(t, e.ActorID)
		assert.Equal(t, alice.ID(), *e.ActorID)
	}

	limited, err := env.activity.Recent(ctx, root, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	quiet := env.citizen(t, "quiet")
	none, err := env.activity.Recent(ctx, quiet, 10)
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)

	_, err = env.activity.Recent(ctx, models.Principal{}, 10)
	assert.ErrorIs(t, err, appErrors.ErrUnauthorized)
}
