package dataloader_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rx3lixir/event-sync/internal/dataloader"
	"github.com/rx3lixir/event-sync/internal/storetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var primaryTime = time.Date(2024, 4, 1, 9, 0, 0, 0, time.UTC)

func TestLoaderBackfillAll(t *testing.T) {
	events := newJob(
		storetest.NewPrimary(items("e1", "e2")...),
		storetest.NewSecondary[Item](),
		nil, nil,
	)
	categories := dataloader.NewJob[Item]("category",
		storetest.NewPrimary(items("c1", "c2", "c3")...),
		storetest.NewSecondary(items("c2")...),
		dataloader.JobOptions{},
	)

	loader := dataloader.NewLoader(nil)
	require.NoError(t, loader.Register(events))
	require.NoError(t, loader.Register(categories))
	assert.Equal(t, []string{"item", "category"}, loader.EntityTypes())

	summary := loader.BackfillAll(context.Background(), 0)
	assert.True(t, summary.IsSuccess)
	require.Len(t, summary.Results, 2)
	assert.Equal(t, "item", summary.Results[0].EntityType)
	assert.Equal(t, "category", summary.Results[1].EntityType)
	assert.Equal(t, 5, summary.TotalProcessed)
	assert.Equal(t, 4, summary.SuccessCount)
	assert.Equal(t, 1, summary.SkippedCount)
	assert.False(t, summary.CompletedAt.Before(summary.StartedAt))
}

func TestLoaderBackfillAllReportsFailures(t *testing.T) {
	failingSecondary := storetest.NewSecondary[Item]()
	failingSecondary.FailOn(storetest.OpInsert, errors.New("rejected"))

	brokenPrimary := storetest.NewPrimary(items("x")...)
	brokenPrimary.FailOn(storetest.OpScan, errors.New("primary unavailable"))

	loader := dataloader.NewLoader(nil)
	require.NoError(t, loader.Register(newJob(storetest.NewPrimary(items("a")...), failingSecondary, nil, nil)))
	require.NoError(t, loader.Register(dataloader.NewJob[Item]("broken", brokenPrimary, storetest.NewSecondary[Item](), dataloader.JobOptions{})))
	require.NoError(t, loader.Register(dataloader.NewJob[Item]("healthy",
		storetest.NewPrimary(items("h")...), storetest.NewSecondary[Item](), dataloader.JobOptions{})))

	summary := loader.BackfillAll(context.Background(), 10)
	assert.False(t, summary.IsSuccess)
	require.Len(t, summary.Results, 3)
	assert.Equal(t, 1, summary.Results[0].FailureCount)
	assert.True(t, summary.Results[1].Aborted())
	assert.Contains(t, summary.Results[1].Error, "primary unavailable")
	assert.Equal(t, 1, summary.Results[2].SuccessCount)
}

func TestLoaderUnknownEntityType(t *testing.T) {
	loader := dataloader.NewLoader(nil)
	ctx := context.Background()

	_, err := loader.Backfill(ctx, "ghost", 10)
	assert.ErrorIs(t, err, dataloader.ErrUnknownEntityType)

	_, err = loader.Replay(ctx, "ghost", 10)
	assert.ErrorIs(t, err, dataloader.ErrUnknownEntityType)

	_, err = loader.CheckSyncStatus(ctx, "ghost")
	assert.ErrorIs(t, err, dataloader.ErrUnknownEntityType)
}

func TestLoaderRegisterDuplicate(t *testing.T) {
	loader := dataloader.NewLoader(nil)
	job := newJob(storetest.NewPrimary[Item](), storetest.NewSecondary[Item](), nil, nil)

	require.NoError(t, loader.Register(job))
	assert.Error(t, loader.Register(job))
}

func TestLoaderBackfillSingleType(t *testing.T) {
	loader := dataloader.NewLoader(nil)
	secondary := storetest.NewSecondary[Item]()
	require.NoError(t, loader.Register(newJob(storetest.NewPrimary(items("a", "b")...), secondary, nil, nil)))

	res, err := loader.Backfill(context.Background(), "item", 1)
	require.NoError(t, err)
	assert.Equal(t, 2, res.SuccessCount)
	assert.Equal(t, 2, secondary.Len())
}
