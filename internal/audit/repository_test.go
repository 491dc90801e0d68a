package audit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/ent-store/internal/observe"
	"github.com/nerrad567/ent-store/internal/storetest"
)

func TestCreateAndList(t *testing.T) {
	repo := NewSQLiteRepository(storetest.OpenGuard(t))
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		family := "vehicle"
		if i%2 == 1 {
			family = "skin"
		}
		require.NoError(t, repo.Create(ctx, &AuditLog{
			Action:     "save",
			EntityType: family,
			EntityID:   fmt.Sprint(i + 1),
			Source:     "test",
			Details:    map[string]any{"name": fmt.Sprintf("entry %d", i)},
			CreatedAt:  base.Add(time.Duration(i) * time.Minute),
		}))
	}

	result, err := repo.List(ctx, Filter{})
	require.NoError(t, err)
	assert.Equal(t, 5, result.Total)
	assert.Equal(t, 50, result.Limit)
	require.Len(t, result.Logs, 5)
	assert.Equal(t, "5", result.Logs[0].EntityID, "newest first")
	assert.Equal(t, "entry 4", result.Logs[0].Details["name"])
	assert.Contains(t, result.Logs[0].ID, "aud-")
	assert.True(t, result.Logs[0].CreatedAt.Equal(base.Add(4*time.Minute)))

	skins, err := repo.List(ctx, Filter{EntityType: "skin"})
	require.NoError(t, err)
	assert.Equal(t, 2, skins.Total)

	page, err := repo.List(ctx, Filter{Limit: 2, Offset: 4})
	require.NoError(t, err)
	assert.Equal(t, 5, page.Total)
	require.Len(t, page.Logs, 1)
	assert.Equal(t, "1", page.Logs[0].EntityID)

	one, err := repo.List(ctx, Filter{EntityType: "vehicle", EntityID: "3"})
	require.NoError(t, err)
	require.Len(t, one.Logs, 1)
	assert.Equal(t, "test", one.Logs[0].Source)
}

func TestList_ClampsFilter(t *testing.T) {
	repo := NewSQLiteRepository(storetest.OpenGuard(t))

	result, err := repo.List(context.Background(), Filter{Limit: 1000, Offset: -3})
	require.NoError(t, err)
	assert.Equal(t, 200, result.Limit)
	assert.Equal(t, 0, result.Offset)
	assert.NotNil(t, result.Logs)
	assert.Empty(t, result.Logs)
}

type failingRepo struct{ Repository }

func (failingRepo) Create(context.Context, *AuditLog) error { return errors.New("disk full") }

type capturingLogger struct{ msgs []string }

func (l *capturingLogger) Error(msg string, _ ...any) { l.msgs = append(l.msgs, msg) }

func TestJournal_RecordsMutations(t *testing.T) {
	repo := NewSQLiteRepository(storetest.OpenGuard(t))
	j := NewJournal(repo, "entstore", nil)
	ctx := context.Background()

	j.Observe(ctx, observe.Operation{Family: observe.FamilyVehicle, Action: observe.ActionSave, Slot: 3, Name: "racer", Rows: 4})
	j.Observe(ctx, observe.Operation{Family: observe.FamilySkin, Action: observe.ActionRename, Slot: 7, Name: "new name", Rows: 1})
	j.Observe(ctx, observe.Operation{Family: observe.FamilySettings, Action: observe.ActionStore, Slot: -1, Rows: 2})

	// Reads and failures are not journalled
	j.Observe(ctx, observe.Operation{Family: observe.FamilyVehicle, Action: observe.ActionList, Slot: -1})
	j.Observe(ctx, observe.Operation{Family: observe.FamilyVehicle, Action: observe.ActionDelete, Slot: 3, Err: errors.New("boom")})

	result, err := repo.List(ctx, Filter{})
	require.NoError(t, err)
	require.Equal(t, 3, result.Total)

	saves, err := repo.List(ctx, Filter{Action: "save"})
	require.NoError(t, err)
	require.Len(t, saves.Logs, 1)
	entry := saves.Logs[0]
	assert.Equal(t, "vehicle", entry.EntityType)
	assert.Equal(t, "3", entry.EntityID)
	assert.Equal(t, "entstore", entry.Source)
	assert.Equal(t, "racer", entry.Details["name"])
	assert.EqualValues(t, 4, entry.Details["rows"])

	settings, err := repo.List(ctx, Filter{EntityType: "settings"})
	require.NoError(t, err)
	require.Len(t, settings.Logs, 1)
	assert.Empty(t, settings.Logs[0].EntityID)
}

func TestJournal_LogsWriteFailure(t *testing.T) {
	logger := &capturingLogger{}
	j := NewJournal(failingRepo{}, "entstore", logger)

	j.Observe(context.Background(), observe.Operation{Family: observe.FamilyPropSet, Action: observe.ActionDelete, Slot: 1})
	assert.Equal(t, []string{"audit journal write failed"}, logger.msgs)
}

func TestCreate_GeneratesFullUUID(t *testing.T) {
	repo := NewSQLiteRepository(storetest.OpenGuard(t))
	ctx := context.Background()

	seen := make(map[string]bool)
	for i := 0; i < 3; i++ {
		entry := &AuditLog{Action: "delete", EntityType: "skin", EntityID: fmt.Sprint(i + 1)}
		require.NoError(t, repo.Create(ctx, entry))

		require.True(t, strings.HasPrefix(entry.ID, "aud-"), entry.ID)
		id, err := uuid.Parse(strings.TrimPrefix(entry.ID, "aud-"))
		require.NoError(t, err)
		assert.Equal(t, entry.ID, "aud-"+id.String())
		assert.False(t, seen[entry.ID])
		seen[entry.ID] = true
	}
}
