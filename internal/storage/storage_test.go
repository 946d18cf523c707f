package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()

	store, err := Open(ctx, DriverSQLite, ":memory:", PoolConfig{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	_, err = store.Migrate(ctx)
	require.NoError(t, err)
	return store
}

func TestRebind(t *testing.T) {
	q := `SELECT * FROM t WHERE a = ? AND b LIKE ? ESCAPE '\'`
	assert.Equal(t, `SELECT * FROM t WHERE a = $1 AND b LIKE $2 ESCAPE '\'`, rebind(DriverPostgres, q))
	assert.Equal(t, q, rebind(DriverSQLite, q))
}

func TestTextMatch_Where(t *testing.T) {
	allowed := map[string]string{"question": "question", "category": "category"}

	pred, args, err := TextMatch{Terms: []string{"Copper", "50%_off"}, Columns: []string{"question"}}.where(allowed)
	require.NoError(t, err)
	assert.Equal(t, `(LOWER(question) LIKE ? ESCAPE '\' OR LOWER(question) LIKE ? ESCAPE '\')`, pred)
	assert.Equal(t, []interface{}{"%copper%", `%50\%\_off%`}, args)

	_, _, err = TextMatch{Terms: []string{"x"}, Columns: []string{"question; DROP TABLE"}}.where(allowed)
	assert.ErrorIs(t, err, ErrInvalidCol)

	pred, args, err = TextMatch{Terms: []string{"  "}, Columns: []string{"question"}}.where(allowed)
	require.NoError(t, err)
	assert.Empty(t, pred)
	assert.Empty(t, args)
}

func TestMigrate_Idempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	applied, err := store.Migrate(ctx)
	require.NoError(t, err)
	assert.Empty(t, applied)

	status, err := store.CheckMigrations(ctx)
	require.NoError(t, err)
	assert.True(t, status.UpToDate)
	assert.Equal(t, []string{"0001_init_sqlite.sql"}, status.Applied)
}

func TestEntryRepository_MatchOrdersByPriorityAndSkipsInactive(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	repo := NewPricingRepository(store)

	low := &Entry{Question: "copper price", AnswerVoice: "low", Priority: 5, Active: true}
	high := &Entry{Question: "bare bright copper", AnswerVoice: "high", Priority: 10, Active: true}
	off := &Entry{Question: "copper wire", AnswerVoice: "off", Priority: 99, Active: false}
	for _, e := range []*Entry{low, high, off} {
		require.NoError(t, repo.Create(ctx, e))
	}

	got, err := repo.Match(ctx, TextMatch{Terms: []string{"COPPER"}, Columns: []string{"question"}, Limit: 5})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "high", got[0].AnswerVoice)
	assert.Equal(t, "low", got[1].AnswerVoice)
}

func TestEntryRepository_TieBreakIsCreationOrder(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	repo := NewKnowledgeRepository(store)

	first := &Entry{Question: "hours today", AnswerVoice: "first", Priority: 1, Active: true}
	second := &Entry{Question: "hours tomorrow", AnswerVoice: "second", Priority: 1, Active: true}
	require.NoError(t, repo.Create(ctx, first))
	require.NoError(t, repo.Create(ctx, second))

	for i := 0; i < 3; i++ {
		got, err := repo.Match(ctx, TextMatch{Terms: []string{"hours"}, Columns: []string{"question"}, Limit: 1})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "first", got[0].AnswerVoice)
	}
}

func TestEntryRepository_TagsRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	repo := NewKnowledgeRepository(store)

	e := &Entry{Question: "do you take tires", Tags: []string{"tires", "rubber"}, Active: true}
	require.NoError(t, repo.Create(ctx, e))

	got, err := repo.GetByID(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"tires", "rubber"}, got.Tags)

	active, err := repo.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)

	got.Active = false
	require.NoError(t, repo.Update(ctx, got))
	active, err = repo.ListActive(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)

	total, activeCount, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, 0, activeCount)
}

func TestEntryRepository_NotFound(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	repo := NewPricingRepository(store)

	_, err := repo.GetByID(ctx, newID())
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, repo.Delete(ctx, newID()), ErrNotFound)
	assert.ErrorIs(t, repo.Update(ctx, &Entry{ID: newID()}), ErrNotFound)
}

func TestEntryRepository_SemanticUnsupportedOnSQLite(t *testing.T) {
	store := newTestStore(t)
	_, err := NewKnowledgeRepository(store).MatchSemantic(context.Background(), []float32{0.1}, 0.5, 3)
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestMaterialRepository_UpsertAndMatch(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	repo := NewMaterialRepository(store)

	price := 3.25
	created, err := repo.Upsert(ctx, &Material{MaterialName: "Copper #1", Category: "metals", CurrentPrice: &price, PriceUnit: "lb", Active: true})
	require.NoError(t, err)
	assert.True(t, created)

	newPrice := 3.5
	created, err = repo.Upsert(ctx, &Material{MaterialName: "copper #1", Category: "metals", CurrentPrice: &newPrice, PriceUnit: "lb", Active: true})
	require.NoError(t, err)
	assert.False(t, created)

	all, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	require.NotNil(t, all[0].CurrentPrice)
	assert.InDelta(t, 3.5, *all[0].CurrentPrice, 0.001)

	require.NoError(t, repo.Create(ctx, &Material{MaterialName: "Car batteries", Description: "lead acid", Active: true}))
	got, err := repo.Match(ctx, TextMatch{Terms: []string{"lead"}, Columns: []string{"material_name", "description", "category"}})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Nil(t, got[0].CurrentPrice)
}

func TestCallbackRepository_FindByPhone(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	repo := NewCallbackRepository(store)

	require.NoError(t, repo.Create(ctx, &CallbackRequest{CallerName: "Old Name", CallerPhone: "(406) 555-1234", PhoneKey: "4065551234"}))
	time.Sleep(2 * time.Millisecond)
	require.NoError(t, repo.Create(ctx, &CallbackRequest{CallerName: "Dana Smith", CallerPhone: "+1 406 555 1234", PhoneKey: "4065551234"}))
	require.NoError(t, repo.Create(ctx, &CallbackRequest{CallerName: "Other", CallerPhone: "4065559999", PhoneKey: "4065559999"}))

	got, err := repo.FindByPhone(ctx, "4065551234", "4065551234", 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Dana Smith", got[0].CallerName)
	assert.Equal(t, CallbackStatusPending, got[0].Status)

	none, err := repo.FindByPhone(ctx, "", "", 1)
	require.NoError(t, err)
	assert.Empty(t, none)

	require.NoError(t, repo.UpdateStatus(ctx, got[0].ID, CallbackStatusCompleted))
	open, err := repo.CountByStatus(ctx, CallbackStatusPending)
	require.NoError(t, err)
	assert.Equal(t, 2, open)
}

func TestConversationRepository_CreateWithMessages(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	repo := NewConversationRepository(store)

	conv := &Conversation{
		CallID:      "call-1",
		PhoneNumber: "+14065551234",
		PhoneKey:    "4065551234",
		Messages: []Message{
			{Sender: "customer", Content: "how much for copper"},
			{Sender: "agent", Content: "about three dollars"},
		},
	}
	require.NoError(t, repo.Create(ctx, conv))

	got, err := repo.GetByID(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "customer", got.Messages[0].Sender)

	latest, err := repo.LatestByPhone(ctx, "4065551234")
	require.NoError(t, err)
	assert.Equal(t, conv.ID, latest.ID)

	recent, err := repo.RecentMessages(ctx, conv.ID, 1)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "agent", recent[0].Sender)

	_, err = repo.LatestByPhone(ctx, "0000000000")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStatsRepository_Get(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, NewKnowledgeRepository(store).Create(ctx, &Entry{Question: "q", Active: true}))
	require.NoError(t, NewMaterialRepository(store).Create(ctx, &Material{MaterialName: "m", Active: false}))
	require.NoError(t, NewConversationRepository(store).Create(ctx, &Conversation{ResolutionStatus: "resolved"}))
	require.NoError(t, NewCallbackRepository(store).Create(ctx, &CallbackRequest{CallerPhone: "1"}))

	stats, err := NewStatsRepository(store).Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, &Stats{
		TotalMaterials: 1, ActiveMaterials: 0,
		TotalKnowledge: 1, ActiveKnowledge: 1,
		TotalCalls: 1, ResolvedCalls: 1,
		OpenCallbacks: 1,
	}, stats)
}

func TestResolutionRepository_StageCounts(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	repo := NewResolutionRepository(store)

	require.NoError(t, repo.Record(ctx, &ResolutionRecord{Query: "a", Stage: "exact", Matched: true}))
	require.NoError(t, repo.Record(ctx, &ResolutionRecord{Query: "b", Stage: "exact", Matched: true}))
	require.NoError(t, repo.Record(ctx, &ResolutionRecord{Query: "c", Stage: "fallback"}))

	counts, err := repo.StageCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"exact": 2, "fallback": 1}, counts)
}
