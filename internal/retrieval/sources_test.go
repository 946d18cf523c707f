package retrieval

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/axmen-recycling/voice-agent/internal/storage"
)

func newSQLiteSources(t *testing.T) (*storage.Store, Sources) {
	t.Helper()
	ctx := context.Background()

	store, err := storage.Open(ctx, storage.DriverSQLite, ":memory:", storage.PoolConfig{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	_, err = store.Migrate(ctx)
	require.NoError(t, err)
	return store, NewStoreSources(store)
}

func TestStoreSources_ResolveAgainstSQLite(t *testing.T) {
	store, sources := newSQLiteSources(t)
	ctx := context.Background()

	pricing := storage.NewPricingRepository(store)
	knowledge := storage.NewKnowledgeRepository(store)
	materials := storage.NewMaterialRepository(store)

	require.NoError(t, pricing.Create(ctx, &storage.Entry{Question: "copper price", AnswerVoice: "five", Priority: 5, Active: true}))
	require.NoError(t, pricing.Create(ctx, &storage.Entry{Question: "copper wire price", AnswerVoice: "ten", Priority: 10, Active: true}))
	require.NoError(t, pricing.Create(ctx, &storage.Entry{Question: "copper pipe", AnswerVoice: "hidden", Priority: 50, Active: false}))
	require.NoError(t, knowledge.Create(ctx, &storage.Entry{Question: "Safety rules", AnswerVoice: "Sturdy footwear is required.", Tags: []string{"boots", "safety"}, Active: true}))
	price := 0.12
	require.NoError(t, materials.Create(ctx, &storage.Material{MaterialName: "Steel", Description: "Prepared steel under three feet", CurrentPrice: &price, PriceUnit: "lb", Active: true}))

	c := NewCascade(sources, DefaultConfig(), nil)

	res, err := c.Resolve(ctx, "Copper")
	require.NoError(t, err)
	assert.Equal(t, StageExact, res.Stage)
	assert.Equal(t, "ten", res.Answer)

	res, err = c.Resolve(ctx, "need steel toe boots?")
	require.NoError(t, err)
	assert.Equal(t, StageTag, res.Stage)
	assert.Equal(t, "Sturdy footwear is required.", res.Answer)

	res, err = c.Resolve(ctx, "prepared steel")
	require.NoError(t, err)
	assert.Equal(t, StageCatalog, res.Stage)
	assert.Equal(t, "We're currently paying $0.12 per lb for Steel. Prepared steel under three feet.", res.Answer)

	res, err = c.Resolve(ctx, "100% off_sale")
	require.NoError(t, err)
	assert.Equal(t, StageFallback, res.Stage)

	res, err = c.Resolve(ctx, "TEST")
	require.NoError(t, err)
	assert.Equal(t, "Test mode: Found 3 pricing rows and 1 knowledge rows.", res.Answer)
}

func TestAnswerText(t *testing.T) {
	assert.Equal(t, "voice", AnswerText(&Fact{AnswerVoice: " voice ", AnswerLong: "long"}, "1"))
	assert.Equal(t, "long", AnswerText(&Fact{AnswerLong: "long"}, "1"))
	assert.Equal(t, "We do take Tires. Please call us at 555 for current pricing.", AnswerText(&Fact{Intent: "Tires"}, "555"))

	price := 2.0
	assert.Equal(t, "We're currently paying $2.00 for Brass.", AnswerText(&Fact{Source: SourceCatalog, MaterialName: "Brass", CurrentPrice: &price, AnswerVoice: "ignored"}, "1"))
}
