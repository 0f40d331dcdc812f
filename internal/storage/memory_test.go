package storage

import (
	"context"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mikey/email-guardian/internal/core"
)

func seedUser(t *testing.T, store core.UserRepository, email, apiKey string) *core.User {
	t.Helper()
	user := &core.User{
		ID:           "user-" + email,
		Email:        email,
		PasswordHash: "hash",
		APIKey:       apiKey,
		CreatedAt:    time.Now().UTC(),
	}
	require.NoError(t, store.Create(context.Background(), user))
	return user
}

func seedScan(t *testing.T, store core.ScanRepository, ownerID, text string, age time.Duration) int64 {
	t.Helper()
	id, err := store.Append(context.Background(), &core.ScanRecord{
		OwnerID:        ownerID,
		Text:           text,
		Classification: core.LabelSpam,
		Confidence:     0.8,
		Probabilities:  map[core.Label]float64{core.LabelSpam: 0.8, core.LabelLegitimate: 0.15, core.LabelPhishing: 0.05},
		CreatedAt:      time.Now().UTC().Add(-age),
	})
	require.NoError(t, err)
	return id
}

func TestMemoryStoreUserUniqueness(t *testing.T) {
	store := NewMemoryStore(zap.NewNop())
	ctx := context.Background()

	seedUser(t, store, "alice@example.com", "key-a")

	err := store.Create(ctx, &core.User{ID: "x", Email: "alice@example.com", APIKey: "key-b"})
	assert.ErrorIs(t, err, core.ErrDuplicateUser)

	err = store.Create(ctx, &core.User{ID: "y", Email: "bob@example.com", APIKey: "key-a"})
	assert.ErrorIs(t, err, core.ErrDuplicateAPIKey)
}

func TestMemoryStoreUserLookups(t *testing.T) {
	store := NewMemoryStore(zap.NewNop())
	ctx := context.Background()

	alice := seedUser(t, store, "alice@example.com", "key-a")

	byEmail, err := store.GetByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, alice.ID, byEmail.ID)

	byKey, err := store.GetByAPIKey(ctx, "key-a")
	require.NoError(t, err)
	assert.Equal(t, alice.ID, byKey.ID)

	_, err = store.GetByEmail(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, core.ErrNotFound)
	_, err = store.GetByAPIKey(ctx, "no-such-key")
	assert.ErrorIs(t, err, core.ErrNotFound)

	at := time.Now().UTC()
	require.NoError(t, store.UpdateLastLogin(ctx, alice.ID, at))
	updated, err := store.GetByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	require.NotNil(t, updated.LastLogin)
	assert.WithinDuration(t, at, *updated.LastLogin, time.Second)
}

func TestMemoryStoreAppendRequiresKnownOwner(t *testing.T) {
	store := NewMemoryStore(zap.NewNop())

	_, err := store.Append(context.Background(), &core.ScanRecord{OwnerID: "ghost", Text: "x"})
	assert.ErrorIs(t, err, core.ErrUnknownOwner)
}

func TestMemoryStoreOwnerIsolation(t *testing.T) {
	store := NewMemoryStore(zap.NewNop())
	ctx := context.Background()

	alice := seedUser(t, store, "alice@example.com", "key-a")
	bob := seedUser(t, store, "bob@example.com", "key-b")

	aliceScan := seedScan(t, store, alice.ID, "alice text", 0)
	seedScan(t, store, bob.ID, "bob text", 0)

	// Bob cannot read, delete or list Alice's scan.
	_, err := store.GetByID(ctx, bob.ID, aliceScan)
	assert.ErrorIs(t, err, core.ErrNotFound)

	deleted, err := store.DeleteByID(ctx, bob.ID, aliceScan)
	require.NoError(t, err)
	assert.False(t, deleted)

	summaries, err := store.ListRecent(ctx, bob.ID, 10, 0)
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, "bob text", summaries[0].Preview)

	// Bob's purge does not touch Alice's records.
	seedScan(t, store, alice.ID, "old alice text", 48*time.Hour)
	removed, err := store.PurgeOlderThan(ctx, bob.ID, 1)
	require.NoError(t, err)
	assert.Zero(t, removed)

	_, err = store.GetByID(ctx, alice.ID, aliceScan)
	assert.NoError(t, err)
}

func TestMemoryStoreListRecentOrderAndPaging(t *testing.T) {
	store := NewMemoryStore(zap.NewNop())
	ctx := context.Background()

	alice := seedUser(t, store, "alice@example.com", "key-a")
	seedScan(t, store, alice.ID, "oldest", 3*time.Hour)
	seedScan(t, store, alice.ID, "middle", 2*time.Hour)
	seedScan(t, store, alice.ID, "newest", time.Hour)

	summaries, err := store.ListRecent(ctx, alice.ID, 2, 0)
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	assert.Equal(t, "newest", summaries[0].Preview)
	assert.Equal(t, "middle", summaries[1].Preview)

	page2, err := store.ListRecent(ctx, alice.ID, 2, 2)
	require.NoError(t, err)
	require.Len(t, page2, 1)
	assert.Equal(t, "oldest", page2[0].Preview)
}

func TestMemoryStoreListRecentClampsArguments(t *testing.T) {
	store := NewMemoryStore(zap.NewNop())
	ctx := context.Background()

	alice := seedUser(t, store, "alice@example.com", "key-a")
	seedScan(t, store, alice.ID, "a", time.Minute)
	seedScan(t, store, alice.ID, "b", 0)

	// Zero and negative limits clamp to one result.
	summaries, err := store.ListRecent(ctx, alice.ID, 0, 0)
	require.NoError(t, err)
	assert.Len(t, summaries, 1)

	summaries, err = store.ListRecent(ctx, alice.ID, -5, -10)
	require.NoError(t, err)
	assert.Len(t, summaries, 1)
	assert.Equal(t, "b", summaries[0].Preview)
}

func TestMemoryStorePreviewTruncation(t *testing.T) {
	store := NewMemoryStore(zap.NewNop())
	ctx := context.Background()

	alice := seedUser(t, store, "alice@example.com", "key-a")
	long := strings.Repeat("x", 250)
	id := seedScan(t, store, alice.ID, long, 0)

	summaries, err := store.ListRecent(ctx, alice.ID, 10, 0)
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Len(t, summaries[0].Preview, 103)
	assert.True(t, strings.HasSuffix(summaries[0].Preview, "..."))

	// The full text is still available through GetByID.
	rec, err := store.GetByID(ctx, alice.ID, id)
	require.NoError(t, err)
	assert.Equal(t, long, rec.Text)
}

func TestMemoryStorePreviewStaysValidUTF8(t *testing.T) {
	store := NewMemoryStore(zap.NewNop())
	ctx := context.Background()

	alice := seedUser(t, store, "alice@example.com", "key-a")
	// The first euro sign straddles the preview cut.
	text := strings.Repeat("x", 99) + strings.Repeat("€", 40)
	seedScan(t, store, alice.ID, text, 0)

	summaries, err := store.ListRecent(ctx, alice.ID, 10, 0)
	require.NoError(t, err)
	require.Len(t, summaries, 1)

	preview := summaries[0].Preview
	assert.True(t, utf8.ValidString(preview))
	assert.True(t, strings.HasSuffix(preview, "..."))
	assert.True(t, strings.HasPrefix(text, strings.TrimSuffix(preview, "...")))
}

func TestMemoryStorePurgeCountsRemovedRecords(t *testing.T) {
	store := NewMemoryStore(zap.NewNop())
	ctx := context.Background()

	alice := seedUser(t, store, "alice@example.com", "key-a")
	seedScan(t, store, alice.ID, "ancient", 96*time.Hour)
	seedScan(t, store, alice.ID, "old", 72*time.Hour)
	keep := seedScan(t, store, alice.ID, "recent", time.Hour)

	removed, err := store.PurgeOlderThan(ctx, alice.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)

	// A second purge removes nothing.
	removed, err = store.PurgeOlderThan(ctx, alice.ID, 2)
	require.NoError(t, err)
	assert.Zero(t, removed)

	_, err = store.GetByID(ctx, alice.ID, keep)
	assert.NoError(t, err)
}

func TestMemoryStorePurgeZeroDaysRemovesEverything(t *testing.T) {
	store := NewMemoryStore(zap.NewNop())
	ctx := context.Background()

	alice := seedUser(t, store, "alice@example.com", "key-a")
	seedScan(t, store, alice.ID, "ancient", 96*time.Hour)
	seedScan(t, store, alice.ID, "recent", time.Hour)
	seedScan(t, store, alice.ID, "fresh", time.Minute)

	removed, err := store.PurgeOlderThan(ctx, alice.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(3), removed)

	summaries, err := store.ListRecent(ctx, alice.ID, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, summaries)
}

func TestMemoryStoreRepeatedReadsAreStable(t *testing.T) {
	store := NewMemoryStore(zap.NewNop())
	ctx := context.Background()

	alice := seedUser(t, store, "alice@example.com", "key-a")
	seedScan(t, store, alice.ID, "first", 2*time.Hour)
	seedScan(t, store, alice.ID, "second", time.Hour)

	list1, err := store.ListRecent(ctx, alice.ID, 10, 0)
	require.NoError(t, err)
	list2, err := store.ListRecent(ctx, alice.ID, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, list1, list2)

	stats1, err := store.Aggregate(ctx, alice.ID, 30)
	require.NoError(t, err)
	stats2, err := store.Aggregate(ctx, alice.ID, 30)
	require.NoError(t, err)
	assert.Equal(t, stats1, stats2)
}

func TestMemoryStoreAggregate(t *testing.T) {
	store := NewMemoryStore(zap.NewNop())
	ctx := context.Background()

	alice := seedUser(t, store, "alice@example.com", "key-a")

	appendScan := func(label core.Label, confidence float64, age time.Duration) {
		_, err := store.Append(ctx, &core.ScanRecord{
			OwnerID:        alice.ID,
			Text:           "text",
			Classification: label,
			Confidence:     confidence,
			CreatedAt:      time.Now().UTC().Add(-age),
		})
		require.NoError(t, err)
	}

	appendScan(core.LabelSpam, 0.8, time.Hour)
	appendScan(core.LabelSpam, 0.6, 2*time.Hour)
	appendScan(core.LabelLegitimate, 0.9, 3*time.Hour)
	appendScan(core.LabelPhishing, 0.7, 40*24*time.Hour) // outside the window

	stats, err := store.Aggregate(ctx, alice.ID, 30)
	require.NoError(t, err)

	assert.Equal(t, int64(3), stats.TotalScans)
	assert.Equal(t, int64(2), stats.Counts[core.LabelSpam])
	assert.Equal(t, int64(1), stats.Counts[core.LabelLegitimate])
	assert.Zero(t, stats.Counts[core.LabelPhishing])
	assert.InDelta(t, 0.7, stats.AvgConfidence[core.LabelSpam], 1e-9)
	assert.InDelta(t, 0.9, stats.AvgConfidence[core.LabelLegitimate], 1e-9)
	assert.Equal(t, 30, stats.PeriodDays)
	require.NotEmpty(t, stats.DailyActivity)
	assert.Equal(t, int64(3), stats.DailyActivity[0].Count+sumCounts(stats.DailyActivity[1:]))
}

func TestMemoryStoreAggregateEmptyOwner(t *testing.T) {
	store := NewMemoryStore(zap.NewNop())

	alice := seedUser(t, store, "alice@example.com", "key-a")

	stats, err := store.Aggregate(context.Background(), alice.ID, 7)
	require.NoError(t, err)
	assert.Zero(t, stats.TotalScans)
	assert.Empty(t, stats.DailyActivity)
	assert.Equal(t, 7, stats.PeriodDays)
}

func sumCounts(days []core.DayCount) int64 {
	var total int64
	for _, d := range days {
		total += d.Count
	}
	return total
}
