package repository

import (
	"context"
	"fmt"
	"lawchat-go/internal/model"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/glebarez/sqlite"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newSQLiteRepo(t *testing.T) ConversationRepository {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(&model.MessageRecord{}))
	return NewMessageRepository(db)
}

func newRedisRepo(t *testing.T, maxHistory int, ttl time.Duration) (ConversationRepository, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisConversationRepository(client, maxHistory, ttl), mr
}

func repoImpls(t *testing.T) map[string]ConversationRepository {
	redisRepo, _ := newRedisRepo(t, 0, 0)
	return map[string]ConversationRepository{
		"gorm":  newSQLiteRepo(t),
		"redis": redisRepo,
	}
}

func TestConversationRepository_AppendAssignsIDAndTimestamp(t *testing.T) {
	for name, repo := range repoImpls(t) {
		t.Run(name, func(t *testing.T) {
			msg, err := repo.Append(context.Background(), model.NewMessage("user:1", model.RoleUser, "hello", nil))
			require.NoError(t, err)
			assert.NotEmpty(t, msg.ID)
			assert.False(t, msg.Timestamp.IsZero())
			assert.Equal(t, "hello", msg.Content)
		})
	}
}

func TestConversationRepository_ListRecentIsChronological(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	for name, repo := range repoImpls(t) {
		t.Run(name, func(t *testing.T) {
			for i := 0; i < 5; i++ {
				msg := model.NewMessage("user:7", model.RoleUser, fmt.Sprintf("m%d", i), nil)
				msg.Timestamp = base.Add(time.Duration(i) * time.Second)
				_, err := repo.Append(ctx, msg)
				require.NoError(t, err)
			}
			_, err := repo.Append(ctx, model.NewMessage("user:8", model.RoleUser, "other", nil))
			require.NoError(t, err)

			got, err := repo.ListRecent(ctx, "user:7", 3)
			require.NoError(t, err)
			require.Len(t, got, 3)
			assert.Equal(t, "m2", got[0].Content)
			assert.Equal(t, "m3", got[1].Content)
			assert.Equal(t, "m4", got[2].Content)
			assert.True(t, got[2].Timestamp.Equal(base.Add(4*time.Second)))
		})
	}
}

func TestConversationRepository_MetadataRoundTrip(t *testing.T) {
	ctx := context.Background()
	decision, err := model.NewIntentDecision(model.IntentGeneration, model.DocDemandLetter, 0.9)
	require.NoError(t, err)
	meta := &model.MessageMetadata{
		RequestID: "req-1",
		Intent:    &decision,
		FlowsUsed: []model.Flow{model.FlowFollowUp},
		Pending: &model.PendingDocument{
			DocumentType: model.DocDemandLetter,
			Fields:       map[string]string{"amount": "50,000"},
			Missing:      []string{"sender_name", "recipient_name"},
		},
	}
	for name, repo := range repoImpls(t) {
		t.Run(name, func(t *testing.T) {
			_, err := repo.Append(ctx, model.NewMessage("user:3", model.RoleAssistant, "who is the sender?", meta))
			require.NoError(t, err)

			got, err := repo.ListRecent(ctx, "user:3", 10)
			require.NoError(t, err)
			require.Len(t, got, 1)
			require.NotNil(t, got[0].Metadata)
			assert.Equal(t, meta.RequestID, got[0].Metadata.RequestID)
			assert.Equal(t, decision, *got[0].Metadata.Intent)
			assert.Equal(t, meta.Pending, got[0].Metadata.Pending)
		})
	}
}

func TestConversationRepository_EmptySubject(t *testing.T) {
	for name, repo := range repoImpls(t) {
		t.Run(name, func(t *testing.T) {
			got, err := repo.ListRecent(context.Background(), "nobody", 10)
			require.NoError(t, err)
			assert.Empty(t, got)
		})
	}
}

func TestRedisConversationRepository_TrimsAndExpires(t *testing.T) {
	ctx := context.Background()
	repo, mr := newRedisRepo(t, 3, time.Hour)
	for i := 0; i < 5; i++ {
		_, err := repo.Append(ctx, model.NewMessage("session:abc", model.RoleUser, fmt.Sprintf("m%d", i), nil))
		require.NoError(t, err)
	}

	got, err := repo.ListRecent(ctx, "session:abc", 10)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "m2", got[0].Content)

	assert.Equal(t, time.Hour, mr.TTL(conversationKey("session:abc")))
	mr.FastForward(2 * time.Hour)
	got, err = repo.ListRecent(ctx, "session:abc", 10)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRedisConversationRepository_NoRetentionKeepsEverything(t *testing.T) {
	ctx := context.Background()
	repo, mr := newRedisRepo(t, 0, 0)
	for i := 0; i < 120; i++ {
		_, err := repo.Append(ctx, model.NewMessage("session:abc", model.RoleUser, fmt.Sprintf("m%d", i), nil))
		require.NoError(t, err)
	}

	got, err := repo.ListRecent(ctx, "session:abc", 200)
	require.NoError(t, err)
	require.Len(t, got, 120)
	assert.Equal(t, "m0", got[0].Content)

	assert.Zero(t, mr.TTL(conversationKey("session:abc")))
	mr.FastForward(30 * 24 * time.Hour)
	got, err = repo.ListRecent(ctx, "session:abc", 200)
	require.NoError(t, err)
	assert.Len(t, got, 120)
}
