package service

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/whitechapel007/chat-app-pern/internal/model"
	"github.com/whitechapel007/chat-app-pern/internal/store"
	"github.com/whitechapel007/chat-app-pern/internal/store/sqlite"
	"github.com/whitechapel007/chat-app-pern/internal/store/storetest"
)

type testEnv struct {
	store store.Store
	convs *ConversationService
	msgs  *MessageService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	st, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "chat.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return &testEnv{
		store: st,
		convs: NewConversationService(st),
		msgs:  NewMessageService(st, 20, 100),
	}
}

func (e *testEnv) user(t *testing.T, name string) *model.User {
	return storetest.NewUser(t, e.store, name)
}

func (e *testEnv) group(t *testing.T, creator *model.User, members ...*model.User) *model.Conversation {
	t.Helper()
	ids := make([]string, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.ID)
	}
	conv, _, err := e.convs.CreateGroup(context.Background(), CreateGroupInput{
		CreatorID:      creator.ID,
		Name:           "team",
		ParticipantIDs: ids,
	})
	require.NoError(t, err)
	return conv
}

func activeIDs(ps []model.Participant) []string {
	ids := make([]string, 0, len(ps))
	for _, p := range ps {
		if p.Active() {
			ids = append(ids, p.UserID)
		}
	}
	return ids
}
