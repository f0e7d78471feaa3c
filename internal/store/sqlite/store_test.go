package sqlite_test

import (
	"context"
	"database/sql"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatcore/internal/domain"
	"chatcore/internal/security"
	"chatcore/internal/store/sqlite"
)

type fixture struct {
	db      *sql.DB
	users   *sqlite.UserRepo
	convs   *sqlite.ConversationRepo
	members *sqlite.MemberRepo
	msgs    *sqlite.MessageRepo
	notifs  *sqlite.NotificationRepo
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := sqlite.Open("file:" + filepath.Join(t.TempDir(), "chat.db") + "?_time_format=sqlite")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, sqlite.Migrate(db))

	enc, err := security.NewEncryptor([]byte("store-test-key"), nil)
	require.NoError(t, err)

	return &fixture{
		db:      db,
		users:   sqlite.NewUserRepo(db),
		convs:   sqlite.NewConversationRepo(db),
		members: sqlite.NewMemberRepo(db),
		msgs:    sqlite.NewMessageRepo(db, enc),
		notifs:  sqlite.NewNotificationRepo(db),
	}
}

func (f *fixture) user(t *testing.T, name string) *domain.User {
	t.Helper()
	u := &domain.User{Username: name, IsActive: true}
	require.NoError(t, f.users.Create(context.Background(), u))
	return u
}

func (f *fixture) conversation(t *testing.T, kind domain.ConversationKind, members ...int64) *domain.Conversation {
	t.Helper()
	c := &domain.Conversation{Kind: kind}
	require.NoError(t, f.convs.Create(context.Background(), c, members))
	return c
}

func text(s string) domain.Content {
	return domain.Content{Kind: domain.ContentText, Text: s}
}

func TestCreateConversationValidatesRoster(t *testing.T) {
	f := newFixture(t)
	a, b, c := f.user(t, "a"), f.user(t, "b"), f.user(t, "c")
	ctx := context.Background()

	err := f.convs.Create(ctx, &domain.Conversation{Kind: domain.ConversationDirect}, []int64{a.ID, b.ID, c.ID})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	err = f.convs.Create(ctx, &domain.Conversation{Kind: domain.ConversationDirect}, []int64{a.ID, a.ID})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	err = f.convs.Create(ctx, &domain.Conversation{Kind: domain.ConversationGroup}, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	conv := f.conversation(t, domain.ConversationGroup, c.ID, a.ID, b.ID)
	members, err := f.members.ListMembers(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, members, 3)
	assert.Equal(t, []int64{c.ID, a.ID, b.ID}, []int64{members[0].UserID, members[1].UserID, members[2].UserID})
}

func TestAppendAssignsDistinctSequencesUnderConcurrency(t *testing.T) {
	f := newFixture(t)
	a, b := f.user(t, "alice"), f.user(t, "bob")
	conv := f.conversation(t, domain.ConversationDirect, a.ID, b.ID)

	const perSender = 20
	var wg sync.WaitGroup
	seqs := make(chan int64, 2*perSender)
	for _, sender := range []int64{a.ID, b.ID} {
		for i := 0; i < perSender; i++ {
			wg.Add(1)
			go func(sender int64) {
				defer wg.Done()
				m, err := f.msgs.Append(context.Background(), conv.ID, sender, text("hi"), nil)
				if assert.NoError(t, err) {
					seqs <- m.Seq
				}
			}(sender)
		}
	}
	wg.Wait()
	close(seqs)

	seen := map[int64]bool{}
	for s := range seqs {
		assert.False(t, seen[s], "sequence %d assigned twice", s)
		seen[s] = true
	}
	assert.Len(t, seen, 2*perSender)
	for i := int64(1); i <= 2*perSender; i++ {
		assert.True(t, seen[i], "sequence %d missing", i)
	}

	stored, err := f.convs.GetByID(context.Background(), conv.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2*perSender), stored.LastSeq)
}

func TestAppendStartsSentAndRoundTripsContent(t *testing.T) {
	f := newFixture(t)
	a, b := f.user(t, "alice"), f.user(t, "bob")
	conv := f.conversation(t, domain.ConversationDirect, a.ID, b.ID)
	ctx := context.Background()

	content := domain.Content{Kind: domain.ContentFile, URL: "https://files/report.pdf", FileName: "report.pdf", Size: 1024}
	m, err := f.msgs.Append(ctx, conv.ID, a.ID, content, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), m.Seq)
	assert.Equal(t, domain.StatusSent, m.Status)

	got, err := f.msgs.GetByID(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, content, got.Content)
	assert.Equal(t, domain.StatusSent, got.Status)
	assert.Nil(t, got.DeliveredAt)

	var raw string
	require.NoError(t, f.db.QueryRow(`SELECT content FROM messages WHERE id = ?`, m.ID).Scan(&raw))
	assert.NotContains(t, raw, "report.pdf")
}

func TestAppendUnknownConversation(t *testing.T) {
	f := newFixture(t)
	a := f.user(t, "alice")
	_, err := f.msgs.Append(context.Background(), 999, a.ID, text("hi"), nil)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestReplyToMustStayInConversation(t *testing.T) {
	f := newFixture(t)
	a, b, c := f.user(t, "a"), f.user(t, "b"), f.user(t, "c")
	ctx := context.Background()
	c1 := f.conversation(t, domain.ConversationDirect, a.ID, b.ID)
	c2 := f.conversation(t, domain.ConversationDirect, a.ID, c.ID)

	other, err := f.msgs.Append(ctx, c2.ID, a.ID, text("elsewhere"), nil)
	require.NoError(t, err)

	_, err = f.msgs.Append(ctx, c1.ID, a.ID, text("reply"), &other.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	missing := int64(4242)
	_, err = f.msgs.Append(ctx, c1.ID, a.ID, text("reply"), &missing)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	// failed appends do not consume sequence positions
	target, err := f.msgs.Append(ctx, c1.ID, a.ID, text("target"), nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), target.Seq)

	reply, err := f.msgs.Append(ctx, c1.ID, b.ID, text("reply"), &target.ID)
	require.NoError(t, err)
	require.NotNil(t, reply.ReplyToID)

	_, err = f.db.Exec(`DELETE FROM messages WHERE id = ?`, target.ID)
	require.NoError(t, err)

	got, err := f.msgs.GetByID(ctx, reply.ID)
	require.NoError(t, err)
	assert.Nil(t, got.ReplyToID)
}

func TestUpdateStatusIsForwardOnly(t *testing.T) {
	f := newFixture(t)
	a, b, c := f.user(t, "a"), f.user(t, "b"), f.user(t, "outsider")
	conv := f.conversation(t, domain.ConversationDirect, a.ID, b.ID)
	ctx := context.Background()

	m, err := f.msgs.Append(ctx, conv.ID, a.ID, text("hello"), nil)
	require.NoError(t, err)

	got, changed, err := f.msgs.UpdateStatus(ctx, m.ID, domain.StatusDelivered, b.ID)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, domain.StatusDelivered, got.Status)
	assert.NotNil(t, got.DeliveredAt)

	_, changed, err = f.msgs.UpdateStatus(ctx, m.ID, domain.StatusDelivered, b.ID)
	require.NoError(t, err)
	assert.False(t, changed)

	got, changed, err = f.msgs.UpdateStatus(ctx, m.ID, domain.StatusRead, b.ID)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.NotNil(t, got.ReadAt)

	got, changed, err = f.msgs.UpdateStatus(ctx, m.ID, domain.StatusDelivered, a.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	assert.False(t, changed)
	assert.Equal(t, domain.StatusRead, got.Status)

	_, _, err = f.msgs.UpdateStatus(ctx, m.ID, domain.StatusRead, c.ID)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, _, err = f.msgs.UpdateStatus(ctx, 777, domain.StatusRead, b.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	stored, err := f.msgs.GetByID(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRead, stored.Status)
}

func TestBackfillIsIdempotentAndReturnsSuffix(t *testing.T) {
	f := newFixture(t)
	a, b := f.user(t, "a"), f.user(t, "b")
	conv := f.conversation(t, domain.ConversationDirect, a.ID, b.ID)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := f.msgs.Append(ctx, conv.ID, a.ID, text("m"), nil)
		require.NoError(t, err)
	}

	first, err := f.msgs.Backfill(ctx, conv.ID, 2, 100)
	require.NoError(t, err)
	second, err := f.msgs.Backfill(ctx, conv.ID, 2, 100)
	require.NoError(t, err)
	require.Len(t, first, 3)
	assert.Equal(t, seqsOf(first), seqsOf(second))
	assert.Equal(t, idsOf(first), idsOf(second))
	assert.Equal(t, []int64{3, 4, 5}, seqsOf(first))

	_, err = f.msgs.Append(ctx, conv.ID, b.ID, text("new"), nil)
	require.NoError(t, err)

	suffix, err := f.msgs.Backfill(ctx, conv.ID, 5, 100)
	require.NoError(t, err)
	assert.Equal(t, []int64{6}, seqsOf(suffix))

	page, err := f.msgs.Backfill(ctx, conv.ID, 0, 2)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, seqsOf(page))
}

func TestUnreadCounters(t *testing.T) {
	f := newFixture(t)
	a, b := f.user(t, "a"), f.user(t, "b")
	conv := f.conversation(t, domain.ConversationDirect, a.ID, b.ID)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, f.members.IncrementUnread(ctx, conv.ID, b.ID))
		}()
	}
	wg.Wait()

	mb, err := f.members.GetMember(ctx, conv.ID, b.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, mb.UnreadCount)

	// another member's cursor never touches b's counter
	require.NoError(t, f.members.AdvanceLastRead(ctx, conv.ID, a.ID, 7, mb.JoinedAt))
	mb, _ = f.members.GetMember(ctx, conv.ID, b.ID)
	assert.Equal(t, 10, mb.UnreadCount)

	require.NoError(t, f.members.MarkRead(ctx, conv.ID, b.ID, 9, mb.JoinedAt))
	require.NoError(t, f.members.MarkRead(ctx, conv.ID, b.ID, 4, mb.JoinedAt))
	mb, _ = f.members.GetMember(ctx, conv.ID, b.ID)
	assert.Equal(t, 0, mb.UnreadCount)
	assert.Equal(t, int64(9), mb.LastReadSeq)

	err = f.members.IncrementUnread(ctx, conv.ID, 9999)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestMemberFlagsAndContacts(t *testing.T) {
	f := newFixture(t)
	a, b, c := f.user(t, "a"), f.user(t, "b"), f.user(t, "c")
	ctx := context.Background()
	c1 := f.conversation(t, domain.ConversationDirect, a.ID, b.ID)
	f.conversation(t, domain.ConversationGroup, a.ID, b.ID, c.ID)

	muted := true
	require.NoError(t, f.members.SetFlags(ctx, c1.ID, a.ID, &muted, nil))
	m, err := f.members.GetMember(ctx, c1.ID, a.ID)
	require.NoError(t, err)
	assert.True(t, m.Muted)
	assert.False(t, m.Pinned)

	contacts, err := f.members.ListContactIDs(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, []int64{b.ID, c.ID}, contacts)

	ok, err := f.members.IsMember(ctx, c1.ID, c.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDeleteConversationCascades(t *testing.T) {
	f := newFixture(t)
	a, b := f.user(t, "a"), f.user(t, "b")
	conv := f.conversation(t, domain.ConversationDirect, a.ID, b.ID)
	ctx := context.Background()

	m, err := f.msgs.Append(ctx, conv.ID, a.ID, text("bye"), nil)
	require.NoError(t, err)
	require.NoError(t, f.convs.SetLastMessage(ctx, conv.ID, m.ID, m.CreatedAt))

	require.NoError(t, f.convs.Delete(ctx, conv.ID))

	_, err = f.msgs.GetByID(ctx, m.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	members, err := f.members.ListMembers(ctx, conv.ID)
	require.NoError(t, err)
	assert.Empty(t, members)
}

func TestNotifications(t *testing.T) {
	f := newFixture(t)
	a, b := f.user(t, "a"), f.user(t, "b")
	ctx := context.Background()

	n := &domain.Notification{UserID: a.ID, Type: domain.NotificationFollow, Payload: []byte(`{"follower_id":2}`)}
	require.NoError(t, f.notifs.Create(ctx, n))
	require.NoError(t, f.notifs.Create(ctx, &domain.Notification{UserID: a.ID, Type: domain.NotificationSystem}))

	count, err := f.notifs.CountUnread(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	assert.ErrorIs(t, f.notifs.MarkRead(ctx, n.ID, b.ID), domain.ErrNotFound)
	require.NoError(t, f.notifs.MarkRead(ctx, n.ID, a.ID))

	list, err := f.notifs.ListForUser(ctx, a.ID, 0, 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.JSONEq(t, `{"follower_id":2}`, string(list[1].Payload))
	assert.True(t, list[1].IsRead)

	assert.ErrorIs(t, f.notifs.Delete(ctx, n.ID, b.ID), domain.ErrNotFound)
	require.NoError(t, f.notifs.Delete(ctx, n.ID, a.ID))
	count, _ = f.notifs.CountUnread(ctx, a.ID)
	assert.Equal(t, 1, count)
}

func seqsOf(msgs []*domain.Message) []int64 {
	out := make([]int64, len(msgs))
	for i, m := range msgs {
		out[i] = m.Seq
	}
	return out
}

func idsOf(msgs []*domain.Message) []int64 {
	out := make([]int64, len(msgs))
	for i, m := range msgs {
		out[i] = m.ID
	}
	return out
}

func TestOpenReportsConnectionFailure(t *testing.T) {
	_, err := sqlite.Open("file:" + filepath.Join(t.TempDir(), "missing", "chat.db"))
	assert.ErrorIs(t, err, domain.ErrDatabaseConnection)
}
