package service_test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"chatcore/internal/domain"
	"chatcore/internal/protocol"
	"chatcore/internal/service"
	"chatcore/internal/store/sqlite"
	"chatcore/pkg/logger"
)

// fakeOutbox records frames per handle the way the registry would queue them.
type fakeOutbox struct {
	mu    sync.Mutex
	conns map[string]*fakeConn
}

// frame is an outbound event with the ref of the request that caused it.
type frame struct {
	Ref   string
	Event protocol.Outbound
}

type fakeConn struct {
	userID int64
	subs   map[int64]bool
	dead   bool
	frames []frame
}

func newFakeOutbox() *fakeOutbox {
	return &fakeOutbox{conns: make(map[string]*fakeConn)}
}

func (o *fakeOutbox) connect(userID int64, handle string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.conns[handle] = &fakeConn{userID: userID, subs: make(map[int64]bool)}
}

func (o *fakeOutbox) kill(handle string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.conns[handle].dead = true
}

func (o *fakeOutbox) SubscribedHandles(userID, conversationID int64) []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	var res []string
	for h, c := range o.conns {
		if c.userID == userID && c.subs[conversationID] {
			res = append(res, h)
		}
	}
	return res
}

func (o *fakeOutbox) Handles(userID int64) []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	var res []string
	for h, c := range o.conns {
		if c.userID == userID {
			res = append(res, h)
		}
	}
	return res
}

func (o *fakeOutbox) Send(handle, ref string, ev protocol.Outbound) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	c, ok := o.conns[handle]
	if !ok || c.dead {
		return domain.ErrTransportFault
	}
	c.frames = append(c.frames, frame{Ref: ref, Event: ev})
	return nil
}

func (o *fakeOutbox) Subscribe(handle string, conversationID int64) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	c, ok := o.conns[handle]
	if !ok || c.dead {
		return domain.ErrTransportFault
	}
	c.subs[conversationID] = true
	return nil
}

func (o *fakeOutbox) Unsubscribe(handle string, conversationID int64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if c, ok := o.conns[handle]; ok {
		delete(c.subs, conversationID)
	}
}

func (o *fakeOutbox) frames(handle string) []frame {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]frame(nil), o.conns[handle].frames...)
}

// events returns the frames of handle that carry events of type T.
func events[T protocol.Outbound](o *fakeOutbox, handle string) []T {
	var res []T
	for _, f := range o.frames(handle) {
		if ev, ok := f.Event.(T); ok {
			res = append(res, ev)
		}
	}
	return res
}

type fixture struct {
	users   *sqlite.UserRepo
	convs   *sqlite.ConversationRepo
	members *sqlite.MemberRepo
	msgs    *sqlite.MessageRepo
	notifs  *sqlite.NotificationRepo
	outbox  *fakeOutbox
	router  *service.DeliveryRouter
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := sqlite.Open("file:" + filepath.Join(t.TempDir(), "chat.db") + "?_time_format=sqlite")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, sqlite.Migrate(db))

	f := &fixture{
		users:   sqlite.NewUserRepo(db),
		convs:   sqlite.NewConversationRepo(db),
		members: sqlite.NewMemberRepo(db),
		msgs:    sqlite.NewMessageRepo(db, nil),
		notifs:  sqlite.NewNotificationRepo(db),
		outbox:  newFakeOutbox(),
	}
	f.router = service.NewDeliveryRouter(f.convs, f.members, f.msgs, f.outbox, nil, logger.Nop(), 0)
	return f
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

func (f *fixture) unread(t *testing.T, conversationID, userID int64) int {
	t.Helper()
	m, err := f.members.GetMember(context.Background(), conversationID, userID)
	require.NoError(t, err)
	return m.UnreadCount
}

// online connects handle and subscribes it to conv from the start.
func (f *fixture) online(t *testing.T, userID int64, handle string, conv int64) {
	t.Helper()
	f.outbox.connect(userID, handle)
	_, err := f.router.Subscribe(context.Background(), service.Request{UserID: userID, Handle: handle}, protocol.Subscribe{ConversationID: conv})
	require.NoError(t, err)
}

func send(conv int64, body string) protocol.SendMessage {
	return protocol.SendMessage{ConversationID: conv, Content: domain.Content{Kind: domain.ContentText, Text: body}}
}

func seqs(views []protocol.MessageView) []int64 {
	res := make([]int64, 0, len(views))
	for _, v := range views {
		res = append(res, v.Seq)
	}
	return res
}

func liveSeqs(evs []protocol.MessageNew) []int64 {
	res := make([]int64, 0, len(evs))
	for _, e := range evs {
		res = append(res, e.Message.Seq)
	}
	return res
}
