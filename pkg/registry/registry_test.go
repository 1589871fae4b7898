package registry

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/helpdesk/pkg/api"
	"github.com/go-go-golems/helpdesk/pkg/helpdesk"
	"github.com/go-go-golems/helpdesk/pkg/session"
)

type stubAPI struct {
	mu sync.Mutex

	conversations [][]helpdesk.Conversation // returned in call order, last one repeats
	convGates     []chan struct{}
	convErrs      []error // per call, overrides err when set
	convCalls     int
	users         []helpdesk.User
	staff         []helpdesk.User
	messages      map[string][]helpdesk.Message
	msgGates      map[string]chan struct{}
	err           error

	closed   []string
	assigned [][2]string
	roles    map[string]helpdesk.Role
	created  []string
}

func (s *stubAPI) ListConversations(ctx context.Context) ([]helpdesk.Conversation, error) {
	s.mu.Lock()
	i := s.convCalls
	s.convCalls++
	var gate chan struct{}
	if i < len(s.convGates) {
		gate = s.convGates[i]
	}
	var out []helpdesk.Conversation
	if len(s.conversations) > 0 {
		idx := i
		if idx >= len(s.conversations) {
			idx = len(s.conversations) - 1
		}
		out = s.conversations[idx]
	}
	err := s.err
	if i < len(s.convErrs) && s.convErrs[i] != nil {
		err = s.convErrs[i]
	}
	s.mu.Unlock()
	if gate != nil {
		<-gate
	}
	return out, err
}

func (s *stubAPI) ListUsers(context.Context) ([]helpdesk.User, error) { return s.users, s.err }

func (s *stubAPI) ListUsersByRole(_ context.Context, role helpdesk.Role) ([]helpdesk.User, error) {
	return s.staff, s.err
}

func (s *stubAPI) CreateConversation(_ context.Context, subject string) (helpdesk.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.created = append(s.created, subject)
	return helpdesk.Conversation{ID: "new-1", Subject: subject, Status: helpdesk.StatusOpen}, s.err
}

func (s *stubAPI) CloseConversation(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = append(s.closed, id)
	return s.err
}

func (s *stubAPI) AddITStaff(_ context.Context, convID, staffID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assigned = append(s.assigned, [2]string{convID, staffID})
	return s.err
}

func (s *stubAPI) ListMessages(_ context.Context, convID string) ([]helpdesk.Message, error) {
	s.mu.Lock()
	gate := s.msgGates[convID]
	msgs := s.messages[convID]
	s.mu.Unlock()
	if gate != nil {
		<-gate
	}
	return msgs, s.err
}

func (s *stubAPI) UpdateUserRole(_ context.Context, userID string, role helpdesk.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.roles == nil {
		s.roles = map[string]helpdesk.Role{}
	}
	s.roles[userID] = role
	return s.err
}

type stubSession struct {
	id          session.Identity
	invalidated []error
}

func (s *stubSession) Identity() (session.Identity, bool) { return s.id, s.id.UserID != "" }

func (s *stubSession) Invalidate(_ context.Context, cause error) {
	s.invalidated = append(s.invalidated, cause)
}

type historyRecorder struct {
	mu    sync.Mutex
	calls map[string][]helpdesk.Message
}

func (h *historyRecorder) ReplaceHistory(id string, msgs []helpdesk.Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.calls == nil {
		h.calls = map[string][]helpdesk.Message{}
	}
	h.calls[id] = msgs
}

type bannerRecorder struct {
	success []string
	errs    []string
}

func (b *bannerRecorder) Success(m string) { b.success = append(b.success, m) }
func (b *bannerRecorder) Error(m string)   { b.errs = append(b.errs, m) }

func conv(id string, st helpdesk.Status, participants ...string) helpdesk.Conversation {
	c := helpdesk.Conversation{ID: id, Subject: "S-" + id, Status: st}
	for _, p := range participants {
		c.Participants = append(c.Participants, helpdesk.User{ID: p, Name: p})
	}
	return c
}

func newRegistry(t *testing.T, role helpdesk.Role, a *stubAPI) (*Registry, *stubSession, *historyRecorder, *bannerRecorder) {
	t.Helper()
	sess := &stubSession{id: session.Identity{UserID: "me", Name: "Me", Role: role}}
	hist := &historyRecorder{}
	banner := &bannerRecorder{}
	r, err := New(Config{API: a, Session: sess, History: hist, Banner: banner})
	require.NoError(t, err)
	return r, sess, hist, banner
}

func TestFetchAllLoadsAdminCollections(t *testing.T) {
	a := &stubAPI{
		conversations: [][]helpdesk.Conversation{{conv("c1", helpdesk.StatusOpen, "u1")}},
		users:         []helpdesk.User{{ID: "u1"}, {ID: "s1"}},
		staff:         []helpdesk.User{{ID: "s1", Role: helpdesk.RoleITStaff}},
	}
	r, _, _, _ := newRegistry(t, helpdesk.RoleAdmin, a)
	require.NoError(t, r.FetchAll(context.Background()))
	require.Len(t, r.Conversations(), 1)
	require.Len(t, r.Users(), 2)
	require.Len(t, r.ITStaff(), 1)
}

func TestFetchAllSkipsUsersForNonAdmin(t *testing.T) {
	a := &stubAPI{
		conversations: [][]helpdesk.Conversation{{conv("c1", helpdesk.StatusOpen)}},
		users:         []helpdesk.User{{ID: "u1"}},
	}
	r, _, _, _ := newRegistry(t, helpdesk.RoleITStaff, a)
	require.NoError(t, r.FetchAll(context.Background()))
	require.Empty(t, r.Users())
}

func TestFetchAllUnauthorizedInvalidatesSession(t *testing.T) {
	a := &stubAPI{err: &api.Error{StatusCode: 401, Message: "expired"}}
	r, sess, _, banner := newRegistry(t, helpdesk.RoleUser, a)
	err := r.FetchAll(context.Background())
	require.True(t, api.IsUnauthorized(err))
	require.Len(t, sess.invalidated, 1)
	require.Empty(t, banner.errs)
}

func TestFetchAllFailureRaisesBanner(t *testing.T) {
	a := &stubAPI{err: errors.New("dial tcp: refused")}
	r, sess, _, banner := newRegistry(t, helpdesk.RoleUser, a)
	require.Error(t, r.FetchAll(context.Background()))
	require.Empty(t, sess.invalidated)
	require.Equal(t, []string{"Failed to load data"}, banner.errs)
}

func TestStaleFetchAllIsDiscarded(t *testing.T) {
	first := make(chan struct{})
	a := &stubAPI{
		conversations: [][]helpdesk.Conversation{
			{conv("old", helpdesk.StatusOpen)},
			{conv("fresh", helpdesk.StatusOpen)},
		},
		convGates: []chan struct{}{first},
	}
	r, _, _, _ := newRegistry(t, helpdesk.RoleUser, a)

	done := make(chan error, 1)
	go func() { done <- r.FetchAll(context.Background()) }()
	require.Eventually(t, func() bool {
		a.mu.Lock()
		defer a.mu.Unlock()
		return a.convCalls == 1
	}, time.Second, time.Millisecond)

	require.NoError(t, r.FetchAll(context.Background()))
	close(first)
	require.NoError(t, <-done)

	got := r.Conversations()
	require.Len(t, got, 1)
	require.Equal(t, "fresh", got[0].ID)
}

func TestStaleFetchAllFailureIsSilent(t *testing.T) {
	first := make(chan struct{})
	a := &stubAPI{
		conversations: [][]helpdesk.Conversation{nil, {conv("fresh", helpdesk.StatusOpen)}},
		convGates:     []chan struct{}{first},
		convErrs:      []error{errors.New("context deadline exceeded")},
	}
	r, sess, _, banner := newRegistry(t, helpdesk.RoleUser, a)

	done := make(chan error, 1)
	go func() { done <- r.FetchAll(context.Background()) }()
	require.Eventually(t, func() bool {
		a.mu.Lock()
		defer a.mu.Unlock()
		return a.convCalls == 1
	}, time.Second, time.Millisecond)

	require.NoError(t, r.FetchAll(context.Background()))
	close(first)
	require.NoError(t, <-done)

	require.Empty(t, banner.errs)
	require.Empty(t, sess.invalidated)
	got := r.Conversations()
	require.Len(t, got, 1)
	require.Equal(t, "fresh", got[0].ID)
}

func TestStaleFetchAllUnauthorizedStillEndsSession(t *testing.T) {
	first := make(chan struct{})
	a := &stubAPI{
		conversations: [][]helpdesk.Conversation{nil, {conv("fresh", helpdesk.StatusOpen)}},
		convGates:     []chan struct{}{first},
		convErrs:      []error{api.ErrUnauthorized},
	}
	r, sess, _, _ := newRegistry(t, helpdesk.RoleUser, a)

	done := make(chan error, 1)
	go func() { done <- r.FetchAll(context.Background()) }()
	require.Eventually(t, func() bool {
		a.mu.Lock()
		defer a.mu.Unlock()
		return a.convCalls == 1
	}, time.Second, time.Millisecond)

	require.NoError(t, r.FetchAll(context.Background()))
	close(first)
	require.Error(t, <-done)
	require.Len(t, sess.invalidated, 1)
}

func TestSnapshotNeverReopensClosedConversation(t *testing.T) {
	a := &stubAPI{conversations: [][]helpdesk.Conversation{
		{conv("c1", helpdesk.StatusOpen)},
		{conv("c1", helpdesk.StatusInProgress)},
	}}
	r, _, _, _ := newRegistry(t, helpdesk.RoleITStaff, a)
	require.NoError(t, r.FetchAll(context.Background()))

	r.ApplyStatusClosed(conv("c1", helpdesk.StatusClosed), &helpdesk.User{ID: "s1"})
	require.NoError(t, r.FetchAll(context.Background()))

	c, ok := r.Get("c1")
	require.True(t, ok)
	require.Equal(t, helpdesk.StatusClosed, c.Status)
	require.NotNil(t, c.ClosedBy)
}

func TestPushedTicketSurvivesInFlightSnapshot(t *testing.T) {
	gate := make(chan struct{})
	a := &stubAPI{
		conversations: [][]helpdesk.Conversation{{conv("c1", helpdesk.StatusOpen)}},
		convGates:     []chan struct{}{gate},
	}
	r, _, _, _ := newRegistry(t, helpdesk.RoleITStaff, a)

	done := make(chan error, 1)
	go func() { done <- r.FetchAll(context.Background()) }()
	require.Eventually(t, func() bool {
		a.mu.Lock()
		defer a.mu.Unlock()
		return a.convCalls == 1
	}, time.Second, time.Millisecond)

	require.True(t, r.ApplyNewTicket(conv("c2", helpdesk.StatusOpen)))
	close(gate)
	require.NoError(t, <-done)

	ids := []string{}
	for _, c := range r.Conversations() {
		ids = append(ids, c.ID)
	}
	require.Equal(t, []string{"c2", "c1"}, ids)
}

func TestApplyNewTicketDeduplicates(t *testing.T) {
	r, _, _, _ := newRegistry(t, helpdesk.RoleAdmin, &stubAPI{})
	require.True(t, r.ApplyNewTicket(conv("c1", helpdesk.StatusOpen)))
	require.False(t, r.ApplyNewTicket(conv("c1", helpdesk.StatusOpen)))
	require.True(t, r.ApplyNewTicket(conv("c2", "")))
	got := r.Conversations()
	require.Equal(t, "c2", got[0].ID)
	require.Equal(t, helpdesk.StatusOpen, got[0].Status)
	require.Len(t, got, 2)
}

func TestApplyStaffAddedIsIdempotentAndForwardOnly(t *testing.T) {
	r, _, _, _ := newRegistry(t, helpdesk.RoleAdmin, &stubAPI{})
	r.ApplyNewTicket(conv("c1", helpdesk.StatusOpen, "u1"))
	r.ApplyNewTicket(conv("c2", helpdesk.StatusClosed, "u1"))

	staff := helpdesk.User{ID: "s1", Name: "Sari"}
	require.True(t, r.ApplyStaffAdded(conv("c1", ""), staff))
	require.False(t, r.ApplyStaffAdded(conv("c1", ""), staff))

	c1, _ := r.Get("c1")
	require.Equal(t, helpdesk.StatusInProgress, c1.Status)
	require.Len(t, c1.Participants, 2)

	r.ApplyStaffAdded(conv("c2", ""), staff)
	c2, _ := r.Get("c2")
	require.Equal(t, helpdesk.StatusClosed, c2.Status)

	require.False(t, r.ApplyStaffAdded(conv("missing", ""), staff))
}

func TestApplyStatusClosedClearsSelection(t *testing.T) {
	r, _, _, _ := newRegistry(t, helpdesk.RoleITStaff, &stubAPI{})
	r.ApplyNewTicket(conv("c1", helpdesk.StatusInProgress))
	require.True(t, r.SelectByID("c1"))

	require.True(t, r.ApplyStatusClosed(conv("c1", ""), nil))
	require.Empty(t, r.SelectedID())
	require.False(t, r.ApplyStatusClosed(conv("c1", ""), nil))

	c, _ := r.Get("c1")
	require.Equal(t, helpdesk.StatusClosed, c.Status)
}

func TestSelectKeepsSnapshotOutsideCollection(t *testing.T) {
	r, _, _, _ := newRegistry(t, helpdesk.RoleUser, &stubAPI{})
	r.Select(conv("fresh", helpdesk.StatusOpen))
	got, ok := r.Selected()
	require.True(t, ok)
	require.Equal(t, "fresh", got.ID)

	r.ApplyNewTicket(conv("fresh", helpdesk.StatusOpen))
	r.ApplyStaffAdded(conv("fresh", ""), helpdesk.User{ID: "s1"})
	got, _ = r.Selected()
	require.Equal(t, helpdesk.StatusInProgress, got.Status)

	r.ClearSelection()
	_, ok = r.Selected()
	require.False(t, ok)
}

func TestCreatedTicketAppearsOnceAfterPushAndFetch(t *testing.T) {
	a := &stubAPI{conversations: [][]helpdesk.Conversation{{conv("new-1", helpdesk.StatusOpen)}}}
	r, _, _, _ := newRegistry(t, helpdesk.RoleUser, a)

	c, err := r.CreateTicket(context.Background(), "  Printer broken ")
	require.NoError(t, err)
	require.Equal(t, []string{"Printer broken"}, a.created)
	require.Empty(t, r.Conversations())

	r.ApplyNewTicket(c)
	require.NoError(t, r.FetchAll(context.Background()))
	require.Len(t, r.Conversations(), 1)
}

func TestCreateTicketRejectsEmptySubject(t *testing.T) {
	a := &stubAPI{}
	r, _, _, _ := newRegistry(t, helpdesk.RoleUser, a)
	_, err := r.CreateTicket(context.Background(), "   ")
	require.ErrorIs(t, err, ErrEmptySubject)
	require.Empty(t, a.created)
}

func TestCloseTicketWaitsForPush(t *testing.T) {
	a := &stubAPI{}
	r, _, _, banner := newRegistry(t, helpdesk.RoleITStaff, a)
	r.ApplyNewTicket(conv("c1", helpdesk.StatusInProgress))

	ok, err := r.CloseTicket(context.Background(), "c1", AlwaysConfirm)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []string{"c1"}, a.closed)
	require.Equal(t, []string{"Ticket closed successfully!"}, banner.success)

	c, _ := r.Get("c1")
	require.Equal(t, helpdesk.StatusInProgress, c.Status)
}

func TestCloseTicketDeclinedOrForbidden(t *testing.T) {
	a := &stubAPI{}
	r, _, _, _ := newRegistry(t, helpdesk.RoleITStaff, a)
	decline := ConfirmFunc(func(_ context.Context, prompt string) (bool, error) {
		require.Equal(t, ClosePrompt, prompt)
		return false, nil
	})
	ok, err := r.CloseTicket(context.Background(), "c1", decline)
	require.NoError(t, err)
	require.False(t, ok)

	_, err = r.CloseTicket(context.Background(), "c1", nil)
	require.ErrorIs(t, err, ErrNotConfirmed)

	user, _, _, _ := newRegistry(t, helpdesk.RoleUser, a)
	_, err = user.CloseTicket(context.Background(), "c1", AlwaysConfirm)
	require.ErrorIs(t, err, ErrForbidden)
	require.Empty(t, a.closed)
}

func TestAssignStaffValidation(t *testing.T) {
	a := &stubAPI{}
	r, _, _, banner := newRegistry(t, helpdesk.RoleAdmin, a)
	require.ErrorIs(t, r.AssignStaff(context.Background(), "c1", ""), ErrMissingSelection)
	require.Equal(t, []string{"Please select both conversation and IT staff"}, banner.errs)

	require.NoError(t, r.AssignStaff(context.Background(), "c1", "s1"))
	require.Equal(t, [][2]string{{"c1", "s1"}}, a.assigned)

	staff, _, _, _ := newRegistry(t, helpdesk.RoleITStaff, a)
	require.ErrorIs(t, staff.AssignStaff(context.Background(), "c1", "s1"), ErrForbidden)
}

func TestChangeUserRoleUpdatesCaches(t *testing.T) {
	a := &stubAPI{
		conversations: [][]helpdesk.Conversation{{}},
		users:         []helpdesk.User{{ID: "u1", Role: helpdesk.RoleUser}, {ID: "s1", Role: helpdesk.RoleITStaff}},
		staff:         []helpdesk.User{{ID: "s1", Role: helpdesk.RoleITStaff}},
	}
	r, _, _, banner := newRegistry(t, helpdesk.RoleAdmin, a)
	require.NoError(t, r.FetchAll(context.Background()))

	require.NoError(t, r.ChangeUserRole(context.Background(), "u1", helpdesk.RoleITStaff))
	require.NoError(t, r.ChangeUserRole(context.Background(), "s1", helpdesk.RoleUser))

	staffIDs := []string{}
	for _, s := range r.ITStaff() {
		staffIDs = append(staffIDs, s.ID)
	}
	require.Equal(t, []string{"u1"}, staffIDs)
	require.Equal(t, helpdesk.RoleITStaff, a.roles["u1"])
	require.Len(t, banner.success, 2)

	require.ErrorIs(t, r.ChangeUserRole(context.Background(), "u1", "root"), helpdesk.ErrUnknownRole)
}

func TestFetchMessagesDiscardsWhenSelectionMoved(t *testing.T) {
	gate := make(chan struct{})
	a := &stubAPI{
		messages: map[string][]helpdesk.Message{"c1": {{ID: "m1"}}, "c2": {{ID: "m2"}}},
		msgGates: map[string]chan struct{}{"c1": gate},
	}
	r, _, hist, _ := newRegistry(t, helpdesk.RoleUser, a)
	r.Select(conv("c1", helpdesk.StatusOpen))

	done := make(chan error, 1)
	go func() { done <- r.FetchMessages(context.Background(), "c1") }()

	time.Sleep(10 * time.Millisecond)
	r.Select(conv("c2", helpdesk.StatusOpen))
	require.NoError(t, r.FetchMessages(context.Background(), "c2"))
	close(gate)
	require.NoError(t, <-done)

	hist.mu.Lock()
	defer hist.mu.Unlock()
	require.Contains(t, hist.calls, "c2")
	require.NotContains(t, hist.calls, "c1")
}

func TestStatsAndFilter(t *testing.T) {
	r, _, _, _ := newRegistry(t, helpdesk.RoleAdmin, &stubAPI{})
	r.ApplyNewTicket(conv("a", helpdesk.StatusOpen))
	r.ApplyNewTicket(conv("b", helpdesk.StatusInProgress))
	r.ApplyNewTicket(conv("c", helpdesk.StatusClosed))
	r.ApplyNewTicket(conv("d", helpdesk.StatusOpen))

	require.Equal(t, Stats{Total: 4, Open: 2, InProgress: 1, Closed: 1}, r.Stats())
	require.Len(t, r.Filter(helpdesk.StatusOpen), 2)
	require.Len(t, r.Filter(""), 4)
}
