package session

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/helpdesk/pkg/helpdesk"
	"github.com/go-go-golems/helpdesk/pkg/persistence/credstore"
)

type stubFetcher struct {
	user helpdesk.User
	err  error
}

func (s stubFetcher) Me(context.Context) (helpdesk.User, error) { return s.user, s.err }

func TestLoadWithoutTokenInvalidates(t *testing.T) {
	sess, err := NewContext(credstore.NewInMemory(""))
	require.NoError(t, err)

	var causes []error
	sess.OnInvalid(func(err error) { causes = append(causes, err) })

	_, err = sess.Load(context.Background(), stubFetcher{})
	require.ErrorIs(t, err, ErrNoCredential)
	require.Len(t, causes, 1)
	_, ok := sess.Identity()
	require.False(t, ok)
}

func TestLoadResolvesIdentity(t *testing.T) {
	sess, err := NewContext(credstore.NewInMemory("tok"))
	require.NoError(t, err)

	id, err := sess.Load(context.Background(), stubFetcher{user: helpdesk.User{ID: "u1", Name: "Ana", Role: helpdesk.RoleAdmin}})
	require.NoError(t, err)
	require.Equal(t, Identity{UserID: "u1", Name: "Ana", Role: helpdesk.RoleAdmin}, id)
	require.Equal(t, "u1", sess.UserID())
	require.Equal(t, helpdesk.RoleAdmin, sess.Role())
}

func TestLoadFailureClearsCredential(t *testing.T) {
	store := credstore.NewInMemory("tok")
	sess, err := NewContext(store)
	require.NoError(t, err)
	invalidated := false
	sess.OnInvalid(func(error) { invalidated = true })

	_, err = sess.Load(context.Background(), stubFetcher{err: errors.New("401")})
	require.Error(t, err)
	require.True(t, invalidated)
	require.False(t, sess.HasToken(context.Background()))
}

func TestLogoutRunsHooksWithNilCause(t *testing.T) {
	sess, err := NewContext(credstore.NewInMemory(""))
	require.NoError(t, err)
	require.NoError(t, sess.Login(context.Background(), "tok"))
	sess.SetIdentity(Identity{UserID: "u1"})

	var got error = errors.New("sentinel")
	sess.OnInvalid(func(err error) { got = err })
	require.NoError(t, sess.Logout(context.Background()))
	require.NoError(t, got)
	require.Equal(t, "", sess.UserID())
}
