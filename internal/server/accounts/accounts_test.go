package accounts

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/meetsync/internal/crypto"
	"github.com/iudanet/meetsync/internal/models"
	"github.com/iudanet/meetsync/internal/server/storage"
	"github.com/iudanet/meetsync/internal/server/storage/sqlite"
)

var testParams = crypto.Params{Time: 1, Memory: 1024, Threads: 1, KeyLen: 32}

func setupService(t *testing.T) (*Service, *sqlite.Storage) {
	t.Helper()
	store, err := sqlite.New(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(logger, store, store, testParams), store
}

func TestSeed(t *testing.T) {
	ctx := context.Background()
	svc, store := setupService(t)

	require.NoError(t, svc.Seed(ctx, "admin-password"))
	// повторный вызов ничего не делает
	require.NoError(t, svc.Seed(ctx, "other-password"))

	n, err := store.CountAccounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	elements, maxID, err := store.AllElements(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), maxID)
	assert.Len(t, elements, 3)

	points, err := store.HistoryInformation(ctx)
	require.NoError(t, err)
	require.Len(t, points, 1)
	assert.Equal(t, "Initial data", points[0].Information)

	account, err := svc.Authenticate(ctx, "admin", "admin-password")
	require.NoError(t, err)
	assert.Equal(t, 1, account.UserID)
}

func TestAuthenticate(t *testing.T) {
	ctx := context.Background()
	svc, _ := setupService(t)
	require.NoError(t, svc.Seed(ctx, "admin-password"))

	_, err := svc.Authenticate(ctx, "admin", "wrong-password")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.Authenticate(ctx, "ghost", "admin-password")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestWhoAmI(t *testing.T) {
	ctx := context.Background()
	svc, _ := setupService(t)
	require.NoError(t, svc.Seed(ctx, "admin-password"))

	user, changeID, err := svc.CreateUser(ctx, NewUser{
		Username:  "delegate",
		Password:  "delegate-password",
		FirstName: "Ann",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), changeID)
	assert.Equal(t, []int{models.GroupDefault}, user.GroupsID)

	whoami, err := svc.WhoAmI(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, user.ID, whoami.ID())
	assert.Equal(t, AuthTypeDefault, whoami.AuthType)
	require.NotNil(t, whoami.User)
	assert.Equal(t, "delegate", whoami.User.Username)
	assert.Equal(t, []string{"agenda.can_see", "motions.can_see", "users.can_see"}, whoami.Permissions)

	admin, err := svc.WhoAmI(ctx, 1)
	require.NoError(t, err)
	assert.Contains(t, admin.Permissions, models.PermSuperadmin)
	assert.Contains(t, admin.Permissions, "motions.can_see")

	// учетная запись без элемента пользователя
	orphan, err := svc.WhoAmI(ctx, 42)
	require.NoError(t, err)
	assert.Nil(t, orphan.User)
	assert.Empty(t, orphan.Permissions)
}

func TestIsSuperadmin(t *testing.T) {
	ctx := context.Background()
	svc, _ := setupService(t)
	require.NoError(t, svc.Seed(ctx, "admin-password"))

	user, _, err := svc.CreateUser(ctx, NewUser{Username: "delegate", Password: "delegate-password"})
	require.NoError(t, err)

	ok, err := svc.IsSuperadmin(ctx, 1)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = svc.IsSuperadmin(ctx, user.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = svc.IsSuperadmin(ctx, 0)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAnonymous(t *testing.T) {
	ctx := context.Background()
	svc, _ := setupService(t)
	require.NoError(t, svc.Seed(ctx, "admin-password"))

	guest, err := svc.Anonymous(ctx, true)
	require.NoError(t, err)
	assert.True(t, guest.IsAnonymous())
	assert.True(t, guest.GuestEnabled)
	assert.Len(t, guest.Permissions, 3)

	closed, err := svc.Anonymous(ctx, false)
	require.NoError(t, err)
	assert.False(t, closed.GuestEnabled)
	assert.Empty(t, closed.Permissions)
}

func TestCreateUser_Duplicate(t *testing.T) {
	ctx := context.Background()
	svc, _ := setupService(t)
	require.NoError(t, svc.Seed(ctx, "admin-password"))

	_, _, err := svc.CreateUser(ctx, NewUser{Username: "admin", Password: "whatever-password"})
	assert.ErrorIs(t, err, storage.ErrAccountAlreadyExists)
}
