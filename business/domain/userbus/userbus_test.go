package userbus_test

import (
	"context"
	"errors"
	"io"
	"net/mail"
	"testing"

	"github.com/google/uuid"
	"github.com/jpcouto/vitrine/business/domain/userbus"
	"github.com/jpcouto/vitrine/business/sdk/metabase"
	"github.com/jpcouto/vitrine/business/sdk/order"
	"github.com/jpcouto/vitrine/business/sdk/page"
	"github.com/jpcouto/vitrine/business/sdk/sqldb"
	"github.com/jpcouto/vitrine/business/types/name"
	"github.com/jpcouto/vitrine/business/types/role"
	"github.com/jpcouto/vitrine/foundation/logger"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type fakeStorer struct {
	users       map[uuid.UUID]userbus.User
	metabaseIDs map[uuid.UUID]int
}

func newFakeStorer() *fakeStorer {
	return &fakeStorer{
		users:       map[uuid.UUID]userbus.User{},
		metabaseIDs: map[uuid.UUID]int{},
	}
}

func (f *fakeStorer) NewWithTx(tx sqldb.CommitRollbacker) (userbus.Storer, error) {
	return f, nil
}

func (f *fakeStorer) Create(ctx context.Context, usr userbus.User) error {
	for _, existing := range f.users {
		if existing.Email.Address == usr.Email.Address {
			return userbus.ErrUniqueEmail
		}
	}
	f.users[usr.ID] = usr
	return nil
}

func (f *fakeStorer) Update(ctx context.Context, usr userbus.User) error {
	f.users[usr.ID] = usr
	return nil
}

func (f *fakeStorer) Delete(ctx context.Context, usr userbus.User) error {
	delete(f.users, usr.ID)
	return nil
}

func (f *fakeStorer) Query(ctx context.Context, filter userbus.QueryFilter, orderBy order.By, page page.Page) ([]userbus.User, error) {
	var usrs []userbus.User
	for _, usr := range f.users {
		usrs = append(usrs, usr)
	}
	return usrs, nil
}

func (f *fakeStorer) Count(ctx context.Context, filter userbus.QueryFilter) (int, error) {
	return len(f.users), nil
}

func (f *fakeStorer) QueryByID(ctx context.Context, userID uuid.UUID) (userbus.User, error) {
	usr, ok := f.users[userID]
	if !ok {
		return userbus.User{}, userbus.ErrNotFound
	}
	return usr, nil
}

func (f *fakeStorer) QueryByEmail(ctx context.Context, email mail.Address) (userbus.User, error) {
	for _, usr := range f.users {
		if usr.Email.Address == email.Address {
			return usr, nil
		}
	}
	return userbus.User{}, userbus.ErrNotFound
}

func (f *fakeStorer) SetMetabaseID(ctx context.Context, userID uuid.UUID, metabaseID int) error {
	f.metabaseIDs[userID] = metabaseID
	return nil
}

// fakeAccounts stands in for the Metabase user API.
type fakeAccounts struct {
	nextID    int
	createErr error
	existing  map[string]metabase.User
	created   []metabase.NewUser
}

func (f *fakeAccounts) CreateUser(ctx context.Context, nu metabase.NewUser) (metabase.User, error) {
	if f.createErr != nil {
		return metabase.User{}, f.createErr
	}
	f.nextID++
	f.created = append(f.created, nu)
	return metabase.User{ID: f.nextID, Email: nu.Email}, nil
}

func (f *fakeAccounts) FindUserByEmail(ctx context.Context, email string) (metabase.User, error) {
	usr, ok := f.existing[email]
	if !ok {
		return metabase.User{}, metabase.ErrNotFound
	}
	return usr, nil
}

func newTestCore(storer userbus.Storer, accounts userbus.Accounts) *userbus.Core {
	return userbus.NewCore(logger.New(io.Discard, logger.LevelInfo, "TEST", nil), storer, accounts)
}

func newUser(email string) userbus.NewUser {
	return userbus.NewUser{
		Name:     name.MustParse("Ana Souza"),
		Email:    mail.Address{Address: email},
		Password: "gophers",
		Role:     role.User,
	}
}

func Test_CreateMirrorsAccount(t *testing.T) {
	storer := newFakeStorer()
	accounts := &fakeAccounts{}

	core := newTestCore(storer, accounts)

	usr, err := core.Create(context.Background(), newUser("ana@example.com"))
	require.NoError(t, err)

	require.NotNil(t, usr.MetabaseID)
	require.Equal(t, 1, *usr.MetabaseID)
	require.Equal(t, 1, storer.metabaseIDs[usr.ID])

	require.Len(t, accounts.created, 1)
	require.Equal(t, "Ana", accounts.created[0].FirstName)
	require.Equal(t, "Souza", accounts.created[0].LastName)

	require.NoError(t, bcrypt.CompareHashAndPassword(usr.PasswordHash, []byte("gophers")))
}

func Test_CreateSurvivesMirrorOutage(t *testing.T) {
	storer := newFakeStorer()
	accounts := &fakeAccounts{createErr: errors.New("metabase down"), existing: map[string]metabase.User{}}

	core := newTestCore(storer, accounts)

	usr, err := core.Create(context.Background(), newUser("ana@example.com"))
	require.NoError(t, err)
	require.Nil(t, usr.MetabaseID)

	// The local record still exists and authentication works.
	_, err = core.Authenticate(context.Background(), usr.Email, "gophers")
	require.NoError(t, err)
}

func Test_CreateReusesExistingAccount(t *testing.T) {
	storer := newFakeStorer()
	accounts := &fakeAccounts{
		createErr: errors.New("email already in use"),
		existing: map[string]metabase.User{
			"ana@example.com": {ID: 77, Email: "ana@example.com"},
		},
	}

	core := newTestCore(storer, accounts)

	usr, err := core.Create(context.Background(), newUser("ana@example.com"))
	require.NoError(t, err)

	require.NotNil(t, usr.MetabaseID)
	require.Equal(t, 77, *usr.MetabaseID)
}

func Test_CreateUniqueEmail(t *testing.T) {
	storer := newFakeStorer()

	core := newTestCore(storer, &fakeAccounts{})

	_, err := core.Create(context.Background(), newUser("ana@example.com"))
	require.NoError(t, err)

	_, err = core.Create(context.Background(), newUser("ana@example.com"))
	require.ErrorIs(t, err, userbus.ErrUniqueEmail)
}

func Test_Authenticate(t *testing.T) {
	storer := newFakeStorer()

	core := newTestCore(storer, &fakeAccounts{})

	usr, err := core.Create(context.Background(), newUser("ana@example.com"))
	require.NoError(t, err)

	got, err := core.Authenticate(context.Background(), usr.Email, "gophers")
	require.NoError(t, err)
	require.Equal(t, usr.ID, got.ID)

	_, err = core.Authenticate(context.Background(), usr.Email, "wrong")
	require.ErrorIs(t, err, userbus.ErrAuthenticationFailure)

	_, err = core.Authenticate(context.Background(), mail.Address{Address: "ghost@example.com"}, "gophers")
	require.ErrorIs(t, err, userbus.ErrAuthenticationFailure)
}
