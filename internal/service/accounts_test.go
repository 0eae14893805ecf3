package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/cargodesk/internal/model"
)

func TestCreateAccount(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	alice, err := env.svc.CreateAccount(ctx, superActor(), model.NewAccount{Username: "alice", Password: "pw123"})
	require.NoError(t, err)
	assert.Equal(t, model.RoleOperator, alice.Role, "role defaults to OPERATOR")
	assert.True(t, alice.IsActive)
	assert.False(t, alice.SuperAdmin)

	_, err = env.svc.CreateAccount(ctx, superActor(), model.NewAccount{Username: "alice", Password: "other"})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("duplicate username error = %v, want ErrConflict", err)
	}

	created := env.activity.byAction(model.ActionCreateUser)
	require.Len(t, created, 1, "exactly one CREATE_USER entry for alice")

	var details accountDetails
	require.NoError(t, json.Unmarshal([]byte(created[0].Details), &details))
	assert.Equal(t, "alice", details.TargetUsername)
	assert.Equal(t, model.RoleOperator, details.Role)
	assert.Equal(t, testSuperAdmin, details.PerformedBy)
	require.NotNil(t, created[0].UserID)
	assert.EqualValues(t, 0, *created[0].UserID)
}

func TestCreateAccount_Validation(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	tests := []struct {
		name string
		in   model.NewAccount
		want error
	}{
		{name: "missing username", in: model.NewAccount{Password: "pw123"}, want: ErrValidation},
		{name: "missing password", in: model.NewAccount{Username: "bob"}, want: ErrValidation},
		{name: "bad role", in: model.NewAccount{Username: "bob", Password: "pw123", Role: "ROOT"}, want: ErrValidation},
		{name: "bad characters", in: model.NewAccount{Username: "bob smith", Password: "pw123"}, want: ErrValidation},
		{name: "reserved super admin name", in: model.NewAccount{Username: testSuperAdmin, Password: "pw123"}, want: ErrConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.svc.CreateAccount(ctx, superActor(), tt.in)
			assert.ErrorIs(t, err, tt.want)
		})
	}
	assert.Empty(t, env.activity.byAction(model.ActionCreateUser))
}

func TestCreateAccount_AuditFailureDoesNotFail(t *testing.T) {
	env := newTestEnv(t)
	env.activity.fail = true

	a, err := env.svc.CreateAccount(context.Background(), superActor(), model.NewAccount{Username: "alice", Password: "pw123"})
	require.NoError(t, err)
	assert.NotZero(t, a.ID)
}

func TestAuthenticate(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	alice := mustCreateAccount(t, env, "alice", model.RoleOperator)

	t.Run("valid credentials", func(t *testing.T) {
		a, err := env.svc.Authenticate(ctx, "alice", "pw123")
		require.NoError(t, err)
		assert.Equal(t, alice.ID, a.ID)
	})

	t.Run("wrong password", func(t *testing.T) {
		_, err := env.svc.Authenticate(ctx, "alice", "nope")
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("unknown user", func(t *testing.T) {
		_, err := env.svc.Authenticate(ctx, "ghost", "pw123")
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("deactivated", func(t *testing.T) {
		_, err := env.svc.SetAccountActive(ctx, superActor(), alice.ID, false)
		require.NoError(t, err)
		_, err = env.svc.Authenticate(ctx, "alice", "pw123")
		assert.ErrorIs(t, err, ErrAccountDeactivated)
	})

	t.Run("super admin without stored row", func(t *testing.T) {
		a, err := env.svc.Authenticate(ctx, testSuperAdmin, testSuperAdminPassword)
		require.NoError(t, err)
		assert.EqualValues(t, 0, a.ID)
		assert.Equal(t, model.RoleAdmin, a.Role)
		assert.True(t, a.SuperAdmin)
	})

	assert.Len(t, env.activity.byAction(model.ActionLogin), 2)
	failed := env.activity.byAction(model.ActionLoginFailed)
	require.Len(t, failed, 3)
	for _, e := range failed {
		assert.Nil(t, e.UserID, "failed logins carry no actor id")
	}
}

func TestAuthenticate_RetiredCredentialsAlwaysRejected(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	_, err := env.svc.CreateAccount(ctx, superActor(), model.NewAccount{Username: "admin", Password: "admin123", Role: model.RoleAdmin})
	require.NoError(t, err)

	_, err = env.svc.Authenticate(ctx, "admin", "admin123")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	failed := env.activity.byAction(model.ActionLoginFailed)
	require.Len(t, failed, 1)
	assert.Equal(t, "admin", failed[0].Username)
}

func TestAuthenticate_MissingCredentialsAudited(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	_, err := env.svc.Authenticate(ctx, "alice", "")
	assert.ErrorIs(t, err, ErrValidation)
	_, err = env.svc.Authenticate(ctx, "", "pw123")
	assert.ErrorIs(t, err, ErrValidation)

	failed := env.activity.byAction(model.ActionLoginFailed)
	require.Len(t, failed, 2)
	assert.Equal(t, "alice", failed[0].Username)
	assert.Nil(t, failed[0].UserID)
	assert.Contains(t, failed[0].Details, "missing credentials")
	assert.Contains(t, failed[1].Details, "missing credentials")
}

func TestSuperAdminIsProtected(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	admin := mustCreateAccount(t, env, "boss", model.RoleAdmin)

	for _, actor := range []model.Actor{superActor(), actorOf(admin)} {
		err := env.svc.DeleteAccount(ctx, actor, 0)
		assert.ErrorIs(t, err, ErrPermission)

		_, err = env.svc.SetAccountActive(ctx, actor, 0, false)
		assert.ErrorIs(t, err, ErrPermission)

		_, err = env.svc.ResetPassword(ctx, actor, 0, "newpass")
		assert.ErrorIs(t, err, ErrPermission)

		branch := "HQ"
		_, err = env.svc.UpdateProfile(ctx, actor, 0, model.ProfilePatch{Branch: &branch})
		assert.ErrorIs(t, err, ErrPermission)
	}
}

func TestSuperAdminStoredRowIsProtected(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	hash, err := HashPassword(testSuperAdminPassword)
	require.NoError(t, err)
	row, err := env.repo.CreateAccount(ctx, model.Account{Username: testSuperAdmin, Role: model.RoleAdmin, IsActive: true}, hash)
	require.NoError(t, err)

	err = env.svc.DeleteAccount(ctx, superActor(), row.ID)
	assert.ErrorIs(t, err, ErrPermission)
	_, err = env.svc.SetAccountActive(ctx, superActor(), row.ID, false)
	assert.ErrorIs(t, err, ErrPermission)
}

func TestDeleteAccount(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	admin := mustCreateAccount(t, env, "boss", model.RoleAdmin)
	other := mustCreateAccount(t, env, "deputy", model.RoleAdmin)
	op := mustCreateAccount(t, env, "op", model.RoleOperator)

	err := env.svc.DeleteAccount(ctx, actorOf(admin), other.ID)
	assert.ErrorIs(t, err, ErrPermission, "only the super admin deletes admins")

	require.NoError(t, env.svc.DeleteAccount(ctx, actorOf(admin), op.ID))
	require.NoError(t, env.svc.DeleteAccount(ctx, superActor(), other.ID))

	err = env.svc.DeleteAccount(ctx, superActor(), 999)
	assert.ErrorIs(t, err, ErrNotFound)

	assert.Len(t, env.activity.byAction(model.ActionDeleteUser), 2)
}

func TestSetAccountActive_LastAdmin(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	only := mustCreateAccount(t, env, "boss", model.RoleAdmin)

	_, err := env.svc.SetAccountActive(ctx, actorOf(only), only.ID, false)
	assert.ErrorIs(t, err, ErrPermission)

	updated, err := env.svc.SetAccountActive(ctx, superActor(), only.ID, false)
	require.NoError(t, err)
	assert.False(t, updated.IsActive)

	again, err := env.svc.SetAccountActive(ctx, superActor(), only.ID, false)
	require.NoError(t, err, "deactivation is idempotent")
	assert.False(t, again.IsActive)

	reactivated, err := env.svc.SetAccountActive(ctx, actorOf(only), only.ID, true)
	require.NoError(t, err)
	assert.True(t, reactivated.IsActive)

	assert.Len(t, env.activity.byAction(model.ActionDeactivateUser), 2)
	assert.Len(t, env.activity.byAction(model.ActionActivateUser), 1)
}

func TestSetAccountActive_SecondAdminCanBeDeactivated(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	boss := mustCreateAccount(t, env, "boss", model.RoleAdmin)
	deputy := mustCreateAccount(t, env, "deputy", model.RoleAdmin)

	_, err := env.svc.SetAccountActive(ctx, actorOf(boss), deputy.ID, false)
	require.NoError(t, err)

	_, err = env.svc.SetAccountActive(ctx, actorOf(boss), boss.ID, false)
	assert.ErrorIs(t, err, ErrPermission)
}

func TestResetPassword(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	admin := mustCreateAccount(t, env, "boss", model.RoleAdmin)
	op := mustCreateAccount(t, env, "op", model.RoleOperator)

	_, err := env.svc.ResetPassword(ctx, actorOf(admin), op.ID, "ab")
	assert.ErrorIs(t, err, ErrValidation)

	_, err = env.svc.ResetPassword(ctx, actorOf(op), admin.ID, "s3cret")
	assert.ErrorIs(t, err, ErrPermission)

	_, err = env.svc.ResetPassword(ctx, actorOf(admin), op.ID, "s3cret")
	require.NoError(t, err)

	_, err = env.svc.Authenticate(ctx, "op", "s3cret")
	require.NoError(t, err)

	entries := env.activity.byAction(model.ActionResetPassword)
	require.Len(t, entries, 1)
	assert.False(t, strings.Contains(entries[0].Details, "s3cret"), "new password must not be logged")
}

func TestUpdateProfile(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	op, err := env.svc.CreateAccount(ctx, superActor(), model.NewAccount{
		Username: "op",
		Password: "pw123",
		Profile:  model.Profile{Country: "GM", Branch: "Serrekunda"},
	})
	require.NoError(t, err)
	other := mustCreateAccount(t, env, "other", model.RoleOperator)

	email := "op@example.com"
	updated, err := env.svc.UpdateProfile(ctx, actorOf(op), op.ID, model.ProfilePatch{Email: &email})
	require.NoError(t, err)
	assert.Equal(t, email, updated.Profile.Email)
	assert.Equal(t, "GM", updated.Profile.Country)
	assert.Equal(t, "Serrekunda", updated.Profile.Branch)

	_, err = env.svc.UpdateProfile(ctx, actorOf(other), op.ID, model.ProfilePatch{Email: &email})
	assert.ErrorIs(t, err, ErrPermission)

	bad := "not-an-email"
	_, err = env.svc.UpdateProfile(ctx, actorOf(op), op.ID, model.ProfilePatch{Email: &bad})
	assert.ErrorIs(t, err, ErrValidation)

	assert.Len(t, env.activity.byAction(model.ActionUpdateProfile), 1)
	assert.Equal(t, 1, env.repo.profileWrites)
}

func TestUpdateProfile_NoChangesSkipsWrite(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	op, err := env.svc.CreateAccount(ctx, superActor(), model.NewAccount{
		Username: "op",
		Password: "pw123",
		Profile:  model.Profile{Country: "GM"},
	})
	require.NoError(t, err)

	same := "GM"
	updated, err := env.svc.UpdateProfile(ctx, actorOf(op), op.ID, model.ProfilePatch{Country: &same})
	require.NoError(t, err)
	assert.Equal(t, "GM", updated.Profile.Country)

	_, err = env.svc.UpdateProfile(ctx, actorOf(op), op.ID, model.ProfilePatch{})
	require.NoError(t, err)

	assert.Zero(t, env.repo.profileWrites, "unchanged profile must not be written")
	assert.Len(t, env.activity.byAction(model.ActionUpdateProfile), 2)
}

func TestListAccounts(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	mustCreateAccount(t, env, "boss", model.RoleAdmin)
	mustCreateAccount(t, env, "op", model.RoleOperator)

	role := model.RoleAdmin
	admins, err := env.svc.ListAccounts(ctx, &role)
	require.NoError(t, err)
	require.Len(t, admins, 1)
	assert.Equal(t, "boss", admins[0].Username)

	all, err := env.svc.ListAccounts(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	bad := model.Role("ROOT")
	_, err = env.svc.ListAccounts(ctx, &bad)
	assert.ErrorIs(t, err, ErrValidation)
}
