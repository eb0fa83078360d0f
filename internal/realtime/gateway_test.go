package realtime

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/devroom-sh/devroom/internal/domain"
	"github.com/devroom-sh/devroom/internal/security"
	"github.com/devroom-sh/devroom/internal/workspace"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type gatewayFixture struct {
	gateway    *Gateway
	registry   *Registry
	store      *workspace.Store
	directory  *MockDirectory
	revocation *MockRevocation
	limiter    *MockLimiter
	manager    *security.JWTManager
}

func newGatewayFixture(t *testing.T) *gatewayFixture {
	t.Helper()

	registry := newTestRegistry()
	t.Cleanup(registry.Close)

	directory := new(MockDirectory)
	revocation := new(MockRevocation)
	limiter := new(MockLimiter)
	manager := security.NewJWTManager("test-secret", time.Hour)
	store := workspace.NewStore(directory, 10*time.Millisecond, zerolog.Nop())

	return &gatewayFixture{
		gateway:    NewGateway(manager, revocation, limiter, directory, store, registry, zerolog.Nop()),
		registry:   registry,
		store:      store,
		directory:  directory,
		revocation: revocation,
		limiter:    limiter,
		manager:    manager,
	}
}

func (f *gatewayFixture) token(t *testing.T, name string) string {
	t.Helper()
	token, err := f.manager.GenerateAccessToken(uuid.New(), name)
	require.NoError(t, err)
	return token
}

func (f *gatewayFixture) allowEverything(projectID string) {
	f.revocation.On("IsRevoked", mock.Anything, mock.Anything).Return(false, nil)
	f.limiter.On("Allow", mock.Anything, mock.Anything).Return(true, nil)
	f.directory.On("Get", mock.Anything, projectID).
		Return(&domain.Project{ID: projectID, Name: "demo", FileTree: domain.FileTree{}}, nil)
}

func TestAdmitSuccess(t *testing.T) {
	f := newGatewayFixture(t)
	f.allowEverything("proj-1")

	session, member, err := f.gateway.Admit(context.Background(), f.token(t, "alice"), "proj-1")
	require.NoError(t, err)
	require.NotNil(t, member)

	assert.Equal(t, "proj-1", session.RoomID)
	assert.Equal(t, "alice", session.UserName)
	assert.Equal(t, 1, f.registry.RoomSize("proj-1"))

	// The workspace was seeded with a runnable tree.
	tree, ok := f.store.Get("proj-1")
	require.True(t, ok)
	_, hasManifest := tree.Lookup("package.json")
	assert.True(t, hasManifest)
}

func TestAdmitMissingCredential(t *testing.T) {
	f := newGatewayFixture(t)

	cases := []struct {
		name      string
		token     string
		projectID string
	}{
		{"empty token", "", "proj-1"},
		{"empty project", "tok", ""},
		{"malformed project id", "tok", "proj/../etc"},
		{"oversized project id", "tok", string(make([]byte, 65))},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := f.gateway.Admit(context.Background(), tc.token, tc.projectID)
			assert.ErrorIs(t, err, ErrMissingCredential)
		})
	}
	assert.Equal(t, 0, f.registry.RoomSize("proj-1"))
}

func TestAdmitTamperedToken(t *testing.T) {
	f := newGatewayFixture(t)
	f.revocation.On("IsRevoked", mock.Anything, mock.Anything).Return(false, nil)

	token := f.token(t, "alice") + "x"
	_, _, err := f.gateway.Admit(context.Background(), token, "proj-1")
	assert.ErrorIs(t, err, ErrInvalidToken)
	assert.Equal(t, 0, f.registry.RoomSize("proj-1"))
	f.directory.AssertNotCalled(t, "Get", mock.Anything, mock.Anything)
}

func TestAdmitRevokedToken(t *testing.T) {
	f := newGatewayFixture(t)
	f.revocation.On("IsRevoked", mock.Anything, mock.Anything).Return(true, nil)

	_, _, err := f.gateway.Admit(context.Background(), f.token(t, "alice"), "proj-1")
	assert.ErrorIs(t, err, ErrInvalidToken)
	f.directory.AssertNotCalled(t, "Get", mock.Anything, mock.Anything)
}

func TestAdmitFailsClosedWhenRevocationListUnavailable(t *testing.T) {
	f := newGatewayFixture(t)
	f.revocation.On("IsRevoked", mock.Anything, mock.Anything).
		Return(false, errors.New("redis: connection refused"))

	_, _, err := f.gateway.Admit(context.Background(), f.token(t, "alice"), "proj-1")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestAdmitRateLimited(t *testing.T) {
	f := newGatewayFixture(t)
	f.revocation.On("IsRevoked", mock.Anything, mock.Anything).Return(false, nil)
	f.limiter.On("Allow", mock.Anything, mock.Anything).Return(false, nil)

	_, _, err := f.gateway.Admit(context.Background(), f.token(t, "alice"), "proj-1")
	assert.ErrorIs(t, err, ErrRateLimited)
	f.directory.AssertNotCalled(t, "Get", mock.Anything, mock.Anything)
}

func TestAdmitUnknownProject(t *testing.T) {
	f := newGatewayFixture(t)
	f.revocation.On("IsRevoked", mock.Anything, mock.Anything).Return(false, nil)
	f.limiter.On("Allow", mock.Anything, mock.Anything).Return(true, nil)
	f.directory.On("Get", mock.Anything, "proj-1").Return(nil, nil)

	_, _, err := f.gateway.Admit(context.Background(), f.token(t, "alice"), "proj-1")
	assert.ErrorIs(t, err, ErrUnknownProject)
	assert.Equal(t, 0, f.registry.RoomSize("proj-1"))
}

func TestAdmitDirectoryFailure(t *testing.T) {
	f := newGatewayFixture(t)
	f.revocation.On("IsRevoked", mock.Anything, mock.Anything).Return(false, nil)
	f.limiter.On("Allow", mock.Anything, mock.Anything).Return(true, nil)
	f.directory.On("Get", mock.Anything, "proj-1").Return(nil, errors.New("collaborator unreachable"))

	_, _, err := f.gateway.Admit(context.Background(), f.token(t, "alice"), "proj-1")
	assert.ErrorIs(t, err, ErrUnknownProject)
}

func TestAdmitLimiterOutageDoesNotBlockAdmission(t *testing.T) {
	f := newGatewayFixture(t)
	f.revocation.On("IsRevoked", mock.Anything, mock.Anything).Return(false, nil)
	f.limiter.On("Allow", mock.Anything, mock.Anything).
		Return(false, errors.New("redis: connection refused"))
	f.directory.On("Get", mock.Anything, "proj-1").
		Return(&domain.Project{ID: "proj-1", FileTree: domain.FileTree{}}, nil)

	_, _, err := f.gateway.Admit(context.Background(), f.token(t, "alice"), "proj-1")
	assert.NoError(t, err)
}

func TestAdmitWithoutOptionalDependencies(t *testing.T) {
	f := newGatewayFixture(t)
	f.directory.On("Get", mock.Anything, "proj-1").
		Return(&domain.Project{ID: "proj-1", FileTree: domain.FileTree{}}, nil)

	gateway := NewGateway(f.manager, nil, nil, f.directory, f.store, f.registry, zerolog.Nop())
	_, member, err := gateway.Admit(context.Background(), f.token(t, "alice"), "proj-1")
	require.NoError(t, err)
	assert.NotNil(t, member)
}
