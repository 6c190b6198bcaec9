package negotiation

import (
	"errors"
	"testing"

	"github.com/dkeye/voicelink/internal/domain"
	"github.com/dkeye/voicelink/internal/negotiation/negotiationtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type registryFixture struct {
	reg   *Registry
	media map[domain.Identity][]*negotiationtest.Media
	fail  map[domain.Identity]error
}

func newRegistryFixture(local domain.Identity) *registryFixture {
	f := &registryFixture{media: map[domain.Identity][]*negotiationtest.Media{}, fail: map[domain.Identity]error{}}
	w := &wire{}
	f.reg = NewRegistry(local, func(remote domain.Identity) (*Session, error) {
		if err := f.fail[remote]; err != nil {
			return nil, err
		}
		m := negotiationtest.NewMedia(string(local))
		f.media[remote] = append(f.media[remote], m)
		return NewSession(local, remote, m, w.sender(local)), nil
	})
	return f
}

func TestRegistryEnsureIsNoOpForLiveSession(t *testing.T) {
	f := newRegistryFixture("alice")

	s1, created, err := f.reg.Ensure("bob")
	require.NoError(t, err)
	assert.True(t, created)

	s2, created, err := f.reg.Ensure("bob")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Same(t, s1, s2)
	assert.Len(t, f.media["bob"], 1)
	assert.Equal(t, 1, f.reg.Len())
}

func TestRegistryRefusesLocalIdentity(t *testing.T) {
	f := newRegistryFixture("alice")
	_, _, err := f.reg.Ensure("alice")
	assert.ErrorIs(t, err, ErrSelfSession)
	assert.Zero(t, f.reg.Len())
}

func TestRegistryReplacesClosedLeftover(t *testing.T) {
	f := newRegistryFixture("alice")
	s1, _, err := f.reg.Ensure("bob")
	require.NoError(t, err)
	require.NoError(t, s1.Close())

	_, ok := f.reg.Get("bob")
	assert.False(t, ok)

	s2, created, err := f.reg.Ensure("bob")
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotSame(t, s1, s2)
}

func TestRegistryRemoveClosesMedia(t *testing.T) {
	f := newRegistryFixture("alice")
	_, _, err := f.reg.Ensure("bob")
	require.NoError(t, err)

	assert.True(t, f.reg.Remove("bob"))
	assert.False(t, f.reg.Remove("bob"))
	assert.True(t, f.media["bob"][0].Closed())
	_, ok := f.reg.Get("bob")
	assert.False(t, ok)
}

func TestRegistryReconcile(t *testing.T) {
	f := newRegistryFixture("bob")

	created, removed, err := f.reg.Reconcile([]domain.Identity{"carol", "bob", "alice"})
	require.NoError(t, err)
	assert.Equal(t, []domain.Identity{"alice", "carol"}, created)
	assert.Empty(t, removed)

	created, removed, err = f.reg.Reconcile([]domain.Identity{"alice", "dave", "bob"})
	require.NoError(t, err)
	assert.Equal(t, []domain.Identity{"dave"}, created)
	assert.Equal(t, []domain.Identity{"carol"}, removed)
	assert.True(t, f.media["carol"][0].Closed())
	assert.False(t, f.media["alice"][0].Closed())
	assert.Len(t, f.media["alice"], 1)
	assert.Equal(t, []domain.Identity{"alice", "dave"}, f.reg.Identities())
}

func TestRegistryReconcileKeepsGoingOnFactoryError(t *testing.T) {
	f := newRegistryFixture("bob")
	boom := errors.New("no ports")
	f.fail["carol"] = boom

	created, _, err := f.reg.Reconcile([]domain.Identity{"alice", "carol", "dave"})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []domain.Identity{"alice", "dave"}, created)
}

func TestRegistryResetClosesEverySession(t *testing.T) {
	f := newRegistryFixture("alice")
	_, _, _ = f.reg.Reconcile([]domain.Identity{"bob", "carol"})
	sBob, _ := f.reg.Get("bob")

	f.reg.Reset("random")

	assert.Zero(t, f.reg.Len())
	assert.Equal(t, domain.ChannelName("random"), f.reg.Channel())
	assert.True(t, f.media["bob"][0].Closed())
	assert.True(t, f.media["carol"][0].Closed())
	assert.Equal(t, Closed, sBob.State())
}
