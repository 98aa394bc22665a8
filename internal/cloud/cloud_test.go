package cloud

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/hetznercloud/hcloud-go/v2/hcloud"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edvin/clientops/internal/model"
)

type fakeVolumes struct {
	vol      *hcloud.Volume
	getErr   error
	resized  []int
	resizeID int64
}

func (f *fakeVolumes) Get(_ context.Context, name string) (*hcloud.Volume, *hcloud.Response, error) {
	if f.getErr != nil {
		return nil, nil, f.getErr
	}
	if f.vol == nil || f.vol.Name != name {
		return nil, nil, nil
	}
	return f.vol, nil, nil
}

func (f *fakeVolumes) Resize(_ context.Context, v *hcloud.Volume, size int) (*hcloud.Action, *hcloud.Response, error) {
	f.resized = append(f.resized, size)
	return &hcloud.Action{ID: f.resizeID}, nil, nil
}

type fakeActions struct {
	waited []int64
	err    error
}

func (f *fakeActions) WaitFor(_ context.Context, actions ...*hcloud.Action) error {
	for _, a := range actions {
		f.waited = append(f.waited, a.ID)
	}
	return f.err
}

type fakeServers struct {
	servers []*hcloud.Server
	opts    hcloud.ServerListOpts
}

func (f *fakeServers) AllWithOpts(_ context.Context, opts hcloud.ServerListOpts) ([]*hcloud.Server, error) {
	f.opts = opts
	return f.servers, nil
}

func TestResizeVolume_Grows(t *testing.T) {
	vols := &fakeVolumes{vol: &hcloud.Volume{ID: 9, Name: "nextcloud-data-acme", Size: 100}, resizeID: 42}
	acts := &fakeActions{}
	s := NewWith(vols, &fakeServers{}, acts, zerolog.Nop())

	res, err := s.ResizeVolume(context.Background(), "acme", 200)
	require.NoError(t, err)
	assert.Equal(t, Resize{VolumeID: 9, FromGB: 100, ToGB: 200}, res)
	assert.True(t, res.Changed())
	assert.Equal(t, []int{200}, vols.resized)
	assert.Equal(t, []int64{42}, acts.waited)
}

func TestResizeVolume_RefusesShrink(t *testing.T) {
	vols := &fakeVolumes{vol: &hcloud.Volume{Name: "nextcloud-data-acme", Size: 100}}
	s := NewWith(vols, &fakeServers{}, &fakeActions{}, zerolog.Nop())

	_, err := s.ResizeVolume(context.Background(), "acme", 50)
	require.ErrorIs(t, err, ErrShrink)
	assert.Empty(t, vols.resized)
}

func TestResizeVolume_SameSizeNoop(t *testing.T) {
	vols := &fakeVolumes{vol: &hcloud.Volume{Name: "nextcloud-data-acme", Size: 100}}
	s := NewWith(vols, &fakeServers{}, &fakeActions{}, zerolog.Nop())

	res, err := s.ResizeVolume(context.Background(), "acme", 100)
	require.NoError(t, err)
	assert.False(t, res.Changed())
	assert.Empty(t, vols.resized)
}

func TestResizeVolume_Missing(t *testing.T) {
	s := NewWith(&fakeVolumes{}, &fakeServers{}, &fakeActions{}, zerolog.Nop())
	_, err := s.ResizeVolume(context.Background(), "acme", 100)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestResizeVolume_WaitFails(t *testing.T) {
	vols := &fakeVolumes{vol: &hcloud.Volume{Name: "nextcloud-data-acme", Size: 100}}
	s := NewWith(vols, &fakeServers{}, &fakeActions{err: errors.New("action failed")}, zerolog.Nop())
	_, err := s.ResizeVolume(context.Background(), "acme", 150)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "action failed")
}

func TestServerFacts(t *testing.T) {
	srvs := &fakeServers{servers: []*hcloud.Server{{
		ID:         7,
		ServerType: &hcloud.ServerType{Name: "cx22"},
		Datacenter: &hcloud.Datacenter{Location: &hcloud.Location{Name: "fsn1"}},
		PublicNet:  hcloud.ServerPublicNet{IPv4: hcloud.ServerPublicNetIPv4{IP: net.ParseIP("203.0.113.5")}},
	}}}
	s := NewWith(&fakeVolumes{}, srvs, &fakeActions{}, zerolog.Nop())

	facts, found, err := s.ServerFacts(context.Background(), "acme")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, model.Server{ID: 7, Type: "cx22", Location: "fsn1", IP: "203.0.113.5"}, facts)
	assert.Equal(t, "client=acme", srvs.opts.LabelSelector)
}

func TestServerFacts_NoneAndMany(t *testing.T) {
	s := NewWith(&fakeVolumes{}, &fakeServers{}, &fakeActions{}, zerolog.Nop())
	_, found, err := s.ServerFacts(context.Background(), "acme")
	require.NoError(t, err)
	assert.False(t, found)

	s = NewWith(&fakeVolumes{}, &fakeServers{servers: []*hcloud.Server{{ID: 1}, {ID: 2}}}, &fakeActions{}, zerolog.Nop())
	_, _, err = s.ServerFacts(context.Background(), "acme")
	require.Error(t, err)
}

func TestServerFacts_RejectsMalformedClient(t *testing.T) {
	srvs := &fakeServers{servers: []*hcloud.Server{{ID: 1}, {ID: 2}}}
	vols := &fakeVolumes{vol: &hcloud.Volume{ID: 3, Name: "nextcloud-data-a,b", Size: 100}}
	s := NewWith(vols, srvs, &fakeActions{}, zerolog.Nop())

	for _, name := range []string{"../x", "a/b", "a,b", "a,client!=x"} {
		var pe *model.PreconditionError
		_, found, err := s.ServerFacts(context.Background(), name)
		require.ErrorAs(t, err, &pe, name)
		assert.False(t, found)
		_, err = s.ResizeVolume(context.Background(), name, 200)
		assert.ErrorAs(t, err, &pe, name)
	}
	assert.Empty(t, srvs.opts.LabelSelector)
	assert.Empty(t, vols.resized)
}

func TestDevicePath(t *testing.T) {
	assert.Equal(t, "/dev/disk/by-id/scsi-0HC_Volume_12345", DevicePath(12345))
}

func TestDrift(t *testing.T) {
	rec := model.Server{ID: 7, Type: "cx22", Location: "fsn1", IP: "203.0.113.5"}
	assert.Empty(t, Drift(rec, rec))

	live := rec
	live.Type = "cx32"
	live.IP = "203.0.113.9"
	assert.Equal(t, []string{
		`type: "cx22" -> "cx32"`,
		`ip: "203.0.113.5" -> "203.0.113.9"`,
	}, Drift(rec, live))
}
