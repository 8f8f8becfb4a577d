package proxy_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-formbind/pkg/proxy"
	"github.com/goliatone/go-formbind/pkg/testsupport"
)

func openUser(t *testing.T, backend *testsupport.FakeBackend, opts ...proxy.Option) (*proxy.Factory, *proxy.Object) {
	t.Helper()
	factory := proxy.NewFactory(backend, opts...)
	obj, err := factory.Open(context.Background(), proxy.OpenRequest{DN: testsupport.UserDN, Type: "object"})
	require.NoError(t, err)
	return factory, obj
}

func TestFactoryOpenRunsStepsInOrder(t *testing.T) {
	backend := testsupport.NewUserBackend()
	factory, obj := openUser(t, backend, proxy.WithLocale("de"))

	assert.Equal(t, []string{"openObject", "getObjectInfo", "getAttributes"}, backend.Methods())
	assert.Equal(t, "de", backend.CallsTo("getObjectInfo")[0].Name)
	assert.Equal(t, testsupport.UserDN, obj.DN())
	assert.Equal(t, testsupport.UserUUID, obj.UUID())
	assert.Equal(t, "User", obj.BaseType())
	assert.True(t, obj.Initialized())
	assert.True(t, obj.ExtensionTypes()["MailAccount"])
	assert.Equal(t, []string{"PosixUser"}, obj.ExtensionDeps()["SambaUser"])
	assert.Nil(t, obj.ExtensionAllowed())

	values, ok := obj.Get("givenName")
	require.True(t, ok)
	assert.Equal(t, proxy.Values{"Alice"}, values)

	assert.Equal(t, 1, factory.Classes().Len())
	class, ok := factory.Classes().Get("object", "User")
	require.True(t, ok)
	assert.Same(t, class, obj.Class())
	assert.True(t, class.HasMethod("commit"))
	assert.True(t, class.HasAttribute("sambaSID"))
}

func TestFactoryOpenSharesClass(t *testing.T) {
	backend := testsupport.NewUserBackend()
	factory, first := openUser(t, backend)
	second, err := factory.Open(context.Background(), proxy.OpenRequest{DN: testsupport.UserDN})
	require.NoError(t, err)

	assert.NotEqual(t, first.InstanceID(), second.InstanceID())
	assert.Same(t, first.Class(), second.Class())
	assert.Equal(t, 1, factory.Classes().Len())
}

func TestFactoryOpenFailureLeavesCacheEmpty(t *testing.T) {
	for _, step := range []string{"getObjectInfo", "getAttributes"} {
		t.Run(step, func(t *testing.T) {
			backend := testsupport.NewUserBackend()
			backend.Fail(step, errors.New("backend down"))
			factory := proxy.NewFactory(backend)

			obj, err := factory.Open(context.Background(), proxy.OpenRequest{DN: testsupport.UserDN})
			require.Error(t, err)
			assert.Nil(t, obj)

			var perr *proxy.ProtocolError
			require.ErrorAs(t, err, &perr)
			assert.Equal(t, 0, factory.Classes().Len())
			assert.Len(t, backend.CallsTo("closeObject"), 1)
			assert.Empty(t, backend.OpenInstances())
		})
	}
}

func TestFactoryOpenFailureSkipsLaterSteps(t *testing.T) {
	backend := testsupport.NewUserBackend()
	backend.Fail("openObject", errors.New("denied"))
	factory := proxy.NewFactory(backend)

	_, err := factory.Open(context.Background(), proxy.OpenRequest{DN: testsupport.UserDN})
	require.Error(t, err)
	assert.Equal(t, []string{"openObject"}, backend.Methods())
	assert.Equal(t, 0, factory.Classes().Len())
}

func TestFactoryOpenRejectsEmptyRequest(t *testing.T) {
	factory := proxy.NewFactory(testsupport.NewUserBackend())
	_, err := factory.Open(context.Background(), proxy.OpenRequest{})
	require.ErrorIs(t, err, proxy.ErrInvalidRequest)
}

func TestFactoryBusDeliversEvents(t *testing.T) {
	backend := testsupport.NewUserBackend()
	bus := proxy.NewBus(8)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	bus.Start(ctx)
	defer bus.Stop()

	_, obj := openUser(t, backend, proxy.WithBus(bus))
	closed := make(chan struct{})
	obj.OnClose(func() { close(closed) })

	require.True(t, bus.Publish(ctx, proxy.Event{Type: proxy.EventRemoved, UUID: testsupport.UserUUID}))
	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("object was not closed by remove event")
	}
	assert.True(t, obj.Closed())
}
