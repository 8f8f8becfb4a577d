package proxy_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-formbind/pkg/proxy"
	"github.com/goliatone/go-formbind/pkg/testsupport"
)

func TestObjectSetWritesBackSingleValue(t *testing.T) {
	backend := testsupport.NewUserBackend()
	_, obj := openUser(t, backend)

	var changes []proxy.Change
	obj.Subscribe(func(c proxy.Change) { changes = append(changes, c) })

	require.NoError(t, obj.Set("givenName", proxy.Values{"Alicia"}))
	obj.WaitWriteBacks()

	calls := backend.CallsTo("setObjectProperty")
	require.Len(t, calls, 1)
	assert.Equal(t, "givenName", calls[0].Name)
	assert.Equal(t, proxy.Values{"Alicia"}, backend.Remote(testsupport.UserDN, "givenName"))

	require.Len(t, changes, 1)
	assert.Equal(t, proxy.SourceLocal, changes[0].Source)
	assert.Equal(t, -1, changes[0].Element)
	assert.Equal(t, proxy.Values{"Alice"}, changes[0].Old)
}

func TestObjectSetSkipsUnchangedValue(t *testing.T) {
	backend := testsupport.NewUserBackend()
	_, obj := openUser(t, backend)

	require.NoError(t, obj.Set("givenName", proxy.Values{"Alice"}))
	obj.WaitWriteBacks()
	assert.Empty(t, backend.CallsTo("setObjectProperty"))
}

func TestObjectSetRejections(t *testing.T) {
	backend := testsupport.NewUserBackend()
	_, obj := openUser(t, backend)

	require.ErrorIs(t, obj.Set("nope", proxy.Values{"x"}), proxy.ErrUnknownAttribute)
	require.ErrorIs(t, obj.Set("uid", proxy.Values{"bob"}), proxy.ErrReadOnly)
	require.Error(t, obj.SetElement("mail", 5, "x"))

	require.NoError(t, obj.Close(context.Background()))
	require.ErrorIs(t, obj.Set("givenName", proxy.Values{"Bob"}), proxy.ErrClosed)
}

func TestObjectMultivalueWriteBackIsDebounced(t *testing.T) {
	backend := testsupport.NewUserBackend()
	_, obj := openUser(t, backend, proxy.WithDebounce(time.Hour))

	require.NoError(t, obj.SetElement("mail", 1, "alice@work.example"))
	require.NoError(t, obj.Set("mail", proxy.Values{"a@example.net", "b@example.net"}))
	assert.Empty(t, backend.CallsTo("setObjectProperty"))

	obj.WaitWriteBacks()
	calls := backend.CallsTo("setObjectProperty")
	require.Len(t, calls, 1)
	assert.Equal(t, proxy.Values{"a@example.net", "b@example.net"}, calls[0].Values)
}

func TestObjectWaitWriteBacksCoversFiredDebounce(t *testing.T) {
	for i := 0; i < 20; i++ {
		backend := testsupport.NewUserBackend()
		_, obj := openUser(t, backend, proxy.WithDebounce(time.Millisecond))

		require.NoError(t, obj.SetElement("mail", 1, "alice@work.example"))
		time.Sleep(time.Millisecond)
		obj.WaitWriteBacks()
		_, err := obj.Call(context.Background(), "commit")
		require.NoError(t, err)

		methods := backend.Methods()
		require.Equal(t, "dispatchObjectMethod", methods[len(methods)-1], "iteration %d", i)
		require.Len(t, backend.CallsTo("setObjectProperty"), 1, "iteration %d", i)
	}
}

func TestObjectWriteBackFailureReported(t *testing.T) {
	backend := testsupport.NewUserBackend()
	backend.Fail("setObjectProperty", &proxy.ProtocolError{Code: 422, Message: "invalid"})

	var (
		mu     sync.Mutex
		errs   []error
		owners []*proxy.Object
	)
	_, obj := openUser(t, backend, proxy.WithErrorHandler(func(o *proxy.Object, err error) {
		mu.Lock()
		defer mu.Unlock()
		owners = append(owners, o)
		errs = append(errs, err)
	}))

	require.NoError(t, obj.Set("sn", proxy.Values{"Smith"}))
	obj.WaitWriteBacks()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, errs, 1)
	assert.Same(t, obj, owners[0])
	var perr *proxy.ProtocolError
	require.ErrorAs(t, errs[0], &perr)
	assert.Equal(t, "sn", perr.Path)
	assert.Equal(t, 422, perr.Code)

	values, _ := obj.Get("sn")
	assert.Equal(t, proxy.Values{"Smith"}, values, "local value is kept after a failed write-back")
}

func TestObjectRefreshDoesNotWriteBack(t *testing.T) {
	backend := testsupport.NewUserBackend()
	_, obj := openUser(t, backend)

	var changes []proxy.Change
	obj.Subscribe(func(c proxy.Change) {
		changes = append(changes, c)
		assert.False(t, obj.Initialized(), "listeners run with write-back suspended")
	})
	infoChanged := 0
	obj.OnInfoChange(func() { infoChanged++ })

	backend.SetRemote(testsupport.UserDN, "givenName", proxy.Values{"Alicia"})
	backend.SetExtension(testsupport.UserDN, "PosixUser", true)
	require.NoError(t, obj.Refresh(context.Background()))
	obj.WaitWriteBacks()

	require.Len(t, changes, 1)
	assert.Equal(t, proxy.SourceRemote, changes[0].Source)
	assert.Equal(t, proxy.Values{"Alicia"}, changes[0].New)
	assert.True(t, obj.ExtensionTypes()["PosixUser"])
	assert.Equal(t, 1, infoChanged)
	assert.True(t, obj.Initialized())
	assert.Empty(t, backend.CallsTo("setObjectProperty"))
}

func TestObjectRefreshDiscardsStaleResult(t *testing.T) {
	backend := testsupport.NewUserBackend()
	_, obj := openUser(t, backend)

	release := backend.Gate("getAttributes")
	done := make(chan error, 1)
	go func() { done <- obj.Refresh(context.Background()) }()

	require.Eventually(t, func() bool {
		return len(backend.CallsTo("getAttributes")) == 2
	}, 2*time.Second, 5*time.Millisecond)

	backend.SetRemote(testsupport.UserDN, "givenName", proxy.Values{"Bob"})
	require.NoError(t, obj.Refresh(context.Background()))

	backend.SetRemote(testsupport.UserDN, "givenName", proxy.Values{"Carol"})
	release()
	require.NoError(t, <-done)

	values, _ := obj.Get("givenName")
	assert.Equal(t, proxy.Values{"Bob"}, values)
}

func TestObjectFailedNestedRefreshKeepsWriteBack(t *testing.T) {
	backend := testsupport.NewUserBackend()
	_, obj := openUser(t, backend)
	boom := errors.New("boom")

	var nestedErr error
	var once sync.Once
	obj.Subscribe(func(c proxy.Change) {
		if c.Source != proxy.SourceRemote {
			return
		}
		once.Do(func() {
			backend.Fail("getObjectInfo", boom)
			nestedErr = obj.Refresh(context.Background())
			backend.Fail("getObjectInfo", nil)
		})
	})

	backend.SetRemote(testsupport.UserDN, "givenName", proxy.Values{"Bob"})
	require.NoError(t, obj.Refresh(context.Background()))
	require.ErrorIs(t, nestedErr, boom)
	assert.True(t, obj.Initialized())

	require.NoError(t, obj.Set("sn", proxy.Values{"Roe"}))
	obj.WaitWriteBacks()
	calls := backend.CallsTo("setObjectProperty")
	require.Len(t, calls, 1)
	assert.Equal(t, "sn", calls[0].Name)
}

func TestObjectFailedRefreshKeepsWriteBack(t *testing.T) {
	backend := testsupport.NewUserBackend()
	_, obj := openUser(t, backend)

	backend.Fail("getAttributes", errors.New("unavailable"))
	require.Error(t, obj.Refresh(context.Background()))
	backend.Fail("getAttributes", nil)

	require.NoError(t, obj.Set("givenName", proxy.Values{"Alicia"}))
	obj.WaitWriteBacks()
	assert.Len(t, backend.CallsTo("setObjectProperty"), 1)
}

func TestObjectHandleEvent(t *testing.T) {
	ctx := context.Background()

	t.Run("modified refreshes", func(t *testing.T) {
		backend := testsupport.NewUserBackend()
		_, obj := openUser(t, backend)
		backend.SetRemote(testsupport.UserDN, "sn", proxy.Values{"Roe"})

		require.NoError(t, obj.HandleEvent(ctx, proxy.Event{Type: proxy.EventModified, UUID: testsupport.UserUUID}))
		values, _ := obj.Get("sn")
		assert.Equal(t, proxy.Values{"Roe"}, values)
	})

	t.Run("reloading is skipped", func(t *testing.T) {
		backend := testsupport.NewUserBackend()
		_, obj := openUser(t, backend)

		require.NoError(t, obj.HandleEvent(ctx, proxy.Event{Type: proxy.EventModified, UUID: testsupport.UserUUID, Reloading: true}))
		assert.Len(t, backend.CallsTo("getAttributes"), 1)
	})

	t.Run("other objects are ignored", func(t *testing.T) {
		backend := testsupport.NewUserBackend()
		_, obj := openUser(t, backend)

		require.NoError(t, obj.HandleEvent(ctx, proxy.Event{Type: proxy.EventRemoved, UUID: "0f8fad5b-d9cb-469f-a165-70867728950e"}))
		assert.False(t, obj.Closed())
	})

	t.Run("closing matches by dn", func(t *testing.T) {
		backend := testsupport.NewFakeBackend()
		user := testsupport.UserObject()
		user.Definition.UUID = ""
		backend.AddObject(testsupport.UserDN, user)
		_, obj := openUser(t, backend)

		closed := 0
		obj.OnClose(func() { closed++ })
		require.NoError(t, obj.HandleEvent(ctx, proxy.Event{Type: proxy.EventClosing, DN: testsupport.UserDN}))
		require.NoError(t, obj.HandleEvent(ctx, proxy.Event{Type: proxy.EventClosing, DN: testsupport.UserDN}))
		assert.True(t, obj.Closed())
		assert.Equal(t, 1, closed)
	})
}

func TestObjectCall(t *testing.T) {
	backend := testsupport.NewUserBackend()
	_, obj := openUser(t, backend)

	result, err := obj.Call(context.Background(), "commit")
	require.NoError(t, err)
	assert.Equal(t, true, result)

	_, err = obj.Call(context.Background(), "explode")
	require.ErrorIs(t, err, proxy.ErrUnknownMethod)

	backend.Fail("dispatchObjectMethod", errors.New("boom"))
	_, err = obj.Call(context.Background(), "lock")
	var perr *proxy.ProtocolError
	require.ErrorAs(t, err, &perr)
}

func TestObjectCloseReleasesHandle(t *testing.T) {
	backend := testsupport.NewUserBackend()
	_, obj := openUser(t, backend, proxy.WithDebounce(time.Hour))

	require.NoError(t, obj.Set("mail", proxy.Values{"new@example.net"}))
	require.NoError(t, obj.Close(context.Background()))

	assert.True(t, obj.Closed())
	assert.Empty(t, backend.OpenInstances())
	assert.Equal(t, proxy.Values{"new@example.net"}, backend.Remote(testsupport.UserDN, "mail"), "pending write-backs flush before close")
	require.NoError(t, obj.Close(context.Background()))
	assert.Len(t, backend.CallsTo("closeObject"), 1)
}
