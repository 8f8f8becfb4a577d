package formbind_test

import (
	"bytes"
	"context"
	"log"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	formbind "github.com/goliatone/go-formbind"
	"github.com/goliatone/go-formbind/internal/mockbackend"
	"github.com/goliatone/go-formbind/pkg/data"
	"github.com/goliatone/go-formbind/pkg/engine"
	"github.com/goliatone/go-formbind/pkg/proxy"
)

const aliceDN = "cn=Alice Doe,ou=people,dc=example,dc=net"

func quietLogger() *log.Logger { return log.New(&bytes.Buffer{}, "", 0) }

func openAlice(t *testing.T) (*mockbackend.Store, *formbind.Editor) {
	t.Helper()
	ctx := context.Background()
	store, err := mockbackend.New(ctx)
	require.NoError(t, err)

	session, err := formbind.NewSession(nil, engine.WithLogger(quietLogger()))
	require.NoError(t, err)
	factory := proxy.NewFactory(store, proxy.WithDebounce(0), proxy.WithLogger(quietLogger()))

	editor, err := formbind.OpenEditor(ctx, factory, session, proxy.OpenRequest{DN: aliceDN},
		data.WithControllerLogger(quietLogger()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = editor.Close(context.Background()) })
	return store, editor
}

func TestEmbeddedTemplatesCoverDirectoryTypes(t *testing.T) {
	session, err := formbind.NewSession(nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"Group", "MailAccount", "PosixUser", "SambaUser", "User"}, session.TemplateNames())
}

func TestOpenEditorBuildsContextPerType(t *testing.T) {
	_, editor := openAlice(t)

	var names []string
	for _, ectx := range editor.Contexts {
		names = append(names, ectx.Extension())
	}
	assert.Equal(t, []string{"User", "MailAccount", "PosixUser", "SambaUser"}, names)

	user, ok := editor.Context("User")
	require.True(t, ok)
	given, ok := user.Widget("givenName")
	require.True(t, ok)
	assert.Equal(t, "Alice", given.Value())

	mail, _ := editor.Context("MailAccount")
	posix, _ := editor.Context("PosixUser")
	assert.True(t, mail.Root().Visible())
	assert.False(t, posix.Root().Visible())
	assert.False(t, editor.Controller.Modified())
}

func TestOpenEditorEditAndSave(t *testing.T) {
	store, editor := openAlice(t)

	require.NoError(t, editor.Controller.SetValue("sn", "Dane"))
	editor.Object.WaitWriteBacks()
	assert.True(t, editor.Controller.Modified())

	require.NoError(t, editor.Controller.Save(context.Background()))
	assert.False(t, editor.Controller.Modified())

	entry, ok := store.Entry(aliceDN)
	require.True(t, ok)
	assert.Equal(t, proxy.Values{"Dane"}, entry.Values["sn"])
}

func TestOpenEditorRejectsUnknownObject(t *testing.T) {
	store, err := mockbackend.New(context.Background())
	require.NoError(t, err)
	session, err := formbind.NewSession(nil)
	require.NoError(t, err)
	factory := proxy.NewFactory(store, proxy.WithLogger(quietLogger()))

	_, err = formbind.OpenEditor(context.Background(), factory, session, proxy.OpenRequest{DN: "cn=nobody,dc=example,dc=net"})
	assert.Error(t, err)
	assert.Zero(t, store.Instances())
}
