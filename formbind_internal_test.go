package formbind

import (
	"bytes"
	"context"
	"io/fs"
	"log"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-formbind/internal/mockbackend"
	"github.com/goliatone/go-formbind/pkg/engine"
	"github.com/goliatone/go-formbind/pkg/proxy"
)

func TestOpenEditorDisposesBuiltContextsOnFailure(t *testing.T) {
	ctx := context.Background()
	quiet := log.New(&bytes.Buffer{}, "", 0)

	user, err := fs.ReadFile(EmbeddedTemplates(), "User.json")
	require.NoError(t, err)
	templates := fstest.MapFS{
		"User.json":        {Data: user},
		"MailAccount.json": {Data: []byte(`{"class": "Composite", "children": [`)},
	}
	session, err := NewSession(templates, engine.WithLogger(quiet))
	require.NoError(t, err)

	store, err := mockbackend.New(ctx)
	require.NoError(t, err)
	factory := proxy.NewFactory(store, proxy.WithLogger(quiet))

	var roots []*engine.Widget
	newRoot := func() *engine.Widget {
		root := engine.NewContainer()
		roots = append(roots, root)
		return root
	}
	_, err = openEditor(ctx, factory, session, proxy.OpenRequest{DN: "cn=Alice Doe,ou=people,dc=example,dc=net"}, newRoot)
	require.Error(t, err)
	assert.Zero(t, store.Instances())

	// The User context was built before MailAccount failed to compile.
	require.Len(t, roots, 1)
	roots[0].Appear()
	assert.Empty(t, roots[0].Children(), "disposed context still builds widgets on appear")
}
