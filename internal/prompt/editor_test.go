package prompt

import (
	"bytes"
	"context"
	"errors"
	"log"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-formbind/pkg/data"
	"github.com/goliatone/go-formbind/pkg/engine"
	"github.com/goliatone/go-formbind/pkg/proxy"
	"github.com/goliatone/go-formbind/pkg/testsupport"
)

const editorTemplate = `{
  "class": "Composite",
  "children": [
    {"class": "TextField", "modelPath": "uid"},
    {"class": "TextField", "modelPath": "givenName"},
    {"class": "TextField", "modelPath": "sn"},
    {"class": "MultiEditWidget", "modelPath": "mail"},
    {"class": "TextField", "modelPath": "uidNumber"}
  ]
}`

// scriptedDriver answers prompts from queues. Select answers name the
// option, or the attribute before " = " in attribute pickers.
type scriptedDriver struct {
	selects  []string
	inputs   []string
	confirms []bool
	areas    []string
	infos    []string
	asked    []string
}

func (s *scriptedDriver) Input(_ context.Context, cfg InputConfig) (string, error) {
	s.asked = append(s.asked, cfg.Message)
	if len(s.inputs) == 0 {
		return "", errors.New("no input scripted")
	}
	v := s.inputs[0]
	s.inputs = s.inputs[1:]
	if cfg.Validator != nil {
		if err := cfg.Validator(v); err != nil {
			return "", err
		}
	}
	return v, nil
}

func (s *scriptedDriver) Password(ctx context.Context, cfg InputConfig) (string, error) {
	return s.Input(ctx, cfg)
}

func (s *scriptedDriver) Confirm(_ context.Context, cfg ConfirmConfig) (bool, error) {
	s.asked = append(s.asked, cfg.Message)
	if len(s.confirms) == 0 {
		return false, errors.New("no confirm scripted")
	}
	v := s.confirms[0]
	s.confirms = s.confirms[1:]
	return v, nil
}

func (s *scriptedDriver) Select(_ context.Context, cfg SelectConfig) (int, error) {
	if len(s.selects) == 0 {
		return -1, ErrAborted
	}
	answer := s.selects[0]
	s.selects = s.selects[1:]
	for i, option := range cfg.Options {
		if option == answer || strings.HasPrefix(option, answer+" = ") {
			return i, nil
		}
	}
	return -1, errors.New("scripted answer " + answer + " not offered in " + strings.Join(cfg.Options, "|"))
}

func (s *scriptedDriver) TextArea(_ context.Context, cfg TextAreaConfig) (string, error) {
	s.asked = append(s.asked, cfg.Message)
	if len(s.areas) == 0 {
		return "", errors.New("no text scripted")
	}
	v := s.areas[0]
	s.areas = s.areas[1:]
	return v, nil
}

func (s *scriptedDriver) Info(_ context.Context, msg string) error {
	s.infos = append(s.infos, msg)
	return nil
}

func newEditor(t *testing.T, driver *scriptedDriver) (*Editor, *testsupport.FakeBackend, *data.ObjectEditController) {
	t.Helper()
	return newQueuedEditor(t, driver, nil)
}

// newQueuedEditor routes controller notifications through queue when it is
// not nil.
func newQueuedEditor(t *testing.T, driver *scriptedDriver, queue *Queue) (*Editor, *testsupport.FakeBackend, *data.ObjectEditController) {
	t.Helper()
	quiet := log.New(&bytes.Buffer{}, "", 0)
	backend := testsupport.NewUserBackend()
	obj, err := proxy.NewFactory(backend, proxy.WithDebounce(0), proxy.WithLogger(quiet)).
		Open(context.Background(), proxy.OpenRequest{DN: testsupport.UserDN})
	require.NoError(t, err)

	session := engine.NewSession(engine.WithLogger(quiet))
	tpl, err := session.Compile("user", []byte(editorTemplate))
	require.NoError(t, err)
	root := engine.NewContainer()
	ectx, err := session.NewContext(tpl, root, "User")
	require.NoError(t, err)
	root.Appear()

	ctrlOpts := []data.ControllerOption{data.WithControllerLogger(quiet)}
	if queue != nil {
		ctrlOpts = append(ctrlOpts, data.WithDispatcher(queue.Dispatch))
	}
	ctrl, err := data.NewObjectEditController(obj, []*engine.Context{ectx}, ctrlOpts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ctrl.Close(context.Background()) })
	return NewEditor(ctrl, WithDriver(driver), WithQueue(queue)), backend, ctrl
}

func TestEditorEditSaveQuit(t *testing.T) {
	driver := &scriptedDriver{
		selects: []string{MenuEdit, "sn", MenuSave, MenuQuit},
		inputs:  []string{"Smith"},
	}
	editor, backend, ctrl := newEditor(t, driver)

	require.NoError(t, editor.Run(context.Background()))

	assert.Equal(t, proxy.Values{"Smith"}, backend.Remote(testsupport.UserDN, "sn"))
	require.Len(t, backend.CallsTo("dispatchObjectMethod"), 1)
	assert.False(t, ctrl.Modified())
	assert.Contains(t, driver.infos, "saved")
	assert.Contains(t, driver.asked, "sn *")
}

func TestEditorOffersOnlyEditableAttributes(t *testing.T) {
	editor, _, _ := newEditor(t, &scriptedDriver{})
	// uid is read-only, uidNumber belongs to the detached PosixUser.
	assert.Equal(t, []string{"givenName", "mail", "sn"}, editor.editablePaths())
}

func TestEditorMultivalueEdit(t *testing.T) {
	driver := &scriptedDriver{
		selects: []string{MenuEdit, "mail"},
		areas:   []string{"alice@example.net\n\n a.doe@example.net \n"},
	}
	editor, backend, ctrl := newEditor(t, driver)

	err := editor.Run(context.Background())
	assert.ErrorIs(t, err, ErrAborted)

	ctrl.Object().WaitWriteBacks()
	assert.Equal(t, proxy.Values{"alice@example.net", "a.doe@example.net"}, backend.Remote(testsupport.UserDN, "mail"))
	assert.True(t, ctrl.Modified())
}

func TestEditorAddExtensionWithDependencies(t *testing.T) {
	driver := &scriptedDriver{
		selects:  []string{MenuExtend, "SambaUser", MenuEdit, "uidNumber", MenuQuit},
		confirms: []bool{true, true},
		inputs:   []string{"1000"},
	}
	editor, backend, ctrl := newEditor(t, driver)

	require.NoError(t, editor.Run(context.Background()))

	var extended []any
	for _, c := range backend.CallsTo("dispatchObjectMethod") {
		extended = append(extended, c.Args...)
	}
	assert.Equal(t, []any{"PosixUser", "SambaUser"}, extended)
	assert.Contains(t, driver.asked, "SambaUser requires PosixUser. Add them too?")

	ctrl.Object().WaitWriteBacks()
	assert.Equal(t, proxy.Values{int64(1000)}, backend.Remote(testsupport.UserDN, "uidNumber"))
	assert.Contains(t, driver.asked, "Discard unsaved changes?")
}

func TestEditorRejectsInvalidInput(t *testing.T) {
	driver := &scriptedDriver{
		selects: []string{MenuExtend, "PosixUser", MenuEdit, "uidNumber"},
		inputs:  []string{"many"},
	}
	editor, _, _ := newEditor(t, driver)

	err := editor.Run(context.Background())
	assert.ErrorIs(t, err, ErrAborted)

	var sawError bool
	for _, msg := range driver.infos {
		if strings.Contains(msg, `"many" is not an integer`) {
			sawError = true
		}
	}
	assert.True(t, sawError, "infos: %v", driver.infos)
}

func TestEditorQuitKeepsEditingWhenDeclined(t *testing.T) {
	driver := &scriptedDriver{
		selects:  []string{MenuEdit, "givenName", MenuQuit, MenuQuit},
		inputs:   []string{"Ally"},
		confirms: []bool{false, true},
	}
	editor, _, _ := newEditor(t, driver)

	require.NoError(t, editor.Run(context.Background()))
	assert.Empty(t, driver.selects)
}

func TestEditorAppliesQueuedRemoteChanges(t *testing.T) {
	queue := NewQueue()
	driver := &scriptedDriver{selects: []string{MenuQuit}}
	editor, backend, ctrl := newQueuedEditor(t, driver, queue)

	backend.SetRemote(testsupport.UserDN, "givenName", proxy.Values{"Alicia"})
	done := make(chan error, 1)
	go func() { done <- ctrl.Object().Refresh(context.Background()) }()
	require.NoError(t, <-done)

	given, ok := ctrl.Contexts()[0].Widget("givenName")
	require.True(t, ok)
	assert.Equal(t, "Alice", given.Value())
	assert.NotZero(t, queue.Len())

	require.NoError(t, editor.Run(context.Background()))
	assert.Zero(t, queue.Len())
	assert.Equal(t, "Alicia", given.Value())
}
