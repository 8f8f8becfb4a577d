package engine

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestPropertyKindCoerce(t *testing.T) {
	cases := []struct {
		kind    PropertyKind
		in      any
		want    any
		wantErr bool
	}{
		{kind: KindInt, in: float64(3), want: 3},
		{kind: KindInt, in: 2.5, wantErr: true},
		{kind: KindNumber, in: 2, want: float64(2)},
		{kind: KindBool, in: "true", wantErr: true},
		{kind: KindString, in: "x", want: "x"},
		{kind: KindStringList, in: []any{"a", "b"}, want: []string{"a", "b"}},
		{kind: KindStringList, in: []any{"a", 1.0}, wantErr: true},
		{kind: KindMap, in: map[string]any{"k": "v"}, want: map[string]any{"k": "v"}},
		{kind: KindAny, in: []any{1.0}, want: []any{1.0}},
	}
	for _, tc := range cases {
		got, err := tc.kind.coerce(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("%s: expected error for %#v", tc.kind, tc.in)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%s: coerce %#v: %v", tc.kind, tc.in, err)
		}
		if diff := cmp.Diff(tc.want, got); diff != "" {
			t.Fatalf("%s: mismatch (-want +got):\n%s", tc.kind, diff)
		}
	}
}

func TestWidget_DefaultsAndSet(t *testing.T) {
	catalog := NewClassCatalog()
	class, ok := catalog.Lookup("gosa.ui.TextField")
	if !ok {
		t.Fatalf("expected qualified class name to resolve")
	}
	w := NewWidget(class)
	if v, _ := w.Property("enabled"); v != true || !w.Enabled() {
		t.Fatalf("expected enabled default, got %v", v)
	}
	if w.ID == "" {
		t.Fatalf("expected widget id")
	}

	if err := w.Set("enabled", false); err != nil {
		t.Fatalf("set enabled: %v", err)
	}
	if w.Enabled() {
		t.Fatalf("expected widget disabled")
	}
	if err := w.Set("visibility", "excluded"); err != nil {
		t.Fatalf("set visibility: %v", err)
	}
	if w.Visible() {
		t.Fatalf("expected widget hidden")
	}

	err := w.Set("bogus", 1)
	var cfg *ConfigurationError
	if !errors.As(err, &cfg) {
		t.Fatalf("expected ConfigurationError, got %v", err)
	}
}

func TestWidget_ValueListeners(t *testing.T) {
	w := NewWidget(&Class{Name: "Test", Properties: map[string]PropertySpec{"value": {}}})
	var calls [][2]any
	stop := w.OnValueChange(func(old, new any) {
		calls = append(calls, [2]any{old, new})
	})

	w.SetValue([]any{"Alice"})
	w.SetValue([]any{"Alice"})
	if err := w.Set("value", "Bob"); err != nil {
		t.Fatalf("set value: %v", err)
	}
	stop()
	w.SetValue("Carol")

	want := [][2]any{{nil, []any{"Alice"}}, {[]any{"Alice"}, "Bob"}}
	if diff := cmp.Diff(want, calls); diff != "" {
		t.Fatalf("listener calls mismatch (-want +got):\n%s", diff)
	}
}

func TestWidget_AddReparents(t *testing.T) {
	a, b := NewContainer(), NewContainer()
	child := NewWidget(&Class{Name: "Leaf"})

	a.Add(child, map[string]any{"flex": 1})
	b.Add(child, nil)

	if len(a.Children()) != 0 || len(b.Children()) != 1 {
		t.Fatalf("expected child moved: a=%d b=%d", len(a.Children()), len(b.Children()))
	}
	if child.Parent() != b {
		t.Fatalf("expected new parent")
	}
	if child.AddOptions["flex"] != 1 {
		t.Fatalf("expected add options retained when none supplied")
	}
}

func TestSymbolTable(t *testing.T) {
	table := NewSymbolTable()
	first, second := NewContainer(), NewContainer()

	table.Define("@box", first)
	table.Define("box", second)
	got, ok := table.Widget("@box")
	if !ok || got != second {
		t.Fatalf("expected redefinition to overwrite")
	}
	if _, ok := table.Form("box"); ok {
		t.Fatalf("expected widget symbol not to resolve as form")
	}
	form := &Form{Widget: first}
	table.Define("f", form)
	if w, ok := table.Widget("f"); !ok || w != first {
		t.Fatalf("expected form symbol to resolve to its widget")
	}
	table.Remove("box")
	if diff := cmp.Diff([]string{"f"}, table.Names()); diff != "" {
		t.Fatalf("names mismatch (-want +got):\n%s", diff)
	}
}

func TestWidgetRegistry(t *testing.T) {
	r := NewWidgetRegistry()
	field, label, other := NewContainer(), NewContainer(), NewContainer()

	if err := r.Register("cn", field); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := r.Register("cn", field); err != nil {
		t.Fatalf("re-registering the same widget should be a no-op: %v", err)
	}
	if err := r.Register("cn", other); err == nil {
		t.Fatalf("expected duplicate primary widget to fail")
	}
	if err := r.RegisterBuddy("cn", label); err != nil {
		t.Fatalf("register buddy: %v", err)
	}
	if err := r.RegisterBuddy("sn", other); err != nil {
		t.Fatalf("register buddy: %v", err)
	}

	if n := r.LinkBuddies(); n != 1 {
		t.Fatalf("expected one link, got %d", n)
	}
	if label.Buddy != field || other.Buddy != nil {
		t.Fatalf("unexpected buddy links")
	}
}

func TestClassCatalog_Resolve(t *testing.T) {
	catalog := NewClassCatalog()
	catalog.MustRegister(&Class{Name: "DateField", Properties: map[string]PropertySpec{"value": {Kind: KindString}}})
	catalog.RegisterMatcher("DateField", 95, func(h FieldHints) bool { return h.Type == "date" })

	cases := []struct {
		hints FieldHints
		want  string
	}{
		{hints: FieldHints{Type: "boolean"}, want: ClassCheckBox},
		{hints: FieldHints{Type: "boolean", Multivalue: true}, want: ClassMultiEdit},
		{hints: FieldHints{Type: "string", Enum: []any{"a"}}, want: ClassSelectBox},
		{hints: FieldHints{Type: "date"}, want: "DateField"},
		{hints: FieldHints{Type: "text"}, want: ClassTextArea},
		{hints: FieldHints{}, want: ClassTextField},
	}
	for _, tc := range cases {
		got, ok := catalog.Resolve(tc.hints)
		if !ok || got != tc.want {
			t.Fatalf("resolve %+v: want %s, got %s (ok=%v)", tc.hints, tc.want, got, ok)
		}
	}

	if err := catalog.Register(&Class{Name: ClassLabel}); err == nil {
		t.Fatalf("expected duplicate class registration to fail")
	}
}
