package data

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func indexOf(list []string, name string) int {
	for i, v := range list {
		if v == name {
			return i
		}
	}
	return -1
}

func TestExtensionFinderOrdered(t *testing.T) {
	f := NewExtensionFinder(nil, map[string][]string{"A": {"B"}, "B": {"C"}, "C": nil}, nil)
	got, err := f.Ordered()
	if err != nil {
		t.Fatalf("ordered: %v", err)
	}
	if diff := cmp.Diff([]string{"C", "B", "A"}, got); diff != "" {
		t.Fatalf("order mismatch (-want +got):\n%s", diff)
	}
}

func TestExtensionFinderOrderedRespectsTransitiveDeps(t *testing.T) {
	deps := map[string][]string{
		"SambaUser":   {"PosixUser"},
		"PosixUser":   nil,
		"MailAccount": nil,
		"Fax":         {"SambaUser", "MailAccount"},
		"Kerberos":    {"PosixUser"},
		"Zeta":        {"Fax"},
	}
	f := NewExtensionFinder(nil, deps, nil)
	order, err := f.Ordered()
	if err != nil {
		t.Fatalf("ordered: %v", err)
	}
	if len(order) != len(deps) {
		t.Fatalf("expected every extension once, got %v", order)
	}
	var check func(ext string, seen map[string]bool)
	check = func(ext string, seen map[string]bool) {
		for _, dep := range deps[ext] {
			if indexOf(order, dep) > indexOf(order, ext) {
				t.Fatalf("%s placed before its dependency %s: %v", ext, dep, order)
			}
			if !seen[dep] {
				seen[dep] = true
				check(dep, seen)
			}
		}
	}
	for ext := range deps {
		check(ext, map[string]bool{})
	}
}

func TestExtensionFinderDetectsCycles(t *testing.T) {
	f := NewExtensionFinder(nil, map[string][]string{"A": {"B"}, "B": {"C"}, "C": {"A"}}, nil)
	_, err := f.Ordered()
	if !errors.Is(err, ErrDependencyCycle) {
		t.Fatalf("expected cycle error, got %v", err)
	}
	if _, err := f.AddPlan("A"); !errors.Is(err, ErrDependencyCycle) {
		t.Fatalf("expected cycle error from plan, got %v", err)
	}
}

func TestExtensionFinderMissingDependencies(t *testing.T) {
	f := NewExtensionFinder(
		map[string]bool{"X": true, "W": true, "Y": true, "Z": false},
		map[string][]string{"X": {"Y", "Z"}, "W": {"Z"}, "Y": nil, "Z": nil},
		nil,
	)
	if diff := cmp.Diff([]string{"Z"}, f.MissingDependencies("X")); diff != "" {
		t.Fatalf("missing mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"Z"}, f.AllMissing()); diff != "" {
		t.Fatalf("all missing mismatch (-want +got):\n%s", diff)
	}
	if got := f.MissingDependencies("Y"); got != nil {
		t.Fatalf("expected no missing deps for Y, got %v", got)
	}
}

func TestExtensionFinderPartitions(t *testing.T) {
	attached := map[string]bool{"MailAccount": true, "PosixUser": true, "SambaUser": false, "Fax": false}
	deps := map[string][]string{"SambaUser": {"PosixUser"}}

	f := NewExtensionFinder(attached, deps, nil)
	if diff := cmp.Diff([]string{"Fax", "SambaUser"}, f.Addable()); diff != "" {
		t.Fatalf("addable mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"MailAccount", "PosixUser"}, f.Retractable()); diff != "" {
		t.Fatalf("retractable mismatch (-want +got):\n%s", diff)
	}

	allowed := map[string]bool{"MailAccount": true, "PosixUser": false, "SambaUser": true, "Fax": false}
	sse := NewExtensionFinder(attached, deps, allowed)
	if diff := cmp.Diff([]string{"SambaUser"}, sse.Addable()); diff != "" {
		t.Fatalf("allowed addable mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"MailAccount"}, sse.Retractable()); diff != "" {
		t.Fatalf("allowed retractable mismatch (-want +got):\n%s", diff)
	}
}

func TestExtensionFinderPlans(t *testing.T) {
	attached := map[string]bool{"PosixUser": false, "SambaUser": false, "Kerberos": false}
	deps := map[string][]string{"SambaUser": {"PosixUser"}, "Kerberos": {"SambaUser"}}
	f := NewExtensionFinder(attached, deps, nil)

	plan, err := f.AddPlan("Kerberos")
	if err != nil {
		t.Fatalf("add plan: %v", err)
	}
	if diff := cmp.Diff([]string{"PosixUser", "SambaUser", "Kerberos"}, plan); diff != "" {
		t.Fatalf("add plan mismatch (-want +got):\n%s", diff)
	}

	all := NewExtensionFinder(map[string]bool{"PosixUser": true, "SambaUser": true, "Kerberos": true}, deps, nil)
	if diff := cmp.Diff([]string{"Kerberos", "SambaUser"}, all.Dependents("PosixUser")); diff != "" {
		t.Fatalf("dependents mismatch (-want +got):\n%s", diff)
	}
	plan, err = all.RetractPlan("PosixUser")
	if err != nil {
		t.Fatalf("retract plan: %v", err)
	}
	if diff := cmp.Diff([]string{"Kerberos", "SambaUser", "PosixUser"}, plan); diff != "" {
		t.Fatalf("retract plan mismatch (-want +got):\n%s", diff)
	}
	if plan, _ := f.RetractPlan("PosixUser"); plan != nil {
		t.Fatalf("detached extension should have an empty retract plan, got %v", plan)
	}
}
