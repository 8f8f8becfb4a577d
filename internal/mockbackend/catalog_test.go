package mockbackend

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestLoadCatalogReadsTypes(t *testing.T) {
	cat, err := LoadCatalog(context.Background(), defaultSchema)
	if err != nil {
		t.Fatalf("load catalog: %v", err)
	}

	want := []string{"Group", "MailAccount", "PosixUser", "SambaUser", "User"}
	if diff := cmp.Diff(want, cat.Names()); diff != "" {
		t.Fatalf("names mismatch (-want +got):\n%s", diff)
	}

	user, ok := cat.Type("User")
	if !ok || user.Extension {
		t.Fatalf("User should be a base type: %+v", user)
	}
	if diff := cmp.Diff([]string{"commit", "extend", "lock", "retract", "unlock"}, user.Methods); diff != "" {
		t.Fatalf("methods mismatch (-want +got):\n%s", diff)
	}

	uid := user.Attributes["uid"]
	if !uid.ReadOnly || !uid.Mandatory || uid.Pattern == "" || uid.Type != "String" {
		t.Fatalf("unexpected uid meta: %+v", uid)
	}
	if got := user.Attributes["userPassword"].Type; got != "Password" {
		t.Fatalf("userPassword type = %q", got)
	}
	if got := user.Attributes["description"].Type; got != "Text" {
		t.Fatalf("description type = %q", got)
	}
	if got := user.Attributes["accountLocked"].Type; got != "Boolean" {
		t.Fatalf("accountLocked type = %q", got)
	}
	if got := len(user.Attributes["title"].Enum); got != 3 {
		t.Fatalf("title enum length = %d", got)
	}

	mail, _ := cat.Type("MailAccount")
	meta := mail.Attributes["mail"]
	if !meta.Multivalue || meta.Extension != "MailAccount" || meta.Pattern == "" {
		t.Fatalf("unexpected mail meta: %+v", meta)
	}

	samba, _ := cat.Type("SambaUser")
	if diff := cmp.Diff([]string{"PosixUser"}, samba.Requires); diff != "" {
		t.Fatalf("requires mismatch (-want +got):\n%s", diff)
	}

	var exts []string
	for _, ext := range cat.Extensions("User") {
		exts = append(exts, ext.Name)
	}
	if diff := cmp.Diff([]string{"MailAccount", "PosixUser", "SambaUser"}, exts); diff != "" {
		t.Fatalf("extensions mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadCatalogRejectsBrokenDocuments(t *testing.T) {
	cases := map[string]string{
		"empty": "",
		"no schemas": `openapi: 3.0.3
info: {title: x, version: "1"}
paths: {}
`,
		"unknown base": `openapi: 3.0.3
info: {title: x, version: "1"}
paths: {}
components:
  schemas:
    Posix:
      type: object
      x-formbind-kind: extension
      x-formbind-extends: Nope
`,
		"unknown dependency": `openapi: 3.0.3
info: {title: x, version: "1"}
paths: {}
components:
  schemas:
    User:
      type: object
    Samba:
      type: object
      x-formbind-kind: extension
      x-formbind-extends: User
      x-formbind-requires: [Posix]
`,
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := LoadCatalog(context.Background(), []byte(doc)); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}
