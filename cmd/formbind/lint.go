package main

import (
	"flag"
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"
	"sort"

	formbind "github.com/goliatone/go-formbind"
	"github.com/goliatone/go-formbind/pkg/engine"
)

type violation struct {
	source   string
	template string
	message  string
	warning  bool
}

func (v violation) String() string {
	level := "error"
	if v.warning {
		level = "warning"
	}
	return fmt.Sprintf("%s: %s: %s: %s", v.source, v.template, level, v.message)
}

func runLint(args []string, stderr io.Writer) error {
	flags := flag.NewFlagSet("lint", flag.ContinueOnError)
	strict := flags.Bool("strict", false, "treat undeclared properties and warnings as errors")
	flags.Usage = func() {
		fmt.Fprintf(flags.Output(), "Usage: formbind lint [-strict] [dirs...]\n\nCompile every template and report build errors and consistency warnings.\nWithout dirs the embedded templates are checked.\n")
	}
	if err := flags.Parse(args); err != nil {
		return err
	}

	sources := map[string]fs.FS{}
	if flags.NArg() == 0 {
		sources["embedded"] = formbind.EmbeddedTemplates()
	}
	for _, dir := range flags.Args() {
		sources[dir] = os.DirFS(dir)
	}

	var found []violation
	for label, fsys := range sources {
		v, err := lintTemplates(label, fsys, *strict)
		if err != nil {
			return fmt.Errorf("lint %s: %w", label, err)
		}
		found = append(found, v...)
	}
	sort.Slice(found, func(i, j int) bool {
		if found[i].source == found[j].source {
			if found[i].template == found[j].template {
				return found[i].message < found[j].message
			}
			return found[i].template < found[j].template
		}
		return found[i].source < found[j].source
	})

	failed := 0
	for _, v := range found {
		fmt.Fprintln(stderr, v)
		if !v.warning || *strict {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d problem(s)", failed)
	}
	return nil
}

// lintTemplates compiles and builds every template of fsys.
func lintTemplates(label string, fsys fs.FS, strict bool) ([]violation, error) {
	var opts []engine.Option
	if strict {
		opts = append(opts, engine.WithStrictProperties())
	}
	opts = append(opts, engine.WithLogger(discardLogger()))
	session, err := formbind.NewSession(fsys, opts...)
	if err != nil {
		return nil, err
	}

	var out []violation
	for _, name := range session.TemplateNames() {
		tpl, err := session.Template(name)
		if err != nil {
			out = append(out, violation{source: label, template: name, message: err.Error()})
			continue
		}
		root := engine.NewContainer()
		ectx, err := session.NewContext(tpl, root, name)
		if err != nil {
			out = append(out, violation{source: label, template: name, message: err.Error()})
			continue
		}
		root.Appear()
		if err := ectx.Err(); err != nil {
			out = append(out, violation{source: label, template: name, message: err.Error()})
		}
		for _, w := range ectx.Warnings() {
			out = append(out, violation{source: label, template: name, message: w.String(), warning: true})
		}
		ectx.Dispose()
	}
	return out, nil
}

func discardLogger() *log.Logger { return log.New(io.Discard, "", 0) }
