// Package engine interprets form templates into live widget trees.
//
// A template is a JSON (or YAML) document describing nested widget classes,
// layouts, visibility rules, and model-path bindings. Compile rewrites the
// translation markers (`tr("...")`) found in the raw text into localized
// strings and parses the result strictly into a Node tree. A Context then owns
// one template instance: it processes the root `extensions` eagerly, defers
// every other widget until the root container first appears, and links label
// ("buddy") widgets to their inputs once the tree exists.
//
// Widgets are plain in-memory components. Nothing in this package renders or
// lays them out; callers bind them to an object proxy (see pkg/data) or dump
// them for inspection (see pkg/render).
//
// All state owned by a Context is expected to be mutated from a single
// goroutine. The SymbolTable shared by a Session is synchronised so several
// contexts can be processed concurrently.
package engine
