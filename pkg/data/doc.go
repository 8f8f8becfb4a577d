// Package data ties template contexts to an open object: it tracks field
// modifications, orders and checks extensions, collects actions and errors,
// and coordinates one edit session through ObjectEditController.
package data
