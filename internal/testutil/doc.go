// Package testutil contains helper builders and a scripted reasoner used
// across tests to drive the adapter workflow into specific phases. They are
// not intended for production backends.
package testutil
