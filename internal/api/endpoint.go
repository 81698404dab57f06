package api

import (
	"net/http"

	"github.com/spf13/cobra"
)

// Endpoint pairs an HTTP route of `examtile serve` with the
// `examtile api` subcommand that calls it.
type Endpoint interface {
	// Route returns the method, the ServeMux path pattern and the handler.
	Route() (method, path string, handler http.HandlerFunc)

	// RequiresInit reports whether the handler needs the analyzer and the
	// provider registry. Such routes answer 503 until the server has them.
	RequiresInit() bool

	// Command builds the CLI command. getServerURL is read when the command
	// runs, after --server has been parsed. A nil command keeps the route
	// HTTP only.
	Command(getServerURL func() string) *cobra.Command
}

// Group places endpoints under one `examtile api <Name>` command.
type Group struct {
	Name  string
	Short string
}
