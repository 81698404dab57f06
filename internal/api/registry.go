package api

import (
	"net/http"

	"github.com/spf13/cobra"
)

type entry struct {
	ep    Endpoint
	group string
}

// Registry holds the endpoints served by examtile and the CLI group each
// belongs to.
type Registry struct {
	entries []entry
	groups  []Group
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds endpoints whose commands sit directly under `examtile api`.
func (r *Registry) Register(eps ...Endpoint) {
	for _, ep := range eps {
		r.entries = append(r.entries, entry{ep: ep})
	}
}

// RegisterGroup adds endpoints whose commands sit under `examtile api <g.Name>`.
func (r *Registry) RegisterGroup(g Group, eps ...Endpoint) {
	r.groups = append(r.groups, g)
	for _, ep := range eps {
		r.entries = append(r.entries, entry{ep: ep, group: g.Name})
	}
}

// RegisterRoutes adds every route to mux. requireInit wraps the handlers of
// endpoints that need a fully initialized server.
func (r *Registry) RegisterRoutes(mux *http.ServeMux, requireInit func(http.HandlerFunc) http.HandlerFunc) {
	for _, e := range r.entries {
		method, path, handler := e.ep.Route()
		if e.ep.RequiresInit() {
			handler = requireInit(handler)
		}
		mux.HandleFunc(method+" "+path, handler)
	}
}

// Routes lists the "METHOD /path" patterns in registration order.
func (r *Registry) Routes() []string {
	routes := make([]string, 0, len(r.entries))
	for _, e := range r.entries {
		method, path, _ := e.ep.Route()
		routes = append(routes, method+" "+path)
	}
	return routes
}

// Commands returns the `examtile api` subcommands: one per ungrouped
// endpoint, then one per group holding its endpoints' commands. Endpoints
// without a command are skipped, as are groups left empty.
func (r *Registry) Commands(getServerURL func() string) []*cobra.Command {
	var cmds []*cobra.Command
	byGroup := make(map[string]*cobra.Command, len(r.groups))
	for _, g := range r.groups {
		byGroup[g.Name] = &cobra.Command{Use: g.Name, Short: g.Short}
	}

	for _, e := range r.entries {
		cmd := e.ep.Command(getServerURL)
		if cmd == nil {
			continue
		}
		if parent, ok := byGroup[e.group]; ok {
			parent.AddCommand(cmd)
			continue
		}
		cmds = append(cmds, cmd)
	}

	for _, g := range r.groups {
		if parent := byGroup[g.Name]; parent.HasSubCommands() {
			cmds = append(cmds, parent)
		}
	}
	return cmds
}
