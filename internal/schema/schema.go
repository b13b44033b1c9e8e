// Package schema declares which dotted record paths hold arrays.
//
// Every component that walks a record (filter evaluation, value extraction,
// projection) consults a Registry before descending a path segment: when the
// path accumulated so far is registered as a list field, the walker maps
// over each element instead of descending directly. Unknown paths are plain
// (non-array) fields.
//
// Registries are immutable after construction. The two concrete registries,
// one for host records and one for passive records, are package-level and
// shared; they must never be mutated.
package schema

// Registry is an immutable set of array-valued dotted paths.
type Registry struct {
	lists map[string]struct{}
}

// NewRegistry builds a registry from the given list-field paths.
func NewRegistry(paths ...string) *Registry {
	lists := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		lists[p] = struct{}{}
	}
	return &Registry{lists: lists}
}

// IsList reports whether the full dotted path is array-valued.
func (r *Registry) IsList(path string) bool {
	_, ok := r.lists[path]
	return ok
}

var hostRegistry = NewRegistry(
	"categories",
	"scanid",
	"cpes",
	"hostnames",
	"hostnames.domains",
	"openports.tcp.ports",
	"openports.udp.ports",
	"os.osclass",
	"os.osmatch",
	"ports",
	"ports.screenwords",
	"ports.scripts",
	"ports.scripts.fcrdns",
	"ports.scripts.http-headers",
	"ports.scripts.http-user-agent",
	"ports.scripts.ike-info.transforms",
	"ports.scripts.ike-info.vendor_ids",
	"ports.scripts.ls.volumes",
	"ports.scripts.ls.volumes.files",
	"ports.scripts.ssh-hostkey",
	"ports.scripts.ssl-ja3-client",
	"ports.scripts.ssl-ja3-server",
	"ports.scripts.vulns",
	"traces",
	"traces.hops",
)

var passiveRegistry = NewRegistry(
	"infos.domain",
	"infos.domaintarget",
	"infos.san",
)

// Hosts returns the registry for host scan records.
func Hosts() *Registry { return hostRegistry }

// Passives returns the registry for passive observation records.
func Passives() *Registry { return passiveRegistry }
