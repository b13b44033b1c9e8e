package active

import (
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/btroidl/ivre/internal/codec"
	"github.com/btroidl/ivre/internal/doc"
	"github.com/btroidl/ivre/internal/filter"
)

var (
	// ErrNoPortCountBound rejects an open port count search with
	// neither bound set.
	ErrNoPortCountBound = errors.New("open port count search needs at least one bound")
	// ErrScriptValuesNeedName rejects a script payload search without
	// an exact script name to resolve the payload key.
	ErrScriptValuesNeedName = errors.New("script payload search needs an exact script name")
)

// PseudoPortHost is the port number of the record entry carrying
// host-level script results.
const PseudoPortHost = -1

// Host matches one address.
func Host(addr codec.Addr, neg bool) filter.Expr {
	if neg {
		return filter.Ne("addr", addr)
	}
	return filter.Eq("addr", addr)
}

// Hosts matches any of the given addresses.
func Hosts(addrs []codec.Addr, neg bool) filter.Expr {
	vals := make([]any, len(addrs))
	for i, a := range addrs {
		vals[i] = a
	}
	e := filter.OneOf("addr", vals...)
	if neg {
		return filter.Not(e)
	}
	return e
}

// Range matches addresses in the inclusive range [start, stop].
func Range(start, stop codec.Addr, neg bool) filter.Expr {
	e := filter.And(filter.Ge("addr", start), filter.Le("addr", stop))
	if neg {
		return filter.Not(e)
	}
	return e
}

// IPv4 matches hosts whose address lies in the IPv4-mapped range.
func IPv4() filter.Expr {
	return filter.And(
		filter.Ge("addr", codec.MinIPv4),
		filter.Le("addr", codec.MaxIPv4),
	)
}

// None matches no host.
func None() filter.Expr { return filter.None() }

// ID matches hosts by record identifier.
func ID(ids []string, neg bool) filter.Expr {
	if len(ids) == 1 {
		if neg {
			return filter.Ne(doc.IDField, ids[0])
		}
		return filter.Eq(doc.IDField, ids[0])
	}
	vals := make([]any, len(ids))
	for i, id := range ids {
		vals[i] = id
	}
	e := filter.OneOf(doc.IDField, vals...)
	if neg {
		return filter.Not(e)
	}
	return e
}

// SchemaVersion matches hosts on their record schema version; a negative
// version only requires the field to be present.
func SchemaVersion(version int) filter.Expr {
	if version < 0 {
		return filter.Exists("schema_version")
	}
	return filter.Eq("schema_version", int64(version))
}

// Domain matches hosts with a name under the given domain.
func Domain(name filter.Match, neg bool) filter.Expr {
	e := filter.AnyElem("hostnames", name.InArray("domains", false))
	if neg {
		return filter.Not(e)
	}
	return e
}

// Hostname matches hosts on a resolved name.
func Hostname(name filter.Match, neg bool) filter.Expr {
	e := filter.AnyElem("hostnames", name.Expr("name"))
	if neg {
		return filter.Not(e)
	}
	return e
}

// Category matches hosts tagged with a category.
func Category(cat filter.Match, neg bool) filter.Expr {
	return cat.InArray("categories", neg)
}

// Source matches hosts on the scan source label.
func Source(src filter.Match, neg bool) filter.Expr {
	return src.ExprNeg("source", neg)
}

// Country matches hosts located in any of the given country codes.
func Country(codes []string, neg bool) filter.Expr {
	if len(codes) == 1 {
		if neg {
			return filter.Ne("infos.country_code", codes[0])
		}
		return filter.Eq("infos.country_code", codes[0])
	}
	vals := make([]any, len(codes))
	for i, c := range codes {
		vals[i] = c
	}
	e := filter.OneOf("infos.country_code", vals...)
	if neg {
		return filter.Not(e)
	}
	return e
}

// City matches hosts on their resolved city.
func City(city filter.Match, neg bool) filter.Expr {
	return city.ExprNeg("infos.city", neg)
}

// HasLocation matches hosts carrying geographic coordinates.
func HasLocation(neg bool) filter.Expr {
	e := filter.Exists("infos.coordinates")
	if neg {
		return filter.Not(e)
	}
	return e
}

// ASNum matches hosts announced by any of the given AS numbers.
func ASNum(nums []int, neg bool) filter.Expr {
	if len(nums) == 1 {
		if neg {
			return filter.Ne("infos.as_num", int64(nums[0]))
		}
		return filter.Eq("infos.as_num", int64(nums[0]))
	}
	vals := make([]any, len(nums))
	for i, n := range nums {
		vals[i] = int64(n)
	}
	e := filter.OneOf("infos.as_num", vals...)
	if neg {
		return filter.Not(e)
	}
	return e
}

// ASName matches hosts on the name of the announcing AS.
func ASName(name filter.Match, neg bool) filter.Expr {
	return name.ExprNeg("infos.as_name", neg)
}

// Port matches hosts exposing a (port, protocol) pair in the given
// state. Pass PseudoPortHost to select the host-level entry. Negation
// keeps hosts whose pair is either recorded in a different state or
// absent from an otherwise present port list.
func Port(port int, protocol, state string, neg bool) filter.Expr {
	if port == PseudoPortHost {
		if neg {
			return filter.AnyElem("ports", filter.Gt("port", int64(0)))
		}
		return filter.AnyElem("ports", filter.Eq("port", int64(PseudoPortHost)))
	}
	pair := filter.And(
		filter.Eq("port", int64(port)),
		filter.Eq("protocol", protocol),
	)
	if neg {
		return filter.Or(
			filter.AnyElem("ports", filter.And(pair, filter.Ne("state_state", state))),
			filter.AllElem("ports", filter.Not(pair)),
		)
	}
	return filter.AnyElem("ports", filter.And(pair, filter.Eq("state_state", state)))
}

// PortsOther matches hosts with at least one port in the given state
// beyond those listed.
func PortsOther(ports []int, protocol, state string) filter.Expr {
	vals := make([]any, len(ports))
	for i, p := range ports {
		vals[i] = int64(p)
	}
	return filter.AnyElem("ports", filter.And(
		filter.Eq("protocol", protocol),
		filter.Eq("state_state", state),
		filter.Not(filter.OneOf("port", vals...)),
	))
}

// Ports matches hosts exposing every listed port in the given state;
// negated, hosts exposing none of them.
func Ports(ports []int, protocol, state string, neg bool) filter.Expr {
	terms := make([]filter.Expr, len(ports))
	for i, p := range ports {
		terms[i] = Port(p, protocol, state, false)
	}
	if neg {
		return filter.Not(filter.Or(terms...))
	}
	return filter.And(terms...)
}

// CountOpenPorts matches hosts whose open port count lies in
// [minN, maxN]; pass -1 to leave a bound open. At least one bound is
// required.
func CountOpenPorts(minN, maxN int, neg bool) (filter.Expr, error) {
	if minN < 0 && maxN < 0 {
		return nil, ErrNoPortCountBound
	}
	if minN == maxN {
		if neg {
			return filter.Ne("openports.count", int64(minN)), nil
		}
		return filter.Eq("openports.count", int64(minN)), nil
	}
	var terms []filter.Expr
	if minN >= 0 {
		if neg {
			terms = append(terms, filter.Lt("openports.count", int64(minN)))
		} else {
			terms = append(terms, filter.Ge("openports.count", int64(minN)))
		}
	}
	if maxN >= 0 {
		if neg {
			terms = append(terms, filter.Gt("openports.count", int64(maxN)))
		} else {
			terms = append(terms, filter.Le("openports.count", int64(maxN)))
		}
	}
	if neg {
		return filter.Or(terms...), nil
	}
	return filter.And(terms...), nil
}

// OpenPort matches hosts with at least one open port.
func OpenPort(neg bool) filter.Expr {
	e := filter.AnyElem("ports", filter.Eq("state_state", "open"))
	if neg {
		return filter.Not(e)
	}
	return e
}

// Service matches hosts exposing a port identified as a service,
// optionally narrowed by port number and protocol.
func Service(srv filter.Match, port int, protocol string) filter.Expr {
	var terms []filter.Expr
	if srv.IsSet() {
		terms = append(terms, srv.Expr("service_name"))
	} else {
		terms = append(terms, filter.Exists("service_name"))
	}
	if port >= 0 {
		terms = append(terms, filter.Eq("port", int64(port)))
	}
	if protocol != "" {
		terms = append(terms, filter.Eq("protocol", protocol))
	}
	return filter.AnyElem("ports", filter.And(terms...))
}

// Product matches hosts exposing a port identified as a product,
// optionally narrowed by version, service name, port and protocol.
func Product(product, version, service filter.Match, port int, protocol string) filter.Expr {
	terms := []filter.Expr{product.Expr("service_product")}
	if version.IsSet() {
		terms = append(terms, version.Expr("service_version"))
	}
	if service.IsSet() {
		terms = append(terms, service.Expr("service_name"))
	}
	if port >= 0 {
		terms = append(terms, filter.Eq("port", int64(port)))
	}
	if protocol != "" {
		terms = append(terms, filter.Eq("protocol", protocol))
	}
	return filter.AnyElem("ports", filter.And(terms...))
}

// ServiceHostname matches hosts whose service fingerprint reported a
// hostname.
func ServiceHostname(hostname filter.Match) filter.Expr {
	return filter.AnyElem("ports", hostname.Expr("service_hostname"))
}

// scriptAliases maps script names whose structured results are stored
// under another script's payload key.
var scriptAliases = map[string]string{
	"ssl-cacert": "ssl-cert",
}

// Script matches hosts on script results: the script name, its text
// output, and fields of its structured payload. Payload searches need an
// exact name to resolve the payload key. Without any constraint, hosts
// with any script result match.
func Script(name, output filter.Match, values map[string]filter.Match, neg bool) (filter.Expr, error) {
	var terms []filter.Expr
	if name.IsSet() {
		terms = append(terms, name.Expr("id"))
	}
	if output.IsSet() {
		terms = append(terms, output.Expr("output"))
	}
	if len(values) > 0 {
		key, ok := name.ExactValue()
		if !ok {
			return nil, ErrScriptValuesNeedName
		}
		if alias, found := scriptAliases[key]; found {
			key = alias
		}
		for fld, m := range values {
			terms = append(terms, m.Expr(key+"."+fld))
		}
	}
	var e filter.Expr
	if len(terms) == 0 {
		e = filter.AnyElem("ports", filter.Exists("scripts"))
	} else {
		e = filter.AnyElem("ports", filter.AnyElem("scripts", filter.And(terms...)))
	}
	if neg {
		return filter.Not(e), nil
	}
	return e, nil
}

// mustScript wraps Script for name-only searches, which cannot fail.
func mustScript(name string) filter.Expr {
	e, _ := Script(filter.Exact(name), filter.Match{}, nil, false)
	return e
}

// UserAgent matches hosts whose HTTP traffic revealed a client
// User-Agent, optionally on the agent string.
func UserAgent(ua filter.Match) filter.Expr {
	terms := []filter.Expr{filter.Eq("id", "http-user-agent")}
	if ua.IsSet() {
		terms = append(terms, ua.Expr("http-user-agent"))
	}
	return filter.AnyElem("ports", filter.AnyElem("scripts", filter.And(terms...)))
}

var hexValue = regexp.MustCompile(`^[0-9a-fA-F]+$`)

// ja3Field resolves a JA3 argument to the payload field it selects: a
// hex digest picks the matching fingerprint field, anything else
// searches the raw fingerprint text.
func ja3Field(m filter.Match) (string, filter.Match) {
	if s, ok := m.ExactValue(); ok && hexValue.MatchString(s) {
		switch len(s) {
		case 32:
			return "md5", filter.Exact(strings.ToLower(s))
		case 40:
			return "sha1", filter.Exact(strings.ToLower(s))
		case 64:
			return "sha256", filter.Exact(strings.ToLower(s))
		}
	}
	return "raw", m
}

// JA3Client matches hosts with an SSL client fingerprint, optionally
// on the fingerprint digest or raw value.
func JA3Client(valueOrHash filter.Match) filter.Expr {
	terms := []filter.Expr{filter.Eq("id", "ssl-ja3-client")}
	if valueOrHash.IsSet() {
		fld, m := ja3Field(valueOrHash)
		terms = append(terms, m.Expr("ssl-ja3-client."+fld))
	}
	return filter.AnyElem("ports", filter.AnyElem("scripts", filter.And(terms...)))
}

// JA3Server matches hosts with an SSL server fingerprint, optionally on
// the server fingerprint and on the client fingerprint that elicited it.
func JA3Server(valueOrHash, clientValueOrHash filter.Match) filter.Expr {
	terms := []filter.Expr{filter.Eq("id", "ssl-ja3-server")}
	if valueOrHash.IsSet() {
		fld, m := ja3Field(valueOrHash)
		terms = append(terms, m.Expr("ssl-ja3-server."+fld))
	}
	if clientValueOrHash.IsSet() {
		fld, m := ja3Field(clientValueOrHash)
		terms = append(terms, m.Expr("ssl-ja3-server.client."+fld))
	}
	return filter.AnyElem("ports", filter.AnyElem("scripts", filter.And(terms...)))
}

// SSHKey matches hosts advertising an SSH host key, optionally by key
// type ("rsa", "ed25519", ...).
func SSHKey(keyType string) filter.Expr {
	terms := []filter.Expr{filter.Eq("id", "ssh-hostkey")}
	if keyType != "" {
		terms = append(terms, filter.Eq("ssh-hostkey.type", "ssh-"+keyType))
	}
	return filter.AnyElem("ports", filter.AnyElem("scripts", filter.And(terms...)))
}

// File matches hosts exposing shared files, by file name and optionally
// restricted to the listing scripts named.
func File(fname filter.Match, scripts ...string) filter.Expr {
	var cond filter.Expr
	if fname.IsSet() {
		cond = fname.Expr("filename")
	} else {
		cond = filter.Exists("filename")
	}
	inner := filter.AnyElem("ls.volumes", filter.AnyElem("files", cond))
	var terms []filter.Expr
	switch len(scripts) {
	case 0:
	case 1:
		terms = append(terms, filter.Eq("id", scripts[0]))
	default:
		vals := make([]any, len(scripts))
		for i, s := range scripts {
			vals[i] = s
		}
		terms = append(terms, filter.OneOf("id", vals...))
	}
	terms = append(terms, inner)
	return filter.AnyElem("ports", filter.AnyElem("scripts", filter.And(terms...)))
}

// HTTPTitle matches hosts on the title of a served web page.
func HTTPTitle(title filter.Match) filter.Expr {
	return filter.AnyElem("ports", filter.AnyElem("scripts", filter.And(
		filter.OneOf("id", "http-title", "html-title"),
		title.Expr("output"),
	)))
}

// OS matches hosts whose OS detection names the given vendor, family or
// class.
func OS(txt filter.Match) filter.Expr {
	return filter.AnyElem("os.osclass", filter.Or(
		txt.Expr("vendor"),
		txt.Expr("osfamily"),
		txt.Expr("osclass"),
	))
}

// Webmin matches hosts serving Webmin's MiniServ without its usual
// extra info.
func Webmin() filter.Expr {
	return filter.AnyElem("ports", filter.And(
		filter.Eq("service_name", "http"),
		filter.Eq("service_product", "MiniServ"),
		filter.Ne("service_extrainfo", "Webmin httpd"),
	))
}

// X11 matches hosts exposing an X11 server that does not deny access.
func X11() filter.Expr {
	return filter.AnyElem("ports", filter.And(
		filter.Eq("service_name", "X11"),
		filter.Ne("service_extrainfo", "access denied"),
	))
}

// VsftpdBackdoor matches hosts running the backdoored vsftpd 2.3.4.
func VsftpdBackdoor() filter.Expr {
	return filter.AnyElem("ports", filter.And(
		filter.Eq("protocol", "tcp"),
		filter.Eq("state_state", "open"),
		filter.Eq("service_product", "vsftpd"),
		filter.Eq("service_version", "2.3.4"),
	))
}

var intersilVersionRe = regexp.MustCompile(
	`^0\.9(3([^0-9]|$)|4\.([0-9]|0[0-9]|1[0-1])([^0-9]|$))`,
)

// IntersilVuln matches hosts running Boa HTTPd versions vulnerable to
// the Intersil password reset flaw.
func IntersilVuln() filter.Expr {
	return filter.AnyElem("ports", filter.And(
		filter.Eq("protocol", "tcp"),
		filter.Eq("state_state", "open"),
		filter.Eq("service_product", "Boa HTTPd"),
		filter.Regex("service_version", intersilVersionRe),
	))
}

// DeviceType matches hosts on the device type of a service fingerprint.
func DeviceType(devtype filter.Match) filter.Expr {
	return filter.AnyElem("ports", devtype.Expr("service_devicetype"))
}

// DeviceTypes matches hosts whose service fingerprint names any of the
// device types.
func DeviceTypes(devtypes ...string) filter.Expr {
	vals := make([]any, len(devtypes))
	for i, d := range devtypes {
		vals[i] = d
	}
	return filter.AnyElem("ports", filter.OneOf("service_devicetype", vals...))
}

// NetDev matches hosts fingerprinted as network equipment.
func NetDev() filter.Expr {
	return DeviceTypes(
		"bridge",
		"broadband router",
		"firewall",
		"hub",
		"load balancer",
		"proxy server",
		"router",
		"switch",
		"WAP",
	)
}

// PhoneDev matches hosts fingerprinted as telephony equipment.
func PhoneDev() filter.Expr {
	return DeviceTypes(
		"PBX",
		"phone",
		"telecom-misc",
		"VoIP adapter",
		"VoIP phone",
	)
}

// LDAPAnon matches hosts whose LDAP service allows anonymous binds.
func LDAPAnon() filter.Expr {
	return filter.AnyElem("ports", filter.Eq("service_extrainfo", "Anonymous bind OK"))
}

// Vuln matches hosts with reported vulnerabilities, optionally on the
// vulnerability identifier and status.
func Vuln(vulnid, status filter.Match) filter.Expr {
	var terms []filter.Expr
	if status.IsSet() {
		terms = append(terms, status.Expr("vulns.status"))
	}
	if vulnid.IsSet() {
		terms = append(terms, vulnid.Expr("vulns.id"))
	}
	var cond filter.Expr
	if len(terms) == 0 {
		cond = filter.Exists("vulns.id")
	} else {
		cond = filter.And(terms...)
	}
	return filter.AnyElem("ports", filter.AnyElem("scripts", cond))
}

// CPE matches hosts on their CPE inventory by type (a, o or h), vendor,
// product and version. Without any constraint, hosts with any CPE match.
func CPE(cpeType, vendor, product, version filter.Match) filter.Expr {
	var terms []filter.Expr
	for _, fv := range []struct {
		field string
		m     filter.Match
	}{
		{"type", cpeType},
		{"vendor", vendor},
		{"product", product},
		{"version", version},
	} {
		if fv.m.IsSet() {
			terms = append(terms, fv.m.Expr(fv.field))
		}
	}
	if len(terms) == 0 {
		return filter.Exists("cpes")
	}
	return filter.AnyElem("cpes", filter.And(terms...))
}

// TimeAgo matches hosts scanned within delta of now; neg inverts to
// hosts scanned earlier.
func TimeAgo(delta time.Duration, neg bool) filter.Expr {
	tstamp := time.Now().Add(-delta).Unix()
	if neg {
		return filter.Lt("endtime", tstamp)
	}
	return filter.Ge("endtime", tstamp)
}

// TimeRange matches hosts whose scan window overlaps [start, stop].
func TimeRange(start, stop any, neg bool) (filter.Expr, error) {
	from, err := codec.ToTimestamp(start)
	if err != nil {
		return nil, err
	}
	to, err := codec.ToTimestamp(stop)
	if err != nil {
		return nil, err
	}
	if neg {
		return filter.Or(
			filter.Lt("endtime", from),
			filter.Gt("starttime", to),
		), nil
	}
	return filter.And(
		filter.Ge("endtime", from),
		filter.Le("starttime", to),
	), nil
}

// Hop matches hosts whose traceroute crosses an address, optionally at
// one TTL; pass a negative ttl to leave it unconstrained.
func Hop(addr codec.Addr, ttl int, neg bool) filter.Expr {
	terms := []filter.Expr{filter.Eq("ipaddr", addr)}
	if ttl >= 0 {
		terms = append(terms, filter.Eq("ttl", int64(ttl)))
	}
	e := filter.AnyElem("traces", filter.AnyElem("hops", filter.And(terms...)))
	if neg {
		return filter.Not(e)
	}
	return e
}

// HopDomain matches hosts whose traceroute crosses a name under the
// given domain.
func HopDomain(domain filter.Match, neg bool) filter.Expr {
	e := filter.AnyElem("traces", filter.AnyElem("hops", domain.InArray("domains", false)))
	if neg {
		return filter.Not(e)
	}
	return e
}

// HopName matches hosts whose traceroute crosses a resolved host name.
func HopName(name filter.Match, neg bool) filter.Expr {
	e := filter.AnyElem("traces", filter.AnyElem("hops", name.Expr("host")))
	if neg {
		return filter.Not(e)
	}
	return e
}
