package active

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"strconv"
	"strings"

	"github.com/btroidl/ivre/internal/codec"
	"github.com/btroidl/ivre/internal/doc"
	"github.com/btroidl/ivre/internal/filter"
)

// ErrBadPseudoField rejects malformed aggregation field arguments.
var ErrBadPseudoField = errors.New("invalid aggregation field")

// aggregation is one resolved aggregation field: the filter restricting
// the scanned records, either a stored path for direct extraction or a
// custom extractor, and an optional transform applied to ranked values.
type aggregation struct {
	pre     filter.Expr
	field   string
	extract func(doc.Doc, func(any))
	output  func(any) any
}

func fieldAgg(path string) aggregation {
	return aggregation{pre: filter.Exists(path), field: path}
}

// TopValues ranks the most common values of a field or pseudo-field
// across matching hosts, highest count first, ties in first-seen order,
// at most topN entries. Pseudo-fields cover ports, services, products,
// CPEs, script payloads, certificates, domains and traceroute hops; any
// other name is read as a stored path.
func (db *DB) TopValues(field string, flt filter.Expr, topN int, opts GetOptions) ([]doc.TopValue, error) {
	if flt == nil {
		flt = filter.All()
	}
	agg, err := db.aggregationFor(field)
	if err != nil {
		return nil, err
	}
	recs, err := db.searchInternal(filter.And(flt, agg.pre), opts)
	if err != nil {
		return nil, err
	}
	counter := doc.NewCounter()
	for _, rec := range recs {
		rec = internal2host(rec)
		if agg.extract != nil {
			agg.extract(rec, func(v any) { counter.Add(v, 1) })
		} else {
			for v := range doc.Values(rec, agg.field, db.reg) {
				counter.Add(v, 1)
			}
		}
	}
	if err := counter.Err(); err != nil {
		return nil, err
	}
	top := counter.Top(topN)
	if agg.output != nil {
		for i := range top {
			top[i].Value = agg.output(top[i].Value)
		}
	}
	return top, nil
}

// aggregationFor resolves an aggregation field name to its pre-filter,
// extractor and output transform.
func (db *DB) aggregationFor(field string) (aggregation, error) {
	switch {
	case field == "category":
		return fieldAgg("categories"), nil

	case field == "country":
		return aggregation{
			pre: filter.Exists("infos.country_code"),
			extract: func(rec doc.Doc, emit func(any)) {
				infos, _ := rec["infos"].(doc.Doc)
				code, ok := infos["country_code"]
				if !ok {
					return
				}
				name, ok := infos["country_name"]
				if !ok {
					name = "?"
				}
				emit([]any{code, name})
			},
		}, nil

	case field == "city":
		return aggregation{
			pre: filter.And(
				filter.Exists("infos.country_code"),
				filter.Exists("infos.city"),
			),
			extract: func(rec doc.Doc, emit func(any)) {
				infos, _ := rec["infos"].(doc.Doc)
				emit([]any{infos["country_code"], infos["city"]})
			},
		}, nil

	case field == "asnum":
		return fieldAgg("infos.as_num"), nil

	case field == "as":
		return aggregation{
			pre: filter.Exists("infos.as_num"),
			extract: func(rec doc.Doc, emit func(any)) {
				infos, _ := rec["infos"].(doc.Doc)
				num, ok := infos["as_num"]
				if !ok {
					return
				}
				name, ok := infos["as_name"]
				if !ok {
					name = "?"
				}
				emit([]any{num, name})
			},
		}, nil

	case field == "net" || strings.HasPrefix(field, "net:"):
		bits := 24
		if _, arg, found := strings.Cut(field, ":"); found {
			var err error
			if bits, err = strconv.Atoi(arg); err != nil || bits < 0 || bits > 32 {
				return aggregation{}, fmt.Errorf("%w: %q", ErrBadPseudoField, field)
			}
		}
		return aggregation{
			pre: IPv4(),
			extract: func(rec doc.Doc, emit func(any)) {
				s, ok := rec["addr"].(string)
				if !ok {
					return
				}
				a, err := codec.ParseAddr(s)
				if err != nil {
					return
				}
				emit(fmt.Sprintf("%s/%d", a.MaskPrefix(bits), bits))
			},
		}, nil

	case field == "port" || strings.HasPrefix(field, "port:"):
		match := func(p doc.Doc) bool {
			_, ok := p["state_state"]
			return ok
		}
		if _, arg, found := strings.Cut(field, ":"); found {
			switch arg {
			case "open", "filtered", "closed":
				match = func(p doc.Doc) bool { return p["state_state"] == arg }
			default:
				match = func(p doc.Doc) bool { return p["service_name"] == arg }
			}
		}
		return aggregation{
			pre: filter.AnyElem("ports", filter.Exists("state_state")),
			extract: func(rec doc.Doc, emit func(any)) {
				for _, port := range subDocs(rec["ports"]) {
					if match(port) {
						emit([]any{protoOr(port), port["port"]})
					}
				}
			},
		}, nil

	case strings.HasPrefix(field, "portlist:"):
		state := strings.TrimPrefix(field, "portlist:")
		return aggregation{
			pre: filter.AnyElem("ports", filter.Exists("state_state")),
			extract: func(rec doc.Doc, emit func(any)) {
				var pairs [][]any
				for _, port := range subDocs(rec["ports"]) {
					if port["state_state"] == state {
						pairs = append(pairs, []any{protoOr(port), port["port"]})
					}
				}
				sort.SliceStable(pairs, func(i, j int) bool {
					return doc.CompareTuples(pairs[i], pairs[j]) < 0
				})
				val := make([]any, len(pairs))
				for i, p := range pairs {
					val[i] = p
				}
				emit(val)
			},
		}, nil

	case strings.HasPrefix(field, "countports:"):
		state := strings.TrimPrefix(field, "countports:")
		return aggregation{
			pre: filter.AnyElem("ports", filter.Exists("state_state")),
			extract: func(rec doc.Doc, emit func(any)) {
				n := 0
				for _, port := range subDocs(rec["ports"]) {
					if port["state_state"] == state {
						n++
					}
				}
				emit(n)
			},
		}, nil

	case field == "service":
		return aggregation{
			pre: OpenPort(false),
			extract: func(rec doc.Doc, emit func(any)) {
				for _, port := range subDocs(rec["ports"]) {
					if port["state_state"] == "open" {
						emit(port["service_name"])
					}
				}
			},
		}, nil

	case strings.HasPrefix(field, "service:"):
		portnum, err := strconv.Atoi(strings.TrimPrefix(field, "service:"))
		if err != nil {
			return aggregation{}, fmt.Errorf("%w: %q", ErrBadPseudoField, field)
		}
		return aggregation{
			pre: Port(portnum, "tcp", "open", false),
			extract: func(rec doc.Doc, emit func(any)) {
				for _, port := range subDocs(rec["ports"]) {
					if n, ok := doc.AsInt(port["port"]); ok && n == portnum &&
						port["state_state"] == "open" {
						emit(port["service_name"])
					}
				}
			},
		}, nil

	case field == "product":
		return aggregation{
			pre: OpenPort(false),
			extract: func(rec doc.Doc, emit func(any)) {
				for _, port := range subDocs(rec["ports"]) {
					if port["state_state"] == "open" {
						emit([]any{port["service_name"], port["service_product"]})
					}
				}
			},
		}, nil

	case strings.HasPrefix(field, "product:"):
		arg := strings.TrimPrefix(field, "product:")
		if portnum, err := strconv.Atoi(arg); err == nil {
			return aggregation{
				pre: Port(portnum, "tcp", "open", false),
				extract: func(rec doc.Doc, emit func(any)) {
					for _, port := range subDocs(rec["ports"]) {
						if n, ok := doc.AsInt(port["port"]); ok && n == portnum &&
							port["state_state"] == "open" {
							emit([]any{port["service_name"], port["service_product"]})
						}
					}
				},
			}, nil
		}
		return aggregation{
			pre: Service(filter.Exact(arg), -1, ""),
			extract: func(rec doc.Doc, emit func(any)) {
				for _, port := range subDocs(rec["ports"]) {
					if port["state_state"] == "open" && port["service_name"] == arg {
						emit([]any{port["service_name"], port["service_product"]})
					}
				}
			},
		}, nil

	case field == "version":
		return aggregation{
			pre: OpenPort(false),
			extract: func(rec doc.Doc, emit func(any)) {
				for _, port := range subDocs(rec["ports"]) {
					if port["state_state"] == "open" {
						emit([]any{
							port["service_name"],
							port["service_product"],
							port["service_version"],
						})
					}
				}
			},
		}, nil

	case strings.HasPrefix(field, "version:"):
		arg := strings.TrimPrefix(field, "version:")
		if portnum, err := strconv.Atoi(arg); err == nil {
			return aggregation{
				pre: Port(portnum, "tcp", "open", false),
				extract: func(rec doc.Doc, emit func(any)) {
					for _, port := range subDocs(rec["ports"]) {
						if n, ok := doc.AsInt(port["port"]); ok && n == portnum &&
							port["state_state"] == "open" {
							emit([]any{
								port["service_name"],
								port["service_product"],
								port["service_version"],
							})
						}
					}
				},
			}, nil
		}
		if service, product, found := strings.Cut(arg, ":"); found {
			return aggregation{
				pre: Product(filter.Exact(product), filter.Match{}, filter.Exact(service), -1, ""),
				extract: func(rec doc.Doc, emit func(any)) {
					for _, port := range subDocs(rec["ports"]) {
						if port["state_state"] == "open" &&
							port["service_name"] == service &&
							port["service_product"] == product {
							emit([]any{
								port["service_name"],
								port["service_product"],
								port["service_version"],
							})
						}
					}
				},
			}, nil
		}
		return aggregation{
			pre: Service(filter.Exact(arg), -1, ""),
			extract: func(rec doc.Doc, emit func(any)) {
				for _, port := range subDocs(rec["ports"]) {
					if port["state_state"] == "open" && port["service_name"] == arg {
						emit([]any{
							port["service_name"],
							port["service_product"],
							port["service_version"],
						})
					}
				}
			},
		}, nil

	case field == "cpe" || strings.HasPrefix(field, "cpe.") || strings.HasPrefix(field, "cpe:"):
		return cpeAggregation(field)

	case field == "devicetype":
		return fieldAgg("ports.service_devicetype"), nil

	case strings.HasPrefix(field, "devicetype:"):
		portnum, err := strconv.Atoi(strings.TrimPrefix(field, "devicetype:"))
		if err != nil {
			return aggregation{}, fmt.Errorf("%w: %q", ErrBadPseudoField, field)
		}
		return aggregation{
			pre: Port(portnum, "tcp", "open", false),
			extract: func(rec doc.Doc, emit func(any)) {
				for _, port := range subDocs(rec["ports"]) {
					if n, ok := doc.AsInt(port["port"]); ok && n == portnum &&
						port["state_state"] == "open" {
						emit(port["service_devicetype"])
					}
				}
			},
		}, nil

	case strings.HasPrefix(field, "smb."):
		var path string
		switch field {
		case "smb.dnsdomain":
			path = "ports.scripts.smb-os-discovery.domain_dns"
		case "smb.forest":
			path = "ports.scripts.smb-os-discovery.forest_dns"
		default:
			path = "ports.scripts.smb-os-discovery." + strings.TrimPrefix(field, "smb.")
		}
		return aggregation{pre: mustScript("smb-os-discovery"), field: path}, nil

	case field == "script":
		return fieldAgg("ports.scripts.id"), nil

	case strings.HasPrefix(field, "script:"):
		scriptid := strings.TrimPrefix(field, "script:")
		portnum := -1
		if prefix, rest, found := strings.Cut(scriptid, ":"); found {
			n, err := strconv.Atoi(prefix)
			if err != nil {
				return aggregation{}, fmt.Errorf("%w: %q", ErrBadPseudoField, field)
			}
			portnum, scriptid = n, rest
		}
		pre := mustScript(scriptid)
		if portnum >= 0 {
			pre = filter.And(pre, Port(portnum, "tcp", "open", false))
		}
		return aggregation{
			pre: pre,
			extract: func(rec doc.Doc, emit func(any)) {
				for _, port := range subDocs(rec["ports"]) {
					if portnum >= 0 {
						if n, ok := doc.AsInt(port["port"]); !ok || n != portnum {
							continue
						}
					}
					for _, script := range subDocs(port["scripts"]) {
						if script["id"] == scriptid {
							emit(script["output"])
						}
					}
				}
			},
		}, nil

	case field == "domains":
		return fieldAgg("hostnames.domains"), nil

	case strings.HasPrefix(field, "domains:"):
		level, err := strconv.Atoi(strings.TrimPrefix(field, "domains:"))
		if err != nil || level < 1 {
			return aggregation{}, fmt.Errorf("%w: %q", ErrBadPseudoField, field)
		}
		return aggregation{
			pre: filter.Exists("hostnames.domains"),
			extract: func(rec doc.Doc, emit func(any)) {
				for v := range doc.Values(rec, "hostnames.domains", db.reg) {
					if dom, ok := v.(string); ok && strings.Count(dom, ".") == level-1 {
						emit(dom)
					}
				}
			},
		}, nil

	case strings.HasPrefix(field, "cert."):
		sub := strings.TrimPrefix(field, "cert.")
		path := "ports.scripts.ssl-cert." + sub
		if sub != "issuer" && sub != "subject" {
			return fieldAgg(path), nil
		}
		return aggregation{
			pre: filter.Exists(path),
			extract: func(rec doc.Doc, emit func(any)) {
				for v := range doc.Values(rec, path, db.reg) {
					if dn, ok := v.(doc.Doc); ok {
						emit(sortedPairs(dn))
					}
				}
			},
			output: pairsToDoc,
		}, nil

	case field == "useragent":
		return aggregation{
			pre:   UserAgent(filter.Match{}),
			field: "ports.scripts.http-user-agent",
		}, nil

	case strings.HasPrefix(field, "useragent:"):
		m, err := filter.ParseMatch(strings.TrimPrefix(field, "useragent:"))
		if err != nil {
			return aggregation{}, err
		}
		return aggregation{
			pre: UserAgent(m),
			extract: func(rec doc.Doc, emit func(any)) {
				for v := range doc.Values(rec, "ports.scripts.http-user-agent", db.reg) {
					if ua, ok := v.(string); ok && m.MatchString(ua) {
						emit(ua)
					}
				}
			},
		}, nil

	case field == "ja3-client" ||
		strings.HasPrefix(field, "ja3-client.") || strings.HasPrefix(field, "ja3-client:"):
		name, value, err := splitAggValue(field)
		if err != nil {
			return aggregation{}, err
		}
		subfield := subfieldOr(name, "md5")
		subkey, match := ja3Field(value)
		return aggregation{
			pre: JA3Client(value),
			extract: func(rec doc.Doc, emit func(any)) {
				forScripts(rec, func(script doc.Doc) {
					for _, ja3 := range subDocs(script["ssl-ja3-client"]) {
						if value.IsSet() && !match.MatchString(anyString(ja3[subkey])) {
							continue
						}
						emit(ja3[subfield])
					}
				})
			},
		}, nil

	case field == "ja3-server" ||
		strings.HasPrefix(field, "ja3-server.") || strings.HasPrefix(field, "ja3-server:"):
		name, values := field, ""
		if i := strings.Index(field, ":"); i >= 0 {
			name, values = field[:i], field[i+1:]
		}
		var srv, cli filter.Match
		if values != "" {
			srvStr, cliStr, _ := strings.Cut(values, ":")
			var err error
			if srvStr != "" {
				if srv, err = filter.ParseMatch(srvStr); err != nil {
					return aggregation{}, err
				}
			}
			if cliStr != "" {
				if cli, err = filter.ParseMatch(cliStr); err != nil {
					return aggregation{}, err
				}
			}
		}
		subfield := subfieldOr(name, "md5")
		srvKey, srvMatch := ja3Field(srv)
		cliKey, cliMatch := ja3Field(cli)
		return aggregation{
			pre: JA3Server(srv, cli),
			extract: func(rec doc.Doc, emit func(any)) {
				forScripts(rec, func(script doc.Doc) {
					for _, ja3srv := range subDocs(script["ssl-ja3-server"]) {
						client, _ := ja3srv["client"].(doc.Doc)
						if srv.IsSet() && !srvMatch.MatchString(anyString(ja3srv[srvKey])) {
							continue
						}
						if cli.IsSet() && !cliMatch.MatchString(anyString(client[cliKey])) {
							continue
						}
						emit([]any{ja3srv[subfield], client[subfield]})
					}
				})
			},
		}, nil

	case field == "sshkey.bits":
		return aggregation{
			pre: SSHKey(""),
			extract: func(rec doc.Doc, emit func(any)) {
				forScripts(rec, func(script doc.Doc) {
					for _, key := range subDocs(script["ssh-hostkey"]) {
						emit([]any{key["type"], key["bits"]})
					}
				})
			},
		}, nil

	case strings.HasPrefix(field, "sshkey."):
		return aggregation{
			pre:   SSHKey(""),
			field: "ports.scripts.ssh-hostkey." + strings.TrimPrefix(field, "sshkey."),
		}, nil

	case field == "ike.vendor_ids":
		return aggregation{
			pre: mustScript("ike-info"),
			extract: func(rec doc.Doc, emit func(any)) {
				forScripts(rec, func(script doc.Doc) {
					info, _ := script["ike-info"].(doc.Doc)
					for _, vid := range subDocs(info["vendor_ids"]) {
						emit([]any{vid["value"], vid["name"]})
					}
				})
			},
		}, nil

	case field == "ike.transforms":
		return aggregation{
			pre: mustScript("ike-info"),
			extract: func(rec doc.Doc, emit func(any)) {
				forScripts(rec, func(script doc.Doc) {
					info, _ := script["ike-info"].(doc.Doc)
					for _, xfrm := range subDocs(info["transforms"]) {
						emit([]any{
							xfrm["Authentication"],
							xfrm["Encryption"],
							xfrm["GroupDesc"],
							xfrm["Hash"],
							xfrm["LifeDuration"],
							xfrm["LifeType"],
						})
					}
				})
			},
		}, nil

	case field == "ike.notification":
		return fieldAgg("ports.scripts.ike-info.notification_type"), nil

	case strings.HasPrefix(field, "ike."):
		return fieldAgg("ports.scripts.ike-info." + strings.TrimPrefix(field, "ike.")), nil

	case field == "httphdr":
		return aggregation{
			pre: mustScript("http-headers"),
			extract: func(rec doc.Doc, emit func(any)) {
				forScripts(rec, func(script doc.Doc) {
					for _, hdr := range subDocs(script["http-headers"]) {
						emit([]any{hdr["name"], hdr["value"]})
					}
				})
			},
		}, nil

	case strings.HasPrefix(field, "httphdr."):
		return fieldAgg("ports.scripts.http-headers." + strings.TrimPrefix(field, "httphdr.")), nil

	case strings.HasPrefix(field, "httphdr:"):
		name := strings.ToLower(strings.TrimPrefix(field, "httphdr:"))
		pre, err := Script(filter.Exact("http-headers"), filter.Match{},
			map[string]filter.Match{"name": filter.Exact(name)}, false)
		if err != nil {
			return aggregation{}, err
		}
		return aggregation{
			pre: pre,
			extract: func(rec doc.Doc, emit func(any)) {
				forScripts(rec, func(script doc.Doc) {
					for _, hdr := range subDocs(script["http-headers"]) {
						if strings.ToLower(anyString(hdr["name"])) == name {
							emit(hdr["value"])
						}
					}
				})
			},
		}, nil

	case strings.HasPrefix(field, "modbus."):
		return fieldAgg("ports.scripts.modbus-discover." + strings.TrimPrefix(field, "modbus.")), nil

	case strings.HasPrefix(field, "s7."):
		return fieldAgg("ports.scripts.s7-info." + strings.TrimPrefix(field, "s7.")), nil

	case strings.HasPrefix(field, "enip."):
		sub := strings.TrimPrefix(field, "enip.")
		if friendly, ok := enipFields[sub]; ok {
			sub = friendly
		}
		return fieldAgg("ports.scripts.enip-info." + sub), nil

	case strings.HasPrefix(field, "mongo.dbs."):
		return fieldAgg("ports.scripts.mongodb-databases." + strings.TrimPrefix(field, "mongo.dbs.")), nil

	case strings.HasPrefix(field, "vulns."):
		sub := strings.TrimPrefix(field, "vulns.")
		if sub == "id" {
			return fieldAgg("ports.scripts.vulns.id"), nil
		}
		return aggregation{
			pre: filter.Exists("ports.scripts.vulns." + sub),
			extract: func(rec doc.Doc, emit func(any)) {
				forScripts(rec, func(script doc.Doc) {
					for _, vuln := range subDocs(script["vulns"]) {
						emit([]any{vuln["id"], vuln[sub]})
					}
				})
			},
		}, nil

	case field == "file" ||
		strings.HasPrefix(field, "file.") || strings.HasPrefix(field, "file:"):
		fieldname := "filename"
		var scripts []string
		if spec, ok := strings.CutPrefix(field, "file:"); ok {
			if prefix, rest, found := strings.Cut(spec, "."); found {
				spec, fieldname = prefix, rest
			}
			scripts = strings.Split(spec, ",")
		} else if sub, ok := strings.CutPrefix(field, "file."); ok {
			fieldname = sub
		}
		return aggregation{
			pre: File(filter.Match{}, scripts...),
			extract: func(rec doc.Doc, emit func(any)) {
				forScripts(rec, func(script doc.Doc) {
					if scripts != nil && !slices.Contains(scripts, anyString(script["id"])) {
						return
					}
					ls, _ := script["ls"].(doc.Doc)
					for _, vol := range subDocs(ls["volumes"]) {
						for _, fil := range subDocs(vol["files"]) {
							emit(fil[fieldname])
						}
					}
				})
			},
		}, nil

	case field == "screenwords":
		return fieldAgg("ports.screenwords"), nil

	case field == "hop":
		return fieldAgg("traces.hops.ipaddr"), nil

	case strings.HasPrefix(field, "hop:") || strings.HasPrefix(field, "hop>"):
		ttl, err := strconv.Atoi(field[4:])
		if err != nil {
			return aggregation{}, fmt.Errorf("%w: %q", ErrBadPseudoField, field)
		}
		above := field[3] == '>'
		return aggregation{
			pre: filter.Exists("traces.hops.ipaddr"),
			extract: func(rec doc.Doc, emit func(any)) {
				for _, trace := range subDocs(rec["traces"]) {
					for _, hop := range subDocs(trace["hops"]) {
						n, _ := doc.AsInt(hop["ttl"])
						if above && n > ttl || !above && n == ttl {
							emit(hop["ipaddr"])
						}
					}
				}
			},
		}, nil
	}

	return fieldAgg(field), nil
}

// cpeAggregation handles "cpe", "cpe.<part>" and their ":<spec>" forms,
// where spec is up to type:vendor:product:version and part selects the
// last tuple element (by name or 1-based index, default version).
func cpeAggregation(field string) (aggregation, error) {
	parts := []string{"type", "vendor", "product", "version"}
	spec := strings.TrimPrefix(field, "cpe")
	var fltSpec string
	if i := strings.Index(spec, ":"); i >= 0 {
		spec, fltSpec = spec[:i], spec[i+1:]
	}
	part := "version"
	if name, ok := strings.CutPrefix(spec, "."); ok {
		part = name
	}
	if !slices.Contains(parts, part) {
		if n, err := strconv.Atoi(part); err == nil && n >= 1 && n <= len(parts) {
			part = parts[n-1]
		} else {
			part = "version"
		}
	}
	type constraint struct {
		key string
		m   filter.Match
	}
	var cpeflt []constraint
	if fltSpec != "" {
		for i, val := range strings.SplitN(fltSpec, ":", len(parts)) {
			m, err := filter.ParseMatch(val)
			if err != nil {
				return aggregation{}, err
			}
			cpeflt = append(cpeflt, constraint{parts[i], m})
		}
	}
	matchFor := func(key string) filter.Match {
		for _, c := range cpeflt {
			if c.key == key {
				return c.m
			}
		}
		return filter.Match{}
	}
	return aggregation{
		pre: CPE(matchFor("type"), matchFor("vendor"), matchFor("product"), matchFor("version")),
		extract: func(rec doc.Doc, emit func(any)) {
			for _, cpe := range subDocs(rec["cpes"]) {
				good := true
				for _, c := range cpeflt {
					if !c.m.MatchString(anyString(cpe[c.key])) {
						good = false
						break
					}
				}
				if !good {
					continue
				}
				var tuple []any
				for _, fld := range parts {
					tuple = append(tuple, cpe[fld])
					if fld == part {
						break
					}
				}
				emit(tuple)
			}
		},
	}, nil
}

// enipFields maps friendly EtherNet/IP field names to payload keys.
var enipFields = map[string]string{
	"vendor":   "Vendor",
	"product":  "Product Name",
	"serial":   "Serial Number",
	"devtype":  "Device Type",
	"prodcode": "Product Code",
	"rev":      "Revision",
	"ip":       "Device IP",
}

// splitAggValue cuts an aggregation field of the form "name[:value]",
// parsing the value as a match argument.
func splitAggValue(field string) (string, filter.Match, error) {
	i := strings.Index(field, ":")
	if i < 0 {
		return field, filter.Match{}, nil
	}
	m, err := filter.ParseMatch(field[i+1:])
	if err != nil {
		return "", filter.Match{}, err
	}
	return field[:i], m, nil
}

// subfieldOr returns the part after the first dot of name, or the
// default.
func subfieldOr(name, dflt string) string {
	if _, sub, found := strings.Cut(name, "."); found {
		return sub
	}
	return dflt
}

// forScripts walks every script result of the record.
func forScripts(rec doc.Doc, fn func(doc.Doc)) {
	for _, port := range subDocs(rec["ports"]) {
		for _, script := range subDocs(port["scripts"]) {
			fn(script)
		}
	}
}

func protoOr(p doc.Doc) any {
	if v, ok := p["protocol"]; ok {
		return v
	}
	return "?"
}

func anyString(v any) string {
	s, _ := v.(string)
	return s
}

// sortedPairs flattens a distinguished name document into its
// key-ordered (key, value) pairs, a canonical countable form.
func sortedPairs(d doc.Doc) []any {
	keys := make([]string, 0, len(d))
	for k := range d {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]any, 0, len(keys))
	for _, k := range keys {
		out = append(out, []any{k, d[k]})
	}
	return out
}

// pairsToDoc rebuilds the document form of sortedPairs output.
func pairsToDoc(v any) any {
	pairs, ok := v.([]any)
	if !ok {
		return v
	}
	out := make(doc.Doc, len(pairs))
	for _, p := range pairs {
		kv, ok := p.([]any)
		if !ok || len(kv) != 2 {
			return v
		}
		k, ok := kv[0].(string)
		if !ok {
			return v
		}
		out[k] = kv[1]
	}
	return out
}
