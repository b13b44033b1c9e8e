// Package lookup derives extra record metadata at insertion time: GeoIP
// and ASN data for addresses, parsed user-agent fields, domain chains for
// DNS names, and certificate details for captured TLS material.
//
// Resolvers are composed into a single function attached to the passive
// database; derived info is computed once, when a record is first created.
package lookup

import (
	"strings"

	"github.com/btroidl/ivre/internal/codec"
	"github.com/btroidl/ivre/internal/doc"
)

// Recon types carrying material the resolvers understand.
const (
	ReconTypeHTTPClientHeader = "HTTP_CLIENT_HEADER"
	ReconTypeDNSAnswer        = "DNS_ANSWER"
	ReconTypeSSLServer        = "SSL_SERVER"
)

// Resolver builds the composite derived-info function used by the passive
// database. geo may be nil, in which case address enrichment is skipped.
// The returned function maps a record to its derived info sub-document,
// or nil when nothing can be derived.
func Resolver(geo *GeoIP) func(doc.Doc) doc.Doc {
	return func(rec doc.Doc) doc.Doc {
		infos := doc.Doc{}

		if geo != nil {
			var addr codec.Addr
			found := false
			switch a := rec["addr"].(type) {
			case codec.Addr:
				addr, found = a, true
			case string:
				if parsed, err := codec.ParseAddr(a); err == nil {
					addr, found = parsed, true
				}
			}
			if found {
				if info, ok := geo.Lookup(addr); ok {
					info.fill(infos)
				}
			}
		}

		switch rec["recontype"] {
		case ReconTypeHTTPClientHeader:
			if rec["source"] == "USER-AGENT" {
				if value, ok := rec["value"].(string); ok {
					userAgentInfo(value, infos)
				}
			}
		case ReconTypeDNSAnswer:
			if value, ok := rec["value"].(string); ok {
				if domains := DomainChain(value); len(domains) > 0 {
					infos["domain"] = domains
				}
			}
			if target, ok := rec["targetval"].(string); ok {
				if domains := DomainChain(target); len(domains) > 0 {
					infos["domaintarget"] = domains
				}
			}
		case ReconTypeSSLServer:
			if rec["source"] == "cert" {
				switch v := rec["value"].(type) {
				case string:
					certInfo(v, infos)
				case []byte:
					certInfoDER(v, infos)
				}
			}
		}

		if len(infos) == 0 {
			return nil
		}
		return infos
	}
}

// DomainChain expands a DNS name into itself and every parent domain:
// "www.example.com" yields [www.example.com example.com com].
func DomainChain(name string) []any {
	name = strings.Trim(strings.ToLower(name), ".")
	if name == "" {
		return nil
	}
	var out []any
	for {
		out = append(out, name)
		_, rest, found := strings.Cut(name, ".")
		if !found {
			return out
		}
		name = rest
	}
}
