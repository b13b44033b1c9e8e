package passive

import (
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/btroidl/ivre/internal/codec"
	"github.com/btroidl/ivre/internal/filter"
)

var (
	// ErrBadProtocol rejects protocols other than TCP; passive
	// observations only model TCP ports.
	ErrBadProtocol = errors.New("protocols other than TCP are not supported in passive")
	// ErrBadPortState rejects port states other than open.
	ErrBadPortState = errors.New("only open ports can be found in passive")
	// ErrBadNegation rejects unsupported negated searches.
	ErrBadNegation = errors.New("negated user-agent search is not supported in passive")
)

// ReconType matches records of one observation category.
func ReconType(rectype filter.Match) filter.Expr {
	return rectype.Expr("recontype")
}

// Sensor matches records reported by a sensor.
func Sensor(sensor filter.Match, neg bool) filter.Expr {
	return sensor.ExprNeg("sensor", neg)
}

// Port matches records observed on a TCP port. Only open TCP ports exist
// in passive data; any other protocol or state is a typed error.
func Port(port int, protocol, state string, neg bool) (filter.Expr, error) {
	if protocol != "tcp" {
		return nil, ErrBadProtocol
	}
	if state != "open" {
		return nil, ErrBadPortState
	}
	if neg {
		return filter.Ne("port", int64(port)), nil
	}
	return filter.Eq("port", int64(port)), nil
}

// Service matches records identified as a service, optionally on one port.
func Service(srv filter.Match, port int, protocol string) (filter.Expr, error) {
	if protocol != "" && protocol != "tcp" {
		return nil, ErrBadProtocol
	}
	flt := srv.Expr("infos.service_name")
	if port >= 0 {
		flt = filter.And(flt, filter.Eq("port", int64(port)))
	}
	return flt, nil
}

// Product matches records identified as a product, optionally narrowed by
// version, service name and port. Unset matches skip their field.
func Product(product, version, service filter.Match, port int, protocol string) (filter.Expr, error) {
	if protocol != "" && protocol != "tcp" {
		return nil, ErrBadProtocol
	}
	terms := []filter.Expr{product.Expr("infos.service_product")}
	if version.IsSet() {
		terms = append(terms, version.Expr("infos.service_version"))
	}
	if service.IsSet() {
		terms = append(terms, service.Expr("infos.service_name"))
	}
	if port >= 0 {
		terms = append(terms, filter.Eq("port", int64(port)))
	}
	return filter.And(terms...), nil
}

// ServiceHostname matches records whose identified service reported a
// hostname.
func ServiceHostname(hostname filter.Match) filter.Expr {
	return hostname.Expr("infos.service_hostname")
}

// MAC matches MAC-address records, optionally on the address value.
func MAC(mac filter.Match, neg bool) filter.Expr {
	if !mac.IsSet() {
		if neg {
			return filter.Ne("recontype", "MAC_ADDRESS")
		}
		return filter.Eq("recontype", "MAC_ADDRESS")
	}
	return filter.And(
		filter.Eq("recontype", "MAC_ADDRESS"),
		mac.ExprNeg("value", neg),
	)
}

// UserAgent matches HTTP User-Agent header records. Negation is a typed
// error.
func UserAgent(useragent filter.Match, neg bool) (filter.Expr, error) {
	if neg {
		return nil, ErrBadNegation
	}
	base := filter.And(
		filter.Eq("recontype", "HTTP_CLIENT_HEADER"),
		filter.Eq("source", "USER-AGENT"),
	)
	if !useragent.IsSet() {
		return base, nil
	}
	return filter.And(base, useragent.Expr("value")), nil
}

// DNS matches DNS answer records. reverse selects the target side;
// subdomains widens the match to the derived domain chains; dnsType
// restricts to one record type (A, AAAA, PTR, ...).
func DNS(name filter.Match, reverse, subdomains bool, dnsType string) filter.Expr {
	terms := []filter.Expr{filter.Eq("recontype", "DNS_ANSWER")}
	if name.IsSet() {
		var path string
		if subdomains {
			if reverse {
				path = "infos.domaintarget"
			} else {
				path = "infos.domain"
			}
			terms = append(terms, name.InArray(path, false))
		} else {
			if reverse {
				path = "targetval"
			} else {
				path = "value"
			}
			terms = append(terms, name.Expr(path))
		}
	}
	if dnsType != "" {
		terms = append(terms, filter.Regex("source",
			regexp.MustCompile("^"+strings.ToUpper(dnsType)+"-")))
	}
	return filter.And(terms...)
}

// Cert matches captured server certificates, optionally by public key
// type ("rsa", "dsa", ...).
func Cert(keyType string) filter.Expr {
	base := filter.And(
		filter.Eq("recontype", "SSL_SERVER"),
		filter.Eq("source", "cert"),
	)
	if keyType == "" {
		return base
	}
	return filter.And(base, filter.Eq("infos.pubkeyalgo", keyType+"Encryption"))
}

// CertSubject matches captured certificates on their subject DN, and
// optionally on the issuer DN.
func CertSubject(subject, issuer filter.Match) filter.Expr {
	base := filter.And(Cert(""), subject.Expr("infos.subject_text"))
	if !issuer.IsSet() {
		return base
	}
	return filter.And(base, issuer.Expr("infos.issuer_text"))
}

// CertIssuer matches captured certificates on their issuer DN.
func CertIssuer(issuer filter.Match) filter.Expr {
	return filter.And(Cert(""), issuer.Expr("infos.issuer_text"))
}

var hexValue = regexp.MustCompile(`^[0-9a-fA-F]+$`)

// ja3Path resolves a JA3 argument to the field it selects: a hex digest
// picks the matching fingerprint field (the MD5 digest is the record
// value itself), anything else searches the raw fingerprint text.
func ja3Path(m filter.Match, prefix string) (string, filter.Match) {
	if s, ok := m.ExactValue(); ok && hexValue.MatchString(s) {
		switch len(s) {
		case 32:
			return prefix + "value", filter.Exact(strings.ToLower(s))
		case 40:
			return prefix + "infos.sha1", filter.Exact(strings.ToLower(s))
		case 64:
			return prefix + "infos.sha256", filter.Exact(strings.ToLower(s))
		}
	}
	return prefix + "infos.raw", m
}

// JA3Client matches SSL client fingerprint records, optionally on the
// fingerprint digest or raw value.
func JA3Client(valueOrHash filter.Match) filter.Expr {
	base := filter.And(
		filter.Eq("recontype", "SSL_CLIENT"),
		filter.Eq("source", "ja3"),
	)
	if !valueOrHash.IsSet() {
		return base
	}
	path, m := ja3Path(valueOrHash, "")
	return filter.And(base, m.Expr(path))
}

var ja3SourceRe = regexp.MustCompile(`^ja3-`)

// JA3Server matches SSL server fingerprint records, optionally on the
// server fingerprint and on the client fingerprint that elicited it.
func JA3Server(valueOrHash, clientValueOrHash filter.Match) filter.Expr {
	base := filter.Eq("recontype", "SSL_SERVER")
	if valueOrHash.IsSet() {
		path, m := ja3Path(valueOrHash, "")
		base = filter.And(base, m.Expr(path))
	}
	if !clientValueOrHash.IsSet() {
		return filter.And(base, filter.Regex("source", ja3SourceRe))
	}
	if s, ok := clientValueOrHash.ExactValue(); ok && hexValue.MatchString(s) && len(s) == 32 {
		return filter.And(base, filter.Eq("source", "ja3-"+strings.ToLower(s)))
	}
	path, m := ja3Path(clientValueOrHash, "")
	return filter.And(base,
		filter.Regex("source", ja3SourceRe),
		m.Expr("infos.client."+strings.TrimPrefix(path, "infos.")))
}

// SSHKey matches SSH host key records, optionally by key type ("rsa",
// "ed25519", ...).
func SSHKey(keyType string) filter.Expr {
	base := filter.And(
		filter.Eq("recontype", "SSH_SERVER_HOSTKEY"),
		filter.Eq("source", "SSHv2"),
	)
	if keyType == "" {
		return base
	}
	return filter.And(base, filter.Eq("infos.algo", "ssh-"+keyType))
}

var basicAuthRe = regexp.MustCompile(`(?i)^Basic`)

// BasicAuth matches captured HTTP Basic authentication headers.
func BasicAuth() filter.Expr {
	return filter.And(HTTPAuth(), filter.Regex("value", basicAuthRe))
}

// HTTPAuth matches captured HTTP authentication headers of any scheme.
func HTTPAuth() filter.Expr {
	return filter.And(
		filter.OneOf("recontype", "HTTP_CLIENT_HEADER", "HTTP_CLIENT_HEADER_SERVER"),
		filter.OneOf("source", "AUTHORIZATION", "PROXY-AUTHORIZATION"),
	)
}

// FTPAuth matches captured FTP credential records.
func FTPAuth() filter.Expr {
	return filter.OneOf("recontype", "FTP_CLIENT", "FTP_SERVER")
}

// POPAuth matches captured POP credential records.
func POPAuth() filter.Expr {
	return filter.OneOf("recontype", "POP_CLIENT", "POP_SERVER")
}

// TCPBanner matches TCP server banner records on the banner text.
func TCPBanner(banner filter.Match) filter.Expr {
	return filter.And(
		filter.Eq("recontype", "TCP_SERVER_BANNER"),
		banner.Expr("value"),
	)
}

// TimeAgo matches records seen within delta of now. onFirstSeen selects
// which bound of the seen window is tested; neg inverts to records seen
// earlier.
func TimeAgo(delta time.Duration, neg, onFirstSeen bool) filter.Expr {
	tstamp := time.Now().Add(-delta).Unix()
	field := "lastseen"
	if onFirstSeen {
		field = "firstseen"
	}
	if neg {
		return filter.Lt(field, tstamp)
	}
	return filter.Ge(field, tstamp)
}

// Newer matches records seen strictly after the given time. onFirstSeen
// selects the tested bound; neg inverts to at-or-before.
func Newer(timestamp any, neg, onFirstSeen bool) (filter.Expr, error) {
	ts, err := codec.ToTimestamp(timestamp)
	if err != nil {
		return nil, err
	}
	field := "lastseen"
	if onFirstSeen {
		field = "firstseen"
	}
	if neg {
		return filter.Le(field, ts), nil
	}
	return filter.Gt(field, ts), nil
}

// IPv4 matches records whose address lies in the IPv4-mapped range.
func IPv4() filter.Expr {
	return filter.And(
		filter.Ge("addr", codec.MinIPv4),
		filter.Le("addr", codec.MaxIPv4),
	)
}
