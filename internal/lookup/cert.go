package lookup

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/hex"

	"github.com/btroidl/ivre/internal/codec"
	"github.com/btroidl/ivre/internal/doc"
)

// certInfo parses a stored certificate (base64 DER) and records its
// distinguished names, validity window, subject alternative names and
// fingerprints. Unparseable material derives nothing.
func certInfo(value string, infos doc.Doc) {
	der, err := codec.FromBinary(value)
	if err != nil {
		return
	}
	certInfoDER(der, infos)
}

func certInfoDER(der []byte, infos doc.Doc) {
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return
	}

	infos["subject_text"] = cert.Subject.String()
	infos["issuer_text"] = cert.Issuer.String()
	if d := nameDoc(cert.Subject); d != nil {
		infos["subject"] = d
	}
	if d := nameDoc(cert.Issuer); d != nil {
		infos["issuer"] = d
	}
	infos["serial_number"] = cert.SerialNumber.String()
	infos["not_before"] = cert.NotBefore.Unix()
	infos["not_after"] = cert.NotAfter.Unix()
	infos["self_signed"] = cert.Subject.String() == cert.Issuer.String()

	var san []any
	for _, name := range cert.DNSNames {
		san = append(san, "DNS:"+name)
	}
	for _, ip := range cert.IPAddresses {
		san = append(san, "IP Address:"+ip.String())
	}
	for _, email := range cert.EmailAddresses {
		san = append(san, "email:"+email)
	}
	if len(san) > 0 {
		infos["san"] = san
	}

	md5sum := md5.Sum(der)
	sha1sum := sha1.Sum(der)
	sha256sum := sha256.Sum256(der)
	infos["md5"] = hex.EncodeToString(md5sum[:])
	infos["sha1"] = hex.EncodeToString(sha1sum[:])
	infos["sha256"] = hex.EncodeToString(sha256sum[:])
}

// nameDoc maps a distinguished name to the attribute keys stored on
// records. Only standard attributes are kept.
func nameDoc(name pkix.Name) doc.Doc {
	out := doc.Doc{}
	if name.CommonName != "" {
		out["commonName"] = name.CommonName
	}
	set := func(key string, values []string) {
		if len(values) > 0 {
			out[key] = values[0]
		}
	}
	set("countryName", name.Country)
	set("localityName", name.Locality)
	set("stateOrProvinceName", name.Province)
	set("organizationName", name.Organization)
	set("organizationalUnitName", name.OrganizationalUnit)
	if len(out) == 0 {
		return nil
	}
	return out
}
