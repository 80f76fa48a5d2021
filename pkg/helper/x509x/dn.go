package x509x

import (
	"crypto/x509/pkix"
	"encoding/asn1"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/pkg/errors"
)

// Distinguished names in the slash separated form `openssl x509 -subject -nameopt compat` prints:
//
//	/1.3.6.1.4.1.12348.1.1=N0CALL/CN=Jane Doe/emailAddress=jane@example.com

var (
	ErrMalformedSegment = errors.New("malformed dn segment")
	ErrUnknownAttribute = errors.New("unknown dn attribute")
	ErrInvalidValue     = errors.New("invalid dn value")
)

var (
	OIDCommonName         = asn1.ObjectIdentifier{2, 5, 4, 3}
	OIDSerialNumber       = asn1.ObjectIdentifier{2, 5, 4, 5}
	OIDCountry            = asn1.ObjectIdentifier{2, 5, 4, 6}
	OIDLocality           = asn1.ObjectIdentifier{2, 5, 4, 7}
	OIDProvince           = asn1.ObjectIdentifier{2, 5, 4, 8}
	OIDStreetAddress      = asn1.ObjectIdentifier{2, 5, 4, 9}
	OIDOrganization       = asn1.ObjectIdentifier{2, 5, 4, 10}
	OIDOrganizationalUnit = asn1.ObjectIdentifier{2, 5, 4, 11}
	OIDEmailAddress       = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 9, 1}
)

var shortNames = []struct {
	name string
	oid  asn1.ObjectIdentifier
}{
	{"CN", OIDCommonName},
	{"serialNumber", OIDSerialNumber},
	{"C", OIDCountry},
	{"L", OIDLocality},
	{"ST", OIDProvince},
	{"street", OIDStreetAddress},
	{"O", OIDOrganization},
	{"OU", OIDOrganizationalUnit},
	{"emailAddress", OIDEmailAddress},
}

// RDN single KEY=VALUE segment
type RDN struct {
	Key   string
	Value string
}

// DN ordered list of segments
type DN []RDN

// ParseDN split slash separated dn into segments.
// Empty segments are ignored, each remaining segment is split on the first `=`.
// Keys and values are kept verbatim.
func ParseDN(s string) (DN, error) {
	dn := DN{}
	for _, segment := range strings.Split(s, "/") {
		if segment == "" {
			continue
		}

		key, value, ok := strings.Cut(segment, "=")
		if !ok {
			return nil, errors.Wrapf(ErrMalformedSegment, "%q", segment)
		}

		dn = append(dn, RDN{Key: key, Value: value})
	}

	return dn, nil
}

// Get returns value of key; the last one wins when the key repeats
func (dn DN) Get(key string) (string, bool) {
	for i := len(dn) - 1; i >= 0; i-- {
		if dn[i].Key == key {
			return dn[i].Value, true
		}
	}

	return "", false
}

func (dn DN) String() string {
	var b strings.Builder
	for _, rdn := range dn {
		b.WriteString("/")
		b.WriteString(rdn.Key)
		b.WriteString("=")
		b.WriteString(rdn.Value)
	}
	return b.String()
}

// Validate check that every segment survives a round trip through ParseDN and
// through the openssl -subj parser
func (dn DN) Validate() error {
	for _, rdn := range dn {
		if rdn.Key == "" || strings.ContainsAny(rdn.Key, "/=+\\") {
			return errors.Wrapf(ErrInvalidValue, "key %q", rdn.Key)
		}

		if _, err := attributeOID(rdn.Key); err != nil {
			return err
		}

		if err := ValidateValue(rdn.Value); err != nil {
			return err
		}
	}

	return nil
}

// ValidateValue reject values which can not be embedded into a dn string
func ValidateValue(value string) error {
	if value == "" {
		return errors.Wrap(ErrInvalidValue, "empty value")
	}

	for _, r := range value {
		if unicode.IsControl(r) || !unicode.IsPrint(r) || strings.ContainsRune("/=+\\", r) {
			return errors.Wrapf(ErrInvalidValue, "%q not allowed", r)
		}
	}

	return nil
}

// Name convert to pkix.Name; segment order is preserved
func (dn DN) Name() (pkix.Name, error) {
	name := pkix.Name{}
	for _, rdn := range dn {
		oid, err := attributeOID(rdn.Key)
		if err != nil {
			return pkix.Name{}, err
		}

		name.ExtraNames = append(name.ExtraNames, pkix.AttributeTypeAndValue{Type: oid, Value: rdn.Value})
	}

	return name, nil
}

// FromName convert parsed pkix.Name to DN in the order the attributes appear in the certificate
func FromName(name pkix.Name) DN {
	dn := DN{}
	for _, atv := range name.Names {
		dn = append(dn, RDN{Key: attributeKey(atv.Type), Value: fmt.Sprint(atv.Value)})
	}
	return dn
}

// FormatDN format pkix.Name as slash separated dn
func FormatDN(name pkix.Name) string { return FromName(name).String() }

func attributeKey(oid asn1.ObjectIdentifier) string {
	for _, sn := range shortNames {
		if sn.oid.Equal(oid) {
			return sn.name
		}
	}
	return oid.String()
}

func attributeOID(key string) (asn1.ObjectIdentifier, error) {
	for _, sn := range shortNames {
		if sn.name == key {
			return sn.oid, nil
		}
	}

	parts := strings.Split(key, ".")
	if len(parts) < 2 {
		return nil, errors.Wrapf(ErrUnknownAttribute, "%q", key)
	}

	oid := make(asn1.ObjectIdentifier, 0, len(parts))
	for _, part := range parts {
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 {
			return nil, errors.Wrapf(ErrUnknownAttribute, "%q", key)
		}
		oid = append(oid, n)
	}

	return oid, nil
}
