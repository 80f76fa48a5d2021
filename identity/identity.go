// Package identity extracts a community member identity from a certificate distinguished name.
package identity

import (
	"crypto/x509"
	"fmt"

	"github.com/pkg/errors"

	"hamboard/pkg/helper/x509x"
)

const (
	CallsignOID    = "1.3.6.1.4.1.12348.1.1"
	DisplayNameKey = "CN"
	EmailKey       = "emailAddress"
)

var (
	ErrMalformedSegment = x509x.ErrMalformedSegment
	ErrMissingField     = errors.New("missing dn field")
)

// MissingFieldError required attribute is absent or empty
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string        { return fmt.Sprintf("missing dn field: %s", e.Field) }
func (e *MissingFieldError) Is(target error) bool { return target == ErrMissingField }

// Identity authenticated member
type Identity struct {
	Callsign    string `json:"callsign" yaml:"callsign"`
	DisplayName string `json:"display_name" yaml:"display_name"`
	Email       string `json:"email" yaml:"email"`
}

// Parse parse distinguished name such as
//
//	/1.3.6.1.4.1.12348.1.1=N0CALL/CN=Jane Doe/emailAddress=jane@example.com
//
// Values are taken verbatim.
func Parse(dn string) (*Identity, error) {
	parts, err := x509x.ParseDN(dn)
	if err != nil {
		return nil, err
	}

	var values [3]string
	for i, key := range [...]string{CallsignOID, DisplayNameKey, EmailKey} {
		v, ok := parts.Get(key)
		if !ok || v == "" {
			return nil, &MissingFieldError{Field: key}
		}
		values[i] = v
	}

	return &Identity{
		Callsign:    values[0],
		DisplayName: values[1],
		Email:       values[2],
	}, nil
}

// FromCertificate parse identity from certificate subject
func FromCertificate(cert *x509.Certificate) (*Identity, error) {
	if cert == nil {
		return nil, errors.New("no certificate")
	}

	return Parse(x509x.FormatDN(cert.Subject))
}

// DN render identity back to distinguished name
func (id *Identity) DN() x509x.DN {
	return x509x.DN{
		{Key: CallsignOID, Value: id.Callsign},
		{Key: DisplayNameKey, Value: id.DisplayName},
		{Key: EmailKey, Value: id.Email},
	}
}

// VisitorSubject synthetic subject of visitor certificate.
// The nickname ends up in the certificate subject, so it is validated here.
func VisitorSubject(callsign, nickname, email string) (x509x.DN, error) {
	id := &Identity{
		Callsign:    callsign,
		DisplayName: nickname + " (Visitor)",
		Email:       email,
	}

	if err := x509x.ValidateValue(nickname); err != nil {
		return nil, errors.Wrap(err, "invalid nickname")
	}

	subject := id.DN()
	if err := subject.Validate(); err != nil {
		return nil, err
	}

	return subject, nil
}
