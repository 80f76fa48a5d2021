// Package visitor issues short lived client certificates to guests.
package visitor

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/hashicorp/go-multierror"
	"github.com/lithammer/shortuuid/v4"
	"github.com/pkg/errors"
	"github.com/whitekid/goxp/log"

	"hamboard/identity"
	"hamboard/pkg/helper"
	"hamboard/pkg/helper/x509x"
	"hamboard/toolkit"
)

const (
	MaxNicknameLength = 64

	// characters which would end up as DN syntax
	forbiddenNicknameChars = `/=\+,"`
)

var (
	ErrInvalidNickname = errors.New("invalid nickname")
	ErrIssuance        = errors.New("certificate issuance failed")
)

// Config visitor certificate settings
type Config struct {
	Callsign   string // callsign put in every visitor certificate
	Email      string
	Days       int
	KeyBits    int
	ScratchDir string        // parent of per issuance directories, os temp dir if empty
	Timeout    time.Duration // bound of each toolkit call, zero for none
}

// Issuer visitor certificate issuer.
// Issue is safe for concurrent use; every call works in its own directory.
type Issuer struct {
	tk     toolkit.Interface
	ca     toolkit.CA
	config Config

	signMu sync.Mutex // guards the CA serial file
}

func New(tk toolkit.Interface, ca toolkit.CA, config Config) *Issuer {
	return &Issuer{
		tk:     tk,
		ca:     ca,
		config: config,
	}
}

// ValidateNickname nickname is 1..64 printable characters without DN syntax characters
func ValidateNickname(nickname string) error {
	if err := helper.ValidateVar(nickname, "required"); err != nil {
		return errors.Wrap(ErrInvalidNickname, "nickname is required")
	}

	if utf8.RuneCountInString(nickname) > MaxNicknameLength {
		return errors.Wrapf(ErrInvalidNickname, "nickname longer than %d characters", MaxNicknameLength)
	}

	if !utf8.ValidString(nickname) {
		return errors.Wrap(ErrInvalidNickname, "nickname is not valid utf-8")
	}

	for _, r := range nickname {
		if !unicode.IsPrint(r) || strings.ContainsRune(forbiddenNicknameChars, r) {
			return errors.Wrapf(ErrInvalidNickname, "character %q not allowed", r)
		}
	}

	return nil
}

// Issue create visitor certificate for nickname and returns password-less PKCS#12 archive
func (iss *Issuer) Issue(ctx context.Context, nickname string) (p12 []byte, err error) {
	if err := ValidateNickname(nickname); err != nil {
		return nil, err
	}

	subject, err := identity.VisitorSubject(iss.config.Callsign, nickname, iss.config.Email)
	if err != nil {
		return nil, errors.Wrapf(ErrInvalidNickname, "%v", err)
	}

	issuanceID := shortuuid.New()
	scratch, err := os.MkdirTemp(iss.config.ScratchDir, "visitor-"+issuanceID+"-")
	if err != nil {
		return nil, errors.Wrapf(ErrIssuance, "scratch directory: %v", err)
	}

	log.Debugf("issuance %s: nickname=%q, dir=%s", issuanceID, nickname, scratch)

	keyPath := filepath.Join(scratch, "visitor.key")
	csrPath := filepath.Join(scratch, "visitor.csr")
	certPath := filepath.Join(scratch, "visitor.crt")
	p12Path := filepath.Join(scratch, "visitor.p12")

	defer func() {
		if err := cleanup(scratch, keyPath, csrPath, certPath, p12Path); err != nil {
			log.Errorf("issuance %s cleanup failed: %v", issuanceID, err)
		}
	}()

	steps := []struct {
		name string
		fn   func(ctx context.Context) error
	}{
		{"generate key", func(ctx context.Context) error { return iss.tk.GenerateKey(ctx, keyPath, iss.config.KeyBits) }},
		{"create csr", func(ctx context.Context) error { return iss.tk.CreateCSR(ctx, keyPath, csrPath, subject) }},
		{"sign", func(ctx context.Context) error { return iss.sign(ctx, csrPath, certPath) }},
		{"check pair", func(ctx context.Context) error { return iss.checkPair(ctx, keyPath, certPath) }},
		{"check identity", func(ctx context.Context) error { return checkIdentity(certPath, subject) }},
		{"package", func(ctx context.Context) error { return iss.tk.PackagePKCS12(ctx, keyPath, certPath, p12Path) }},
	}

	for _, step := range steps {
		if err := iss.run(ctx, step.fn); err != nil {
			log.Errorf("issuance %s: %s: %+v", issuanceID, step.name, err)
			return nil, errors.Wrapf(ErrIssuance, "%s: %v", step.name, err)
		}
	}

	p12, err = os.ReadFile(p12Path)
	if err != nil {
		return nil, errors.Wrapf(ErrIssuance, "read archive: %v", err)
	}

	log.Infof("visitor certificate issued: %s (%s)", nickname, issuanceID)
	return p12, nil
}

// run call fn bounded by configured timeout
func (iss *Issuer) run(ctx context.Context, fn func(ctx context.Context) error) error {
	if iss.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, iss.config.Timeout)
		defer cancel()
	}

	return fn(ctx)
}

func (iss *Issuer) sign(ctx context.Context, csrPath, certPath string) error {
	iss.signMu.Lock()
	defer iss.signMu.Unlock()

	return iss.tk.SignCertificate(ctx, csrPath, certPath, iss.ca, iss.config.Days)
}

func (iss *Issuer) checkPair(ctx context.Context, keyPath, certPath string) error {
	keyModulus, err := iss.tk.KeyModulus(ctx, keyPath)
	if err != nil {
		return err
	}

	certModulus, err := iss.tk.CertModulus(ctx, certPath)
	if err != nil {
		return err
	}

	if !bytes.Equal(keyModulus, certModulus) {
		return errors.New("key and certificate do not pair")
	}

	return nil
}

// checkIdentity certificate subject must be exactly the requested one and parse as an identity
func checkIdentity(certPath string, subject x509x.DN) error {
	certPEM, err := helper.ReadFile(certPath)
	if err != nil {
		return err
	}

	cert, err := x509x.ParseCertificate(certPEM)
	if err != nil {
		return err
	}

	if got := x509x.FormatDN(cert.Subject); got != subject.String() {
		return errors.Errorf("certificate subject %q, want %q", got, subject)
	}

	if _, err := identity.FromCertificate(cert); err != nil {
		return errors.Wrap(err, "certificate carries no identity")
	}

	return nil
}

// cleanup remove issuance artifacts and the scratch directory
func cleanup(dir string, files ...string) error {
	var result error
	for _, name := range files {
		if err := os.Remove(name); err != nil && !os.IsNotExist(err) {
			result = multierror.Append(result, err)
		}
	}

	if err := os.RemoveAll(dir); err != nil {
		result = multierror.Append(result, err)
	}

	return result
}
