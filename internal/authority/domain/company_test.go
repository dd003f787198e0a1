package domain

import (
	"encoding/base64"
	"errors"
	"regexp"
	"strings"
	"testing"

	"github.com/dmehra2102/Trust-Settlement-System/pkg/apperr"
)

var hexKey = regexp.MustCompile(`^[0-9a-f]{32}$`)

func TestNewCompanyGeneratesCredentials(t *testing.T) {
	c, err := NewCompany("Acme")
	if err != nil {
		t.Fatal(err)
	}
	if c.ID == "" || c.Name != "Acme" {
		t.Fatalf("company = %+v", c)
	}
	if !hexKey.MatchString(c.APIKey) {
		t.Fatalf("api key = %q", c.APIKey)
	}
	raw, err := base64.StdEncoding.DecodeString(c.APISecret)
	if err != nil || len(raw) != 32 {
		t.Fatalf("api secret = %q (%v)", c.APISecret, err)
	}

	if c.SecretDigest != DigestSecret(c.APISecret) || c.SecretDigest == c.APISecret || len(c.SecretDigest) != 64 {
		t.Fatalf("secret digest = %q", c.SecretDigest)
	}

	other, _ := NewCompany("Acme")
	if other.APIKey == c.APIKey || other.APISecret == c.APISecret {
		t.Fatal("credentials repeated across companies")
	}
}

func TestValidateName(t *testing.T) {
	for _, name := range []string{"", "   ", strings.Repeat("x", MaxNameLength+1)} {
		if err := ValidateName(name); !errors.Is(err, apperr.ErrInvalid) {
			t.Errorf("ValidateName(%q) = %v", name, err)
		}
	}
	if err := ValidateName(strings.Repeat("x", MaxNameLength)); err != nil {
		t.Fatal(err)
	}
}

func TestSecretMatches(t *testing.T) {
	c, _ := NewCompany("Acme")
	if !SecretMatches(&c, c.APISecret) {
		t.Fatal("correct secret rejected")
	}
	if SecretMatches(&c, c.APISecret[:10]) {
		t.Fatal("prefix accepted")
	}
	if SecretMatches(&c, "x"+c.APISecret[1:]) {
		t.Fatal("first byte mismatch accepted")
	}
	stored := Company{ID: c.ID, APIKey: c.APIKey, SecretDigest: c.SecretDigest}
	if !SecretMatches(&stored, c.APISecret) {
		t.Fatal("stored company without plaintext secret rejected")
	}
	if SecretMatches(&stored, c.SecretDigest) {
		t.Fatal("digest accepted as the secret")
	}
	if SecretMatches(nil, "anything") {
		t.Fatal("nil company matched")
	}
}
