// Package secrets derives the platform's credential set from a single passphrase.
//
// Every secret is a pure function of (passphrase, name): the same passphrase always
// reproduces the same catalog, which is what makes disaster recovery possible without
// storing any generated value.
package secrets

import (
	"crypto/sha256"
	"encoding/hex"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// Iterations is the PBKDF2 work factor applied to every derived secret.
	Iterations = 600_000

	// SaltNamespace prefixes every secret name to form its salt.
	SaltNamespace = "launchpad.secrets.v1:"

	// cipherBytes fixes cipher secrets at 32 hex characters.
	cipherBytes = 16
)

// Kind classifies a catalog entry and decides its output width.
type Kind string

const (
	KindCookie   Kind = "cookie"
	KindCipher   Kind = "cipher"
	KindSystem   Kind = "system"
	KindPairwise Kind = "pairwise_salt"
	KindOAuth    Kind = "oauth_client_secret"
)

// Spec describes one named secret in the catalog.
type Spec struct {
	Name  string
	Kind  Kind
	Bytes int

	// Demo marks secrets that only exist when the demo application is deployed.
	Demo bool
}

// OutputBytes returns the number of derived bytes for s. Cipher secrets ignore
// the nominal length.
func (s Spec) OutputBytes() int {
	if s.Kind == KindCipher {
		return cipherBytes
	}
	return s.Bytes
}

// Catalog is the fixed, ordered list of derived secrets.
var Catalog = []Spec{
	{Name: "KRATOS_SECRETS_COOKIE", Kind: KindCookie, Bytes: 32},
	{Name: "KRATOS_SECRETS_CIPHER", Kind: KindCipher, Bytes: 32},
	{Name: "KRATOS_SECRETS_DEFAULT", Kind: KindSystem, Bytes: 32},
	{Name: "HYDRA_SECRETS_SYSTEM", Kind: KindSystem, Bytes: 32},
	{Name: "HYDRA_SECRETS_COOKIE", Kind: KindCookie, Bytes: 32},
	{Name: "HYDRA_PAIRWISE_SALT", Kind: KindPairwise, Bytes: 32},
	{Name: "LOGIN_UI_COOKIE_SECRET", Kind: KindCookie, Bytes: 32},
	{Name: "LOGIN_UI_CIPHER_SECRET", Kind: KindCipher, Bytes: 32},
	{Name: "ADMIN_CONSOLE_OAUTH_CLIENT_SECRET", Kind: KindOAuth, Bytes: 32},
	{Name: "KETO_SECRETS_SYSTEM", Kind: KindSystem, Bytes: 32},
	{Name: "DEMO_APP_OAUTH_CLIENT_SECRET", Kind: KindOAuth, Bytes: 32, Demo: true},
	{Name: "DEMO_APP_COOKIE_SECRET", Kind: KindCookie, Bytes: 32, Demo: true},
}

// Derive returns byteLength bytes of PBKDF2-SHA256 output for name, hex encoded.
// The caller guarantees a non-empty passphrase.
func Derive(passphrase, name string, byteLength int) string {
	key := pbkdf2.Key([]byte(passphrase), []byte(SaltNamespace+name), Iterations, byteLength, sha256.New)
	return hex.EncodeToString(key)
}

// DeriveSpec derives a single catalog entry, honouring its kind's width.
func DeriveSpec(passphrase string, spec Spec) string {
	return Derive(passphrase, spec.Name, spec.OutputBytes())
}

// DeriveAll expands the catalog. Demo entries are included only when includeDemo is set.
func DeriveAll(passphrase string, includeDemo bool) map[string]string {
	out := make(map[string]string, len(Catalog))
	for _, spec := range Specs(includeDemo) {
		out[spec.Name] = DeriveSpec(passphrase, spec)
	}
	return out
}

// Specs returns the catalog entries active for the given flag, in catalog order.
func Specs(includeDemo bool) []Spec {
	specs := make([]Spec, 0, len(Catalog))
	for _, spec := range Catalog {
		if spec.Demo && !includeDemo {
			continue
		}
		specs = append(specs, spec)
	}
	return specs
}
