// Package attestation verifies signed wake-proof permits.
//
// A permit is issued by the attestation server after the owner completes a
// wake proof (NFC tag scan, QR code, math challenge). It binds the cluster,
// the alarm address, the owner, a one-time nonce, an expiry, and the proof
// hash, so a captured permit cannot be replayed against another record,
// another deployment, or after expiry.
package attestation

import (
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Domain is the issuer embedded in every permit.
const Domain = "solarma"

// ActionAck is the permit action accepted for acknowledge.
const ActionAck = "ack"

var (
	// ErrPermitInvalid is returned when the permit fails signature or
	// binding checks.
	ErrPermitInvalid = errors.New("attestation: invalid permit")
	// ErrPermitExpired is returned when the permit expiry has passed.
	ErrPermitExpired = errors.New("attestation: permit expired")
	// ErrPermitReplayed is returned when the permit nonce was already used.
	ErrPermitReplayed = errors.New("attestation: permit nonce already used")
)

// PermitClaims is the signed payload of a wake-proof permit.
type PermitClaims struct {
	Cluster   string `json:"cluster"`
	Action    string `json:"action"`
	Alarm     string `json:"alarm"`
	Owner     string `json:"owner"`
	Nonce     uint64 `json:"nonce"`
	ProofType uint8  `json:"proof_type"`
	ProofHash string `json:"proof_hash"`
	jwt.RegisteredClaims
}

// Permit is a verified wake-proof permit.
type Permit struct {
	Nonce     uint64
	ProofType uint8
	ProofHash string
	ExpiresAt time.Time
}

// Verifier checks permits against the attestation server's public key.
type Verifier struct {
	key     ed25519.PublicKey
	cluster string
}

// NewVerifier constructs a verifier. The key is the hex-encoded 32-byte
// Ed25519 public key of the attestation server.
func NewVerifier(hexKey, cluster string) (*Verifier, error) {
	raw, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, errors.New("attestation: public key must be hex")
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, errors.New("attestation: public key must be 32 bytes")
	}
	if cluster == "" {
		return nil, errors.New("attestation: empty cluster")
	}
	return &Verifier{key: ed25519.PublicKey(raw), cluster: cluster}, nil
}

// Verify validates the token and its binding to (alarm, owner) at the given
// time snapshot.
func (v *Verifier) Verify(token, alarm, owner string, now time.Time) (*Permit, error) {
	if v == nil {
		return nil, ErrPermitInvalid
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodEdDSA.Alg()}),
		jwt.WithIssuer(Domain),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)
	claims := &PermitClaims{}
	parsed, err := parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return v.key, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrPermitExpired
		}
		return nil, ErrPermitInvalid
	}
	if !parsed.Valid {
		return nil, ErrPermitInvalid
	}

	if claims.Cluster != v.cluster ||
		claims.Action != ActionAck ||
		claims.Alarm != alarm ||
		claims.Owner != owner {
		return nil, ErrPermitInvalid
	}
	if claims.ExpiresAt == nil {
		return nil, ErrPermitInvalid
	}
	if now.After(claims.ExpiresAt.Time) {
		return nil, ErrPermitExpired
	}

	return &Permit{
		Nonce:     claims.Nonce,
		ProofType: claims.ProofType,
		ProofHash: claims.ProofHash,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// Sign issues a permit token. Used by the attestation server and by tests.
func Sign(key ed25519.PrivateKey, cluster, alarm, owner string, nonce uint64, proofType uint8, proofHash string, expiresAt time.Time) (string, error) {
	claims := PermitClaims{
		Cluster:   cluster,
		Action:    ActionAck,
		Alarm:     alarm,
		Owner:     owner,
		Nonce:     nonce,
		ProofType: proofType,
		ProofHash: proofHash,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    Domain,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims).SignedString(key)
}
