// Package stickercode issues and verifies the signed payload encoded on a
// vehicle sticker's RFID tag. The payload is a compact HS256 JWT whose claims
// carry a schema version so readers can reject or migrate unknown layouts.
package stickercode

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SchemaVersion is the payload layout written by Issue.
const SchemaVersion = 1

const dateLayout = "2006-01-02"

var (
	// ErrInvalidCode is returned for codes that fail signature or schema checks.
	ErrInvalidCode = errors.New("invalid sticker code")
	// ErrUnsupportedVersion is returned when the payload schema is newer than this reader.
	ErrUnsupportedVersion = errors.New("unsupported sticker code version")
)

// Payload binds a sticker to its plate, household and expiry.
type Payload struct {
	Version     int       `json:"v"`
	StickerID   string    `json:"sid"`
	TenantID    string    `json:"tid"`
	HouseholdID string    `json:"hh"`
	Plate       string    `json:"plate"`
	Expiry      time.Time `json:"-"`
}

type claims struct {
	Version     int    `json:"v"`
	TenantID    string `json:"tid"`
	HouseholdID string `json:"hh"`
	Plate       string `json:"plate"`
	Expiry      string `json:"exp_date"`
	jwt.RegisteredClaims
}

// Issuer signs and verifies sticker codes with a shared secret.
type Issuer struct {
	secret []byte
	now    func() time.Time
}

// NewIssuer builds an Issuer. now may be nil.
func NewIssuer(secret string, now func() time.Time) (*Issuer, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("sticker code secret is required")
	}
	if now == nil {
		now = time.Now
	}
	return &Issuer{secret: []byte(secret), now: now}, nil
}

// Issue returns the signed code for p. p.Version is forced to SchemaVersion.
func (i *Issuer) Issue(p Payload) (string, error) {
	if strings.TrimSpace(p.StickerID) == "" || strings.TrimSpace(p.Plate) == "" {
		return "", fmt.Errorf("%w: sticker id and plate are required", ErrInvalidCode)
	}
	if p.Expiry.IsZero() {
		return "", fmt.Errorf("%w: expiry is required", ErrInvalidCode)
	}
	c := claims{
		Version:     SchemaVersion,
		TenantID:    p.TenantID,
		HouseholdID: p.HouseholdID,
		Plate:       normalizePlate(p.Plate),
		Expiry:      p.Expiry.UTC().Format(dateLayout),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  p.StickerID,
			IssuedAt: jwt.NewNumericDate(i.now().UTC()),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(i.secret)
}

// Verify checks the signature and schema and returns the decoded payload.
// Expired stickers still verify; callers compare Expiry against their clock.
func (i *Issuer) Verify(code string) (Payload, error) {
	var c claims
	_, err := jwt.ParseWithClaims(strings.TrimSpace(code), &c, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalidCode
		}
		return i.secret, nil
	})
	if err != nil {
		return Payload{}, ErrInvalidCode
	}
	if c.Version > SchemaVersion {
		return Payload{}, fmt.Errorf("%w: %d", ErrUnsupportedVersion, c.Version)
	}
	if c.Version < 1 || c.Subject == "" {
		return Payload{}, ErrInvalidCode
	}
	exp, err := time.Parse(dateLayout, c.Expiry)
	if err != nil {
		return Payload{}, ErrInvalidCode
	}
	return Payload{
		Version:     c.Version,
		StickerID:   c.Subject,
		TenantID:    c.TenantID,
		HouseholdID: c.HouseholdID,
		Plate:       c.Plate,
		Expiry:      exp,
	}, nil
}

func normalizePlate(p string) string {
	return strings.ToUpper(strings.Join(strings.Fields(p), ""))
}
