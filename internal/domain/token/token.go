// Package token implements the signed redemption credential presented at a
// serving counter. A token proves "this order has a confirmed payment"; it is
// pure data — whether the token has already been consumed lives in the order
// store, not here.
package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
)

// DefaultTTL is the validity window applied when no explicit expiry is set.
// The domain has no real code-rotation requirement, so the default is wide
// enough to be effectively unbounded for a cafeteria day.
const DefaultTTL = 30 * 24 * time.Hour

var (
	// ErrInvalid is returned for malformed tokens and MAC mismatches.
	ErrInvalid = errors.New("invalid token")
	// ErrExpired is returned when a token is past its expiry, regardless of
	// whether its signature would otherwise verify.
	ErrExpired = errors.New("token expired")
)

// Claims is the authenticated content of a verified token. Every field here
// is covered by the MAC.
type Claims struct {
	OrderID   string
	HolderID  string
	SiteID    string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Codec issues and verifies redemption tokens using HMAC-SHA256 under a
// server-held secret. It is stateless and safe for concurrent use.
type Codec struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// Option configures a Codec.
type Option func(*Codec)

// WithTTL overrides the validity window applied to issued tokens.
func WithTTL(ttl time.Duration) Option {
	return func(c *Codec) { c.ttl = ttl }
}

// WithNow overrides the clock, for tests.
func WithNow(now func() time.Time) Option {
	return func(c *Codec) { c.now = now }
}

// NewCodec creates a Codec with the given signing secret.
func NewCodec(secret []byte, opts ...Option) *Codec {
	c := &Codec{
		secret: secret,
		ttl:    DefaultTTL,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Issue builds a signed token for the given order. The returned string is
// base64url-encoded JSON suitable for 2D-barcode rendering.
func (c *Codec) Issue(orderID, holderID, siteID string) (string, Claims, error) {
	if orderID == "" || holderID == "" || siteID == "" {
		return "", Claims{}, errors.Wrap(ErrInvalid, "issue: empty field")
	}

	issuedAt := c.now().Truncate(time.Second)
	claims := Claims{
		OrderID:   orderID,
		HolderID:  holderID,
		SiteID:    siteID,
		IssuedAt:  issuedAt,
		ExpiresAt: issuedAt.Add(c.ttl),
	}

	mac := c.sign(claims)

	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		e.Field("order_id", func(e *jx.Encoder) { e.Str(claims.OrderID) })
		e.Field("holder_id", func(e *jx.Encoder) { e.Str(claims.HolderID) })
		e.Field("site_id", func(e *jx.Encoder) { e.Str(claims.SiteID) })
		e.Field("issued_at", func(e *jx.Encoder) { e.Int64(claims.IssuedAt.Unix()) })
		e.Field("expires_at", func(e *jx.Encoder) { e.Int64(claims.ExpiresAt.Unix()) })
		e.Field("mac", func(e *jx.Encoder) { e.Str(base64.RawURLEncoding.EncodeToString(mac)) })
	})

	return base64.RawURLEncoding.EncodeToString(e.Bytes()), claims, nil
}

// Verify parses and authenticates a raw token. It returns ErrInvalid for
// anything that does not decode into the exact expected shape or whose MAC
// does not match, and ErrExpired for tokens past their window. Expiry is
// checked before the MAC comparison result is disclosed, so an expired but
// correctly signed token reveals nothing beyond "expired".
func (c *Codec) Verify(raw string) (Claims, error) {
	payload, err := base64.RawURLEncoding.DecodeString(raw)
	if err != nil {
		return Claims{}, errors.Wrap(ErrInvalid, "decode")
	}

	claims, mac, err := parse(payload)
	if err != nil {
		return Claims{}, err
	}

	deadline := claims.ExpiresAt
	if deadline.IsZero() {
		// Absent expiry still expires: fall back to the default window
		// anchored to issue time.
		deadline = claims.IssuedAt.Add(DefaultTTL)
	}
	if c.now().After(deadline) {
		return Claims{}, ErrExpired
	}

	if !hmac.Equal(mac, c.sign(claims)) {
		return Claims{}, errors.Wrap(ErrInvalid, "mac mismatch")
	}

	return claims, nil
}

// sign computes the MAC over the canonical payload. Every field that affects
// authorization must appear here; adding a Claims field without extending the
// canonical payload would allow field substitution.
func (c *Codec) sign(claims Claims) []byte {
	canonical := fmt.Sprintf("%s|%s|%s|%d|%d",
		claims.OrderID,
		claims.HolderID,
		claims.SiteID,
		claims.IssuedAt.Unix(),
		expiryUnix(claims.ExpiresAt),
	)

	h := hmac.New(sha256.New, c.secret)
	h.Write([]byte(canonical))
	return h.Sum(nil)
}

func expiryUnix(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

// parse strictly decodes the JSON payload. Unknown keys, duplicated keys,
// wrong types, and missing required fields all reject before any MAC work.
func parse(payload []byte) (Claims, []byte, error) {
	var (
		claims    Claims
		mac       []byte
		seen      = map[string]bool{}
		issuedAt  int64
		expiresAt int64
	)

	d := jx.DecodeBytes(payload)
	err := d.Obj(func(d *jx.Decoder, key string) error {
		if seen[key] {
			return errors.Errorf("duplicate key %q", key)
		}
		seen[key] = true

		switch key {
		case "order_id":
			v, err := d.Str()
			claims.OrderID = v
			return err
		case "holder_id":
			v, err := d.Str()
			claims.HolderID = v
			return err
		case "site_id":
			v, err := d.Str()
			claims.SiteID = v
			return err
		case "issued_at":
			v, err := d.Int64()
			issuedAt = v
			return err
		case "expires_at":
			v, err := d.Int64()
			expiresAt = v
			return err
		case "mac":
			v, err := d.Str()
			if err != nil {
				return err
			}
			mac, err = base64.RawURLEncoding.DecodeString(v)
			return err
		default:
			return errors.Errorf("unknown key %q", key)
		}
	})
	if err != nil {
		return Claims{}, nil, errors.Wrap(ErrInvalid, "parse")
	}

	if claims.OrderID == "" || claims.HolderID == "" || claims.SiteID == "" ||
		issuedAt == 0 || len(mac) != sha256.Size {
		return Claims{}, nil, errors.Wrap(ErrInvalid, "missing field")
	}

	claims.IssuedAt = time.Unix(issuedAt, 0).UTC()
	if expiresAt != 0 {
		claims.ExpiresAt = time.Unix(expiresAt, 0).UTC()
	}

	return claims, mac, nil
}
