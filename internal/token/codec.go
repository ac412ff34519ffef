// Package token signs and verifies the small correlation payload carried by
// vote redirect links, so a web hit can be tied back to a subscriber without
// server-side session state.
package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
)

// ErrInvalid covers every verification failure. Callers cannot tell a bad
// signature from a malformed payload.
var ErrInvalid = errors.New("invalid token")

// Payload is the signed content: subject (user) id, context (guild) id and
// issue time in epoch milliseconds.
type Payload struct {
	UID string  `json:"uid"`
	GID *string `json:"gid"`
	IAT int64   `json:"iat"`
}

// GuildID returns the context id or "".
func (p Payload) GuildID() string {
	if p.GID == nil {
		return ""
	}
	return *p.GID
}

// NewPayload builds a payload; an empty guildID is encoded as null.
func NewPayload(userID, guildID string, issuedAtMs int64) Payload {
	p := Payload{UID: userID, IAT: issuedAtMs}
	if guildID != "" {
		g := guildID
		p.GID = &g
	}
	return p
}

var enc = base64.RawURLEncoding

// Codec holds the shared HMAC secret.
type Codec struct {
	secret []byte
}

func NewCodec(secret string) *Codec {
	return &Codec{secret: []byte(secret)}
}

// Sign returns base64url(json(p)) + "." + base64url(HMAC-SHA256(secret, data)).
func (c *Codec) Sign(p Payload) (string, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	data := enc.EncodeToString(raw)
	return data + "." + c.mac(data), nil
}

// Verify checks the signature in constant time before looking at the data.
func (c *Codec) Verify(tok string) (Payload, error) {
	data, sig, ok := strings.Cut(tok, ".")
	if !ok || data == "" || sig == "" {
		return Payload{}, ErrInvalid
	}
	if !hmac.Equal([]byte(sig), []byte(c.mac(data))) {
		return Payload{}, ErrInvalid
	}
	raw, err := enc.DecodeString(data)
	if err != nil {
		return Payload{}, ErrInvalid
	}
	var p Payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return Payload{}, ErrInvalid
	}
	return p, nil
}

func (c *Codec) mac(data string) string {
	h := hmac.New(sha256.New, c.secret)
	h.Write([]byte(data))
	return enc.EncodeToString(h.Sum(nil))
}
