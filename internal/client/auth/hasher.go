package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"
)

// Nonce is the challenge issued by GET /login_web_app.cgi?nonce.
// It is fetched for every login attempt and never reused.
type Nonce struct {
	Iterations int    `json:"iterations"`
	Nonce      string `json:"nonce"`
	RandomKey  string `json:"randomKey"`
	PublicKey  string `json:"pubkey"`
}

// Field is a single key/value pair of the login form.
type Field struct {
	Key   string
	Value string
}

// Form is the ordered body of POST /login_web_app.cgi.
type Form []Field

// Get returns the value stored under key, or "" when absent.
func (f Form) Get(key string) string {
	for _, field := range f {
		if field.Key == key {
			return field.Value
		}
	}
	return ""
}

// Values converts the form into url.Values for submission.
func (f Form) Values() url.Values {
	v := make(url.Values, len(f))
	for _, field := range f {
		v.Set(field.Key, field.Value)
	}
	return v
}

const encKeySize = 16

var urlEscaper = strings.NewReplacer("+", "-", "/", "_", "=", ".")
var urlUnescaper = strings.NewReplacer("-", "+", "_", "/", ".", "=")

// BuildForm derives the login form from credentials and a server nonce.
// All fields except enckey and enciv are deterministic.
func BuildForm(username, password string, n Nonce) (Form, error) {
	key, err := randomBase64(encKeySize)
	if err != nil {
		return nil, fmt.Errorf("generate enckey: %w", err)
	}
	iv, err := randomBase64(encKeySize)
	if err != nil {
		return nil, fmt.Errorf("generate enciv: %w", err)
	}

	form := Form{
		{"userhash", KeyedHash(username, n.Nonce)},
		{"RandomKeyhash", KeyedHash(n.RandomKey, n.Nonce)},
		{"response", challengeResponse(username, password, n)},
		{"nonce", n.Nonce},
		{"enckey", key},
		{"enciv", iv},
	}
	for i := range form {
		form[i].Value = EscapeURL(form[i].Value)
	}
	return form, nil
}

// PasswordHash transforms the password according to the nonce's iteration count.
//
// Zero iterations lowercase the password. Otherwise the raw bytes are
// SHA-256 hashed iterations-1 times and the result is rendered as
// lowercase hex; the hex text, not the digest, is what gets hashed next.
func PasswordHash(iterations int, password string) string {
	if iterations < 1 {
		return strings.ToLower(password)
	}
	b := []byte(password)
	for i := 1; i < iterations; i++ {
		sum := sha256.Sum256(b)
		b = sum[:]
	}
	return hex.EncodeToString(b)
}

// KeyedHash returns base64(sha256("key:value")) using the standard alphabet.
func KeyedHash(key, value string) string {
	sum := sha256.Sum256([]byte(key + ":" + value))
	return base64.StdEncoding.EncodeToString(sum[:])
}

// UserHash is the URL-escaped userhash form field for username and nonce.
func UserHash(username, nonce string) string {
	return EscapeURL(KeyedHash(username, nonce))
}

// ChallengeResponse is the URL-escaped response form field a gateway
// expects for the given credentials.
func ChallengeResponse(username, password string, n Nonce) string {
	return EscapeURL(challengeResponse(username, password, n))
}

func challengeResponse(username, password string, n Nonce) string {
	credsHash := KeyedHash(username, PasswordHash(n.Iterations, password))
	return KeyedHash(credsHash, n.Nonce)
}

// EscapeURL maps standard base64 to the gateway alphabet:
// '+' to '-', '/' to '_' and '=' to '.'. Padding is kept.
func EscapeURL(s string) string {
	return urlEscaper.Replace(s)
}

// UnescapeURL reverses EscapeURL.
func UnescapeURL(s string) string {
	return urlUnescaper.Replace(s)
}

func randomBase64(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(b), nil
}
