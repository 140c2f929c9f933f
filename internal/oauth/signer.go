// Package oauth signs X API requests with OAuth1.0a HMAC-SHA1.
//
// Only URL query parameters take part in the signature. Request bodies (JSON
// or multipart) are never part of the base string.
package oauth

import (
	"crypto/rand"
	"encoding/hex"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dghubble/oauth1"
)

const (
	SignatureMethod = "HMAC-SHA1"
	Version         = "1.0"
)

// OAuth parameter names as they appear on the wire.
const (
	ParamConsumerKey     = "oauth_consumer_key"
	ParamNonce           = "oauth_nonce"
	ParamSignature       = "oauth_signature"
	ParamSignatureMethod = "oauth_signature_method"
	ParamTimestamp       = "oauth_timestamp"
	ParamToken           = "oauth_token"
	ParamVersion         = "oauth_version"
)

// Credentials are the four user-context secrets issued by the developer portal.
type Credentials struct {
	ConsumerKey    string
	ConsumerSecret string
	AccessToken    string
	AccessSecret   string
}

// Signer produces Authorization header values. It holds the credentials and
// nothing else that outlives a call.
type Signer struct {
	creds Credentials
	nonce func() string
	now   func() time.Time
}

type Option func(*Signer)

// WithNonce replaces the random nonce source.
func WithNonce(fn func() string) Option {
	return func(s *Signer) { s.nonce = fn }
}

// WithClock replaces time.Now for the oauth_timestamp.
func WithClock(fn func() time.Time) Option {
	return func(s *Signer) { s.now = fn }
}

func NewSigner(creds Credentials, opts ...Option) *Signer {
	s := &Signer{creds: creds, nonce: randomNonce, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Sign returns the value for the Authorization header of a request to baseURL
// (no query component) carrying the given query params.
func (s *Signer) Sign(method, baseURL string, params map[string]string) string {
	oauthParams := map[string]string{
		ParamConsumerKey:     s.creds.ConsumerKey,
		ParamNonce:           s.nonce(),
		ParamSignatureMethod: SignatureMethod,
		ParamTimestamp:       strconv.FormatInt(s.now().Unix(), 10),
		ParamToken:           s.creds.AccessToken,
		ParamVersion:         Version,
	}

	all := make(map[string]string, len(oauthParams)+len(params))
	for k, v := range params {
		all[k] = v
	}
	for k, v := range oauthParams {
		all[k] = v
	}

	oauthParams[ParamSignature] = s.signature(BaseString(method, baseURL, all))
	return authorizationHeader(oauthParams)
}

func (s *Signer) signature(base string) string {
	hs := &oauth1.HMACSigner{ConsumerSecret: PercentEncode(s.creds.ConsumerSecret)}
	// HMAC never fails; the error is part of the oauth1.Signer interface only.
	sig, _ := hs.Sign(PercentEncode(s.creds.AccessSecret), base)
	return sig
}

// PercentEncode escapes everything outside the RFC 3986 unreserved set
// (A-Z a-z 0-9 - . _ ~) as %XX with uppercase hex.
func PercentEncode(s string) string {
	return oauth1.PercentEncode(s)
}

type pair struct{ k, v string }

// Canonicalize encodes every key and value, sorts by encoded key then encoded
// value, and joins them as k=v&k=v. Insertion order of params is irrelevant.
func Canonicalize(params map[string]string) string {
	pairs := make([]pair, 0, len(params))
	for k, v := range params {
		pairs = append(pairs, pair{PercentEncode(k), PercentEncode(v)})
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].k != pairs[j].k {
			return pairs[i].k < pairs[j].k
		}
		return pairs[i].v < pairs[j].v
	})

	var b strings.Builder
	for i, p := range pairs {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(p.k)
		b.WriteByte('=')
		b.WriteString(p.v)
	}
	return b.String()
}

// BaseString is METHOD&enc(baseURL)&enc(canonical params).
func BaseString(method, baseURL string, params map[string]string) string {
	return strings.ToUpper(method) + "&" + PercentEncode(baseURL) + "&" + PercentEncode(Canonicalize(params))
}

func authorizationHeader(oauthParams map[string]string) string {
	keys := make([]string, 0, len(oauthParams))
	for k := range oauthParams {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, PercentEncode(k)+`="`+PercentEncode(oauthParams[k])+`"`)
	}
	return "OAuth " + strings.Join(parts, ", ")
}

// ParseHeader splits an OAuth Authorization header back into its (decoded)
// parameters. It returns nil when the value is not an OAuth header.
func ParseHeader(h string) map[string]string {
	rest, ok := strings.CutPrefix(h, "OAuth ")
	if !ok {
		return nil
	}
	out := map[string]string{}
	for _, part := range strings.Split(rest, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		out[k] = percentDecode(strings.Trim(v, `"`))
	}
	return out
}

func percentDecode(s string) string {
	if d, err := url.PathUnescape(s); err == nil {
		return d
	}
	return s
}

// randomNonce returns 32 bytes of crypto/rand as hex.
func randomNonce() string {
	var buf [32]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// crypto/rand does not fail on supported platforms
		panic("oauth: nonce: " + err.Error())
	}
	return hex.EncodeToString(buf[:])
}
