// Package payfast speaks the PayFast-style redirect gateway protocol: MD5-signed parameter sets,
// instant transaction notifications (ITN) and the server-to-server validation call.
package payfast

import (
	"crypto/md5"
	"crypto/subtle"
	"encoding/hex"
	"net/url"
	"sort"
	"strings"
)

// SignatureField is never part of the signed string
const SignatureField = "signature"

// Encode builds the canonical parameter string: keys sorted, empty values and the signature
// dropped, values urlencoded the way the gateway's PHP reference does it.
func Encode(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k, v := range params {
		if k == SignatureField || v == "" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(urlencode(params[k]))
	}
	return b.String()
}

// Sign returns the lowercase hex MD5 of the canonical string with the passphrase appended
func Sign(params map[string]string, passphrase string) string {
	s := Encode(params)
	if passphrase != "" {
		s += "&passphrase=" + urlencode(passphrase)
	}
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

// Verify recomputes the signature and compares it in constant time
func Verify(params map[string]string, claimed, passphrase string) bool {
	if claimed == "" {
		return false
	}
	expected := Sign(params, passphrase)
	return subtle.ConstantTimeCompare([]byte(expected), []byte(strings.ToLower(claimed))) == 1
}

// urlencode matches PHP urlencode: space is '+', everything outside [A-Za-z0-9._-] is %XX.
// url.QueryEscape leaves '~' alone, PHP does not.
func urlencode(v string) string {
	return strings.ReplaceAll(url.QueryEscape(v), "~", "%7E")
}
