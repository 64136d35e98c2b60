package crypto

import (
	"crypto/hmac"
	"crypto/md5"
)

// MessageAuthenticatorLength is the size of the Message-Authenticator
// attribute value (RFC 2869 §5.14).
const MessageAuthenticatorLength = 16

// CalculateMessageAuthenticator computes HMAC-MD5(secret, packet) over a
// full encoded packet whose Message-Authenticator value field (if any)
// has already been zeroed by the caller, per RFC 2869 §5.14. The
// authenticator embedded in packetData's header must be the *request*
// authenticator, both for a request and for a reply: computing it over
// the reply's own (not-yet-known) Response Authenticator would make the
// two hashes circularly dependent.
func CalculateMessageAuthenticator(packetData []byte, secret []byte) [MessageAuthenticatorLength]byte {
	mac := hmac.New(md5.New, secret)
	mac.Write(packetData)

	var out [MessageAuthenticatorLength]byte
	copy(out[:], mac.Sum(nil))
	return out
}

// ValidateMessageAuthenticator reports whether received matches the
// Message-Authenticator computed over packetData (which must have its
// Message-Authenticator value field zeroed the same way the sender
// zeroed it before signing).
func ValidateMessageAuthenticator(packetData []byte, secret []byte, received [MessageAuthenticatorLength]byte) bool {
	expected := CalculateMessageAuthenticator(packetData, secret)
	return hmac.Equal(expected[:], received[:])
}
