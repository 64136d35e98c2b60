package packet

const (
	// HeaderLength is the fixed RADIUS header size: code(1) + id(1) + length(2) + authenticator(16).
	HeaderLength = 20
	// AuthenticatorLength is the size of the Request/Response Authenticator field.
	AuthenticatorLength = 16
	// MinLength is the smallest a well-formed RADIUS packet can be.
	MinLength = HeaderLength
	// MaxLength is the largest a RADIUS packet may be (RFC 2865 §3).
	MaxLength = 4096

	// Attribute types this core reads or writes by number.
	AttrUserName             = 1
	AttrUserPassword         = 2
	AttrReplyMessage         = 18
	AttrEAPMessage           = 79
	AttrMessageAuthenticator = 80
)
