package packet

import "fmt"

// Code is a RADIUS packet code (RFC 2865/2866/3576).
type Code uint8

const (
	CodeAccessRequest      Code = 1
	CodeAccessAccept       Code = 2
	CodeAccessReject       Code = 3
	CodeAccountingRequest  Code = 4
	CodeAccountingResponse Code = 5
	CodeAccessChallenge    Code = 11
	CodeStatusServer       Code = 12
	CodeStatusClient       Code = 13
	CodeDisconnectRequest  Code = 40
	CodeDisconnectACK      Code = 41
	CodeDisconnectNAK      Code = 42
	CodeCoARequest         Code = 43
	CodeCoAAck             Code = 44
	CodeCoANak             Code = 45
)

func (c Code) String() string {
	switch c {
	case CodeAccessRequest:
		return "Access-Request"
	case CodeAccessAccept:
		return "Access-Accept"
	case CodeAccessReject:
		return "Access-Reject"
	case CodeAccountingRequest:
		return "Accounting-Request"
	case CodeAccountingResponse:
		return "Accounting-Response"
	case CodeAccessChallenge:
		return "Access-Challenge"
	case CodeStatusServer:
		return "Status-Server"
	case CodeStatusClient:
		return "Status-Client"
	case CodeDisconnectRequest:
		return "Disconnect-Request"
	case CodeDisconnectACK:
		return "Disconnect-ACK"
	case CodeDisconnectNAK:
		return "Disconnect-NAK"
	case CodeCoARequest:
		return "CoA-Request"
	case CodeCoAAck:
		return "CoA-ACK"
	case CodeCoANak:
		return "CoA-NAK"
	default:
		return fmt.Sprintf("Unknown(%d)", uint8(c))
	}
}

// IsRequest reports whether c is a request code this core will dispatch
// to a handler (as opposed to a reply code a handler produces).
func (c Code) IsRequest() bool {
	switch c {
	case CodeAccessRequest, CodeAccountingRequest, CodeStatusServer,
		CodeDisconnectRequest, CodeCoARequest:
		return true
	default:
		return false
	}
}

// CounterName returns the per-NAS or per-server counter this code's
// packets are tallied under, per the request/reply table in spec.md §6.
func (c Code) CounterName() string {
	switch c {
	case CodeAccessRequest:
		return "accessRequests"
	case CodeAccessAccept:
		return "accessAccepts"
	case CodeAccessReject:
		return "accessRejects"
	case CodeAccessChallenge:
		return "accessChallenges"
	case CodeAccountingRequest:
		return "accountRequests"
	case CodeAccountingResponse:
		return "accountResponses"
	case CodeCoARequest:
		return "coaRequests"
	case CodeCoAAck:
		return "coaAcks"
	case CodeCoANak:
		return "coaNaks"
	case CodeDisconnectRequest:
		return "disconnectRequests"
	case CodeDisconnectACK:
		return "discAcks"
	case CodeDisconnectNAK:
		return "discNaks"
	default:
		return ""
	}
}
