// Package packet implements the RADIUS wire codec (RFC 2865/2866/3576)
// that the core dispatch server treats as a pinned external interface
// (spec.md §6): Decode/Encode plus authenticator calculation.
package packet

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrTooShort is returned by Decode for a datagram too short to be a
// well-formed RADIUS packet, and by the listener for anything under two
// bytes (spec.md §4.1 step 1, "bad_pdu").
var ErrTooShort = errors.New("packet: too short")

// Packet is a decoded RADIUS request or reply.
type Packet struct {
	Code          Code
	Identifier    uint8
	Authenticator [AuthenticatorLength]byte
	Attributes    []Attribute
}

// New creates an empty packet with the given code and identifier, ready
// to have attributes added before Encode.
func New(code Code, identifier uint8) *Packet {
	return &Packet{Code: code, Identifier: identifier}
}

// RequestID extracts the request identifier from a raw datagram without
// fully decoding it, per spec.md §4.1 step 1 ("require at least two
// bytes; extract the second byte as request_id").
func RequestID(data []byte) (uint8, error) {
	if len(data) < 2 {
		return 0, ErrTooShort
	}
	return data[1], nil
}

// Decode parses a raw RADIUS datagram.
func Decode(data []byte) (*Packet, error) {
	if len(data) < HeaderLength {
		return nil, ErrTooShort
	}

	length := binary.BigEndian.Uint16(data[2:4])
	if int(length) > len(data) || length < HeaderLength {
		return nil, fmt.Errorf("packet: declared length %d inconsistent with %d received bytes", length, len(data))
	}

	pkt := &Packet{
		Code:       Code(data[0]),
		Identifier: data[1],
	}
	copy(pkt.Authenticator[:], data[4:20])

	offset := HeaderLength
	for offset < int(length) {
		if offset+2 > int(length) {
			return nil, fmt.Errorf("packet: truncated attribute header at offset %d", offset)
		}

		attrType := data[offset]
		attrLen := int(data[offset+1])
		if attrLen < 2 || offset+attrLen > int(length) {
			return nil, fmt.Errorf("packet: invalid attribute length %d at offset %d", attrLen, offset)
		}

		value := make([]byte, attrLen-2)
		copy(value, data[offset+2:offset+attrLen])
		pkt.Attributes = append(pkt.Attributes, Attribute{Type: attrType, Value: value})

		offset += attrLen
	}

	return pkt, nil
}

// Encode serializes the packet to wire bytes.
func (p *Packet) Encode() ([]byte, error) {
	length := HeaderLength
	for _, attr := range p.Attributes {
		length += attr.encodedLength()
	}
	if length > MaxLength {
		return nil, fmt.Errorf("packet: encoded length %d exceeds maximum %d", length, MaxLength)
	}

	buf := make([]byte, length)
	buf[0] = byte(p.Code)
	buf[1] = p.Identifier
	binary.BigEndian.PutUint16(buf[2:4], uint16(length))
	copy(buf[4:20], p.Authenticator[:])

	offset := HeaderLength
	for _, attr := range p.Attributes {
		n := attr.encodedLength()
		buf[offset] = attr.Type
		buf[offset+1] = byte(n)
		copy(buf[offset+2:offset+n], attr.Value)
		offset += n
	}

	return buf, nil
}

// AddAttribute appends an attribute to the packet.
func (p *Packet) AddAttribute(attr Attribute) {
	p.Attributes = append(p.Attributes, attr)
}

// GetAttribute returns the first attribute of the given type.
func (p *Packet) GetAttribute(attrType uint8) (Attribute, bool) {
	for _, a := range p.Attributes {
		if a.Type == attrType {
			return a, true
		}
	}
	return Attribute{}, false
}

// GetAttributes returns every attribute of the given type, in order.
func (p *Packet) GetAttributes(attrType uint8) []Attribute {
	var out []Attribute
	for _, a := range p.Attributes {
		if a.Type == attrType {
			out = append(out, a)
		}
	}
	return out
}

// HasMessageAuthenticator reports whether the packet carries a
// Message-Authenticator attribute (RFC 2869).
func (p *Packet) HasMessageAuthenticator() bool {
	_, ok := p.GetAttribute(AttrMessageAuthenticator)
	return ok
}

// HasEAPMessage reports whether the packet carries an EAP-Message
// attribute, used by spec.md §6's msg_hmac inheritance rule.
func (p *Packet) HasEAPMessage() bool {
	_, ok := p.GetAttribute(AttrEAPMessage)
	return ok
}
