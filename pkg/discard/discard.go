// Package discard defines the closed set of reasons the core silently
// drops a packet instead of replying (spec.md §7).
package discard

import "fmt"

// Reason identifies why a request was discarded.
type Reason int

const (
	// BadPDU: fewer than two bytes, or the codec rejected the datagram.
	BadPDU Reason = iota
	// UnknownNAS: the source IP has no NAS registry entry.
	UnknownNAS
	// NoNodes: no node currently advertises the required handler module.
	NoNodes
	// NoNodesLocal: NAS pins execution to Local but this node doesn't
	// advertise the module.
	NoNodesLocal
	// HandlerReturnedNoReply: the callback explicitly returned noreply.
	HandlerReturnedNoReply
	// BadReturn: the callback returned something other than reply/noreply.
	BadReturn
	// RemoteHandlerReplyTimeout: the remote node never answered within
	// the 15s RPC deadline (spec.md §4.2 step 2, §5).
	RemoteHandlerReplyTimeout
	// HandlerFailure: the callback panicked or otherwise faulted.
	HandlerFailure
	// PacketsDropped: the admission queue refused a token.
	PacketsDropped
)

func (r Reason) String() string {
	switch r {
	case BadPDU:
		return "bad_pdu"
	case UnknownNAS:
		return "unknown_nas"
	case NoNodes:
		return "no_nodes"
	case NoNodesLocal:
		return "no_nodes_local"
	case HandlerReturnedNoReply:
		return "handler_returned_noreply"
	case BadReturn:
		return "bad_return"
	case RemoteHandlerReplyTimeout:
		return "remote_handler_reply_timeout"
	case HandlerFailure:
		return "handlerFailure"
	case PacketsDropped:
		return "packetsDropped"
	default:
		return "unknown"
	}
}

// Outcome pairs a Reason with an optional detail (a node id, the
// offending return value, an underlying error) for logging.
type Outcome struct {
	Reason Reason
	Detail interface{}
}

func (o Outcome) String() string {
	if o.Detail == nil {
		return o.Reason.String()
	}
	return fmt.Sprintf("%s: %v", o.Reason, o.Detail)
}

// New builds an Outcome with no detail.
func New(r Reason) Outcome { return Outcome{Reason: r} }

// Withf builds an Outcome carrying a formatted detail string.
func Withf(r Reason, format string, args ...interface{}) Outcome {
	return Outcome{Reason: r, Detail: fmt.Sprintf(format, args...)}
}
