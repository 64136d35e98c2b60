// Package worker implements the Handler Worker of spec.md §4.2: the
// short-lived task spawned per accepted request that gates on
// admission, dispatches to a local or remote handler, replies, and then
// retains the reply for retransmission until its retention timer
// expires.
package worker

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/vitalvas/radiuscore/pkg/cluster"
	"github.com/vitalvas/radiuscore/pkg/crypto"
	"github.com/vitalvas/radiuscore/pkg/discard"
	"github.com/vitalvas/radiuscore/pkg/dispatch"
	"github.com/vitalvas/radiuscore/pkg/log"
	"github.com/vitalvas/radiuscore/pkg/nas"
	"github.com/vitalvas/radiuscore/pkg/packet"
	"github.com/vitalvas/radiuscore/pkg/ratelimit"
	"github.com/vitalvas/radiuscore/pkg/remote"
	"github.com/vitalvas/radiuscore/pkg/stats"
	"github.com/vitalvas/radiuscore/pkg/txn"
)

// DefaultRemoteReplyTimeout is the hard deadline on a remote handler RPC
// used when a caller doesn't override it (spec.md §5).
const DefaultRemoteReplyTimeout = 15 * time.Second

// ResendRetries caps the number of retransmissions served from a
// retained reply (spec.md §4.2 step 5).
const ResendRetries = 3

// DefaultResendTimeout is the retention window used when a caller
// doesn't override it (spec.md §4.2 step 5).
const DefaultResendTimeout = 5 * time.Second

// Reply is returned by a Callback to send a response and retain it for
// retransmission (spec.md §4.2 step 4, "{reply, response}").
type Reply struct {
	Response *packet.Packet
	// UseMessageAuthenticator opts a reply into carrying a
	// Message-Authenticator even when the request didn't have one and
	// carried no EAP-Message (spec.md §6's msg_hmac disjunction).
	UseMessageAuthenticator bool
}

// NoReply is returned by a Callback that intentionally sends nothing
// (spec.md §4.2 step 4, "noreply").
type NoReply struct{}

// Callback is the user-supplied handler (spec.md §3 "Handler",
// §6 "the handler callbacks themselves (user code)"). It should return a
// Reply or a NoReply; any other concrete type is treated as a bad
// return (spec.md §4.2 step 4). A panic inside Callback is recovered and
// counted as handlerFailure (spec.md §7).
type Callback func(ctx context.Context, req *packet.Packet, props nas.Properties, handlerData interface{}) (interface{}, error)

// Event is how a Worker reports state transitions back to its owning
// listener (spec.md §4.1 "replied(key, worker)" / "discarded(key)").
type Event struct {
	Key      txn.Key
	WorkerID uint64
	Replied  bool // false means discarded
}

// Config bundles everything a Worker needs beyond the request itself.
type Config struct {
	WorkerID      uint64
	Key           txn.Key
	Conn          *net.UDPConn
	ClientAddr    *net.UDPAddr
	RawRequest    []byte
	Handler       nas.Handler
	Properties    nas.Properties
	Endpoint      string // "listenIP:listenPort", for stats.Key.Endpoint
	SelfNode      cluster.NodeID
	Admission     ratelimit.AdmissionQueue
	AdmissionName string
	Monitor       cluster.Monitor
	Invoker       remote.Invoker
	Callback      Callback
	Counters      *stats.Store
	Logger        log.Logger
	ResendTimeout time.Duration
	RemoteTimeout time.Duration
	Events        chan<- Event
	Retransmit    <-chan struct{}
}

// Worker runs the lifecycle of spec.md §4.2 for a single request.
type Worker struct {
	cfg Config
	nas string
}

// New builds a Worker from cfg.
func New(cfg Config) *Worker {
	if cfg.ResendTimeout <= 0 {
		cfg.ResendTimeout = DefaultResendTimeout
	}
	if cfg.RemoteTimeout <= 0 {
		cfg.RemoteTimeout = DefaultRemoteReplyTimeout
	}
	return &Worker{cfg: cfg, nas: cfg.Properties.NasIP.String()}
}

// Run executes the worker's full lifecycle. It always eventually sends
// exactly one terminal Event (Replied then, after retention, Discarded;
// or Discarded directly) unless the process is killed out from under it,
// which the listener's supervision layer (pkg/listener) handles.
func (w *Worker) Run() {
	token, ok := w.cfg.Admission.Ask(w.cfg.AdmissionName)
	if !ok {
		w.count("packetsDropped")
		w.trace(discard.New(discard.PacketsDropped))
		w.finish()
		return
	}
	defer w.cfg.Admission.Done(token)

	candidates := w.cfg.Monitor.NodesFor(w.cfg.Handler.Module)
	pref := dispatch.Preference{Local: w.cfg.Properties.HandlerNodes.Local, Nodes: w.cfg.Properties.HandlerNodes.Nodes}
	sel := dispatch.Select(candidates, pref, w.cfg.SelfNode)
	if sel.Discard {
		if sel.Reason == discard.NoNodes || sel.Reason == discard.NoNodesLocal {
			w.countServer("discardNoHandler")
		} else {
			w.count("invalidRequests")
		}
		w.trace(discard.New(sel.Reason))
		w.finish()
		return
	}

	req, err := packet.Decode(w.cfg.RawRequest)
	if err != nil {
		w.count("malformedRequests")
		w.trace(discard.Withf(discard.BadPDU, "%v", err))
		w.finish()
		return
	}
	w.countRequestCode(req.Code)

	var inv invocation
	if sel.IsLocal {
		inv = w.invokeLocal(req)
	} else {
		inv = w.invokeRemote(sel.Node, req)
	}

	switch inv.kind {
	case kindReply:
		w.sendReply(req, inv.reply, inv.useMessageAuth)
	case kindNoReply:
		w.trace(discard.New(discard.HandlerReturnedNoReply))
		w.finish()
	case kindBadReturn:
		w.cfg.Logger.Warnf("worker %d: bad_return from handler %s: %s", w.cfg.WorkerID, w.cfg.Handler.Module, inv.badRepr)
		w.trace(discard.Withf(discard.BadReturn, "%s", inv.badRepr))
		w.finish()
	case kindFault:
		w.count("handlerFailure")
		w.cfg.Logger.Errorf("worker %d: handler fault: %v", w.cfg.WorkerID, inv.err)
		w.trace(discard.Withf(discard.HandlerFailure, "%v", inv.err))
		w.finish()
	case kindTimeout:
		w.count("handlerFailure")
		w.trace(discard.Withf(discard.RemoteHandlerReplyTimeout, "node=%s", inv.node))
		w.finish()
	}
}

type invocationKind int

const (
	kindReply invocationKind = iota
	kindNoReply
	kindBadReturn
	kindFault
	kindTimeout
)

type invocation struct {
	kind           invocationKind
	reply          *packet.Packet
	useMessageAuth bool
	badRepr        string
	err            error
	node           cluster.NodeID
}

// invokeLocal calls the callback in-process, recovering any panic into
// a fault (spec.md §4.2 step 4 "uncaught fault").
func (w *Worker) invokeLocal(req *packet.Packet) (result invocation) {
	defer func() {
		if r := recover(); r != nil {
			result = invocation{kind: kindFault, err: fmt.Errorf("panic: %v", r)}
		}
	}()

	ret, err := w.cfg.Callback(context.Background(), req, w.cfg.Properties, w.cfg.Handler.Config)
	if err != nil {
		return invocation{kind: kindFault, err: err}
	}

	switch v := ret.(type) {
	case Reply:
		return invocation{kind: kindReply, reply: v.Response, useMessageAuth: v.UseMessageAuthenticator}
	case NoReply:
		return invocation{kind: kindNoReply}
	default:
		return invocation{kind: kindBadReturn, badRepr: fmt.Sprintf("%#v", ret)}
	}
}

// invokeRemote dispatches the call to a remote node under the deadline
// of spec.md §5.
func (w *Worker) invokeRemote(node cluster.NodeID, req *packet.Packet) invocation {
	ctx, cancel := context.WithTimeout(context.Background(), w.cfg.RemoteTimeout)
	defer cancel()

	call := remote.Call{
		RequestBytes: w.cfg.RawRequest,
		Secret:       w.cfg.Properties.Secret,
		Handler:      w.cfg.Handler,
		Properties:   w.cfg.Properties,
	}

	outcome, err := w.cfg.Invoker.Invoke(ctx, node, call)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return invocation{kind: kindTimeout, node: node}
		}
		return invocation{kind: kindFault, err: err}
	}

	switch outcome.Kind {
	case remote.OutcomeReply:
		reply, decErr := packet.Decode(outcome.ReplyBytes)
		if decErr != nil {
			return invocation{kind: kindFault, err: decErr}
		}
		_ = req // request already validated locally; remote reply trusted as-is
		return invocation{kind: kindReply, reply: reply, useMessageAuth: outcome.UseMessageAuthenticator}
	case remote.OutcomeNoReply:
		return invocation{kind: kindNoReply}
	default:
		return invocation{kind: kindBadReturn, badRepr: outcome.BadReturnRepr}
	}
}

// sendReply encodes and transmits reply, then enters the retention loop
// of spec.md §4.2 step 5.
func (w *Worker) sendReply(req, reply *packet.Packet, wantsMessageAuth bool) {
	reply.Identifier = req.Identifier

	needMsgAuth := req.HasMessageAuthenticator() || wantsMessageAuth || req.HasEAPMessage()

	raw, err := encodeReply(reply, req.Authenticator, w.cfg.Properties.Secret, needMsgAuth)
	if err != nil {
		w.count("handlerFailure")
		w.cfg.Logger.Errorf("worker %d: encoding reply: %v", w.cfg.WorkerID, err)
		w.finish()
		return
	}

	if _, err := w.cfg.Conn.WriteToUDP(raw, w.cfg.ClientAddr); err != nil {
		w.cfg.Logger.Warnf("worker %d: sending reply: %v", w.cfg.WorkerID, err)
	}

	w.countReplyCode(reply.Code)
	w.tracef("reply %s -> %s", reply.Code, w.cfg.ClientAddr)

	w.cfg.Events <- Event{Key: w.cfg.Key, WorkerID: w.cfg.WorkerID, Replied: true}

	w.retain(raw)
}

// retain serves up to ResendRetries retransmissions of raw until the
// resend timeout fires, then signals discarded (spec.md §4.2 step 5,
// §8 retention-bound and retry-cap properties).
func (w *Worker) retain(raw []byte) {
	timer := time.NewTimer(w.cfg.ResendTimeout)
	defer timer.Stop()

	retries := 0
	for retries < ResendRetries {
		select {
		case <-w.cfg.Retransmit:
			if _, err := w.cfg.Conn.WriteToUDP(raw, w.cfg.ClientAddr); err != nil {
				w.cfg.Logger.Warnf("worker %d: resending reply: %v", w.cfg.WorkerID, err)
			}
			retries++
		case <-timer.C:
			w.finish()
			return
		}
	}
	w.finish()
}

// finish signals the listener to remove this transaction (spec.md §4.1
// "discarded(key)").
func (w *Worker) finish() {
	w.cfg.Events <- Event{Key: w.cfg.Key, WorkerID: w.cfg.WorkerID, Replied: false}
}

func (w *Worker) count(metric string) {
	if metric == "" {
		return
	}
	w.cfg.Counters.Inc(stats.Key{Endpoint: w.cfg.Endpoint, NAS: w.nas, Metric: metric})
}

func (w *Worker) countServer(metric string) {
	w.cfg.Counters.Inc(stats.Key{Endpoint: w.cfg.Endpoint, Metric: metric})
}

func (w *Worker) countRequestCode(code packet.Code) {
	if name := code.CounterName(); name != "" {
		w.count(name)
	}
}

func (w *Worker) countReplyCode(code packet.Code) {
	if name := code.CounterName(); name != "" {
		w.count(name)
	}
}

func (w *Worker) trace(o discard.Outcome) {
	if !w.cfg.Properties.Trace {
		w.cfg.Logger.Debugf("worker %d: %s", w.cfg.WorkerID, o)
		return
	}
	w.cfg.Logger.Infof("worker %d nas=%s: %s", w.cfg.WorkerID, w.nas, o)
}

func (w *Worker) tracef(format string, args ...interface{}) {
	if !w.cfg.Properties.Trace {
		w.cfg.Logger.Debugf(format, args...)
		return
	}
	w.cfg.Logger.Infof(format, args...)
}

// encodeReply serializes reply with the RFC 2865/2869 authenticator and
// (optionally) Message-Authenticator dance. Per RFC 2869 §5.14 the two
// hashes cannot be computed in either order interchangeably: the
// Message-Authenticator is hashed over the packet with the *request's*
// authenticator still in the header field and a zeroed attribute value,
// and only once that attribute holds its final value is the Response
// Authenticator hashed over the packet's final bytes.
func encodeReply(reply *packet.Packet, requestAuthenticator [16]byte, secret []byte, needMsgAuth bool) ([]byte, error) {
	reply.Authenticator = requestAuthenticator

	msgAuthIndex := -1
	if needMsgAuth {
		reply.AddAttribute(packet.Attribute{Type: packet.AttrMessageAuthenticator, Value: make([]byte, crypto.MessageAuthenticatorLength)})
		msgAuthIndex = len(reply.Attributes) - 1

		raw, err := reply.Encode()
		if err != nil {
			return nil, err
		}
		mac := crypto.CalculateMessageAuthenticator(raw, secret)
		reply.Attributes[msgAuthIndex].Value = mac[:]
	}

	raw, err := reply.Encode()
	if err != nil {
		return nil, err
	}

	responseAuth := crypto.CalculateResponseAuthenticator(raw, requestAuthenticator, secret)
	reply.Authenticator = responseAuth

	return reply.Encode()
}
