// Package remote pins the "invoke a handler on a chosen remote worker"
// collaborator implied by spec.md §4.2 step 2 and left as a transport
// detail by spec.md §1 ("distributed dispatch... some NASes' handlers
// may run on remote workers"). The wire format between nodes is not
// specified; this package only fixes the call shape a Worker needs.
package remote

import (
	"context"

	"github.com/vitalvas/radiuscore/pkg/cluster"
	"github.com/vitalvas/radiuscore/pkg/nas"
)

// Call is everything a remote node needs to run one handler invocation.
type Call struct {
	RequestBytes []byte
	Secret       []byte
	Handler      nas.Handler
	Properties   nas.Properties
}

// Invoker dispatches a Call to a specific node and waits for its result.
// Implementations are expected to honor ctx's deadline; the worker sets
// a deadline per spec.md §5 (15s by default).
type Invoker interface {
	Invoke(ctx context.Context, node cluster.NodeID, call Call) (Outcome, error)
}

// Outcome mirrors the possible callback returns of spec.md §4.2 step 4,
// carried back across the remote boundary.
type Outcome struct {
	Kind       OutcomeKind
	ReplyBytes []byte // set when Kind == OutcomeReply; already-encoded by the remote node
	// UseMessageAuthenticator mirrors Reply.UseMessageAuthenticator
	// (spec.md §6's msg_hmac disjunction) for a remote-dispatched
	// handler; set when Kind == OutcomeReply.
	UseMessageAuthenticator bool
	BadReturnRepr           string
}

type OutcomeKind int

const (
	OutcomeReply OutcomeKind = iota
	OutcomeNoReply
	OutcomeBadReturn
)

// LocalInvoker is a same-process stand-in for a real RPC transport,
// useful for tests and single-node deployments where every candidate
// node is, in fact, this node. It always returns an error, since a
// correctly configured dispatcher never selects a "remote" node for a
// LocalInvoker deployment.
type LocalInvoker struct{}

func (LocalInvoker) Invoke(context.Context, cluster.NodeID, Call) (Outcome, error) {
	return Outcome{}, errNoRemoteTransport
}

var errNoRemoteTransport = remoteError("remote: no remote transport configured")

type remoteError string

func (e remoteError) Error() string { return string(e) }
