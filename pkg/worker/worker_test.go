package worker

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitalvas/radiuscore/pkg/cluster"
	"github.com/vitalvas/radiuscore/pkg/crypto"
	"github.com/vitalvas/radiuscore/pkg/log"
	"github.com/vitalvas/radiuscore/pkg/nas"
	"github.com/vitalvas/radiuscore/pkg/packet"
	"github.com/vitalvas/radiuscore/pkg/ratelimit"
	"github.com/vitalvas/radiuscore/pkg/remote"
	"github.com/vitalvas/radiuscore/pkg/stats"
	"github.com/vitalvas/radiuscore/pkg/txn"
)

const testSecret = "sharedsecret"

func rawAccessRequest(t *testing.T, identifier uint8, withMessageAuth bool) ([]byte, [16]byte) {
	t.Helper()

	var reqAuth [16]byte
	copy(reqAuth[:], []byte("0123456789abcdef"))

	p := packet.New(packet.CodeAccessRequest, identifier)
	p.Authenticator = reqAuth
	p.AddAttribute(packet.NewStringAttribute(packet.AttrUserName, "alice"))

	if withMessageAuth {
		p.AddAttribute(packet.Attribute{Type: packet.AttrMessageAuthenticator, Value: make([]byte, 16)})
	}

	raw, err := p.Encode()
	require.NoError(t, err)

	if withMessageAuth {
		mac := crypto.CalculateMessageAuthenticator(raw, []byte(testSecret))
		for i, a := range p.Attributes {
			if a.Type == packet.AttrMessageAuthenticator {
				p.Attributes[i].Value = mac[:]
			}
		}
		raw, err = p.Encode()
		require.NoError(t, err)
	}

	return raw, reqAuth
}

func newTestWorker(t *testing.T, cb Callback, extra func(*Config)) (*Worker, *net.UDPConn, *net.UDPConn, chan Event) {
	t.Helper()

	serverConn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1")})
	require.NoError(t, err)
	t.Cleanup(func() { serverConn.Close() })

	clientConn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1")})
	require.NoError(t, err)
	t.Cleanup(func() { clientConn.Close() })

	raw, _ := rawAccessRequest(t, 5, false)

	events := make(chan Event, 8)
	monitor := cluster.NewStaticMonitor()
	monitor.SetNodes("auth", []cluster.NodeID{"self"})

	cfg := Config{
		WorkerID:      1,
		Key:           txn.Key{SourceIP: "127.0.0.1", SourcePort: clientConn.LocalAddr().(*net.UDPAddr).Port, RequestID: 5},
		Conn:          serverConn,
		ClientAddr:    clientConn.LocalAddr().(*net.UDPAddr),
		RawRequest:    raw,
		Handler:       nas.Handler{Module: "auth"},
		Properties:    nas.Properties{NasIP: net.ParseIP("10.0.0.1"), Secret: []byte(testSecret)},
		Endpoint:      "127.0.0.1:1812",
		SelfNode:      "self",
		Admission:     ratelimit.NewQueue(ratelimit.Config{RequestsPerSecond: 100, Burst: 100}),
		AdmissionName: "127.0.0.1:1812",
		Monitor:       monitor,
		Invoker:       remote.LocalInvoker{},
		Callback:      cb,
		Counters:      stats.New(),
		Logger:        log.Nop{},
		ResendTimeout: 30 * time.Millisecond,
		Events:        events,
		Retransmit:    make(chan struct{}),
	}
	if extra != nil {
		extra(&cfg)
	}

	return New(cfg), serverConn, clientConn, events
}

func TestWorker_ReplyRoundTrip(t *testing.T) {
	cb := func(ctx context.Context, req *packet.Packet, props nas.Properties, data interface{}) (interface{}, error) {
		resp := packet.New(packet.CodeAccessAccept, req.Identifier)
		return Reply{Response: resp}, nil
	}

	w, _, clientConn, events := newTestWorker(t, cb, nil)

	done := make(chan struct{})
	go func() { w.Run(); close(done) }()

	clientConn.SetReadDeadline(time.Now().Add(time.Second))
	buf := make([]byte, 4096)
	n, _, err := clientConn.ReadFromUDP(buf)
	require.NoError(t, err)

	reply, err := packet.Decode(buf[:n])
	require.NoError(t, err)
	assert.Equal(t, packet.CodeAccessAccept, reply.Code)
	assert.Equal(t, uint8(5), reply.Identifier)

	ev := <-events
	assert.True(t, ev.Replied)

	<-done
	ev = <-events
	assert.False(t, ev.Replied)
}

func TestWorker_NoReplyDiscards(t *testing.T) {
	cb := func(ctx context.Context, req *packet.Packet, props nas.Properties, data interface{}) (interface{}, error) {
		return NoReply{}, nil
	}

	w, _, _, events := newTestWorker(t, cb, nil)
	w.Run()

	ev := <-events
	assert.False(t, ev.Replied)
}

func TestWorker_BadReturnDiscards(t *testing.T) {
	cb := func(ctx context.Context, req *packet.Packet, props nas.Properties, data interface{}) (interface{}, error) {
		return 42, nil
	}

	w, _, _, events := newTestWorker(t, cb, nil)
	w.Run()

	ev := <-events
	assert.False(t, ev.Replied)
}

func TestWorker_PanicRecoveredAsFault(t *testing.T) {
	cb := func(ctx context.Context, req *packet.Packet, props nas.Properties, data interface{}) (interface{}, error) {
		panic("handler exploded")
	}

	w, _, _, events := newTestWorker(t, cb, nil)
	assert.NotPanics(t, func() { w.Run() })

	ev := <-events
	assert.False(t, ev.Replied)
}

func TestWorker_NoNodesDiscards(t *testing.T) {
	cb := func(ctx context.Context, req *packet.Packet, props nas.Properties, data interface{}) (interface{}, error) {
		return Reply{Response: packet.New(packet.CodeAccessAccept, req.Identifier)}, nil
	}

	w, _, _, events := newTestWorker(t, cb, func(cfg *Config) {
		cfg.Monitor = cluster.NewStaticMonitor() // no nodes advertise "auth"
	})
	w.Run()

	ev := <-events
	assert.False(t, ev.Replied)
}

func TestWorker_RetainsAndResends(t *testing.T) {
	cb := func(ctx context.Context, req *packet.Packet, props nas.Properties, data interface{}) (interface{}, error) {
		return Reply{Response: packet.New(packet.CodeAccessAccept, req.Identifier)}, nil
	}

	retransmit := make(chan struct{})
	w, _, clientConn, events := newTestWorker(t, cb, func(cfg *Config) {
		cfg.Retransmit = retransmit
		cfg.ResendTimeout = 200 * time.Millisecond
	})

	done := make(chan struct{})
	go func() { w.Run(); close(done) }()

	clientConn.SetReadDeadline(time.Now().Add(time.Second))
	buf := make([]byte, 4096)
	_, _, err := clientConn.ReadFromUDP(buf)
	require.NoError(t, err)
	<-events // replied

	retransmit <- struct{}{}

	clientConn.SetReadDeadline(time.Now().Add(time.Second))
	n, _, err := clientConn.ReadFromUDP(buf)
	require.NoError(t, err)
	assert.Greater(t, n, 0)

	<-done
	ev := <-events
	assert.False(t, ev.Replied)
}

type fakeInvoker struct {
	outcome remote.Outcome
	err     error
	block   bool
}

func (f *fakeInvoker) Invoke(ctx context.Context, node cluster.NodeID, call remote.Call) (remote.Outcome, error) {
	if f.block {
		<-ctx.Done()
		return remote.Outcome{}, ctx.Err()
	}
	return f.outcome, f.err
}

func remoteNodePreference(cfg *Config, node cluster.NodeID) {
	cfg.Properties.HandlerNodes = nas.HandlerNodes{Nodes: []cluster.NodeID{node}}
	m := cluster.NewStaticMonitor()
	m.SetNodes("auth", []cluster.NodeID{node})
	cfg.Monitor = m
}

func TestWorker_RemoteReplyThreadsMessageAuthenticatorFlag(t *testing.T) {
	resp := packet.New(packet.CodeAccessAccept, 5)
	replyRaw, err := resp.Encode()
	require.NoError(t, err)

	inv := &fakeInvoker{outcome: remote.Outcome{Kind: remote.OutcomeReply, ReplyBytes: replyRaw, UseMessageAuthenticator: true}}

	w, _, clientConn, events := newTestWorker(t, nil, func(cfg *Config) {
		cfg.Invoker = inv
		remoteNodePreference(cfg, "remote-1")
	})

	done := make(chan struct{})
	go func() { w.Run(); close(done) }()

	clientConn.SetReadDeadline(time.Now().Add(time.Second))
	buf := make([]byte, 4096)
	n, _, err := clientConn.ReadFromUDP(buf)
	require.NoError(t, err)

	reply, err := packet.Decode(buf[:n])
	require.NoError(t, err)
	_, hasMAC := reply.GetAttribute(packet.AttrMessageAuthenticator)
	assert.True(t, hasMAC, "a remote-dispatched reply must carry Message-Authenticator when the remote handler requested it")

	<-events // replied
	<-done
	<-events // discarded after retention
}

func TestWorker_RemoteTimeoutReportsHandlerFailureAndSendsNothing(t *testing.T) {
	inv := &fakeInvoker{block: true}

	w, _, clientConn, events := newTestWorker(t, nil, func(cfg *Config) {
		cfg.Invoker = inv
		cfg.RemoteTimeout = 20 * time.Millisecond
		remoteNodePreference(cfg, "remote-1")
	})

	w.Run()

	ev := <-events
	assert.False(t, ev.Replied)

	clientConn.SetReadDeadline(time.Now().Add(50 * time.Millisecond))
	buf := make([]byte, 4096)
	_, _, err := clientConn.ReadFromUDP(buf)
	assert.Error(t, err, "a remote timeout must not send any datagram")

	found := false
	for k, v := range w.cfg.Counters.Snapshot(w.cfg.Endpoint) {
		if k.Metric == "handlerFailure" && v > 0 {
			found = true
		}
	}
	assert.True(t, found, "a remote timeout must count handlerFailure")
}

func TestWorker_ReplyMessageAuthenticatorMatchesRFC2869Order(t *testing.T) {
	raw, reqAuth := rawAccessRequest(t, 9, true)

	cb := func(ctx context.Context, req *packet.Packet, props nas.Properties, data interface{}) (interface{}, error) {
		resp := packet.New(packet.CodeAccessAccept, req.Identifier)
		return Reply{Response: resp}, nil
	}

	w, _, clientConn, events := newTestWorker(t, cb, func(cfg *Config) {
		cfg.RawRequest = raw
		cfg.Key = txn.Key{SourceIP: "127.0.0.1", SourcePort: cfg.Key.SourcePort, RequestID: 9}
	})

	done := make(chan struct{})
	go func() { w.Run(); close(done) }()

	clientConn.SetReadDeadline(time.Now().Add(time.Second))
	buf := make([]byte, 4096)
	n, _, err := clientConn.ReadFromUDP(buf)
	require.NoError(t, err)
	replyRaw := append([]byte(nil), buf[:n]...)

	reply, err := packet.Decode(replyRaw)
	require.NoError(t, err)
	assert.Equal(t, packet.CodeAccessAccept, reply.Code)

	sentMAC, ok := reply.GetAttribute(packet.AttrMessageAuthenticator)
	require.True(t, ok, "reply must carry a Message-Authenticator when the request had one")

	// RFC 2869 §5.14: the Message-Authenticator is hashed over the reply
	// with the *request's* authenticator in the header and the attribute
	// value zeroed, never the reply's own Response Authenticator.
	forMAC := &packet.Packet{Code: reply.Code, Identifier: reply.Identifier, Authenticator: reqAuth, Attributes: make([]packet.Attribute, len(reply.Attributes))}
	copy(forMAC.Attributes, reply.Attributes)
	for i, a := range forMAC.Attributes {
		if a.Type == packet.AttrMessageAuthenticator {
			forMAC.Attributes[i] = packet.Attribute{Type: a.Type, Value: make([]byte, len(a.Value))}
		}
	}
	rawForMAC, err := forMAC.Encode()
	require.NoError(t, err)
	wantMAC := crypto.CalculateMessageAuthenticator(rawForMAC, []byte(testSecret))
	assert.Equal(t, wantMAC[:], sentMAC.Value, "Message-Authenticator must be hashed with the request authenticator in the header")

	// The Response Authenticator must be hashed over the packet's final
	// bytes, i.e. with the just-verified Message-Authenticator already in
	// place, not a zeroed placeholder.
	forResponseAuth := &packet.Packet{Code: reply.Code, Identifier: reply.Identifier, Authenticator: reqAuth, Attributes: reply.Attributes}
	rawForResponseAuth, err := forResponseAuth.Encode()
	require.NoError(t, err)
	wantResponseAuth := crypto.CalculateResponseAuthenticator(rawForResponseAuth, reqAuth, []byte(testSecret))
	assert.Equal(t, wantResponseAuth, reply.Authenticator)

	<-events // replied
	<-done
	<-events // discarded after retention
}

func TestWorker_RetryCapEndsRetentionEarly(t *testing.T) {
	cb := func(ctx context.Context, req *packet.Packet, props nas.Properties, data interface{}) (interface{}, error) {
		return Reply{Response: packet.New(packet.CodeAccessAccept, req.Identifier)}, nil
	}

	retransmit := make(chan struct{})
	w, _, clientConn, events := newTestWorker(t, cb, func(cfg *Config) {
		cfg.Retransmit = retransmit
		cfg.ResendTimeout = 10 * time.Second // long enough that only the retry cap can end retention
	})

	done := make(chan struct{})
	go func() { w.Run(); close(done) }()

	clientConn.SetReadDeadline(time.Now().Add(time.Second))
	buf := make([]byte, 4096)
	_, _, err := clientConn.ReadFromUDP(buf)
	require.NoError(t, err)
	<-events // replied

	for i := 0; i < ResendRetries; i++ {
		retransmit <- struct{}{}
		clientConn.SetReadDeadline(time.Now().Add(time.Second))
		_, _, err := clientConn.ReadFromUDP(buf)
		require.NoError(t, err)
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not exit after exhausting its retry budget")
	}

	ev := <-events
	assert.False(t, ev.Replied)
}
