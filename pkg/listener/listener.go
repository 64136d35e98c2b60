// Package listener implements the Listener of spec.md §4.1: the single
// goroutine that owns a UDP socket and the transaction table, spawns
// Handler Workers, and supervises their exits.
package listener

import (
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vitalvas/radiuscore/pkg/cluster"
	"github.com/vitalvas/radiuscore/pkg/discard"
	"github.com/vitalvas/radiuscore/pkg/log"
	"github.com/vitalvas/radiuscore/pkg/nas"
	"github.com/vitalvas/radiuscore/pkg/packet"
	"github.com/vitalvas/radiuscore/pkg/ratelimit"
	"github.com/vitalvas/radiuscore/pkg/remote"
	"github.com/vitalvas/radiuscore/pkg/stats"
	"github.com/vitalvas/radiuscore/pkg/txn"
	"github.com/vitalvas/radiuscore/pkg/worker"
)

// Options configures a Instance beyond its listen address.
type Options struct {
	Registry      nas.Registry
	Monitor       cluster.Monitor
	Admission     ratelimit.AdmissionQueue
	Invoker       remote.Invoker
	Callback      worker.Callback
	Counters      *stats.Store
	Logger        log.Logger
	SelfNode      cluster.NodeID
	ResendTimeout time.Duration
	RemoteTimeout time.Duration
	RecvBuffer    int
}

func (o *Options) setDefaults() {
	if o.Invoker == nil {
		o.Invoker = remote.LocalInvoker{}
	}
	if o.Counters == nil {
		o.Counters = stats.New()
	}
	if o.Logger == nil {
		o.Logger = log.NewDefaultLogger()
	}
	if o.ResendTimeout <= 0 {
		o.ResendTimeout = worker.DefaultResendTimeout
	}
	if o.RemoteTimeout <= 0 {
		o.RemoteTimeout = worker.DefaultRemoteReplyTimeout
	}
	if o.RecvBuffer <= 0 {
		o.RecvBuffer = packet.MaxLength
	}
}

// Instance is a running Listener bound to one UDP endpoint. All mutable
// state (the transaction table, the worker registry) is touched only by
// the run goroutine, matching spec.md §5's single-owner design.
type Instance struct {
	listenIP   net.IP
	listenPort int
	endpoint   string
	conn       *net.UDPConn
	opts       Options

	table   *txn.Table
	workers map[uint64]workerHandle
	nextID  uint64

	datagrams chan datagram
	events    chan worker.Event
	exits     chan exitSignal

	closeOnce sync.Once
	closeCh   chan struct{}
	wg        sync.WaitGroup
}

type workerHandle struct {
	key        txn.Key
	retransmit chan struct{}
}

type datagram struct {
	data []byte
	addr *net.UDPAddr
}

type exitSignal struct {
	workerID uint64
	abnormal bool
	detail   interface{}
}

// Start binds a UDP socket at listenIP:listenPort and begins serving
// requests per spec.md §4.1.
func Start(listenIP net.IP, listenPort int, opts Options) (*Instance, error) {
	opts.setDefaults()

	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: listenIP, Port: listenPort})
	if err != nil {
		return nil, fmt.Errorf("listener: %w", err)
	}

	inst := &Instance{
		listenIP:   listenIP,
		listenPort: listenPort,
		endpoint:   fmt.Sprintf("%s:%d", listenIP, listenPort),
		conn:       conn,
		opts:       opts,
		table:      txn.New(),
		workers:    make(map[uint64]workerHandle),
		datagrams:  make(chan datagram, 256),
		events:     make(chan worker.Event, 256),
		exits:      make(chan exitSignal, 256),
		closeCh:    make(chan struct{}),
	}

	inst.wg.Add(2)
	go inst.recvLoop()
	go inst.run()

	return inst, nil
}

// Endpoint returns the "ip:port" string this instance's stats are keyed
// under.
func (inst *Instance) Endpoint() string { return inst.endpoint }

// Close stops accepting new datagrams and shuts down the actor loop.
// In-flight workers are left to finish on their own; they signal
// discarded/replied into a closed instance harmlessly (the run loop
// drains events until every spawned worker has reported in, then
// exits).
func (inst *Instance) Close() error {
	var err error
	inst.closeOnce.Do(func() {
		err = inst.conn.Close()
		close(inst.closeCh)
	})
	inst.wg.Wait()
	_ = err
	return nil
}

func (inst *Instance) recvLoop() {
	defer inst.wg.Done()

	buf := make([]byte, inst.opts.RecvBuffer)
	for {
		n, addr, err := inst.conn.ReadFromUDP(buf)
		if err != nil {
			return // socket closed
		}

		data := make([]byte, n)
		copy(data, buf[:n])

		select {
		case inst.datagrams <- datagram{data: data, addr: addr}:
		case <-inst.closeCh:
			return
		}
	}
}

func (inst *Instance) run() {
	defer inst.wg.Done()

	pendingWorkers := 0
	closing := false
	closeCh := inst.closeCh // local: nil'd out below without racing Close's use of inst.closeCh

	for {
		select {
		case dg := <-inst.datagrams:
			if h := inst.handleDatagram(dg); h {
				pendingWorkers++
			}
		case ev := <-inst.events:
			inst.handleEvent(ev)
			if !ev.Replied {
				pendingWorkers--
			}
		case ex := <-inst.exits:
			inst.handleExit(ex)
		case <-closeCh:
			// Stop selecting on a channel that's now permanently ready;
			// a nil channel blocks forever instead of spinning the loop.
			closeCh = nil
			closing = true
		}

		if closing && pendingWorkers <= 0 && len(inst.datagrams) == 0 {
			return
		}
	}
}

// handleDatagram implements spec.md §4.1 steps 1-4. It returns true if a
// new worker was spawned.
func (inst *Instance) handleDatagram(dg datagram) bool {
	requestID, err := packet.RequestID(dg.data)
	if err != nil {
		inst.opts.Counters.Inc(stats.Key{Endpoint: inst.endpoint, Metric: "invalidRequests"})
		inst.opts.Logger.Debugf("listener %s: %s from %s", inst.endpoint, discard.New(discard.BadPDU), dg.addr)
		return false
	}

	handler, props, err := inst.opts.Registry.Lookup(inst.listenIP, inst.listenPort, dg.addr.IP)
	if err != nil {
		inst.opts.Counters.Inc(stats.Key{Endpoint: inst.endpoint, Metric: "invalidRequests"})
		inst.opts.Logger.Debugf("listener %s: %s from %s", inst.endpoint, discard.New(discard.UnknownNAS), dg.addr)
		return false
	}

	key := txn.NewKey(dg.addr, requestID)
	nasKey := props.NasIP.String()

	entry, exists := inst.table.Lookup(key)
	if !exists {
		id := atomic.AddUint64(&inst.nextID, 1)
		retransmit := make(chan struct{}, worker.ResendRetries)
		inst.workers[id] = workerHandle{key: key, retransmit: retransmit}
		inst.table.Insert(key, id)
		inst.opts.Counters.Inc(stats.Key{Endpoint: inst.endpoint, NAS: nasKey, Metric: "requests"})
		inst.spawnWorker(id, key, dg, handler, props, retransmit)
		return true
	}

	inst.opts.Counters.Inc(stats.Key{Endpoint: inst.endpoint, NAS: nasKey, Metric: "dupRequests"})

	switch entry.State {
	case txn.Handling:
		// Duplicate of an in-flight request: silently drop (spec.md §4.1).
	case txn.Replied:
		if h, ok := inst.workers[entry.WorkerID]; ok {
			select {
			case h.retransmit <- struct{}{}:
			default:
				// worker's retry budget channel is full or it has already
				// stopped listening; the resend is simply lost, matching
				// spec.md §4.2's bounded retry budget.
			}
		}
	}
	return false
}

func (inst *Instance) spawnWorker(id uint64, key txn.Key, dg datagram, handler nas.Handler, props nas.Properties, retransmit chan struct{}) {
	w := worker.New(worker.Config{
		WorkerID:      id,
		Key:           key,
		Conn:          inst.conn,
		ClientAddr:    dg.addr,
		RawRequest:    dg.data,
		Handler:       handler,
		Properties:    props,
		Endpoint:      inst.endpoint,
		SelfNode:      inst.opts.SelfNode,
		Admission:     inst.opts.Admission,
		AdmissionName: inst.endpoint,
		Monitor:       inst.opts.Monitor,
		Invoker:       inst.opts.Invoker,
		Callback:      inst.opts.Callback,
		Counters:      inst.opts.Counters,
		Logger:        inst.opts.Logger,
		ResendTimeout: inst.opts.ResendTimeout,
		RemoteTimeout: inst.opts.RemoteTimeout,
		Events:        inst.events,
		Retransmit:    retransmit,
	})

	go func() {
		defer func() {
			if r := recover(); r != nil {
				inst.exits <- exitSignal{workerID: id, abnormal: true, detail: r}
				return
			}
			inst.exits <- exitSignal{workerID: id}
		}()
		w.Run()
	}()
}

// handleEvent implements the "replied(key, worker)" / "discarded(key)"
// signals of spec.md §4.1.
func (inst *Instance) handleEvent(ev worker.Event) {
	if ev.Replied {
		inst.table.MarkReplied(ev.Key)
		return
	}
	inst.table.Remove(ev.Key)
	delete(inst.workers, ev.WorkerID)
}

// handleExit implements the worker-exit supervision of spec.md §4.1: a
// normal exit needs no action (the worker already reported discarded or
// replied), an abnormal exit purges every transaction that worker held,
// regardless of state, per the crash-isolation property of spec.md §8.
func (inst *Instance) handleExit(ex exitSignal) {
	if !ex.abnormal {
		return
	}

	inst.table.PurgeWorker(ex.workerID)
	delete(inst.workers, ex.workerID)
	inst.opts.Logger.Errorf("listener %s: worker %d exited abnormally: %v", inst.endpoint, ex.workerID, ex.detail)
}

// Stats mirrors spec.md §4.1's Server.stats(kind) operation for this
// instance's endpoint.
type StatsKind int

const (
	StatsRead StatsKind = iota
	StatsPull
	StatsReset
)

// Stats returns this endpoint's counters under the given semantics:
// Read leaves them untouched, Pull atomically zeroes them while
// returning the pre-reset values, Reset zeroes them and returns nil.
func (inst *Instance) Stats(kind StatsKind) map[stats.Key]uint64 {
	switch kind {
	case StatsPull:
		return inst.opts.Counters.PullAll(inst.endpoint)
	case StatsReset:
		inst.opts.Counters.ResetAll(inst.endpoint)
		return nil
	default:
		return inst.opts.Counters.Snapshot(inst.endpoint)
	}
}
