// Command radiuscored is a minimal, runnable RADIUS server built on the
// radiuscore packages: a static NAS registry, a single-node cluster
// monitor, a token-bucket admission queue, and a demo Access-Request
// handler that always accepts.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/vitalvas/radiuscore/pkg/cluster"
	"github.com/vitalvas/radiuscore/pkg/crypto"
	"github.com/vitalvas/radiuscore/pkg/listener"
	"github.com/vitalvas/radiuscore/pkg/log"
	"github.com/vitalvas/radiuscore/pkg/nas"
	"github.com/vitalvas/radiuscore/pkg/packet"
	"github.com/vitalvas/radiuscore/pkg/ratelimit"
	"github.com/vitalvas/radiuscore/pkg/worker"
)

const selfNode cluster.NodeID = "local"

func demoHandler(logger log.Logger) worker.Callback {
	return func(ctx context.Context, req *packet.Packet, props nas.Properties, handlerData interface{}) (interface{}, error) {
		logger.Infof("handling %s from nas=%s", req.Code, props.NasIP)

		if req.Code != packet.CodeAccessRequest {
			return worker.NoReply{}, nil
		}

		userAttr, hasUser := req.GetAttribute(packet.AttrUserName)
		if pwAttr, ok := req.GetAttribute(packet.AttrUserPassword); ok {
			password := crypto.DecryptUserPassword(pwAttr.Value, props.Secret, req.Authenticator)
			if password == nil {
				return worker.Reply{Response: packet.New(packet.CodeAccessReject, req.Identifier)}, nil
			}
		}

		resp := packet.New(packet.CodeAccessAccept, req.Identifier)
		if hasUser {
			resp.AddAttribute(packet.NewStringAttribute(packet.AttrReplyMessage, fmt.Sprintf("welcome, %s", userAttr)))
		}

		return worker.Reply{Response: resp}, nil
	}
}

func main() {
	logger := log.NewDefaultLogger()

	registry := nas.NewStaticRegistry()
	registry.Add(net.IPv4zero, 1812, net.ParseIP("127.0.0.1"), nas.Handler{Module: "auth"}, nas.Properties{
		Secret:       []byte("testing123"),
		Trace:        true,
		HandlerNodes: nas.HandlerNodes{Local: true},
	})

	monitor := cluster.NewStaticMonitor()
	monitor.SetNodes("auth", []cluster.NodeID{selfNode})

	admission := ratelimit.NewQueue(ratelimit.Config{RequestsPerSecond: 500, Burst: 1000})

	inst, err := listener.Start(net.IPv4zero, 1812, listener.Options{
		Registry:  registry,
		Monitor:   monitor,
		Admission: admission,
		Callback:  demoHandler(logger),
		Logger:    logger,
		SelfNode:  selfNode,
	})
	if err != nil {
		logger.Errorf("starting listener: %v", err)
		os.Exit(1)
	}

	logger.Infof("radiuscored listening on %s", inst.Endpoint())

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	logger.Infof("shutting down")
	if err := inst.Close(); err != nil {
		logger.Errorf("closing listener: %v", err)
	}
}
