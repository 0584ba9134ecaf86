/*
 * Copyright (c) 2026 Laminar Authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

/*
laminar is the node process: it loads configuration, opens the local
log store, brings up the client and peer gateways, runs the NodeState
core, and drops into an operator console until told to stop.

Usage:

	laminar --clientIp 0.0.0.0 --clientPort 7100 \
	        --clusterIp 0.0.0.0 --clusterPort 7200 \
	        --data ./laminar-data
*/
package main

import (
	"context"
	"crypto/rand"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"laminar/internal/config"
	"laminar/internal/console"
	"laminar/internal/gateway"
	"laminar/internal/logging"
	"laminar/internal/logstore"
	"laminar/internal/node"
	"laminar/internal/topic"
	"laminar/internal/wire"
	"laminar/pkg/cli"
)

func main() {
	cfg := config.DefaultConfig()

	flag.Usage = func() {
		h := cli.NewHelpFormatter("laminar", "1.0.0")
		h.Tagline = "replicated multi-topic event log node"
		h.AddCommand(cli.Command{
			Name:        "laminar",
			Description: "start a node and bring up its client/peer gateways",
			Usage:       "laminar [flags]",
			Flags: []cli.Flag{
				{Name: "clientIp", Description: "address to bind the client gateway on", Default: cfg.ClientIP},
				{Name: "clientPort", Description: "port to bind the client gateway on", Default: fmt.Sprint(cfg.ClientPort)},
				{Name: "clusterIp", Description: "address to bind the peer gateway on", Default: cfg.ClusterIP},
				{Name: "clusterPort", Description: "port to bind the peer gateway on", Default: fmt.Sprint(cfg.ClusterPort)},
				{Name: "data", Description: "directory for the durable log and node identity", Default: cfg.DataDir},
				{Name: "logLevel", Description: "log level: debug, info, warn, error", Default: cfg.LogLevel},
				{Name: "logJson", Description: "emit newline-delimited JSON logs", Default: fmt.Sprint(cfg.LogJSON)},
			},
			Examples: []cli.Example{
				{Description: "bootstrap a single-node cluster", Command: "laminar --data ./laminar-data"},
			},
		})
		h.PrintUsage()
	}

	flag.StringVar(&cfg.ClientIP, "clientIp", cfg.ClientIP, "address to bind the client gateway on")
	clientPort := flag.Uint("clientPort", uint(cfg.ClientPort), "port to bind the client gateway on")
	flag.StringVar(&cfg.ClusterIP, "clusterIp", cfg.ClusterIP, "address to bind the peer gateway on")
	clusterPort := flag.Uint("clusterPort", uint(cfg.ClusterPort), "port to bind the peer gateway on")
	flag.StringVar(&cfg.DataDir, "data", cfg.DataDir, "directory for the durable log and node identity")
	flag.StringVar(&cfg.LogLevel, "logLevel", cfg.LogLevel, "log level: debug, info, warn, error")
	flag.BoolVar(&cfg.LogJSON, "logJson", cfg.LogJSON, "emit newline-delimited JSON logs")
	flag.Parse()

	cfg.ClientPort = uint16(*clientPort)
	cfg.ClusterPort = uint16(*clusterPort)
	cfg.ApplyEnv()

	if err := cfg.Validate(); err != nil {
		cli.ErrInvalidConfig(err.Error()).Exit()
	}

	logging.SetGlobalLevel(logging.ParseLevel(cfg.LogLevel))
	logging.SetJSONMode(cfg.LogJSON)
	log := logging.NewLogger("main")

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		cli.ErrDataDirUnusable(cfg.DataDir, err).Exit()
	}

	spin := cli.NewSpinner("loading node identity")
	spin.Start()
	self, err := loadOrCreateNodeID(cfg.DataDir)
	if err != nil {
		spin.StopWithError("node identity unavailable")
		cli.ErrNodeIdentityCorrupt(filepath.Join(cfg.DataDir, "node.id"), err).Exit()
	}
	spin.UpdateMessage("opening log store")

	store, err := logstore.Open(cfg.DataDir)
	if err != nil {
		spin.StopWithError("opening log store failed")
		cli.ErrDataDirUnusable(cfg.DataDir, err).Exit()
	}
	defer store.Close()
	spin.StopWithSuccess("log store ready")

	clientAddr := wire.Addr{IP: net.ParseIP(cfg.ClientIP), Port: cfg.ClientPort}
	clusterAddr := wire.Addr{IP: net.ParseIP(cfg.ClusterIP), Port: cfg.ClusterPort}

	clientAddrStr := fmt.Sprintf("%s:%d", cfg.ClientIP, cfg.ClientPort)
	clientGW, err := gateway.NewClientGateway(clientAddrStr)
	if err != nil {
		cli.ErrBindFailed("client", clientAddrStr, err).Exit()
	}
	clusterAddrStr := fmt.Sprintf("%s:%d", cfg.ClusterIP, cfg.ClusterPort)
	peerGW, err := gateway.NewPeerGateway(self, clusterAddrStr)
	if err != nil {
		cli.ErrBindFailed("peer", clusterAddrStr, err).Exit()
	}

	core := node.New(node.Config{
		Self:               self,
		ClientAddr:         clientAddr,
		ClusterAddr:        clusterAddr,
		Store:              store,
		Topics:             topic.NewTable(),
		ClientSender:       clientGW,
		PeerSender:         peerGW,
		ElectionTimeoutMin: cfg.ElectionTimeoutMin,
		ElectionTimeoutMax: cfg.ElectionTimeoutMax,
		HeartbeatInterval:  cfg.HeartbeatInterval,
	})
	clientGW.Attach(core)
	peerGW.Attach(core)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := clientGW.Serve(); err != nil {
			log.Warn("client gateway stopped", "error", err.Error())
		}
	}()
	go func() {
		if err := peerGW.Serve(); err != nil {
			log.Warn("peer gateway stopped", "error", err.Error())
		}
	}()

	coreDone := make(chan struct{})
	go func() {
		core.Run(ctx)
		close(coreDone)
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		log.Info("received shutdown signal")
		core.Enqueue(node.StopCommand{})
	}()

	log.Info("laminar node started",
		"node", fmt.Sprintf("%x", self[:4]),
		"clientAddr", clientAddr.String(),
		"clusterAddr", clusterAddr.String(),
	)

	con, err := console.New(core)
	if err != nil {
		log.Warn("console unavailable, running headless", "error", err.Error())
		<-coreDone
		cancel()
		clientGW.Close()
		peerGW.Close()
		os.Exit(0)
	}

	if err := con.Run(); err != nil {
		log.Warn("console exited with error", "error", err.Error())
	}

	<-coreDone
	cancel()
	clientGW.Close()
	peerGW.Close()
}

// loadOrCreateNodeID keeps this node's identity stable across
// restarts: a freshly provisioned data directory gets a random id,
// later runs reuse the one already on disk so the cluster config
// still recognizes this member.
func loadOrCreateNodeID(dataDir string) (wire.NodeID, error) {
	path := filepath.Join(dataDir, "node.id")
	var id wire.NodeID

	if data, err := os.ReadFile(path); err == nil {
		if len(data) != len(id) {
			return id, fmt.Errorf("node.id file is corrupt: want %d bytes, got %d", len(id), len(data))
		}
		copy(id[:], data)
		return id, nil
	} else if !os.IsNotExist(err) {
		return id, err
	}

	if _, err := rand.Read(id[:]); err != nil {
		return id, err
	}
	if err := os.WriteFile(path, id[:], 0o600); err != nil {
		return id, err
	}
	return id, nil
}
