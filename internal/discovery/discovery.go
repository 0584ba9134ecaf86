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
Package discovery finds other Laminar nodes on the local network over
mDNS, so a freshly started node (or the laminar-discover tool) can
locate an existing cluster to join without being handed its addresses
out of band.
*/
package discovery

import (
	"fmt"
	"strconv"
	"time"

	"github.com/hashicorp/mdns"
)

// serviceType is the mDNS service name Laminar nodes advertise under.
const serviceType = "_laminar._tcp"

// Config configures one node's participation in discovery: whether it
// advertises itself, and what it advertises.
type Config struct {
	NodeID      string
	ClusterAddr string // host:port a peer should dial to join via the peer protocol
	ClientAddr  string
	Enabled     bool
}

// Service advertises this node (if enabled) and can search for others.
type Service struct {
	cfg    Config
	server *mdns.Server
}

// New starts advertising per cfg. If cfg.Enabled is false, New returns
// a Service usable only for DiscoverNodes (e.g. a standalone discovery
// client like laminar-discover).
func New(cfg Config) (*Service, error) {
	s := &Service{cfg: cfg}
	if !cfg.Enabled {
		return s, nil
	}

	_, portStr, err := splitHostPort(cfg.ClusterAddr)
	if err != nil {
		return nil, err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, err
	}

	info := []string{
		"node_id=" + cfg.NodeID,
		"cluster_addr=" + cfg.ClusterAddr,
		"client_addr=" + cfg.ClientAddr,
	}
	svc, err := mdns.NewMDNSService(cfg.NodeID, serviceType, "", "", port, nil, info)
	if err != nil {
		return nil, err
	}

	server, err := mdns.NewServer(&mdns.Config{Zone: svc})
	if err != nil {
		return nil, err
	}
	s.server = server
	return s, nil
}

// Close stops advertising this node.
func (s *Service) Close() error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown()
}

// DiscoveredNode is one cluster member found on the network.
type DiscoveredNode struct {
	NodeID      string
	ClusterAddr string
	ClientAddr  string
}

// DiscoverNodes searches the local network for Laminar nodes for up to
// timeout, returning whatever answered.
func (s *Service) DiscoverNodes(timeout time.Duration) ([]*DiscoveredNode, error) {
	entriesCh := make(chan *mdns.ServiceEntry, 16)
	var nodes []*DiscoveredNode
	done := make(chan struct{})

	go func() {
		defer close(done)
		for entry := range entriesCh {
			nodes = append(nodes, parseEntry(entry))
		}
	}()

	params := &mdns.QueryParam{
		Service: serviceType,
		Timeout: timeout,
		Entries: entriesCh,
	}
	err := mdns.Query(params)
	close(entriesCh)
	<-done
	if err != nil {
		return nil, err
	}
	return nodes, nil
}

func parseEntry(entry *mdns.ServiceEntry) *DiscoveredNode {
	n := &DiscoveredNode{
		NodeID:      entry.Name,
		ClusterAddr: fmt.Sprintf("%s:%d", entry.AddrV4.String(), entry.Port),
	}
	for _, f := range entry.InfoFields {
		switch {
		case len(f) > len("node_id=") && f[:8] == "node_id=":
			n.NodeID = f[8:]
		case len(f) > len("cluster_addr=") && f[:13] == "cluster_addr=":
			n.ClusterAddr = f[13:]
		case len(f) > len("client_addr=") && f[:12] == "client_addr=":
			n.ClientAddr = f[12:]
		}
	}
	return n
}

func splitHostPort(addr string) (host, port string, err error) {
	for i := len(addr) - 1; i >= 0; i-- {
		if addr[i] == ':' {
			return addr[:i], addr[i+1:], nil
		}
	}
	return "", "", fmt.Errorf("discovery: %q is not a host:port address", addr)
}
