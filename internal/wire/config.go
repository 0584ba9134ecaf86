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

package wire

import (
	"encoding/binary"
	"net"
	"strconv"
)

// Addr is a normalized (host-name stripped) network address: a raw IPv4
// or IPv6 address plus a port.
type Addr struct {
	IP   net.IP
	Port uint16
}

// Equal reports whether two addresses are byte-identical.
func (a Addr) Equal(other Addr) bool {
	return a.IP.Equal(other.IP) && a.Port == other.Port
}

func (a Addr) String() string {
	return net.JoinHostPort(a.IP.String(), strconv.Itoa(int(a.Port)))
}

func (a Addr) encode(buf []byte) ([]byte, error) {
	ip4 := a.IP.To4()
	var raw []byte
	if ip4 != nil {
		raw = ip4
	} else {
		raw = a.IP.To16()
		if raw == nil {
			return nil, ErrBadAddrLen
		}
	}
	if len(raw) != 4 && len(raw) != 16 {
		return nil, ErrBadAddrLen
	}
	buf = append(buf, byte(len(raw)))
	buf = append(buf, raw...)
	var portBuf [2]byte
	binary.BigEndian.PutUint16(portBuf[:], a.Port)
	return append(buf, portBuf[:]...), nil
}

func decodeAddr(b []byte) (Addr, []byte, error) {
	if len(b) < 1 {
		return Addr{}, nil, ErrTruncated
	}
	n := int(b[0])
	if n != 4 && n != 16 {
		return Addr{}, nil, ErrBadAddrLen
	}
	b = b[1:]
	if len(b) < n+2 {
		return Addr{}, nil, ErrTruncated
	}
	ip := make(net.IP, n)
	copy(ip, b[:n])
	b = b[n:]
	port := binary.BigEndian.Uint16(b[:2])
	return Addr{IP: ip, Port: port}, b[2:], nil
}

// ConfigEntry names one cluster member: its identity and the two
// addresses peers and clients reach it on.
type ConfigEntry struct {
	NodeID      NodeID
	ClusterAddr Addr
	ClientAddr  Addr
}

// Equal reports whether two entries are identical.
func (e ConfigEntry) Equal(other ConfigEntry) bool {
	return e.NodeID == other.NodeID &&
		e.ClusterAddr.Equal(other.ClusterAddr) &&
		e.ClientAddr.Equal(other.ClientAddr)
}

// ClusterConfig is an ordered list of 1..31 config entries. Two configs
// are equal iff their entry lists are equal element-wise.
type ClusterConfig struct {
	Entries []ConfigEntry
}

// Equal reports whether two configs name the same members in the same
// order.
func (c *ClusterConfig) Equal(other *ClusterConfig) bool {
	if c == nil || other == nil {
		return c == other
	}
	if len(c.Entries) != len(other.Entries) {
		return false
	}
	for i := range c.Entries {
		if !c.Entries[i].Equal(other.Entries[i]) {
			return false
		}
	}
	return true
}

// Members returns the set of node IDs named by this config.
func (c *ClusterConfig) Members() map[NodeID]struct{} {
	set := make(map[NodeID]struct{}, len(c.Entries))
	for _, e := range c.Entries {
		set[e.NodeID] = struct{}{}
	}
	return set
}

// Entry looks up the config entry for a node ID.
func (c *ClusterConfig) Entry(id NodeID) (ConfigEntry, bool) {
	for _, e := range c.Entries {
		if e.NodeID == id {
			return e, true
		}
	}
	return ConfigEntry{}, false
}

// Encode serializes the config per spec §6: 1-byte entry count then,
// per entry, a 16-byte node id and two normalized addresses.
func (c *ClusterConfig) Encode() ([]byte, error) {
	n := len(c.Entries)
	if n < 1 || n > 31 {
		return nil, ErrBadConfigSize
	}
	buf := make([]byte, 0, 1+n*40)
	buf = append(buf, byte(n))
	for _, e := range c.Entries {
		buf = append(buf, e.NodeID[:]...)
		var err error
		if buf, err = e.ClusterAddr.encode(buf); err != nil {
			return nil, err
		}
		if buf, err = e.ClientAddr.encode(buf); err != nil {
			return nil, err
		}
	}
	return buf, nil
}

// DecodeClusterConfig parses the bytes produced by ClusterConfig.Encode,
// returning the config and any unconsumed trailing bytes.
func DecodeClusterConfig(b []byte) (*ClusterConfig, []byte, error) {
	if len(b) < 1 {
		return nil, nil, ErrTruncated
	}
	n := int(b[0])
	if n < 1 || n > 31 {
		return nil, nil, ErrBadConfigSize
	}
	b = b[1:]

	cfg := &ClusterConfig{Entries: make([]ConfigEntry, n)}
	for i := 0; i < n; i++ {
		if len(b) < 16 {
			return nil, nil, ErrTruncated
		}
		var e ConfigEntry
		copy(e.NodeID[:], b[:16])
		b = b[16:]
		var err error
		if e.ClusterAddr, b, err = decodeAddr(b); err != nil {
			return nil, nil, err
		}
		if e.ClientAddr, b, err = decodeAddr(b); err != nil {
			return nil, nil, err
		}
		cfg.Entries[i] = e
	}
	return cfg, b, nil
}
