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
laminar-discover - Laminar Node Discovery Tool

Discovers Laminar nodes on the local network using mDNS, so a new node
(or an operator) can find an existing cluster to join.

Usage:
    laminar-discover                 # Discover nodes (5 second timeout)
    laminar-discover --timeout 10    # Custom timeout in seconds
    laminar-discover --json          # Output as JSON
    laminar-discover --quiet         # Only output addresses (for scripting)
*/
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"laminar/internal/discovery"
	"laminar/pkg/cli"
)

const (
	version   = "1.0.0"
	copyright = "Copyright (c) 2026 Laminar Authors"
)

const (
	reset  = cli.Reset
	bold   = cli.Bold
	dim    = cli.Dim
	red    = cli.Red
	green  = cli.Green
	yellow = cli.Yellow
	cyan   = cli.Cyan
)

func main() {
	timeout := flag.Int("timeout", 5, "Discovery timeout in seconds")
	jsonOutput := flag.Bool("json", false, "Output as JSON")
	quiet := flag.Bool("quiet", false, "Only output cluster addresses (for scripting)")
	help := flag.Bool("help", false, "Show help")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.BoolVar(help, "h", false, "Show help")
	flag.BoolVar(showVersion, "v", false, "Show version information")
	flag.BoolVar(quiet, "q", false, "Only output cluster addresses (for scripting)")

	flag.Parse()

	if *help {
		printUsage()
		os.Exit(0)
	}
	if *showVersion {
		printVersion()
		os.Exit(0)
	}

	log.SetOutput(io.Discard)

	if !*quiet && !*jsonOutput {
		printBanner()
	}

	svc, err := discovery.New(discovery.Config{NodeID: "discover-client", Enabled: false})
	if err != nil {
		cli.NewCLIError("discovery setup failed").WithDetail(err.Error()).Exit()
	}

	var spin *cli.Spinner
	if !*quiet && !*jsonOutput {
		spin = cli.NewSpinner(fmt.Sprintf("scanning for Laminar nodes (timeout: %ds)", *timeout))
		spin.Start()
	}

	nodes, err := svc.DiscoverNodes(time.Duration(*timeout) * time.Second)
	if spin != nil {
		spin.Stop()
	}
	if err != nil {
		if !*quiet {
			cli.PrintError("discovery failed: %v", err)
		}
		os.Exit(1)
	}

	if len(nodes) == 0 {
		if !*quiet && !*jsonOutput {
			fmt.Printf("%s%s⚠%s No Laminar nodes found on the network.\n\n", yellow, bold, reset)
			fmt.Printf("%s%sTROUBLESHOOTING%s\n\n", bold, cyan, reset)
			fmt.Printf("%s  Common issues:%s\n", dim, reset)
			fmt.Printf("    %s•%s Laminar nodes are not running with discovery enabled\n", yellow, reset)
			fmt.Printf("    %s•%s mDNS is blocked by firewall (UDP port 5353)\n", yellow, reset)
			fmt.Printf("    %s•%s Nodes are on a different network segment\n\n", yellow, reset)
			fmt.Printf("%s  Try:%s\n", dim, reset)
			fmt.Printf("    %slaminar-discover --timeout 10%s   # Increase timeout\n\n", green, reset)
		}
		os.Exit(0)
	}

	if *jsonOutput {
		outputJSON(nodes)
	} else if *quiet {
		outputQuiet(nodes)
	} else {
		outputHuman(nodes)
	}
}

func printBanner() {
	fmt.Println()
	fmt.Printf("%s%s", cyan, bold)
	fmt.Println("  ██╗      █████╗ ███╗   ███╗██╗███╗   ██╗ █████╗ ██████╗ ")
	fmt.Println("  ██║     ██╔══██╗████╗ ████║██║████╗  ██║██╔══██╗██╔══██╗")
	fmt.Println("  ██║     ███████║██╔████╔██║██║██╔██╗ ██║███████║██████╔╝")
	fmt.Println("  ██║     ██╔══██║██║╚██╔╝██║██║██║╚██╗██║██╔══██║██╔══██╗")
	fmt.Println("  ███████╗██║  ██║██║ ╚═╝ ██║██║██║ ╚████║██║  ██║██║  ██║")
	fmt.Println("  ╚══════╝╚═╝  ╚═╝╚═╝     ╚═╝╚═╝╚═╝  ╚═══╝╚═╝  ╚═╝╚═╝  ╚═╝")
	fmt.Printf("%s\n", reset)
	fmt.Printf("  %s%sLaminar Discover%s %sv%s%s\n", green, bold, reset, dim, version, reset)
	fmt.Printf("  %sNetwork Node Discovery Tool%s\n\n", dim, reset)
}

func printVersion() {
	fmt.Println()
	fmt.Printf("  %s%sLaminar Discover%s %sv%s%s\n", cyan, bold, reset, dim, version, reset)
	fmt.Printf("  %sNetwork Node Discovery Tool%s\n\n", dim, reset)
	fmt.Printf("  %s%s%s\n\n", dim, copyright, reset)
}

func printUsage() {
	printBanner()

	fmt.Printf("%s  Discovers Laminar nodes on the local network using mDNS.%s\n", dim, reset)
	fmt.Printf("%s  Useful for finding an existing cluster to join.%s\n\n", dim, reset)

	fmt.Printf("%sUsage:%s laminar-discover [options]\n\n", bold, reset)

	fmt.Printf("%s%sOPTIONS%s\n\n", bold, cyan, reset)
	fmt.Printf("    %s--timeout%s <seconds>   Discovery timeout (default: 5)\n", green, reset)
	fmt.Printf("    %s--json%s               Output results as JSON\n", green, reset)
	fmt.Printf("    %s--quiet%s, %s-q%s          Only output addresses (for scripting)\n", green, reset, green, reset)
	fmt.Printf("    %s--version%s, %s-v%s        Show version information\n", green, reset, green, reset)
	fmt.Printf("    %s--help%s, %s-h%s           Show this help message\n\n", green, reset, green, reset)

	fmt.Printf("%s%sEXAMPLES%s\n\n", bold, cyan, reset)
	fmt.Printf("%s    # Discover nodes with default timeout%s\n", dim, reset)
	fmt.Println("    laminar-discover")
	fmt.Println()
	fmt.Printf("%s    # Get just addresses for scripting%s\n", dim, reset)
	fmt.Println("    laminar-discover --quiet")
	fmt.Println()
	fmt.Printf("%s    # Use to find peers to start a node with%s\n", dim, reset)
	fmt.Println("    PEERS=$(laminar-discover --quiet)")
	fmt.Println()

	fmt.Printf("%s%sNETWORK REQUIREMENTS%s\n\n", bold, cyan, reset)
	fmt.Printf("    %s•%s mDNS uses UDP port 5353 (multicast)\n", yellow, reset)
	fmt.Printf("    %s•%s Nodes must be on the same network segment\n", yellow, reset)
	fmt.Printf("    %s•%s Firewalls must allow mDNS traffic\n\n", yellow, reset)
}

func outputJSON(nodes []*discovery.DiscoveredNode) {
	type nodeOutput struct {
		NodeID      string `json:"node_id"`
		ClusterAddr string `json:"cluster_addr"`
		ClientAddr  string `json:"client_addr,omitempty"`
	}
	out := make([]nodeOutput, len(nodes))
	for i, n := range nodes {
		out[i] = nodeOutput{NodeID: n.NodeID, ClusterAddr: n.ClusterAddr, ClientAddr: n.ClientAddr}
	}
	data, _ := json.MarshalIndent(out, "", "  ")
	fmt.Println(string(data))
}

func outputQuiet(nodes []*discovery.DiscoveredNode) {
	addrs := make([]string, len(nodes))
	for i, n := range nodes {
		addrs[i] = n.ClusterAddr
	}
	fmt.Println(strings.Join(addrs, ","))
}

func outputHuman(nodes []*discovery.DiscoveredNode) {
	fmt.Printf("%s%s✓%s Found %d Laminar node(s)\n\n", green, bold, reset, len(nodes))
	for i, n := range nodes {
		fmt.Printf("  %s[%d]%s %s%s%s\n", dim, i+1, reset, bold+cyan, n.NodeID, reset)
		fmt.Printf("      %sCluster Address:%s %s%s%s\n", dim, reset, green, n.ClusterAddr, reset)
		if n.ClientAddr != "" {
			fmt.Printf("      %sClient Address:%s  %s\n", dim, reset, n.ClientAddr)
		}
		fmt.Println()
	}
	fmt.Printf("%s  Tip: Use --json for machine-readable output%s\n\n", dim, reset)
}
