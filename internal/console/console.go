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
Package console is the fourth collaborator: a local operator shell
reading commands from stdin over github.com/chzyer/readline and
printing NodeState status without ever touching NodeState directly
from its own goroutine. Every status read goes through a
query/response pair of Commands so the core stays single-threaded.
*/
package console

import (
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"

	"laminar/internal/logging"
	"laminar/internal/node"
	"laminar/pkg/cli"
)

// Console reads operator input and drives a NodeState through its
// command queue.
type Console struct {
	log  *logging.Logger
	core *node.NodeState
	rl   *readline.Instance
}

// New builds a Console bound to core. The console's "stop" command
// enqueues node.StopCommand on core and returns from Run.
func New(core *node.NodeState) (*Console, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          cli.Bold + "laminar> " + cli.Reset,
		HistoryFile:     "",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, err
	}
	return &Console{
		log:  logging.NewLogger("console"),
		core: core,
		rl:   rl,
	}, nil
}

// Run reads and dispatches commands until the user quits or the
// readline stream closes. It returns nil on a clean "stop".
func (c *Console) Run() error {
	defer c.rl.Close()
	c.log.Info("console ready")
	for {
		line, err := c.rl.Readline()
		if err == readline.ErrInterrupt {
			continue
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		cmd := fields[0]
		switch cmd {
		case "stop":
			cli.PrintInfo("stopping node")
			c.core.Enqueue(node.StopCommand{})
			return nil
		case "status":
			c.printStatus()
		case "help":
			c.printHelp()
		default:
			cli.PrintWarning("unrecognized command %q (try 'help')", cmd)
		}
	}
}

func (c *Console) printStatus() {
	reply := make(chan node.Status, 1)
	c.core.Enqueue(node.StatusQueryCommand{Reply: reply})
	st := <-reply

	role := fmt.Sprintf("%s", st.Role)
	if st.Role == node.RoleLeader {
		role = cli.Success(role)
	} else if st.Role == node.RoleCandidate {
		role = cli.Warning(role)
	}
	commit := fmt.Sprintf("%v (offset %d)", st.HasCommitted, st.LastCommittedOffset)
	if !st.HasCommitted {
		commit = cli.Dimmed(commit)
	}

	fmt.Println(cli.Separator(40))
	cli.KeyValue("self", fmt.Sprintf("%x", st.Self), 10)
	cli.KeyValue("role", role, 10)
	cli.KeyValue("term", fmt.Sprintf("%d", st.Term), 10)
	cli.KeyValue("commit", commit, 10)
	cli.KeyValue("joint", fmt.Sprintf("%v", st.JointConsensus), 10)
	cli.KeyValue("inflight", fmt.Sprintf("%d entries", st.InflightLen), 10)
	fmt.Println(cli.Separator(40))

	if len(st.Peers) == 0 {
		cli.PrintInfo("no peers")
		return
	}
	t := cli.NewTable("PEER", "CONNECTED", "LAST RECEIVED", "NEXT TO SEND")
	for _, p := range st.Peers {
		t.AddRow(
			fmt.Sprintf("%x", p.NodeID),
			fmt.Sprintf("%v", p.Connected),
			fmt.Sprintf("%d", p.LastReceived),
			fmt.Sprintf("%d", p.NextToSend),
		)
	}
	t.Print()
}

func (c *Console) printHelp() {
	fmt.Println(cli.DoubleSeparator(40))
	fmt.Println(cli.Highlight("commands:"))
	cli.KeyValue("status", "show this node's current role, term, and replication progress", 8)
	cli.KeyValue("stop", "shut the node down cleanly", 8)
	cli.KeyValue("help", "show this message", 8)
}
