package api

import (
	"errors"
)

// Command is a remote command name accepted on /remote/<command>
type Command string

const (
	CommandAuth           Command = "auth"
	CommandCheckAuth      Command = "check_auth"
	CommandStatus         Command = "status"
	CommandStatusAll      Command = "status_all"
	CommandNodeAvailable  Command = "node_available"
	CommandClusterStart   Command = "cluster_start"
	CommandClusterStop    Command = "cluster_stop"
	CommandClusterEnable  Command = "cluster_enable"
	CommandClusterDisable Command = "cluster_disable"
	CommandAddNode        Command = "add_node"
	CommandRemoveNode     Command = "remove_node"
	CommandResourceStart  Command = "resource_start"
	CommandResourceStop   Command = "resource_stop"
)

// ErrUnknownCommand is returned by ParseCommand for names outside the command set
var ErrUnknownCommand = errors.New("unknown request")

// Commands lists every command the dispatcher serves
var Commands = []Command{
	CommandAuth,
	CommandCheckAuth,
	CommandStatus,
	CommandStatusAll,
	CommandNodeAvailable,
	CommandClusterStart,
	CommandClusterStop,
	CommandClusterEnable,
	CommandClusterDisable,
	CommandAddNode,
	CommandRemoveNode,
	CommandResourceStart,
	CommandResourceStop,
}

// ParseCommand maps a name onto a Command
func ParseCommand(name string) (Command, error) {
	for _, c := range Commands {
		if string(c) == name {
			return c, nil
		}
	}
	return "", ErrUnknownCommand
}

// Mutating reports whether the command changes cluster state and therefore
// must be sent with POST
func (c Command) Mutating() bool {
	switch c {
	case CommandAuth, CommandCheckAuth, CommandStatus, CommandStatusAll, CommandNodeAvailable:
		return false
	default:
		return true
	}
}

// RequiresPost reports whether the command is refused over GET. Mutating
// commands and the password login both require POST.
func (c Command) RequiresPost() bool {
	return c.Mutating() || c == CommandAuth
}

// Public reports whether the command is served without a token
func (c Command) Public() bool {
	return c == CommandAuth
}

// Forwardable reports whether the command honours the node parameter and is
// relayed when it names another node
func (c Command) Forwardable() bool {
	switch c {
	case CommandAuth, CommandCheckAuth, CommandStatusAll:
		return false
	default:
		return true
	}
}
