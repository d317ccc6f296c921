package bridge

import (
	"strconv"
	"strings"
)

// Topics derives the MQTT topic layout from a prefix and the client id.
//
//	<prefix>/rpc                 requests to the agent
//	<prefix>/reply/<client>      replies to this client
//	<prefix>/events/<sub>        pushed listener, cell-info, and scan messages
//	<prefix>/broadcast           system broadcasts
type Topics struct {
	Prefix   string
	ClientID string
}

func (t Topics) join(parts ...string) string {
	prefix := strings.Trim(t.Prefix, "/")
	if prefix == "" {
		return strings.Join(parts, "/")
	}
	return prefix + "/" + strings.Join(parts, "/")
}

// RPC is the request topic the agent subscribes to.
func (t Topics) RPC() string { return t.join("rpc") }

// Reply is where the agent answers requests sent by ClientID.
func (t Topics) Reply() string { return t.join("reply", t.ClientID) }

// Events is the push topic for one subscription.
func (t Topics) Events(subID int) string { return t.join("events", strconv.Itoa(subID)) }

// AllEvents matches every subscription's push topic.
func (t Topics) AllEvents() string { return t.join("events", "+") }

// Broadcast carries system broadcasts.
func (t Topics) Broadcast() string { return t.join("broadcast") }
