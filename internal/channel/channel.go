// Package channel defines the channel addressing scheme and resolves a
// channel id into the set of user ids a message should be delivered to.
package channel

import (
	"strings"

	"github.com/orgchat/orgchat/internal/types"
)

// GeneralId is the single broadcast channel every user is subscribed to.
const GeneralId = "general-chat"

const (
	groupPrefix   = "group-"
	privatePrefix = "private-"
)

type Kind int

const (
	// Invalid channels resolve to an empty recipient set, they are not an
	// error. The message is still persisted if the store accepts it.
	Invalid Kind = iota
	General
	Group
	Private
)

// RoleGroup names a group channel audience ("group-managers" etc.).
type RoleGroup string

const (
	Directors   RoleGroup = "directors"
	Managers    RoleGroup = "managers"
	Supervisors RoleGroup = "supervisors"
	Employees   RoleGroup = "employees"
)

// Roles returns the cumulative role-inclusion set for a group channel: a
// group addressed at a role also reaches everyone above that role.
func (rg RoleGroup) Roles() []types.Role {
	switch rg {
	case Directors:
		return []types.Role{types.RoleDirector}
	case Managers:
		return []types.Role{types.RoleManager, types.RoleDirector}
	case Supervisors:
		return []types.Role{types.RoleSupervisor, types.RoleManager, types.RoleDirector}
	case Employees:
		return []types.Role{types.RoleEmployee, types.RoleSupervisor, types.RoleManager, types.RoleDirector}
	}
	return nil
}

func (rg RoleGroup) Id() string {
	return groupPrefix + string(rg)
}

// Channel is the parsed form of a channel identifier. Parse once at the
// boundary; everything past that point works with the typed value.
type Channel struct {
	Kind  Kind
	Group RoleGroup
	// PeerA and PeerB are the participants of a private channel.
	PeerA, PeerB string
}

// Parse classifies a channel identifier. Private ids must contain exactly
// five hyphen-delimited tokens ("private-dir-1-mgr-2"); anything that does
// not match a known shape yields an Invalid channel.
func Parse(id string) Channel {
	switch {
	case id == GeneralId:
		return Channel{Kind: General}
	case strings.HasPrefix(id, groupPrefix):
		rg := RoleGroup(strings.TrimPrefix(id, groupPrefix))
		if rg.Roles() == nil {
			return Channel{}
		}
		return Channel{Kind: Group, Group: rg}
	case strings.HasPrefix(id, privatePrefix):
		tokens := strings.Split(id, "-")
		if len(tokens) != 5 {
			return Channel{}
		}
		for _, tok := range tokens[1:] {
			if tok == "" {
				return Channel{}
			}
		}
		return Channel{
			Kind:  Private,
			PeerA: tokens[1] + "-" + tokens[2],
			PeerB: tokens[3] + "-" + tokens[4],
		}
	}
	return Channel{}
}

// Subscribed returns the group channel ids a role is subscribed to. A user
// sees the general channel, their own role group and every group below it.
func Subscribed(role types.Role) []string {
	channels := []string{GeneralId}
	switch role {
	case types.RoleDirector:
		channels = append(channels, Directors.Id(), Managers.Id(), Supervisors.Id(), Employees.Id())
	case types.RoleManager:
		channels = append(channels, Managers.Id(), Supervisors.Id(), Employees.Id())
	case types.RoleSupervisor:
		channels = append(channels, Supervisors.Id(), Employees.Id())
	case types.RoleEmployee:
		channels = append(channels, Employees.Id())
	}
	return channels
}

// Resolve computes the recipient user-id set for a parsed channel. The
// sender is included by policy; clients suppress their own echo. Group
// resolution walks the full tree, not just online nodes, so recipients who
// are offline are skipped later at delivery time.
func Resolve(ch Channel, tree []*types.HierarchyNode, online []string, senderId string) map[string]struct{} {
	recipients := make(map[string]struct{})

	switch ch.Kind {
	case General:
		for _, id := range online {
			recipients[id] = struct{}{}
		}
		if senderId != "" {
			recipients[senderId] = struct{}{}
		}
	case Group:
		included := make(map[types.Role]struct{})
		for _, role := range ch.Group.Roles() {
			included[role] = struct{}{}
		}
		collectByRole(tree, included, recipients)
		if senderId != "" {
			recipients[senderId] = struct{}{}
		}
	case Private:
		recipients[ch.PeerA] = struct{}{}
		recipients[ch.PeerB] = struct{}{}
	}

	return recipients
}

func collectByRole(nodes []*types.HierarchyNode, included map[types.Role]struct{}, out map[string]struct{}) {
	for _, node := range nodes {
		if _, ok := included[node.Role]; ok {
			out[node.Id] = struct{}{}
		}
		collectByRole(node.Children, included, out)
	}
}
