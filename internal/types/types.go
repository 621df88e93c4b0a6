package types

import (
	"time"
)

// Role is a user's position in the reporting structure.
type Role string

const (
	RoleDirector   Role = "director"
	RoleManager    Role = "manager"
	RoleSupervisor Role = "supervisor"
	RoleEmployee   Role = "employee"
)

func (r Role) Valid() bool {
	switch r {
	case RoleDirector, RoleManager, RoleSupervisor, RoleEmployee:
		return true
	}
	return false
}

// Prefix returns the short role prefix used in user ids ("dir-1", "mgr-4").
func (r Role) Prefix() string {
	switch r {
	case RoleDirector:
		return "dir"
	case RoleManager:
		return "mgr"
	case RoleSupervisor:
		return "sup"
	case RoleEmployee:
		return "emp"
	}
	return ""
}

type User struct {
	Id    string `json:"id"`
	Name  string `json:"name"`
	Role  Role   `json:"role"`
	Email string `json:"email,omitempty"`
}

// HierarchyNode is one entry in the reporting tree. Status is transient:
// it is never persisted and is only set on annotated copies of the tree.
type HierarchyNode struct {
	Id       string           `json:"id"`
	Name     string           `json:"name"`
	Role     Role             `json:"role"`
	Email    string           `json:"email,omitempty"`
	Status   string           `json:"status,omitempty"`
	Children []*HierarchyNode `json:"children"`
}

const (
	PriorityNormal = "normal"
	PriorityUrgent = "urgent"
)

// Message is the persisted and broadcast form of a chat message. Id and
// Timestamp are server-assigned and override anything the client sent.
type Message struct {
	Id         string    `json:"id"`
	ChannelId  string    `json:"channelId"`
	SenderId   string    `json:"senderId"`
	SenderName string    `json:"senderName"`
	SenderRole Role      `json:"senderRole"`
	Content    string    `json:"content"`
	Priority   string    `json:"priority"`
	Timestamp  time.Time `json:"timestamp"`
}
