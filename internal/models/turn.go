package models

import "fmt"

// Role tags a conversation turn.
type Role int

const (
	RoleHuman Role = iota + 1
	RoleAssistant
)

func (r Role) String() string {
	switch r {
	case RoleHuman:
		return "human"
	case RoleAssistant:
		return "assistant"
	default:
		return fmt.Sprintf("Role(%d)", int(r))
	}
}

// Turn is one message of the conversation. Turns are appended in order and
// never modified.
type Turn struct {
	Role    Role
	Content string
}

func HumanTurn(content string) Turn {
	return Turn{Role: RoleHuman, Content: content}
}

func AssistantTurn(content string) Turn {
	return Turn{Role: RoleAssistant, Content: content}
}
