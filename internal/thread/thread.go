// Package thread rebuilds reply trees from flat parent-pointer rows.
package thread

import (
	"context"
	"fmt"
	"sort"

	"courier/api/internal/store"
)

type Node struct {
	Message store.Message
	Replies []*Node
}

// Source is the bulk read the assembler depends on.
type Source interface {
	ThreadMessages(ctx context.Context, rootID string) ([]store.Message, error)
	ConversationMessages(ctx context.Context, userA, userB string) ([]store.Message, error)
}

type Assembler struct {
	source Source
}

func NewAssembler(source Source) *Assembler {
	return &Assembler{source: source}
}

// AssembleThread returns the tree rooted at rootID.
func (a *Assembler) AssembleThread(ctx context.Context, rootID string) (*Node, error) {
	messages, err := a.source.ThreadMessages(ctx, rootID)
	if err != nil {
		return nil, fmt.Errorf("assemble thread: %w", err)
	}
	for _, root := range Build(messages) {
		if root.Message.ID == rootID {
			return root, nil
		}
	}
	return nil, fmt.Errorf("thread %s: %w", rootID, store.ErrNotFound)
}

// AssembleConversation returns every tree exchanged between two users, oldest
// root first. A reply whose parent lies outside the conversation is a root.
func (a *Assembler) AssembleConversation(ctx context.Context, userA, userB string) ([]*Node, error) {
	messages, err := a.source.ConversationMessages(ctx, userA, userB)
	if err != nil {
		return nil, fmt.Errorf("assemble conversation: %w", err)
	}
	return Build(messages), nil
}

// Build links messages into trees in a single pass over an id-keyed table.
// Roots and replies are ordered by created_at, then id.
func Build(messages []store.Message) []*Node {
	nodes := make(map[string]*Node, len(messages))
	ordered := make([]*Node, 0, len(messages))
	for _, msg := range messages {
		if _, dup := nodes[msg.ID]; dup {
			continue
		}
		node := &Node{Message: msg}
		nodes[msg.ID] = node
		ordered = append(ordered, node)
	}
	sortNodes(ordered)

	roots := make([]*Node, 0)
	for _, node := range ordered {
		parentID := node.Message.ParentID
		if parentID == nil || *parentID == node.Message.ID {
			roots = append(roots, node)
			continue
		}
		parent, ok := nodes[*parentID]
		if !ok {
			roots = append(roots, node)
			continue
		}
		parent.Replies = append(parent.Replies, node)
	}
	return roots
}

func sortNodes(nodes []*Node) {
	sort.SliceStable(nodes, func(i, j int) bool {
		a, b := nodes[i].Message, nodes[j].Message
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}

// Walk visits the tree depth first, parents before replies.
func Walk(node *Node, fn func(*Node)) {
	if node == nil {
		return
	}
	fn(node)
	for _, reply := range node.Replies {
		Walk(reply, fn)
	}
}
