package app

import (
	"time"

	"courier/api/internal/store"
	"courier/api/internal/thread"
	"courier/api/internal/unread"
)

func timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func userPayload(u store.User) map[string]any {
	return map[string]any{
		"id":        u.ID,
		"username":  u.Username,
		"email":     u.Email,
		"role":      u.Role,
		"createdAt": timestamp(u.CreatedAt),
	}
}

func messagePayload(m store.Message) map[string]any {
	payload := map[string]any{
		"id":          m.ID,
		"senderId":    m.SenderID,
		"receiverId":  m.ReceiverID,
		"body":        m.Body,
		"createdAt":   timestamp(m.CreatedAt),
		"isRead":      m.IsRead,
		"isEdited":    m.IsEdited,
		"lastEdited":  nil,
		"parentId":    m.ParentID,
		"threadDepth": m.ThreadDepth,
	}
	if m.LastEdited != nil {
		payload["lastEdited"] = timestamp(*m.LastEdited)
	}
	return payload
}

func messagesPayload(items []store.Message) []map[string]any {
	out := make([]map[string]any, 0, len(items))
	for _, item := range items {
		out = append(out, messagePayload(item))
	}
	return out
}

func historyPayload(items []store.MessageHistory) []map[string]any {
	out := make([]map[string]any, 0, len(items))
	for _, item := range items {
		out = append(out, map[string]any{
			"id":        item.ID,
			"messageId": item.MessageID,
			"body":      item.Body,
			"editorId":  item.EditorID,
			"editedAt":  timestamp(item.EditedAt),
		})
	}
	return out
}

func nodePayload(node *thread.Node) map[string]any {
	replies := make([]map[string]any, 0, len(node.Replies))
	for _, reply := range node.Replies {
		replies = append(replies, nodePayload(reply))
	}
	payload := messagePayload(node.Message)
	payload["replies"] = replies
	return payload
}

func nodesPayload(nodes []*thread.Node) []map[string]any {
	out := make([]map[string]any, 0, len(nodes))
	for _, node := range nodes {
		out = append(out, nodePayload(node))
	}
	return out
}

func unreadPayload(items []store.UnreadMessage) []map[string]any {
	out := make([]map[string]any, 0, len(items))
	for _, item := range items {
		out = append(out, map[string]any{
			"id":        item.ID,
			"body":      item.Body,
			"createdAt": timestamp(item.CreatedAt),
			"isRead":    item.IsRead,
			"isEdited":  item.IsEdited,
			"sender": map[string]any{
				"id":       item.Sender.ID,
				"username": item.Sender.Username,
				"email":    item.Sender.Email,
			},
		})
	}
	return out
}

func inboxPayload(items []unread.Conversation) []map[string]any {
	out := make([]map[string]any, 0, len(items))
	for _, item := range items {
		out = append(out, map[string]any{
			"counterpartyId": item.CounterpartyID,
			"latest":         messagePayload(item.Latest),
			"unreadCount":    item.UnreadCount,
		})
	}
	return out
}

func notificationsPayload(items []store.Notification) []map[string]any {
	out := make([]map[string]any, 0, len(items))
	for _, item := range items {
		out = append(out, map[string]any{
			"id":          item.ID,
			"recipientId": item.RecipientID,
			"messageId":   item.MessageID,
			"isRead":      item.IsRead,
			"createdAt":   timestamp(item.CreatedAt),
		})
	}
	return out
}

func purgePayload(p store.Purge) map[string]any {
	return map[string]any{
		"messages":      p.Messages,
		"history":       p.History,
		"notifications": p.Notifications,
		"users":         p.Users,
	}
}
