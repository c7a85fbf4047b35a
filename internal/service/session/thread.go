package session

import (
	"sort"
	"time"

	"TicketChat/entity"
)

// thread is the authoritative, ordered, deduplicated message list for one
// open conversation. It is not safe for concurrent use; the session holds
// the lock. Entries are never removed; within a session the list only
// grows.
type thread struct {
	messages []entity.ChatMessage
}

// Reset replaces the whole list with the initial snapshot.
func (t *thread) Reset(msgs []entity.ChatMessage) {
	t.messages = append(t.messages[:0:0], msgs...)
	t.sort()
}

// Merge folds one incoming message into the list and reports whether the
// list changed. Both channels feed the same thread, so merging must be
// commutative: the dedup rule, applied in order, is the sole correctness
// mechanism for the push/poll race.
//
//  1. A message with the same confirmed id already exists: drop.
//  2. A pending optimistic entry with identical body exists: replace it in
//     place, adopting the server id, timestamp and read state.
//  3. Otherwise append and re-sort.
func (t *thread) Merge(msg entity.ChatMessage) bool {
	if msg.Status == "" {
		msg.Status = entity.DeliverySent
	}

	if !msg.ID.IsTemporary() {
		for _, existing := range t.messages {
			if existing.ID.Server == msg.ID.Server {
				return false
			}
		}
		for i, existing := range t.messages {
			if existing.ID.IsTemporary() && existing.Body == msg.Body &&
				(existing.Status == entity.DeliverySending || existing.Status == entity.DeliverySent) {
				msg.Status = entity.DeliverySent
				t.messages[i] = msg
				return true
			}
		}
	}

	t.messages = append(t.messages, msg)
	t.sort()
	return true
}

// MarkRead stamps read state on the given messages. Returns the ids that
// actually transitioned.
func (t *thread) MarkRead(ids []string, at time.Time) []string {
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}

	var marked []string
	for i := range t.messages {
		if t.messages[i].ReadAt != nil || !want[t.messages[i].ID.String()] {
			continue
		}
		readAt := at
		t.messages[i].ReadAt = &readAt
		marked = append(marked, t.messages[i].ID.String())
	}
	return marked
}

// MarkReadByID stamps a single message read, by server id.
func (t *thread) MarkReadByID(id string, at time.Time) bool {
	for i := range t.messages {
		if t.messages[i].ID.Server == id && t.messages[i].ReadAt == nil {
			readAt := at
			t.messages[i].ReadAt = &readAt
			return true
		}
	}
	return false
}

// SetStatusLocal flips the delivery status of an optimistic entry.
func (t *thread) SetStatusLocal(localID string, status entity.DeliveryStatus) bool {
	for i := range t.messages {
		if t.messages[i].ID.Local == localID && t.messages[i].ID.IsTemporary() {
			t.messages[i].Status = status
			return true
		}
	}
	return false
}

// UnreadCounterpart returns ids of unread messages authored by the other
// side of the conversation.
func (t *thread) UnreadCounterpart(selfIsAgent bool) []string {
	var ids []string
	for _, m := range t.messages {
		if m.IsAgentReply != selfIsAgent && m.ReadAt == nil && !m.ID.IsTemporary() {
			ids = append(ids, m.ID.String())
		}
	}
	return ids
}

// Snapshot returns a copy of the list in render order.
func (t *thread) Snapshot() []entity.ChatMessage {
	out := make([]entity.ChatMessage, len(t.messages))
	copy(out, t.messages)
	return out
}

// sort keeps the list ascending by creation time. Both channels may
// deliver out of strict real-time order, so arrival order is never
// trusted.
func (t *thread) sort() {
	sort.SliceStable(t.messages, func(i, j int) bool {
		return t.messages[i].CreatedAt.Before(t.messages[j].CreatedAt)
	})
}
