package services

import (
	"encoding/json"
	"log"
	"sync"

	"github.com/gorilla/websocket"
)

type WSConnManager struct {
	mu    sync.RWMutex
	users map[int64][]*websocket.Conn
}

func NewWSConnManager() *WSConnManager {
	return &WSConnManager{
		users: make(map[int64][]*websocket.Conn),
	}
}

func (m *WSConnManager) Add(userID int64, conn *websocket.Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[userID] = append(m.users[userID], conn)
}

func (m *WSConnManager) Remove(userID int64, conn *websocket.Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()
	conns := m.users[userID]
	for i, c := range conns {
		if c == conn {
			m.users[userID] = append(conns[:i], conns[i+1:]...)
			break
		}
	}
	if len(m.users[userID]) == 0 {
		delete(m.users, userID)
	}
}

func (m *WSConnManager) Send(userID int64, message []byte) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, conn := range m.users[userID] {
		_ = conn.WriteMessage(websocket.TextMessage, message)
	}
}

// Broadcast шлет сообщение всем подключенным пользователям, кроме exclude
// (автор не получает уведомление о собственном посте)
func (m *WSConnManager) Broadcast(message []byte, exclude int64) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for userID, conns := range m.users {
		if userID == exclude {
			continue
		}
		for _, conn := range conns {
			_ = conn.WriteMessage(websocket.TextMessage, message)
		}
	}
}

var GlobalWSConnManager = NewWSConnManager()

// wsFeedEvent - легкий сигнал "появился новый пост": только метаданные,
// контент клиент заберет через loadNew
type wsFeedEvent struct {
	Event      string `json:"event"`
	PostID     int64  `json:"post_id"`
	AuthorID   int64  `json:"author_id"`
	Visibility string `json:"visibility"`
}

// NotifyNewPost рассылает ws-уведомление о вставке поста. Счетчики
// новизны ведет RealtimeDeltaTracker через локальный хаб; ws-канал -
// дополнительный сигнал для подключенных клиентов.
func NotifyNewPost(event InsertEvent) {
	payload := wsFeedEvent{
		Event:      "post_inserted",
		PostID:     event.PostID,
		AuthorID:   event.AuthorID,
		Visibility: string(event.Visibility),
	}
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("ERROR: failed to marshal ws feed event: %v", err)
		return
	}
	GlobalWSConnManager.Broadcast(data, event.AuthorID)
}
