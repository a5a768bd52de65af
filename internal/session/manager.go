package session

import (
	"sort"
	"sync"
	"time"

	"cdpoverride/internal/logger"
)

// Session 一次尚未给出处置的拦截事务
type Session struct {
	RequestID string
	URL       string
	Started   time.Time
}

// Manager 在途事务登记表，保证每个 requestId 只处置一次
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	log      logger.Logger
}

// NewManager 创建登记表
func NewManager(l logger.Logger) *Manager {
	if l == nil {
		l = logger.NewNop()
	}
	return &Manager{
		sessions: make(map[string]*Session),
		log:      l,
	}
}

// Create 登记事务；同一 requestId 已在途时返回 false
func (m *Manager) Create(requestID, url string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if cur, ok := m.sessions[requestID]; ok {
		m.log.Warn("重复的拦截事务", "requestID", requestID, "url", url, "since", cur.Started)
		return cur, false
	}
	s := &Session{RequestID: requestID, URL: url, Started: time.Now()}
	m.sessions[requestID] = s
	return s, true
}

// Delete 处置已提交，移除事务
func (m *Manager) Delete(requestID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, requestID)
}

// List 按开始时间返回所有在途事务
func (m *Manager) List() []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	list := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		list = append(list, s)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Started.Before(list[j].Started) })
	return list
}

// Len 在途事务数
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
