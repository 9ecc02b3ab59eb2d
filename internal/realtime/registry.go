package realtime

import "sync"

// Registry は接続中のセッションをユーザーIDごとに管理する登録簿。
// 同一ユーザーの複数セッション（複数タブ・複数端末）を許容する。
type Registry struct {
	// mu はsessionsを保護する。
	mu sync.RWMutex
	// sessions はユーザーIDからそのユーザーのセッション集合への対応。
	sessions map[string]map[*Session]struct{}
}

// NewRegistry は新しい登録簿を生成する。
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]map[*Session]struct{}),
	}
}

// Join はセッションをユーザーに紐づけて登録する。
// 登録済みのセッションが別ユーザーで再joinした場合は、前の登録を
// 外してから付け替える。取り残された登録は残らない。
func (r *Registry) Join(userID string, sess *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev := sess.UserID(); prev != "" && prev != userID {
		r.remove(prev, sess)
	}
	sess.setUserID(userID)

	if r.sessions[userID] == nil {
		r.sessions[userID] = make(map[*Session]struct{})
	}
	r.sessions[userID][sess] = struct{}{}
}

// Leave はセッションを登録簿から除去する。
// 未登録のセッションに対しては何もしない。
func (r *Registry) Leave(sess *Session) {
	userID := sess.UserID()
	if userID == "" {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.remove(userID, sess)
}

// remove はユーザーのセッション集合からセッションを外す。
// 呼び出し側でr.muを保持していること。
func (r *Registry) remove(userID string, sess *Session) {
	set, ok := r.sessions[userID]
	if !ok {
		return
	}
	delete(set, sess)
	if len(set) == 0 {
		delete(r.sessions, userID)
	}
}

// SessionsFor はユーザーの現在のセッション一覧のスナップショットを返す。
func (r *Registry) SessionsFor(userID string) []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set, ok := r.sessions[userID]
	if !ok {
		return nil
	}
	result := make([]*Session, 0, len(set))
	for sess := range set {
		result = append(result, sess)
	}
	return result
}

// ConnectedClients は登録済みセッションの総数を返す。
func (r *Registry) ConnectedClients() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	total := 0
	for _, set := range r.sessions {
		total += len(set)
	}
	return total
}
