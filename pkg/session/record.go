package session

import (
	"encoding/json"
	"time"
)

// record is the serialised form shared by the redis and postgres stores.
type record struct {
	ID           string         `json:"id"`
	Token        string         `json:"token"`
	UserID       *string        `json:"user_id,omitempty"`
	Values       map[string]any `json:"values"`
	IP           string         `json:"ip,omitempty"`
	UserAgent    string         `json:"user_agent,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	LastActiveAt time.Time      `json:"last_active_at"`
	ExpiresAt    time.Time      `json:"expires_at"`
}

func toRecord(s *Session) record {
	return record{
		ID:           s.ID,
		Token:        s.Token,
		UserID:       s.UserID,
		Values:       s.Values,
		IP:           s.IP,
		UserAgent:    s.UserAgent,
		CreatedAt:    s.CreatedAt,
		LastActiveAt: s.LastActiveAt,
		ExpiresAt:    s.ExpiresAt,
	}
}

func (r record) session() *Session {
	values := r.Values
	if values == nil {
		values = make(map[string]any)
	}
	return &Session{
		ID:           r.ID,
		Token:        r.Token,
		UserID:       r.UserID,
		Values:       values,
		IP:           r.IP,
		UserAgent:    r.UserAgent,
		CreatedAt:    r.CreatedAt,
		LastActiveAt: r.LastActiveAt,
		ExpiresAt:    r.ExpiresAt,
	}
}

func encodeRecord(s *Session) ([]byte, error) {
	return json.Marshal(toRecord(s))
}

func decodeRecord(data []byte) (*Session, error) {
	var r record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, err
	}
	return r.session(), nil
}
