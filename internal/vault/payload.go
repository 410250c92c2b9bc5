package vault

import (
	"encoding/json"
	"fmt"
	"time"

	cr "github.com/yamnikov-oleg/rooster/internal/crypto"
)

// payload is the JSON document sealed inside the envelope. Passwords are
// []byte so the decoded copies can be wiped.
type payload struct {
	Entries []payloadEntry `json:"entries"`
}

type payloadEntry struct {
	App       string    `json:"app"`
	Username  string    `json:"username"`
	Password  []byte    `json:"password"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// encodeStore serializes s in list order. The caller wipes the result.
func encodeStore(s *Store) ([]byte, error) {
	p := payload{Entries: make([]payloadEntry, 0, s.Len())}
	for _, k := range s.keys() {
		e := s.entries[k]
		p.Entries = append(p.Entries, payloadEntry{
			App:       e.App,
			Username:  e.Username,
			Password:  e.Password,
			CreatedAt: e.CreatedAt,
			UpdatedAt: e.UpdatedAt,
		})
	}
	b, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode entries: %w", err)
	}
	return b, nil
}

// decodeStore parses a decrypted payload. A payload that authenticated but
// does not parse is ErrCorruptData.
func decodeStore(b []byte) (*Store, error) {
	var p payload
	if err := json.Unmarshal(b, &p); err != nil {
		return nil, fmt.Errorf("%w: decode entries: %v", ErrCorruptData, err)
	}
	s := NewStore()
	for _, pe := range p.Entries {
		err := s.restore(Entry{
			App:       pe.App,
			Username:  pe.Username,
			Password:  pe.Password,
			CreatedAt: pe.CreatedAt.UTC(),
			UpdatedAt: pe.UpdatedAt.UTC(),
		})
		if err != nil {
			for i := range p.Entries {
				cr.Zero(p.Entries[i].Password)
			}
			return nil, fmt.Errorf("%w: %v", ErrCorruptData, err)
		}
	}
	return s, nil
}
