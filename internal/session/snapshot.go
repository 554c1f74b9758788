package session

import (
	"encoding/gob"
	"io"

	"github.com/arekkw/atomix/internal/transport"
	"github.com/pkg/errors"
)

// encodeSnapshot writes every open session as a gob stream. gob is
// used rather than a database-shaped encoding (the teacher's pgx/sql
// row encodings) because a session-registry snapshot has no tabular
// structure to preserve; see DESIGN.md for the full justification.
func encodeSnapshot(w io.Writer, sessions map[uint64]*Session) error {
	entries := make([]snapshotEntry, 0, len(sessions))
	for _, s := range sessions {
		e := snapshotEntry{
			ID:            s.ID,
			LastIndex:     s.LastIndex,
			LastTimestamp: s.LastTimestamp,
			Responses:     s.responses,
		}
		if s.Member != nil {
			e.HasMember = true
			e.MemberID = s.Member.ID
			e.MemberAddress = s.Member.Address
		}
		entries = append(entries, e)
	}
	return errors.WithStack(gob.NewEncoder(w).Encode(entries))
}

func decodeSnapshot(r io.Reader) (map[uint64]*Session, error) {
	var entries []snapshotEntry
	if err := gob.NewDecoder(r).Decode(&entries); err != nil {
		return nil, errors.WithStack(err)
	}
	sessions := make(map[uint64]*Session, len(entries))
	for _, e := range entries {
		s := &Session{
			ID:            e.ID,
			LastIndex:     e.LastIndex,
			LastTimestamp: e.LastTimestamp,
			State:         Open,
			responses:     e.Responses,
		}
		if e.HasMember {
			s.Member = &transport.Member{ID: e.MemberID, Address: e.MemberAddress}
		}
		sessions[e.ID] = s
	}
	return sessions, nil
}
