package storage

import (
	"encoding"

	"github.com/vmihailenco/msgpack/v5"
)

type Storeable interface {
	Key() []byte
	encoding.BinaryMarshaler
	encoding.BinaryUnmarshaler
}

// DBSession is a persisted session. TokenHash is the keyed hash of the
// browser token, never the token itself.
type DBSession struct {
	TokenHash    string `msgpack:"tokenHash"`
	SessionID    string `msgpack:"sessionId"`
	UserID       string `msgpack:"userId"`
	Email        string `msgpack:"email"`
	DisplayName  string `msgpack:"displayName"`
	AccessToken  string `msgpack:"accessToken"`
	RefreshToken string `msgpack:"refreshToken"`
	ExpiresAt    int64  `msgpack:"expiresAt"`
	CreatedAt    int64  `msgpack:"createdAt"`
}

func (s *DBSession) Key() []byte {
	return []byte(s.TokenHash)
}

func (s *DBSession) MarshalBinary() (data []byte, err error) {
	type alias DBSession
	return msgpack.Marshal((*alias)(s))
}

func (s *DBSession) UnmarshalBinary(data []byte) error {
	type alias DBSession
	return msgpack.Unmarshal(data, (*alias)(s))
}
