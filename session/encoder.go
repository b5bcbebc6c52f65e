package session

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
)

// CurrentSchemaVersion is bumped whenever the binary layout changes.
// Decode accepts only the current version; stale blobs age out with
// their TTL.
const CurrentSchemaVersion = 1

// ErrCorruptSession is returned when a stored blob cannot be decoded.
var ErrCorruptSession = errors.New("corrupt session record")

// Encode serializes a session into its versioned binary form. The
// session id is the Redis key and is not part of the blob.
func Encode(sess *Session) ([]byte, error) {
	if sess == nil {
		return nil, ErrCorruptSession
	}

	var buf bytes.Buffer
	buf.WriteByte(CurrentSchemaVersion)

	if err := writeString(&buf, sess.UserID); err != nil {
		return nil, err
	}
	if err := writeString(&buf, sess.Username); err != nil {
		return nil, err
	}

	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], uint64(sess.CreatedAt))
	buf.Write(ts[:])
	binary.BigEndian.PutUint64(ts[:], uint64(sess.ExpiresAt))
	buf.Write(ts[:])

	return buf.Bytes(), nil
}

// Decode parses a blob produced by Encode. The caller fills in SessionID
// from the key it read the blob under.
func Decode(data []byte) (*Session, error) {
	r := bytes.NewReader(data)

	version, err := r.ReadByte()
	if err != nil || version != CurrentSchemaVersion {
		return nil, ErrCorruptSession
	}

	sess := &Session{}

	if sess.UserID, err = readString(r); err != nil {
		return nil, ErrCorruptSession
	}
	if sess.Username, err = readString(r); err != nil {
		return nil, ErrCorruptSession
	}

	var ts [8]byte
	if _, err := io.ReadFull(r, ts[:]); err != nil {
		return nil, ErrCorruptSession
	}
	sess.CreatedAt = int64(binary.BigEndian.Uint64(ts[:]))
	if _, err := io.ReadFull(r, ts[:]); err != nil {
		return nil, ErrCorruptSession
	}
	sess.ExpiresAt = int64(binary.BigEndian.Uint64(ts[:]))

	if r.Len() != 0 {
		return nil, ErrCorruptSession
	}

	return sess, nil
}

func writeString(buf *bytes.Buffer, s string) error {
	if len(s) > 0xFFFF {
		return ErrCorruptSession
	}
	var l [2]byte
	binary.BigEndian.PutUint16(l[:], uint16(len(s)))
	buf.Write(l[:])
	buf.WriteString(s)
	return nil
}

func readString(r *bytes.Reader) (string, error) {
	var l [2]byte
	if _, err := io.ReadFull(r, l[:]); err != nil {
		return "", err
	}
	n := int(binary.BigEndian.Uint16(l[:]))
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return string(b), nil
}
