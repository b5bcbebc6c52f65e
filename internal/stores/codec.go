package stores

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
)

// ChallengeSlot is one drawn question carried inside a session record: the
// originating slot number, the catalog question id, and the expected answer
// digest.
type ChallengeSlot struct {
	Slot     uint8
	Question string
	Digest   [32]byte
}

func writeString(buf *bytes.Buffer, s string) error {
	if len(s) > 65535 {
		return errors.New("string field too long")
	}
	if err := binary.Write(buf, binary.BigEndian, uint16(len(s))); err != nil {
		return err
	}
	buf.WriteString(s)
	return nil
}

func readString(r *bytes.Reader) (string, error) {
	var n uint16
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return "", err
	}
	raw := make([]byte, n)
	if _, err := io.ReadFull(r, raw); err != nil {
		return "", err
	}
	return string(raw), nil
}

func writeChallenge(buf *bytes.Buffer, challenge [2]ChallengeSlot) error {
	for _, slot := range challenge {
		buf.WriteByte(slot.Slot)
		if err := writeString(buf, slot.Question); err != nil {
			return err
		}
		buf.Write(slot.Digest[:])
	}
	return nil
}

func readChallenge(r *bytes.Reader) ([2]ChallengeSlot, error) {
	var challenge [2]ChallengeSlot
	for i := range challenge {
		slot, err := r.ReadByte()
		if err != nil {
			return challenge, err
		}
		question, err := readString(r)
		if err != nil {
			return challenge, err
		}
		challenge[i].Slot = slot
		challenge[i].Question = question
		if _, err := io.ReadFull(r, challenge[i].Digest[:]); err != nil {
			return challenge, err
		}
	}
	return challenge, nil
}
