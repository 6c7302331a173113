package manifest

import (
	"bytes"

	"github.com/sanddb/sanddb/internal/binfmt"
	"github.com/sanddb/sanddb/internal/sanderrors"
)

// event is a decoded manifest log record, good for only one of addRec /
// removeID depending on typ.
type event struct {
	typ      uint8
	addRec   TableMeta
	removeID uint64
}

func encodeAddEvent(t TableMeta) ([]byte, error) {
	var buf bytes.Buffer
	if err := binfmt.WriteU8(&buf, eventAddSSTable); err != nil {
		return nil, err
	}
	if err := binfmt.WriteU8(&buf, uint8(t.Level)); err != nil {
		return nil, err
	}
	if err := binfmt.WriteBytes(&buf, t.MinKey); err != nil {
		return nil, err
	}
	if err := binfmt.WriteBytes(&buf, t.MaxKey); err != nil {
		return nil, err
	}
	if err := binfmt.WriteU64(&buf, t.ID); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encodeRemoveEvent(id uint64) ([]byte, error) {
	var buf bytes.Buffer
	if err := binfmt.WriteU8(&buf, eventRemoveSSTable); err != nil {
		return nil, err
	}
	if err := binfmt.WriteU64(&buf, id); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// decodeEvent parses the type+payload body of one frame (CRC already
// validated by the caller).
func decodeEvent(body []byte) (event, error) {
	if len(body) == 0 {
		return event{}, sanderrors.ErrCorruptChunk
	}
	r := bytes.NewReader(body[1:])
	switch body[0] {
	case eventAddSSTable:
		level, err := binfmt.ReadU8(r)
		if err != nil {
			return event{}, err
		}
		minKey, err := binfmt.ReadBytes(r, maxPayloadLen)
		if err != nil {
			return event{}, err
		}
		maxKey, err := binfmt.ReadBytes(r, maxPayloadLen)
		if err != nil {
			return event{}, err
		}
		id, err := binfmt.ReadU64(r)
		if err != nil {
			return event{}, err
		}
		return event{typ: eventAddSSTable, addRec: TableMeta{ID: id, Level: int(level), MinKey: minKey, MaxKey: maxKey}}, nil
	case eventRemoveSSTable:
		id, err := binfmt.ReadU64(r)
		if err != nil {
			return event{}, err
		}
		return event{typ: eventRemoveSSTable, removeID: id}, nil
	default:
		return event{}, sanderrors.ErrCorruptChunk
	}
}

// frameEvent wraps an encoded type+payload body in its crc32c + length
// prefix, ready to append to the log.
func frameEvent(body []byte) []byte {
	var out bytes.Buffer
	crc := binfmt.Checksum(body)
	_ = binfmt.WriteU32(&out, crc)
	_ = binfmt.WriteU32(&out, uint32(len(body)))
	out.Write(body)
	return out.Bytes()
}
