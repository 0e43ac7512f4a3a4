package postgres

import (
	"encoding/binary"
	"fmt"
	"time"
)

// MessageType identifies a pgoutput logical replication message.
type MessageType uint8

const (
	MessageTypeBegin    MessageType = 'B'
	MessageTypeCommit   MessageType = 'C'
	MessageTypeOrigin   MessageType = 'O'
	MessageTypeRelation MessageType = 'R'
	MessageTypeType     MessageType = 'Y'
	MessageTypeInsert   MessageType = 'I'
	MessageTypeUpdate   MessageType = 'U'
	MessageTypeDelete   MessageType = 'D'
	MessageTypeTruncate MessageType = 'T'
	MessageTypeMessage  MessageType = 'M'
)

func (t MessageType) String() string {
	switch t {
	case MessageTypeBegin:
		return "Begin"
	case MessageTypeCommit:
		return "Commit"
	case MessageTypeOrigin:
		return "Origin"
	case MessageTypeRelation:
		return "Relation"
	case MessageTypeType:
		return "Type"
	case MessageTypeInsert:
		return "Insert"
	case MessageTypeUpdate:
		return "Update"
	case MessageTypeDelete:
		return "Delete"
	case MessageTypeTruncate:
		return "Truncate"
	case MessageTypeMessage:
		return "Message"
	default:
		return fmt.Sprintf("Unknown(%c)", uint8(t))
	}
}

// Message is a decoded pgoutput logical replication message.
type Message interface {
	Type() MessageType
}

type BeginMessage struct {
	FinalLSN   LSN
	CommitTime time.Time
	Xid        uint32
}

func (*BeginMessage) Type() MessageType { return MessageTypeBegin }

type CommitMessage struct {
	Flags             uint8
	CommitLSN         LSN
	TransactionEndLSN LSN
	CommitTime        time.Time
}

func (*CommitMessage) Type() MessageType { return MessageTypeCommit }

type OriginMessage struct {
	CommitLSN LSN
	Name      string
}

func (*OriginMessage) Type() MessageType { return MessageTypeOrigin }

type RelationColumn struct {
	// Flags bit 0 marks the column as part of the replica identity key.
	Flags        uint8
	Name         string
	DataType     uint32
	TypeModifier int32
}

type RelationMessage struct {
	RelationID      uint32
	Namespace       string
	RelationName    string
	ReplicaIdentity uint8
	Columns         []*RelationColumn
}

func (*RelationMessage) Type() MessageType { return MessageTypeRelation }

type TypeMessage struct {
	DataType  uint32
	Namespace string
	Name      string
}

func (*TypeMessage) Type() MessageType { return MessageTypeType }

// Tuple column categories as sent on the wire.
const (
	TupleDataTypeNull           = uint8('n')
	TupleDataTypeUnchangedToast = uint8('u')
	TupleDataTypeText           = uint8('t')
)

type TupleDataColumn struct {
	DataType uint8
	Data     []byte
}

type TupleData struct {
	Columns []*TupleDataColumn
}

type InsertMessage struct {
	RelationID uint32
	Tuple      *TupleData
}

func (*InsertMessage) Type() MessageType { return MessageTypeInsert }

type UpdateMessage struct {
	RelationID uint32
	// OldTupleType is 'K' (replica identity key) or 'O' (full old row);
	// zero when the old tuple was not sent.
	OldTupleType uint8
	OldTuple     *TupleData
	NewTuple     *TupleData
}

func (*UpdateMessage) Type() MessageType { return MessageTypeUpdate }

type DeleteMessage struct {
	RelationID   uint32
	OldTupleType uint8
	OldTuple     *TupleData
}

func (*DeleteMessage) Type() MessageType { return MessageTypeDelete }

type TruncateMessage struct {
	Option      uint8
	RelationIDs []uint32
}

func (*TruncateMessage) Type() MessageType { return MessageTypeTruncate }

type LogicalDecodingMessage struct {
	Transactional bool
	LSN           LSN
	Prefix        string
	Content       []byte
}

func (*LogicalDecodingMessage) Type() MessageType { return MessageTypeMessage }

// Parse decodes one pgoutput (protocol version 1) message from the WAL
// data of an XLogData payload.
func Parse(data []byte) (Message, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty logical replication message")
	}

	d := &decoder{buf: data[1:]}

	switch MessageType(data[0]) {
	case MessageTypeBegin:
		m := &BeginMessage{}
		m.FinalLSN = LSN(d.uint64())
		m.CommitTime = pgTimeToTime(int64(d.uint64()))
		m.Xid = d.uint32()
		return finish(m, d)

	case MessageTypeCommit:
		m := &CommitMessage{}
		m.Flags = d.uint8()
		m.CommitLSN = LSN(d.uint64())
		m.TransactionEndLSN = LSN(d.uint64())
		m.CommitTime = pgTimeToTime(int64(d.uint64()))
		return finish(m, d)

	case MessageTypeOrigin:
		m := &OriginMessage{}
		m.CommitLSN = LSN(d.uint64())
		m.Name = d.cstring()
		return finish(m, d)

	case MessageTypeRelation:
		m := &RelationMessage{}
		m.RelationID = d.uint32()
		m.Namespace = d.cstring()
		m.RelationName = d.cstring()
		m.ReplicaIdentity = d.uint8()
		n := int(d.uint16())
		for i := 0; i < n && d.err == nil; i++ {
			col := &RelationColumn{}
			col.Flags = d.uint8()
			col.Name = d.cstring()
			col.DataType = d.uint32()
			col.TypeModifier = int32(d.uint32())
			m.Columns = append(m.Columns, col)
		}
		return finish(m, d)

	case MessageTypeType:
		m := &TypeMessage{}
		m.DataType = d.uint32()
		m.Namespace = d.cstring()
		m.Name = d.cstring()
		return finish(m, d)

	case MessageTypeInsert:
		m := &InsertMessage{}
		m.RelationID = d.uint32()
		if kind := d.uint8(); kind != 'N' {
			return nil, fmt.Errorf("insert message: expected new tuple marker, got %c", kind)
		}
		m.Tuple = d.tupleData()
		return finish(m, d)

	case MessageTypeUpdate:
		m := &UpdateMessage{}
		m.RelationID = d.uint32()
		kind := d.uint8()
		if kind == 'K' || kind == 'O' {
			m.OldTupleType = kind
			m.OldTuple = d.tupleData()
			kind = d.uint8()
		}
		if kind != 'N' {
			return nil, fmt.Errorf("update message: expected new tuple marker, got %c", kind)
		}
		m.NewTuple = d.tupleData()
		return finish(m, d)

	case MessageTypeDelete:
		m := &DeleteMessage{}
		m.RelationID = d.uint32()
		m.OldTupleType = d.uint8()
		if m.OldTupleType != 'K' && m.OldTupleType != 'O' {
			return nil, fmt.Errorf("delete message: unexpected old tuple marker %c", m.OldTupleType)
		}
		m.OldTuple = d.tupleData()
		return finish(m, d)

	case MessageTypeTruncate:
		m := &TruncateMessage{}
		n := int(d.uint32())
		m.Option = d.uint8()
		for i := 0; i < n && d.err == nil; i++ {
			m.RelationIDs = append(m.RelationIDs, d.uint32())
		}
		return finish(m, d)

	case MessageTypeMessage:
		m := &LogicalDecodingMessage{}
		m.Transactional = d.uint8() != 0
		m.LSN = LSN(d.uint64())
		m.Prefix = d.cstring()
		m.Content = d.bytes(int(d.uint32()))
		return finish(m, d)

	default:
		return nil, fmt.Errorf("unknown message type in pgoutput stream: %c", data[0])
	}
}

func finish(m Message, d *decoder) (Message, error) {
	if d.err != nil {
		return nil, fmt.Errorf("failed to decode %s message: %w", m.Type(), d.err)
	}
	return m, nil
}

// decoder is a cursor over one message body; the first decode error
// sticks and short-circuits the rest.
type decoder struct {
	buf []byte
	off int
	err error
}

func (d *decoder) fail() {
	if d.err == nil {
		d.err = fmt.Errorf("message truncated at offset %d", d.off)
	}
}

func (d *decoder) uint8() uint8 {
	if d.err != nil || d.off+1 > len(d.buf) {
		d.fail()
		return 0
	}
	v := d.buf[d.off]
	d.off++
	return v
}

func (d *decoder) uint16() uint16 {
	if d.err != nil || d.off+2 > len(d.buf) {
		d.fail()
		return 0
	}
	v := binary.BigEndian.Uint16(d.buf[d.off:])
	d.off += 2
	return v
}

func (d *decoder) uint32() uint32 {
	if d.err != nil || d.off+4 > len(d.buf) {
		d.fail()
		return 0
	}
	v := binary.BigEndian.Uint32(d.buf[d.off:])
	d.off += 4
	return v
}

func (d *decoder) uint64() uint64 {
	if d.err != nil || d.off+8 > len(d.buf) {
		d.fail()
		return 0
	}
	v := binary.BigEndian.Uint64(d.buf[d.off:])
	d.off += 8
	return v
}

func (d *decoder) cstring() string {
	if d.err != nil {
		return ""
	}
	for i := d.off; i < len(d.buf); i++ {
		if d.buf[i] == 0 {
			s := string(d.buf[d.off:i])
			d.off = i + 1
			return s
		}
	}
	d.fail()
	return ""
}

func (d *decoder) bytes(n int) []byte {
	if d.err != nil || n < 0 || d.off+n > len(d.buf) {
		d.fail()
		return nil
	}
	v := d.buf[d.off : d.off+n]
	d.off += n
	return v
}

func (d *decoder) tupleData() *TupleData {
	td := &TupleData{}
	n := int(d.uint16())
	for i := 0; i < n && d.err == nil; i++ {
		col := &TupleDataColumn{}
		col.DataType = d.uint8()
		if col.DataType == TupleDataTypeText {
			col.Data = d.bytes(int(d.uint32()))
		}
		td.Columns = append(td.Columns, col)
	}
	return td
}
