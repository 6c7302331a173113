// Package manifest implements SandDB's durable record of which SSTables
// exist and which level each belongs to: an append-only, CRC-framed
// event log replayed on open to reconstruct the live table set.
package manifest

// Magic identifies a SandDB manifest file.
const Magic uint32 = 0xBEEFFE57

// Version is the only manifest format version SandDB writes or reads.
const Version uint8 = 1

// HeaderSize is the fixed 13-byte file header: magic(4) + version(1) +
// next_sst_id(8).
const HeaderSize = 13

// nextIDOffset is where next_sst_id lives within the header, so
// allocating an ID can patch it in place without rewriting the file.
const nextIDOffset = 5

// Event type tags, framed as (crc32c:u32, length:u32, type:u8, payload).
const (
	eventAddSSTable    uint8 = 1
	eventRemoveSSTable uint8 = 2
)

// eventHeaderSize is the crc+length prefix before type+payload.
const eventHeaderSize = 8

// maxPayloadLen guards against a corrupt length field requesting an
// absurd allocation before the CRC check even runs.
const maxPayloadLen = 64 << 20

// LockFileName is the advisory sentinel file SandDB creates alongside
// the manifest to detect a second instance opening the same directory.
const LockFileName = "LOCK"

// FileName is the manifest's file name within the database directory.
const FileName = "MANIFEST"

// TableMeta describes one live SSTable as recorded in the manifest: its
// assigned ID, the level it lives at, and the inclusive key range it
// covers.
type TableMeta struct {
	ID     uint64
	Level  int
	MinKey []byte
	MaxKey []byte
}
