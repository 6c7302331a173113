package binfmt

import (
	"bytes"
	"testing"

	"github.com/sanddb/sanddb/internal/sanderrors"
	"github.com/stretchr/testify/require"
)

func TestU8RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteU8(&buf, 0xAB))
	v, err := ReadU8(&buf)
	require.NoError(t, err)
	require.Equal(t, uint8(0xAB), v)
}

func TestU32RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteU32(&buf, 0xDEADBEEF))
	require.Equal(t, []byte{0xDE, 0xAD, 0xBE, 0xEF}, buf.Bytes())
	v, err := ReadU32(&buf)
	require.NoError(t, err)
	require.Equal(t, uint32(0xDEADBEEF), v)
}

func TestU64RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteU64(&buf, 0x0102030405060708))
	v, err := ReadU64(&buf)
	require.NoError(t, err)
	require.Equal(t, uint64(0x0102030405060708), v)
}

func TestBytesRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteBytes(&buf, []byte("hello")))
	v, err := ReadBytes(&buf, 1024)
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), v)
}

func TestEmptyBytesRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteBytes(&buf, []byte{}))
	v, err := ReadBytes(&buf, 1024)
	require.NoError(t, err)
	require.Equal(t, []byte{}, v)
}

func TestReadBytesRejectsOverCap(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteBytes(&buf, make([]byte, 100)))
	_, err := ReadBytes(&buf, 10)
	require.ErrorIs(t, err, sanderrors.ErrInvalidLength)
}

func TestReadTruncated(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteU32(&buf, 42))
	truncated := bytes.NewReader(buf.Bytes()[:2])
	_, err := ReadU32(truncated)
	require.ErrorIs(t, err, sanderrors.ErrTruncated)
}

func TestReadBytesTruncatedPayload(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteBytes(&buf, []byte("hello world")))
	truncated := bytes.NewReader(buf.Bytes()[:len(buf.Bytes())-3])
	_, err := ReadBytes(truncated, 1024)
	require.ErrorIs(t, err, sanderrors.ErrTruncated)
}

func TestCRCIncremental(t *testing.T) {
	c := NewCRC()
	c.Write([]byte("hello "))
	c.Write([]byte("world"))
	require.Equal(t, Checksum([]byte("hello world")), c.Sum32())
}

func TestCRCDetectsCorruption(t *testing.T) {
	original := Checksum([]byte("payload"))
	corrupted := Checksum([]byte("payloae"))
	require.NotEqual(t, original, corrupted)
}
