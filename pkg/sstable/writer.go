package sstable

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"sort"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/hadro-db/hadro/pkg/bloom"
	"github.com/hadro-db/hadro/pkg/hash"
	"github.com/hadro-db/hadro/pkg/keys"
)

// Create encodes entries into one immutable segment blob. Entries are sorted
// ascending by key; the payload bytes never influence ordering. version 0
// selects FormatVersion.
//
// Create is reproducible: the same entries and metadata always yield
// byte-identical output.
func Create(entries map[keys.Key][]byte, meta Metadata, version uint32) ([]byte, error) {
	if version == 0 {
		version = FormatVersion
	}
	if version != FormatVersion {
		return nil, fmt.Errorf("sstable: unsupported format version %d", version)
	}

	sorted := make([]keys.Key, 0, len(entries))
	for k := range entries {
		if k.IsZero() {
			return nil, fmt.Errorf("sstable: invalid zero key")
		}
		sorted = append(sorted, k)
	}
	sort.Slice(sorted, func(i, j int) bool { return keys.Compare(sorted[i], sorted[j]) < 0 })

	fpRate := meta.FilterFalsePositiveRate
	if fpRate == 0 {
		fpRate = bloom.DefaultFalsePositiveRate
	}
	filter := bloom.New(len(entries), fpRate)

	// Records section, tracking each record's absolute offset for the index.
	var records bytes.Buffer
	recordOffs := make([]uint64, len(sorted))
	encodedKeys := make([][]byte, len(sorted))

	for i, k := range sorted {
		ek := k.Encode()
		if len(ek) > maxKeyLen {
			return nil, fmt.Errorf("%w: key %s", ErrKeyTooLarge, k)
		}
		encodedKeys[i] = ek
		filter.Add(hash.Sum32(ek))

		recordOffs[i] = headerSize + uint64(records.Len())
		payload := entries[k]

		var lenBuf [6]byte
		binary.LittleEndian.PutUint16(lenBuf[0:2], uint16(len(ek)))
		records.Write(lenBuf[0:2])
		records.Write(ek)
		binary.LittleEndian.PutUint32(lenBuf[0:4], uint32(len(payload)))
		records.Write(lenBuf[0:4])
		records.Write(payload)
	}

	// Dense index: every key with its record offset.
	var index bytes.Buffer
	var countBuf [4]byte
	binary.LittleEndian.PutUint32(countBuf[:], uint32(len(sorted)))
	index.Write(countBuf[:])
	for i, ek := range encodedKeys {
		var buf [10]byte
		binary.LittleEndian.PutUint16(buf[0:2], uint16(len(ek)))
		index.Write(buf[0:2])
		index.Write(ek)
		binary.LittleEndian.PutUint64(buf[0:8], recordOffs[i])
		index.Write(buf[0:8])
	}

	bloomBytes := filter.MarshalBinary()

	metaBytes, err := encodeMetaFields(meta.Fields)
	if err != nil {
		return nil, fmt.Errorf("sstable: encode metadata: %w", err)
	}

	h := header{
		magic:          Magic,
		version:        version,
		entryCount:     uint64(len(sorted)),
		createdAtNanos: meta.CreatedAtNanos,
		recordsOff:     headerSize,
		recordsLen:     uint64(records.Len()),
		indexOff:       headerSize + uint64(records.Len()),
		indexLen:       uint64(index.Len()),
	}
	h.bloomOff = h.indexOff + h.indexLen
	h.bloomLen = uint64(len(bloomBytes))
	h.metaOff = h.bloomOff + h.bloomLen
	h.metaLen = uint64(len(metaBytes))

	total := headerSize + records.Len() + index.Len() + len(bloomBytes) + len(metaBytes) + footerSize
	blob := make([]byte, 0, total)
	blob = appendHeader(blob, h)
	blob = append(blob, records.Bytes()...)
	blob = append(blob, index.Bytes()...)
	blob = append(blob, bloomBytes...)
	blob = append(blob, metaBytes...)

	crc := crc32.ChecksumIEEE(blob)
	blob = binary.LittleEndian.AppendUint32(blob, crc)
	return blob, nil
}

// appendHeader writes the fixed 88-byte header.
func appendHeader(dst []byte, h header) []byte {
	dst = binary.LittleEndian.AppendUint32(dst, h.magic)
	dst = binary.LittleEndian.AppendUint32(dst, h.version)
	dst = binary.LittleEndian.AppendUint64(dst, h.entryCount)
	dst = binary.LittleEndian.AppendUint64(dst, uint64(h.createdAtNanos))
	dst = binary.LittleEndian.AppendUint64(dst, h.recordsOff)
	dst = binary.LittleEndian.AppendUint64(dst, h.recordsLen)
	dst = binary.LittleEndian.AppendUint64(dst, h.indexOff)
	dst = binary.LittleEndian.AppendUint64(dst, h.indexLen)
	dst = binary.LittleEndian.AppendUint64(dst, h.bloomOff)
	dst = binary.LittleEndian.AppendUint64(dst, h.bloomLen)
	dst = binary.LittleEndian.AppendUint64(dst, h.metaOff)
	dst = binary.LittleEndian.AppendUint64(dst, h.metaLen)
	return dst
}

// encodeMetaFields msgpack-encodes the metadata map with sorted keys, so the
// meta section is deterministic for a given map.
func encodeMetaFields(fields map[string]string) ([]byte, error) {
	if fields == nil {
		fields = map[string]string{}
	}
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetSortMapKeys(true)
	if err := enc.Encode(fields); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
