// Package codec implements the versioned binary encodings used to persist
// channel permission sets and rank-name tables in single blob fields.
//
// Decoding is deliberately tolerant: blobs written by older releases (or
// partially corrupted ones) decode to whatever prefix was readable, with a
// logged warning. A hard error is only returned when the blob is unreadable
// from its very first field, so readers can substitute defaults instead of
// failing a whole channel load over one bad column.
package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/fgalloway/chanserv/pkg/model"
)

// RankNameVersion is the version tag written in front of every rank-name
// blob. Old readers rely on it being the first two bytes.
const RankNameVersion = 2

// legacyRankCount is the fixed table size of version-1 rank-name blobs.
// V1 blobs always carried exactly twelve names, rank 0 through 11.
const legacyRankCount = 12

var ErrEmptyBlob = errors.New("codec: blob is empty")

// EncodePermissions encodes a permission array as a count byte followed by
// one byte per permission.
func EncodePermissions(perms []model.Permission) []byte {
	out := make([]byte, 0, len(perms)+1)
	out = append(out, byte(len(perms)))
	for _, p := range perms {
		out = append(out, byte(p))
	}
	return out
}

// DecodePermissions decodes a permission blob. The leading count byte is
// read and discarded; values are consumed to the end of the blob. A count
// that disagrees with the available data is logged, not surfaced.
func DecodePermissions(data []byte) ([]model.Permission, error) {
	if len(data) == 0 {
		return nil, ErrEmptyBlob
	}
	count := int(data[0])
	perms := make([]model.Permission, 0, len(data)-1)
	for _, b := range data[1:] {
		perms = append(perms, model.Permission(b))
	}
	if count != len(perms) {
		slog.Warn("permission blob length mismatch, using values read",
			"declared", count, "read", len(perms))
	}
	return perms, nil
}

// EncodeRankNames encodes a rank-name table in the version-2 format: a
// two-byte version tag followed by (rank, length-prefixed name) records.
// Ranks are written in ascending order so equal tables encode identically.
func EncodeRankNames(names map[byte]string) ([]byte, error) {
	ranks := make([]int, 0, len(names))
	for rank := range names {
		ranks = append(ranks, int(rank))
	}
	sort.Ints(ranks)

	out := make([]byte, 2, 2+len(names)*8)
	binary.BigEndian.PutUint16(out, RankNameVersion)
	for _, rank := range ranks {
		name := names[byte(rank)]
		if len(name) > 0xffff {
			return nil, fmt.Errorf("codec: rank %d name exceeds %d bytes", rank, 0xffff)
		}
		out = append(out, byte(rank))
		out = binary.BigEndian.AppendUint16(out, uint16(len(name)))
		out = append(out, name...)
	}
	return out, nil
}

// DecodeRankNames decodes a rank-name blob of either known version. The
// first two bytes are read as a version tag; a tag of 2 selects the current
// format, anything else rewinds and decodes the legacy fixed-count format.
func DecodeRankNames(data []byte) (map[byte]string, error) {
	if len(data) == 0 {
		return nil, ErrEmptyBlob
	}
	if len(data) >= 2 && binary.BigEndian.Uint16(data) == RankNameVersion {
		return decodeRankNamesV2(data[2:]), nil
	}
	return decodeRankNamesV1(data)
}

// decodeRankNamesV2 reads (rank, name) records until the blob is exhausted.
// A record truncated partway through terminates the loop with a warning.
func decodeRankNamesV2(data []byte) map[byte]string {
	names := make(map[byte]string)
	for len(data) > 0 {
		rank := data[0]
		name, rest, err := readString(data[1:])
		if err != nil {
			slog.Warn("rank name blob truncated mid-record, using names read",
				"rank", rank, "read", len(names))
			break
		}
		names[rank] = name
		data = rest
	}
	return names
}

// decodeRankNamesV1 reads the legacy format: a fixed count byte of twelve
// followed by twelve names mapping implicitly to ranks 0 through 11. The
// count is a format marker, not a length field; anything else is an error.
func decodeRankNamesV1(data []byte) (map[byte]string, error) {
	if data[0] != legacyRankCount {
		return nil, fmt.Errorf("codec: unrecognised rank name format (leading byte %d)", data[0])
	}
	names := make(map[byte]string, legacyRankCount)
	data = data[1:]
	for rank := byte(0); rank < legacyRankCount; rank++ {
		if len(data) == 0 {
			slog.Warn("legacy rank name blob ended early, using names read", "read", len(names))
			break
		}
		name, rest, err := readString(data)
		if err != nil {
			slog.Warn("legacy rank name blob truncated mid-record, using names read",
				"rank", rank, "read", len(names))
			break
		}
		names[rank] = name
		data = rest
	}
	return names, nil
}

var errTruncated = errors.New("codec: truncated string")

// readString reads a length-prefixed UTF-8 string (two-byte big-endian
// length, then that many bytes) and returns the remainder of the blob.
func readString(data []byte) (string, []byte, error) {
	if len(data) < 2 {
		return "", nil, errTruncated
	}
	n := int(binary.BigEndian.Uint16(data))
	if len(data) < 2+n {
		return "", nil, errTruncated
	}
	return string(data[2 : 2+n]), data[2+n:], nil
}
