// FILE: siphon/src/internal/decode/framing.go
package decode

import (
	"bytes"
	"fmt"
	"strconv"
)

const maxRecordLength = 1 * 1024 * 1024 // 1MB max per framed record

// Framing selects how a payload is split into records before decoding.
type Framing uint8

const (
	// FramingWholeBody treats the entire payload as one record.
	FramingWholeBody Framing = iota
	// FramingNewline splits the payload on newlines, tolerating \r\n.
	FramingNewline
	// FramingOctetCount expects records of the form "<len> <payload>"
	// with an ASCII decimal length prefix.
	FramingOctetCount
)

func (f Framing) String() string {
	switch f {
	case FramingWholeBody:
		return "whole_body"
	case FramingNewline:
		return "newline"
	case FramingOctetCount:
		return "octet_count"
	default:
		return "unknown"
	}
}

// ParseFraming resolves a configuration string into a framing strategy.
// An empty string selects whole-body framing.
func ParseFraming(s string) (Framing, error) {
	switch s {
	case "", "whole_body":
		return FramingWholeBody, nil
	case "newline":
		return FramingNewline, nil
	case "octet_count":
		return FramingOctetCount, nil
	default:
		return 0, fmt.Errorf("unknown framing strategy: %q", s)
	}
}

// frame splits payload into records. A framing failure applies only to the
// unparsed tail; records framed before the failure are returned alongside
// the error.
func frame(payload []byte, framing Framing) ([][]byte, *Error) {
	switch framing {
	case FramingWholeBody:
		if len(payload) == 0 {
			return nil, nil
		}
		return [][]byte{payload}, nil

	case FramingNewline:
		var records [][]byte
		for _, line := range bytes.Split(payload, []byte{'\n'}) {
			line = bytes.TrimSuffix(line, []byte{'\r'})
			if len(line) == 0 {
				continue
			}
			records = append(records, line)
		}
		return records, nil

	case FramingOctetCount:
		var records [][]byte
		rest := payload
		for len(rest) > 0 {
			record, n, err := splitOctetFrame(rest)
			if err != nil {
				return records, err
			}
			records = append(records, record)
			rest = rest[n:]
		}
		return records, nil

	default:
		return nil, &Error{Reason: fmt.Sprintf("unsupported framing: %d", framing)}
	}
}

// splitOctetFrame parses one "<len> <payload>" record from the head of
// data, returning the record and the total bytes consumed.
func splitOctetFrame(data []byte) ([]byte, int, *Error) {
	sp := bytes.IndexByte(data, ' ')
	if sp <= 0 {
		return nil, 0, &Error{
			Reason:  "malformed length prefix: no length delimiter",
			Excerpt: excerpt(data),
		}
	}

	length, err := strconv.Atoi(string(data[:sp]))
	if err != nil || length < 0 {
		return nil, 0, &Error{
			Reason:  fmt.Sprintf("malformed length prefix: %q", data[:sp]),
			Excerpt: excerpt(data),
		}
	}
	if length > maxRecordLength {
		return nil, 0, &Error{
			Reason:  fmt.Sprintf("record length %d exceeds limit %d", length, maxRecordLength),
			Excerpt: excerpt(data),
		}
	}

	start := sp + 1
	if start+length > len(data) {
		return nil, 0, &Error{
			Reason:  fmt.Sprintf("truncated record: declared %d bytes, %d available", length, len(data)-start),
			Excerpt: excerpt(data),
		}
	}

	return data[start : start+length], start + length, nil
}

// ExtractRecords consumes complete records from a connection buffer,
// leaving any trailing partial record in place. A nil error with zero
// records means more data is needed.
func ExtractRecords(buf *bytes.Buffer, framing Framing) ([][]byte, *Error) {
	switch framing {
	case FramingNewline:
		var records [][]byte
		for {
			data := buf.Bytes()
			idx := bytes.IndexByte(data, '\n')
			if idx < 0 {
				if buf.Len() > maxRecordLength {
					return records, &Error{Reason: fmt.Sprintf("record exceeds %d bytes without newline", maxRecordLength)}
				}
				return records, nil
			}
			line := make([]byte, idx)
			copy(line, data[:idx])
			buf.Next(idx + 1)
			line = bytes.TrimSuffix(line, []byte{'\r'})
			if len(line) == 0 {
				continue
			}
			records = append(records, line)
		}

	case FramingOctetCount:
		var records [][]byte
		for buf.Len() > 0 {
			data := buf.Bytes()
			record, n, err := splitOctetFrame(data)
			if err != nil {
				// A truncated record means more data may arrive; a bad
				// prefix never recovers.
				if isTruncated(data) {
					return records, nil
				}
				return records, err
			}
			rec := make([]byte, len(record))
			copy(rec, record)
			records = append(records, rec)
			buf.Next(n)
		}
		return records, nil

	default:
		return nil, &Error{Reason: fmt.Sprintf("framing %s not usable on a byte stream", framing)}
	}
}

// isTruncated reports whether data starts with a valid length prefix whose
// payload has not fully arrived yet.
func isTruncated(data []byte) bool {
	sp := bytes.IndexByte(data, ' ')
	if sp <= 0 {
		// No delimiter yet; still truncated unless the prefix is hopeless.
		return len(data) <= 20 && allDigits(data)
	}
	length, err := strconv.Atoi(string(data[:sp]))
	if err != nil || length < 0 || length > maxRecordLength {
		return false
	}
	return sp+1+length > len(data)
}

func allDigits(data []byte) bool {
	for _, b := range data {
		if b < '0' || b > '9' {
			return false
		}
	}
	return true
}
