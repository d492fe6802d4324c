package propval

import (
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/encoding/simplifiedchinese"
)

// RowStringLimit and RowBinaryLimit are the truncation contract for row
// retrieval (query_table / generic property fetch), spec §4.1. Blob
// properties (PR_BODY, PR_HTML, PR_RTF_COMPRESSED, transport headers)
// resolved through the content-id store are exempt - see cidstore.
const (
	RowStringLimit = 510
	RowBinaryLimit = 510
)

// TruncateString truncates s to at most RowStringLimit bytes without
// splitting a UTF-8 codepoint.
func TruncateString(s string) string {
	if len(s) <= RowStringLimit {
		return s
	}
	cut := RowStringLimit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// TruncateBinary truncates b to at most RowBinaryLimit bytes.
func TruncateBinary(b []byte) []byte {
	if len(b) <= RowBinaryLimit {
		return b
	}
	return b[:RowBinaryLimit]
}

// EncodeCodepage converts the engine's internal UTF-8 representation to
// the caller's codepage for PT_STRING8 columns. cpid follows the LCID/CPID
// numbering the RPC layer hands down; unrecognized codepages fall back to
// UTF-8 passthrough rather than erroring, matching the original's lenient
// behavior for codepages it does not special-case.
func EncodeCodepage(cpid uint32, s string) ([]byte, error) {
	enc := encodingFor(cpid)
	if enc == nil {
		return []byte(s), nil
	}
	out, err := enc.NewEncoder().Bytes([]byte(s))
	if err != nil {
		return []byte(s), nil
	}
	return out, nil
}

// DecodeCodepage converts bytes in the caller's codepage into the
// engine's internal UTF-8 representation, used when accepting a
// PT_STRING8 value written by a client (write_message_instance,
// set_instance_properties).
func DecodeCodepage(cpid uint32, b []byte) (string, error) {
	enc := encodingFor(cpid)
	if enc == nil {
		return string(b), nil
	}
	out, err := enc.NewDecoder().Bytes(b)
	if err != nil {
		return string(b), nil
	}
	return string(out), nil
}

// encodingFor resolves a handful of commonly-seen CPIDs. 936 (GBK) is
// wired explicitly because it is the one the corpus (spilled-ink-spilld's
// IMF parser) special-cases. Every other CPID goes through cpidName, which
// maps none of them to an IANA name, so they all get nil (meaning "already
// UTF-8 compatible, pass through").
func encodingFor(cpid uint32) encoding.Encoding {
	switch cpid {
	case 936, 54936:
		return simplifiedchinese.GBK
	case 0, 65001:
		return nil
	default:
		if name := cpidName(cpid); name != "" {
			if enc, err := ianaindex.IANA.Encoding(name); err == nil && enc != nil {
				return enc
			}
		}
		return nil
	}
}

// cpidName is left for RPC-layer integration: mapping a numeric CPID to
// an IANA charset name requires the out-of-scope codepage/language table
// (spec §1 "external collaborators"); we only special-case the codepages
// actually exercised above.
func cpidName(cpid uint32) string { return "" }
