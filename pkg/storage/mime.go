package storage

import (
	"bufio"
	"io"

	"github.com/gabriel-vasile/mimetype"
)

// sniffLen is how many leading bytes are inspected.
const sniffLen = 3072

// MIMEOctetStream is reported when nothing better is known.
const MIMEOctetStream = "application/octet-stream"

func init() {
	mimetype.SetLimit(sniffLen)
}

// Sniff detects the content type of r from its leading bytes and returns a
// reader that still yields the full stream.
func Sniff(r io.Reader) (string, io.Reader) {
	br := bufio.NewReaderSize(r, sniffLen)
	head, _ := br.Peek(sniffLen)
	if len(head) == 0 {
		return MIMEOctetStream, br
	}
	return mimetype.Detect(head).String(), br
}

// Extension returns the preferred extension (with dot) for a content type.
func Extension(contentType string) string {
	if m := mimetype.Lookup(contentType); m != nil {
		return m.Extension()
	}
	return ""
}
