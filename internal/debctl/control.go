// Package debctl parses the control metadata out of .deb archives.
//
// A .deb file is an ar archive containing debian-binary, control.tar(.gz|.xz),
// and data.tar(.gz|.xz) members. This package extracts the control paragraph
// from the control member and returns it as an ordered sequence of fields,
// never as a map, so that callers (the renderer in particular) can reproduce
// the exact field order the control file was written in.
package debctl

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/blakesmith/ar"
)

// Field is one "Key: Value" line of a control paragraph.
type Field struct {
	Key   string
	Value string
}

// Paragraph is an ordered sequence of control fields, preserving the order
// fields appeared in the source control file.
type Paragraph []Field

// Get returns the value of the first field matching key (case-sensitive),
// and whether it was found.
func (p Paragraph) Get(key string) (string, bool) {
	for _, f := range p {
		if f.Key == key {
			return f.Value, true
		}
	}
	return "", false
}

// ErrControlNotFound is returned when a .deb archive has no control member,
// or a control.tar has no control file within it.
var ErrControlNotFound = fmt.Errorf("control file not found in archive")

// ErrNotADebArchive is returned when the input is not a recognizable ar
// archive, or is missing required members.
var ErrNotADebArchive = fmt.Errorf("not a debian binary package")

// ExtractControl parses a .deb file's bytes and returns its control
// paragraph, in the order fields appear in the control file.
func ExtractControl(data []byte) (Paragraph, error) {
	r := bytes.NewReader(data)
	arR := ar.NewReader(r)

	sawBinary := false
	sawData := false
	var paragraph Paragraph

	for {
		header, err := arR.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrNotADebArchive, err)
		}

		name := strings.TrimRight(header.Name, "/")
		switch {
		case name == "debian-binary":
			sawBinary = true
		case name == "data.tar" || strings.HasPrefix(name, "data.tar."):
			sawData = true
		case name == "control.tar" || strings.HasPrefix(name, "control.tar."):
			body := make([]byte, header.Size)
			if _, err := io.ReadFull(arR, body); err != nil {
				return nil, fmt.Errorf("reading control member: %w", err)
			}
			paragraph, err = extractControlFromTar(name, body)
			if err != nil {
				return nil, err
			}
		}
	}

	if !sawBinary || !sawData || paragraph == nil {
		return nil, ErrNotADebArchive
	}
	return paragraph, nil
}

func extractControlFromTar(memberName string, body []byte) (Paragraph, error) {
	var tr *tar.Reader
	if strings.HasSuffix(memberName, ".gz") {
		gzr, err := gzip.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("opening control.tar.gz: %w", err)
		}
		defer gzr.Close()
		tr = tar.NewReader(gzr)
	} else if strings.HasSuffix(memberName, ".xz") {
		return nil, fmt.Errorf("%w: xz-compressed control members are not supported", ErrNotADebArchive)
	} else {
		tr = tar.NewReader(bytes.NewReader(body))
	}

	for {
		th, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading control.tar: %w", err)
		}
		if filepath.Base(th.Name) != "control" {
			continue
		}
		var buf bytes.Buffer
		if _, err := io.Copy(&buf, tr); err != nil {
			return nil, fmt.Errorf("reading control file: %w", err)
		}
		return ParseControlFile(buf.String())
	}
	return nil, ErrControlNotFound
}

// ParseControlFile parses raw RFC 2822-style control text into an ordered
// Paragraph. Continuation lines (starting with a space or tab) are appended
// to the previous field's value with their leading whitespace preserved,
// matching the Debian control file folding rules.
func ParseControlFile(content string) (Paragraph, error) {
	var paragraph Paragraph
	lines := strings.Split(strings.TrimRight(content, "\n"), "\n")
	for _, line := range lines {
		if line == "" {
			continue
		}
		if line[0] == ' ' || line[0] == '\t' {
			if len(paragraph) == 0 {
				return nil, fmt.Errorf("control file: continuation line before any field: %q", line)
			}
			last := &paragraph[len(paragraph)-1]
			last.Value += "\n" + line
			continue
		}
		idx := strings.IndexByte(line, ':')
		if idx < 0 {
			return nil, fmt.Errorf("control file: malformed line: %q", line)
		}
		key := line[:idx]
		value := strings.TrimSpace(line[idx+1:])
		paragraph = append(paragraph, Field{Key: key, Value: value})
	}
	if len(paragraph) == 0 {
		return nil, fmt.Errorf("control file: empty paragraph")
	}
	return paragraph, nil
}
