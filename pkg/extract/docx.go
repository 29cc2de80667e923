package extract

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

var errNoDocumentXML = errors.New("word/document.xml not found")

// readDocx pulls the text out of word/document.xml in document order.
func readDocx(data []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open docx archive: %w", err)
	}

	for _, f := range zr.File {
		if f.Name != "word/document.xml" {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return "", fmt.Errorf("open word/document.xml: %w", err)
		}
		text, err := parseDocumentXML(rc)
		rc.Close()
		return text, err
	}
	return "", errNoDocumentXML
}

// parseDocumentXML walks the XML tokens instead of unmarshalling into a fixed
// tree, so runs nested in hyperlinks, insertions, smart tags and content
// controls are kept, and tables stay where they appear.
//
// Paragraphs end with a newline. Inside a table, paragraphs of one cell are
// joined with a space, cells with a tab and rows with a newline. w:delText
// and w:instrText are not w:t and are skipped.
func parseDocumentXML(r io.Reader) (string, error) {
	var (
		out       bytes.Buffer
		inText    bool
		cellDepth int
		tabsDepth int // w:tabs in paragraph properties holds tab stops, not tabs
	)

	dec := xml.NewDecoder(r)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("parse word/document.xml: %w", err)
		}

		switch el := tok.(type) {
		case xml.StartElement:
			switch el.Name.Local {
			case "t":
				inText = true
			case "tab":
				if tabsDepth == 0 {
					out.WriteByte('\t')
				}
			case "br", "cr":
				out.WriteByte('\n')
			case "tabs":
				tabsDepth++
			case "tc":
				cellDepth++
			}
		case xml.EndElement:
			switch el.Name.Local {
			case "t":
				inText = false
			case "tabs":
				tabsDepth--
			case "p":
				if cellDepth > 0 {
					out.WriteByte(' ')
				} else {
					out.WriteByte('\n')
				}
			case "tc":
				cellDepth--
				trimTrailing(&out, " ")
				out.WriteByte('\t')
			case "tr":
				trimTrailing(&out, "\t")
				out.WriteByte('\n')
			}
		case xml.CharData:
			if inText {
				out.Write(el)
			}
		}
	}
	return strings.TrimSpace(out.String()), nil
}

func trimTrailing(buf *bytes.Buffer, cutset string) {
	b := buf.Bytes()
	n := len(bytes.TrimRight(b, cutset))
	buf.Truncate(n)
}
