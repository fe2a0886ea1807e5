package extract

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/lu4p/cat"
)

// docxDocumentXMLPath is the default path to the main document body inside a .docx zip.
const docxDocumentXMLPath = "word/document.xml"

// contentTypesPath is the path to [Content_Types].xml in OOXML packages.
const contentTypesPath = "[Content_Types].xml"

const docxMainContentType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"

var (
	errEmptyDocx = errors.New("DOCX parser returned no text")
	errNotZip    = errors.New("DOCX content is not a zip container")

	zipMagic = []byte("PK\x03\x04")

	partNameRe  = regexp.MustCompile(`<Override[^>]+PartName="([^"]+)"[^>]+ContentType="` + regexp.QuoteMeta(docxMainContentType) + `"`)
	partNameRe2 = regexp.MustCompile(`<Override[^>]+ContentType="` + regexp.QuoteMeta(docxMainContentType) + `"[^>]+PartName="([^"]+)"`)

	trailingSpaceRe = regexp.MustCompile(`[ \t]+\n`)
	blankLinesRe    = regexp.MustCompile(`\n{3,}`)
	whitespaceRe    = regexp.MustCompile(`\s+`)
)

// Chain tries each extractor in order and returns the first success.
// When all fail, the last error is returned.
type Chain []Extractor

// Extract implements Extractor.
func (c Chain) Extract(data []byte) (string, error) {
	lastErr := errors.New("no extractor configured")
	for _, e := range c {
		text, err := safeExtract(e, data)
		if err == nil {
			return text, nil
		}
		lastErr = err
	}
	return "", lastErr
}

// NewDocxExtractor returns the rich-text parser with the raw XML walk as fallback.
func NewDocxExtractor() Chain {
	return Chain{
		ExtractorFunc(extractDocxRich),
		ExtractorFunc(extractDocxXML),
	}
}

// extractDocxRich uses lu4p/cat and normalises its line structure.
func extractDocxRich(content []byte) (string, error) {
	if !bytes.HasPrefix(content, zipMagic) {
		return "", errNotZip
	}
	text, err := cat.FromBytes(content)
	if err != nil {
		return "", fmt.Errorf("rich DOCX parser: %w", err)
	}
	cleaned := normalizeDocxText(text)
	if cleaned == "" {
		return "", errEmptyDocx
	}
	return cleaned, nil
}

func normalizeDocxText(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = trailingSpaceRe.ReplaceAllString(text, "\n")
	text = blankLinesRe.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

// extractDocxXML unzips the container and walks paragraph and run nodes of the main document.
func extractDocxXML(content []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("extract DOCX: not a zip: %w", err)
	}

	docPath := findDocxMainDocumentPath(zr)
	if docPath == "" {
		docPath = docxDocumentXMLPath
	}

	docXML, err := readZipFile(zr, docPath)
	if err != nil {
		return "", err
	}

	paragraphs, err := docxParagraphs(docXML)
	if err != nil {
		return "", fmt.Errorf("extract DOCX: parse %s: %w", docPath, err)
	}
	text := strings.TrimSpace(strings.Join(paragraphs, "\n"))
	if text == "" {
		return "", errEmptyDocx
	}
	return text, nil
}

// docxParagraphs returns the trimmed text of each non-empty <w:p>, concatenating its <w:t> runs.
func docxParagraphs(docXML []byte) ([]string, error) {
	dec := xml.NewDecoder(bytes.NewReader(docXML))

	var (
		paragraphs []string
		current    strings.Builder
		inText     bool
		depth      int
	)
	flush := func() {
		line := strings.TrimSpace(whitespaceRe.ReplaceAllString(current.String(), " "))
		if line != "" {
			paragraphs = append(paragraphs, line)
		}
		current.Reset()
	}

	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "p":
				if depth == 0 {
					current.Reset()
				}
				depth++
			case "t":
				inText = true
			case "tab", "br":
				current.WriteByte(' ')
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "p":
				if depth > 0 {
					depth--
				}
				if depth == 0 {
					flush()
				}
			case "t":
				inText = false
			}
		case xml.CharData:
			if inText {
				current.Write(t)
			}
		}
	}
	return paragraphs, nil
}

// findDocxMainDocumentPath finds the main document path from [Content_Types].xml.
// Returns the path without leading slash, or empty string if not found.
func findDocxMainDocumentPath(zr *zip.Reader) string {
	content, err := readZipFile(zr, contentTypesPath)
	if err != nil {
		return ""
	}
	if matches := partNameRe.FindSubmatch(content); len(matches) > 1 {
		return strings.TrimPrefix(string(matches[1]), "/")
	}
	if matches := partNameRe2.FindSubmatch(content); len(matches) > 1 {
		return strings.TrimPrefix(string(matches[1]), "/")
	}
	return ""
}

func readZipFile(zr *zip.Reader, name string) ([]byte, error) {
	for _, f := range zr.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("extract DOCX: open %s: %w", name, err)
		}
		defer rc.Close()
		var buf bytes.Buffer
		if _, err := buf.ReadFrom(rc); err != nil {
			return nil, fmt.Errorf("extract DOCX: read %s: %w", name, err)
		}
		return buf.Bytes(), nil
	}
	return nil, fmt.Errorf("extract DOCX: %s not found", name)
}
