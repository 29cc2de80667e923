package extract

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"docchat-go/internal/apperr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTika struct {
	text      string
	pages     []string
	err       error
	textCalls int
	pageCalls int
}

func (f *fakeTika) ExtractText(_ context.Context, r io.Reader, _ string) (string, error) {
	f.textCalls++
	_, _ = io.ReadAll(r)
	return f.text, f.err
}

func (f *fakeTika) ExtractPages(_ context.Context, _ []byte, _ string) ([]string, error) {
	f.pageCalls++
	return f.pages, f.err
}

// buildDOCX creates a minimal DOCX file in memory.
func buildDOCX(t *testing.T, documentXML string) []byte {
	t.Helper()
	buf := new(bytes.Buffer)
	w := zip.NewWriter(buf)
	ct, err := w.Create("[Content_Types].xml")
	require.NoError(t, err)
	_, _ = ct.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?><Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types"/>`))
	doc, err := w.Create("word/document.xml")
	require.NoError(t, err)
	_, _ = doc.Write([]byte(documentXML))
	require.NoError(t, w.Close())
	return buf.Bytes()
}

const sampleDocumentXML = `<?xml version="1.0" encoding="UTF-8"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
<w:body>
<w:p><w:r><w:t>Quarterly report</w:t></w:r></w:p>
<w:p><w:r><w:t xml:space="preserve">Revenue grew </w:t></w:r><w:r><w:t>12%.</w:t></w:r></w:p>
<w:tbl><w:tr><w:tc><w:p><w:r><w:t>Q1</w:t></w:r></w:p></w:tc><w:tc><w:p><w:r><w:t>100</w:t></w:r></w:p></w:tc></w:tr></w:tbl>
</w:body>
</w:document>`

func TestExtract_PlainText(t *testing.T) {
	e := New(nil, 0)
	doc, err := e.Extract(context.Background(), []byte("  hello\nworld  "), "Notes.TXT")
	require.NoError(t, err)
	assert.Equal(t, "  hello\nworld  ", doc.Text)
	assert.Equal(t, "Notes.TXT", doc.FileName)
	assert.Equal(t, "txt", doc.FileType)
}

func TestExtract_PlainTextInvalidUTF8(t *testing.T) {
	e := New(nil, 0)
	_, err := e.Extract(context.Background(), []byte{0xff, 0xfe, 0x00}, "bad.txt")
	require.Error(t, err)
	assert.Equal(t, apperr.ExtractionFailed, apperr.KindOf(err))
}

func TestExtract_Unsupported(t *testing.T) {
	e := New(nil, 0)
	_, err := e.Extract(context.Background(), []byte("a,b"), "sheet.csv")
	require.Error(t, err)
	assert.Equal(t, apperr.UnsupportedFormat, apperr.KindOf(err))
	assert.Contains(t, err.Error(), "csv")
}

func TestExtract_Docx(t *testing.T) {
	e := New(nil, 0)
	doc, err := e.Extract(context.Background(), buildDOCX(t, sampleDocumentXML), "report.docx")
	require.NoError(t, err)
	assert.Equal(t, "Quarterly report\nRevenue grew 12%.\nQ1\t100", doc.Text)
	assert.Equal(t, "docx", doc.FileType)
}

const orderedDocumentXML = `<?xml version="1.0" encoding="UTF-8"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"
            xmlns:r="http://schemas.openxmlformats.org/officeDocument/2006/relationships">
<w:body>
<w:p><w:pPr><w:tabs><w:tab w:val="left" w:pos="720"/></w:tabs></w:pPr><w:r><w:t>Intro.</w:t></w:r></w:p>
<w:tbl><w:tr>
<w:tc><w:p><w:r><w:t>TABLE</w:t></w:r></w:p><w:p><w:r><w:t>cell</w:t></w:r></w:p></w:tc>
<w:tc><w:p><w:hyperlink r:id="rId7"><w:r><w:t>link</w:t></w:r></w:hyperlink></w:p></w:tc>
</w:tr></w:tbl>
<w:p><w:r><w:t xml:space="preserve">See </w:t></w:r><w:hyperlink r:id="rId5"><w:r><w:t>our pricing page</w:t></w:r></w:hyperlink><w:r><w:t xml:space="preserve"> for details.</w:t></w:r></w:p>
<w:p><w:ins w:id="1" w:author="a"><w:r><w:t>Inserted</w:t></w:r></w:ins><w:del w:id="2" w:author="a"><w:r><w:delText>Deleted</w:delText></w:r></w:del><w:r><w:tab/><w:t>after tab</w:t><w:br/><w:t>next line</w:t></w:r></w:p>
<w:sdt><w:sdtContent><w:p><w:smartTag w:element="place"><w:r><w:t>Berlin</w:t></w:r></w:smartTag></w:p></w:sdtContent></w:sdt>
</w:body>
</w:document>`

func TestExtract_DocxKeepsNestedRunsAndOrder(t *testing.T) {
	e := New(nil, 0)
	doc, err := e.Extract(context.Background(), buildDOCX(t, orderedDocumentXML), "pricing.docx")
	require.NoError(t, err)
	assert.Equal(t,
		"Intro.\nTABLE cell\tlink\nSee our pricing page for details.\nInserted\tafter tab\nnext line\nBerlin",
		doc.Text)
}

func TestExtract_DocxMalformedXML(t *testing.T) {
	e := New(nil, 0)
	_, err := e.Extract(context.Background(), buildDOCX(t, `<w:document><w:body><w:p>`), "broken.docx")
	require.Error(t, err)
	assert.Equal(t, apperr.ExtractionFailed, apperr.KindOf(err))
}

func TestExtract_DocFallsBackToTika(t *testing.T) {
	tika := &fakeTika{text: "  legacy word text \n"}
	e := New(tika, 0)

	doc, err := e.Extract(context.Background(), []byte("\xd0\xcf\x11\xe0 binary doc"), "old.doc")
	require.NoError(t, err)
	assert.Equal(t, "legacy word text", doc.Text)
	assert.Equal(t, 1, tika.textCalls)
}

func TestExtract_DocWithoutTikaFails(t *testing.T) {
	e := New(nil, 0)
	_, err := e.Extract(context.Background(), []byte("not a zip"), "old.doc")
	require.Error(t, err)
	assert.Equal(t, apperr.ExtractionFailed, apperr.KindOf(err))
	assert.Contains(t, err.Error(), "zip")
}

func TestExtract_DocTikaFailureWrapsBothCauses(t *testing.T) {
	tika := &fakeTika{err: errors.New("tika down")}
	e := New(tika, 0)
	_, err := e.Extract(context.Background(), []byte("not a zip"), "old.docx")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tika down")
	assert.Contains(t, err.Error(), "docx reader")
}

func TestExtract_MalformedPDFFallsBackToRenderedPages(t *testing.T) {
	tika := &fakeTika{pages: []string{"page one text", "page two text"}}
	e := New(tika, time.Second)

	doc, err := e.Extract(context.Background(), []byte("%PDF-1.7 this is not really a pdf"), "scan.pdf")
	require.NoError(t, err)
	assert.Equal(t, "page one text\npage two text", doc.Text)
	assert.Equal(t, "pdf", doc.FileType)
	assert.Equal(t, 1, tika.pageCalls)
}

func TestExtract_MalformedPDFAllStrategiesFail(t *testing.T) {
	e := New(nil, time.Second)
	_, err := e.Extract(context.Background(), []byte("garbage"), "broken.pdf")
	require.Error(t, err)
	assert.Equal(t, apperr.ExtractionFailed, apperr.KindOf(err))
	assert.Contains(t, err.Error(), "image-only, encrypted, or corrupted")
	assert.Contains(t, err.Error(), "tika server not configured")
}

func TestRunStrategies_Order(t *testing.T) {
	var calls []string
	strategy := func(name, text string, err error) Strategy {
		return Strategy{Name: name, Extract: func(context.Context, []byte) (string, error) {
			calls = append(calls, name)
			return text, err
		}}
	}

	text, err := runStrategies(context.Background(), nil, []Strategy{
		strategy("a", "", errors.New("a failed")),
		strategy("b", "   ", nil),
		strategy("c", " found ", nil),
		strategy("d", "never", nil),
	})
	require.NoError(t, err)
	assert.Equal(t, "found", text)
	assert.Equal(t, []string{"a", "b", "c"}, calls)
}

func TestRunStrategies_LastCauseReported(t *testing.T) {
	_, err := runStrategies(context.Background(), nil, []Strategy{
		{Name: "a", Extract: func(context.Context, []byte) (string, error) { return "", errors.New("first cause") }},
		{Name: "b", Extract: func(context.Context, []byte) (string, error) { panic("bad xref") }},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad xref")
	assert.Contains(t, err.Error(), "(b)")
	assert.NotContains(t, err.Error(), "first cause")
}

func TestRunStrategies_StopsWhenCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	_, err := runStrategies(ctx, nil, []Strategy{
		{Name: "a", Extract: func(context.Context, []byte) (string, error) { called = true; return "x", nil }},
	})
	require.Error(t, err)
	assert.False(t, called)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDecodeRun(t *testing.T) {
	assert.Equal(t, "a b", decodeRun("a%20b"))
	assert.Equal(t, "100%", decodeRun("100%"))
	assert.Equal(t, "plain+text", decodeRun("plain+text"))
}

func TestIsSupported(t *testing.T) {
	assert.True(t, IsSupported("a.PDF"))
	assert.True(t, IsSupported("b.docx"))
	assert.False(t, IsSupported("c.xlsx"))
	assert.False(t, IsSupported("noext"))
}
