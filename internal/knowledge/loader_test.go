package knowledge

import (
	"archive/zip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name string, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func writeDOCX(t *testing.T, documentXML string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "doc.docx")
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	w, err := zw.Create("word/document.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte(documentXML))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
	return path
}

func TestLoad_CSVRowsBecomePages(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "people.csv", "\ufeffname,age\nalice, 30\nbob,41,extra\n")
	pages, err := Load(path, "csv")
	require.NoError(t, err)
	require.Equal(t, []Page{
		{Content: "name: alice\nage: 30"},
		{Content: "name: bob\nage: 41\ncolumn_2: extra"},
	}, pages)
}

func TestLoad_TextTrimsBOM(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "notes.txt", "\ufeffline one\nline two")
	pages, err := Load(path, ".TXT")
	require.NoError(t, err)
	require.Equal(t, []Page{{Content: "line one\nline two"}}, pages)
}

func TestLoad_DOCXParagraphs(t *testing.T) {
	t.Parallel()

	path := writeDOCX(t, `<?xml version="1.0" encoding="UTF-8"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
<w:body>
<w:p><w:r><w:t>Quarterly</w:t></w:r><w:r><w:tab/><w:t>report</w:t></w:r></w:p>
<w:p><w:r><w:t>Revenue grew</w:t><w:br/><w:t>again</w:t></w:r></w:p>
</w:body>
</w:document>`)
	pages, err := Load(path, "docx")
	require.NoError(t, err)
	require.Len(t, pages, 1)
	require.Equal(t, "Quarterly\treport\nRevenue grew\nagain\n", pages[0].Content)
	require.Equal(t, 0, pages[0].Page)
}

func TestLoad_DOCXWithoutDocumentPart(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "empty.docx")
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	_, err = zw.Create("other.xml")
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())

	_, err = Load(path, "docx")
	require.ErrorContains(t, err, "word/document.xml")
}

func TestLoad_UnsupportedType(t *testing.T) {
	t.Parallel()

	_, err := Load("whatever.xlsx", "xlsx")
	require.ErrorIs(t, err, ErrUnsupportedFileType)
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "nope.txt"), "txt")
	require.Error(t, err)
}
