package extract

import (
	"bytes"
	"context"
	"fmt"
	"html"
	"os"
	"regexp"
	"strings"

	"github.com/nguyenthenguyen/docx"
)

var (
	xmlTagRe = regexp.MustCompile(`<[^>]*>`)

	docxBreaks = strings.NewReplacer(
		"</w:p>", "\n",
		"<w:br/>", "\n",
		"<w:tab/>", "\t",
	)
)

func extractDOCX(_ context.Context, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}

	r, err := docx.ReadDocxFromMemory(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("failed to open docx: %w", err)
	}
	defer r.Close()

	return docxText(r.Editable().GetContent()), nil
}

// docxText converts the raw document.xml body into paragraph text.
func docxText(content string) string {
	content = docxBreaks.Replace(content)
	content = xmlTagRe.ReplaceAllString(content, "")
	return html.UnescapeString(content)
}
