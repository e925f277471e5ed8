package vault

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/alucardeht/memvault/internal/index"
)

const (
	summaryMaxChars = 4000
	csvSummaryLines = 100
)

// inferCategory maps a file extension onto a record category.
func inferCategory(path string) index.Category {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return index.CategoryPaper
	case ".docx", ".doc", ".md":
		return index.CategoryProposal
	case ".csv", ".xlsx", ".xls", ".json":
		return index.CategoryData
	case ".png", ".jpg", ".jpeg":
		return index.CategoryImage
	default:
		return index.CategoryOther
	}
}

// readSummary returns the leading text of text files, decoding UTF-16 when a
// byte order mark says so, and a placeholder for anything binary.
func readSummary(path string) string {
	name := filepath.Base(path)
	ext := strings.ToLower(filepath.Ext(path))

	switch ext {
	case ".txt", ".md", ".json", ".csv":
	default:
		return fmt.Sprintf("[Binary/structured file: %s, type=%s]", name, ext)
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Sprintf("[File not found: %s]", name)
		}
		return fmt.Sprintf("[Read error for %s: %v]", name, err)
	}
	defer f.Close()

	r := transform.NewReader(f, unicode.BOMOverride(unicode.UTF8.NewDecoder()))

	var text string
	if ext == ".csv" {
		text, err = readLines(r, csvSummaryLines)
	} else {
		var data []byte
		// 4 bytes per rune bounds the read to what truncation keeps
		data, err = io.ReadAll(io.LimitReader(r, summaryMaxChars*4))
		text = string(data)
	}
	if err != nil {
		return fmt.Sprintf("[Read error for %s: %v]", name, err)
	}

	return truncateRunes(text, summaryMaxChars)
}

func readLines(r io.Reader, n int) (string, error) {
	br := bufio.NewReader(r)
	var sb strings.Builder
	for i := 0; i < n; i++ {
		line, err := br.ReadString('\n')
		sb.WriteString(line)
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
		if sb.Len() > summaryMaxChars*4 {
			break
		}
	}
	return sb.String(), nil
}
