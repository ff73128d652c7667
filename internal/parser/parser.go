package parser

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html"
	"io"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
	"github.com/rs/zerolog/log"
	"github.com/tealeg/xlsx"
	"github.com/xuri/excelize/v2"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/text"
)

var (
	ErrNoDocuments       = errors.New("no documents uploaded")
	ErrUnreadable        = errors.New("unreadable document")
	ErrUnsupportedFormat = errors.New("unsupported file format")
)

// Source is an uploaded document. Open is called once and the reader is
// always closed by the parser.
type Source interface {
	Name() string
	Open() (io.ReadCloser, error)
}

// FileSource is a document on the local filesystem.
type FileSource string

func (f FileSource) Name() string                 { return filepath.Base(string(f)) }
func (f FileSource) Open() (io.ReadCloser, error) { return os.Open(string(f)) }

// BytesSource is a document already held in memory.
type BytesSource struct {
	Filename string
	Data     []byte
}

func (b BytesSource) Name() string { return b.Filename }
func (b BytesSource) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(b.Data)), nil
}

// Extractor returns the text of each page (or sheet, or section) of a
// document, in order.
type Extractor func(data []byte) ([]string, error)

type Result struct {
	Text      string
	Documents int
	Pages     int
}

type Parser struct {
	extractors map[string]Extractor
}

func New() *Parser {
	return &Parser{extractors: map[string]Extractor{
		".pdf":  parsePDF,
		".docx": parseDOCX,
		".xlsx": parseXLSX,
		".xlsm": parseXLSM,
		".pptx": parsePPTX,
		".ods":  parseODS,
		".md":   parseMarkdown,
		".txt":  parseText,
	}}
}

// Register sets the extractor for a file extension such as ".pdf".
func (p *Parser) Register(ext string, fn Extractor) {
	p.extractors[strings.ToLower(ext)] = fn
}

// ExtractText concatenates the text of every present source. Nil entries
// are skipped. The first document that cannot be read fails the batch.
func (p *Parser) ExtractText(ctx context.Context, sources []Source) (Result, error) {
	var (
		res Result
		buf strings.Builder
	)
	for _, src := range sources {
		if src == nil {
			continue
		}
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		pages, err := p.extract(src)
		if err != nil {
			return Result{}, err
		}
		for _, page := range pages {
			buf.WriteString(page)
		}
		res.Documents++
		res.Pages += len(pages)
		log.Debug().Str("document", src.Name()).Int("pages", len(pages)).Msg("Extracted document")
	}
	if res.Documents == 0 {
		return Result{}, ErrNoDocuments
	}
	res.Text = buf.String()
	return res, nil
}

func (p *Parser) extract(src Source) (pages []string, err error) {
	name := src.Name()
	ext := strings.ToLower(filepath.Ext(name))
	fn, ok := p.extractors[ext]
	if !ok {
		return nil, fmt.Errorf("%w: %s (%q)", ErrUnsupportedFormat, name, ext)
	}

	rc, err := src.Open()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnreadable, name, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnreadable, name, err)
	}

	// some of the format libraries panic on malformed input
	defer func() {
		if r := recover(); r != nil {
			pages, err = nil, fmt.Errorf("%w: %s: %v", ErrUnreadable, name, r)
		}
	}()
	pages, err = fn(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnreadable, name, err)
	}
	return pages, nil
}

// parsePDF returns one string per page with a line break wherever the
// baseline moves. Every page but the last ends with a line break.
func parsePDF(data []byte) ([]string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, err
	}

	var pages []string
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		pages = append(pages, pageLines(page.Content().Text))
	}
	for i := 0; i < len(pages)-1; i++ {
		if !strings.HasSuffix(pages[i], "\n") {
			pages[i] += "\n"
		}
	}
	return pages, nil
}

// pageLines rebuilds the lines of a page from its positioned glyphs, in
// content stream order.
func pageLines(glyphs []pdf.Text) string {
	var (
		b       strings.Builder
		started bool
		prev    pdf.Text
	)
	for _, g := range glyphs {
		// TJ arrays end with a synthetic "\n" glyph that is not a line break
		if g.S == "\n" || g.S == "" {
			continue
		}
		if started {
			switch {
			case math.Abs(g.Y-prev.Y) > max(prev.FontSize, g.FontSize)/2:
				b.WriteString("\n")
			case prev.W > 0 && g.X-(prev.X+prev.W) > g.FontSize*0.2 && prev.S != " " && g.S != " ":
				b.WriteString(" ")
			}
		}
		b.WriteString(g.S)
		prev, started = g, true
	}
	return b.String()
}

var xmlTagRe = regexp.MustCompile(`<[^>]+>`)

func parseDOCX(data []byte) ([]string, error) {
	r, err := docx.ReadDocxFromMemory(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, err
	}
	defer r.Close()

	content := r.Editable().GetContent()
	var b strings.Builder
	for _, p := range strings.Split(content, "</w:p>") {
		line := strings.TrimSpace(html.UnescapeString(xmlTagRe.ReplaceAllString(p, "")))
		if line == "" {
			continue
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	return []string{b.String()}, nil
}

func parseXLSX(data []byte) ([]string, error) {
	f, err := xlsx.OpenBinary(data)
	if err != nil {
		return nil, err
	}

	var sheets []string
	for _, sheet := range f.Sheets {
		var b strings.Builder
		b.WriteString(fmt.Sprintf("## Sheet: %s\n", sheet.Name))
		for _, row := range sheet.Rows {
			for _, cell := range row.Cells {
				b.WriteString(cell.String() + "\t")
			}
			b.WriteString("\n")
		}
		sheets = append(sheets, b.String())
	}
	return sheets, nil
}

func parseXLSM(data []byte) ([]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var sheets []string
	for _, sheetName := range f.GetSheetList() {
		rows, err := f.GetRows(sheetName)
		if err != nil {
			return nil, fmt.Errorf("sheet %s: %w", sheetName, err)
		}
		var b strings.Builder
		b.WriteString(fmt.Sprintf("## Sheet: %s\n", sheetName))
		for _, row := range rows {
			for _, cell := range row {
				b.WriteString(cell + "\t")
			}
			b.WriteString("\n")
		}
		sheets = append(sheets, b.String())
	}
	return sheets, nil
}

// parseMarkdown keeps the text of a markdown document and drops its markup.
func parseMarkdown(data []byte) ([]string, error) {
	md := goldmark.New(goldmark.WithExtensions(extension.GFM))
	doc := md.Parser().Parse(text.NewReader(data))

	var b strings.Builder
	err := ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			if n.Type() == ast.TypeBlock && n.Kind() != ast.KindDocument && !strings.HasSuffix(b.String(), "\n") {
				b.WriteString("\n")
			}
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *ast.Text:
			b.Write(node.Segment.Value(data))
			if node.SoftLineBreak() || node.HardLineBreak() {
				b.WriteString("\n")
			}
		case *ast.String:
			b.Write(node.Value)
		case *ast.CodeBlock, *ast.FencedCodeBlock:
			lines := n.Lines()
			for i := 0; i < lines.Len(); i++ {
				seg := lines.At(i)
				b.Write(seg.Value(data))
			}
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return nil, err
	}
	return []string{b.String()}, nil
}

func parseText(data []byte) ([]string, error) {
	return []string{string(data)}, nil
}
