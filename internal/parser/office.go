package parser

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

const (
	drawingMLNS = "http://schemas.openxmlformats.org/drawingml/2006/main"
	odfTableNS  = "urn:oasis:names:tc:opendocument:xmlns:table:1.0"
	odfTextNS   = "urn:oasis:names:tc:opendocument:xmlns:text:1.0"
)

var slideNameRe = regexp.MustCompile(`^ppt/slides/slide(\d+)\.xml$`)

// parsePPTX returns the text of each slide in slide order, one line per
// paragraph.
func parsePPTX(data []byte) ([]string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, err
	}

	type slide struct {
		num  int
		file *zip.File
	}
	var slides []slide
	for _, f := range zr.File {
		m := slideNameRe.FindStringSubmatch(f.Name)
		if m == nil {
			continue
		}
		num, _ := strconv.Atoi(m[1])
		slides = append(slides, slide{num, f})
	}
	if len(slides) == 0 {
		return nil, fmt.Errorf("no slides found")
	}
	sort.Slice(slides, func(i, j int) bool { return slides[i].num < slides[j].num })

	pages := make([]string, 0, len(slides))
	for _, s := range slides {
		text, err := slideText(s.file)
		if err != nil {
			return nil, fmt.Errorf("slide %d: %w", s.num, err)
		}
		pages = append(pages, text)
	}
	return pages, nil
}

func slideText(f *zip.File) (string, error) {
	rc, err := f.Open()
	if err != nil {
		return "", err
	}
	defer rc.Close()

	var (
		b      strings.Builder
		inText bool
		line   strings.Builder
	)
	dec := xml.NewDecoder(rc)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
		switch el := tok.(type) {
		case xml.StartElement:
			if el.Name.Space == drawingMLNS && el.Name.Local == "t" {
				inText = true
			}
		case xml.EndElement:
			if el.Name.Space != drawingMLNS {
				continue
			}
			switch el.Name.Local {
			case "t":
				inText = false
			case "p":
				if s := strings.TrimSpace(line.String()); s != "" {
					b.WriteString(s)
					b.WriteString("\n")
				}
				line.Reset()
			}
		case xml.CharData:
			if inText {
				line.Write(el)
			}
		}
	}
	return b.String(), nil
}

// parseODS reads an OpenDocument spreadsheet and returns one block per
// sheet in the same layout as the Excel extractors.
func parseODS(data []byte) ([]string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, err
	}
	var content *zip.File
	for _, f := range zr.File {
		if f.Name == "content.xml" {
			content = f
			break
		}
	}
	if content == nil {
		return nil, fmt.Errorf("content.xml not found")
	}

	rc, err := content.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return odsSheets(xml.NewDecoder(rc))
}

func odsSheets(dec *xml.Decoder) ([]string, error) {
	var (
		sheets  []string
		sheet   strings.Builder
		row     []string
		cell    strings.Builder
		rowRep  int
		cellRep int
		inCell  bool
		inPara  bool
		paras   int
	)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		switch el := tok.(type) {
		case xml.StartElement:
			switch {
			case el.Name.Space == odfTableNS && el.Name.Local == "table":
				sheet.Reset()
				fmt.Fprintf(&sheet, "## Sheet: %s\n", attr(el, "name"))
			case el.Name.Space == odfTableNS && el.Name.Local == "table-row":
				row = row[:0]
				rowRep = repeat(el, "number-rows-repeated")
			case el.Name.Space == odfTableNS && (el.Name.Local == "table-cell" || el.Name.Local == "covered-table-cell"):
				cell.Reset()
				cellRep = repeat(el, "number-columns-repeated")
				inCell, paras = true, 0
			case el.Name.Space == odfTextNS && el.Name.Local == "p" && inCell:
				if paras > 0 {
					cell.WriteString(" ")
				}
				paras++
				inPara = true
			case el.Name.Space == odfTextNS && el.Name.Local == "s" && inPara:
				cell.WriteString(" ")
			}
		case xml.EndElement:
			if el.Name.Space == odfTextNS && el.Name.Local == "p" {
				inPara = false
				continue
			}
			if el.Name.Space != odfTableNS {
				continue
			}
			switch el.Name.Local {
			case "table-cell", "covered-table-cell":
				inCell = false
				v := cell.String()
				// trailing filler cells are stored as one huge repeated run
				if v == "" {
					cellRep = 1
				}
				for i := 0; i < cellRep; i++ {
					row = append(row, v)
				}
			case "table-row":
				if strings.TrimSpace(strings.Join(row, "")) == "" {
					continue
				}
				for i := 0; i < rowRep; i++ {
					for _, v := range row {
						sheet.WriteString(v + "\t")
					}
					sheet.WriteString("\n")
				}
			case "table":
				sheets = append(sheets, sheet.String())
			}
		case xml.CharData:
			if inPara {
				cell.Write(el)
			}
		}
	}
	if len(sheets) == 0 {
		return nil, fmt.Errorf("no sheets found")
	}
	return sheets, nil
}

func attr(el xml.StartElement, local string) string {
	for _, a := range el.Attr {
		if a.Name.Local == local {
			return a.Value
		}
	}
	return ""
}

func repeat(el xml.StartElement, local string) int {
	n, err := strconv.Atoi(attr(el, local))
	if err != nil || n < 1 {
		return 1
	}
	return n
}
