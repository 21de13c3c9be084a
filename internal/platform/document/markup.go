package document

import (
	"bufio"
	"bytes"
	"strings"
)

// BlockKind identifies a parsed markup element.
type BlockKind int

const (
	BlockHeading BlockKind = iota
	BlockParagraph
	BlockTable
)

// Block is one element of the report markup.
type Block struct {
	Kind  BlockKind
	Level int
	Text  string
	// Header and Rows are set for tables.
	Header []string
	Rows   [][]string
}

// ParseMarkup reads the subset of markdown the report template emits:
// "#" headings, paragraphs separated by blank lines, and pipe tables whose
// second line is a "---" separator. A backslash before a leading "#" or "|"
// keeps the line as paragraph text.
func ParseMarkup(src []byte) []Block {
	var blocks []Block
	var para []string
	var table *Block

	flushPara := func() {
		if len(para) > 0 {
			blocks = append(blocks, Block{Kind: BlockParagraph, Text: strings.Join(para, " ")})
			para = nil
		}
	}
	flushTable := func() {
		if table != nil {
			blocks = append(blocks, *table)
			table = nil
		}
	}

	sc := bufio.NewScanner(bytes.NewReader(src))
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())

		switch {
		case strings.HasPrefix(line, `\#`) || strings.HasPrefix(line, `\|`):
			flushTable()
			para = append(para, line[1:])
		case strings.HasPrefix(line, "|"):
			flushPara()
			cells := splitRow(line)
			if table == nil {
				table = &Block{Kind: BlockTable, Header: cells}
				continue
			}
			if isSeparator(cells) {
				continue
			}
			table.Rows = append(table.Rows, cells)
		case line == "":
			flushPara()
			flushTable()
		case strings.HasPrefix(line, "#"):
			flushPara()
			flushTable()
			level := len(line) - len(strings.TrimLeft(line, "#"))
			blocks = append(blocks, Block{Kind: BlockHeading, Level: level, Text: strings.TrimSpace(line[level:])})
		default:
			flushTable()
			para = append(para, line)
		}
	}
	flushPara()
	flushTable()
	return blocks
}

// splitRow splits "| a | b \| c |" into ["a", "b | c"].
func splitRow(line string) []string {
	line = strings.TrimSpace(line)
	line = strings.TrimPrefix(line, "|")
	if strings.HasSuffix(line, "|") && !strings.HasSuffix(line, `\|`) {
		line = line[:len(line)-1]
	}

	var cells []string
	var cur strings.Builder
	for i := 0; i < len(line); i++ {
		switch {
		case line[i] == '\\' && i+1 < len(line) && line[i+1] == '|':
			cur.WriteByte('|')
			i++
		case line[i] == '|':
			cells = append(cells, strings.TrimSpace(cur.String()))
			cur.Reset()
		default:
			cur.WriteByte(line[i])
		}
	}
	return append(cells, strings.TrimSpace(cur.String()))
}

func isSeparator(cells []string) bool {
	for _, c := range cells {
		if strings.Trim(c, "-: ") != "" || !strings.Contains(c, "-") {
			return false
		}
	}
	return len(cells) > 0
}

// EscapeText keeps free text from being read as markup: a line starting
// with "#" or "|" gets a backslash so it stays part of a paragraph.
func EscapeText(s string) string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		trimmed := strings.TrimSpace(l)
		if strings.HasPrefix(trimmed, "#") || strings.HasPrefix(trimmed, "|") {
			lines[i] = `\` + trimmed
		}
	}
	return strings.Join(lines, "\n")
}
