package tabular

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Options 解析选项
type Options struct {
	// Delimiter 字段分隔符，默认逗号
	Delimiter rune
	// FieldMapping 将表头列名改写为规范字段名，未出现在映射中的列名保持不变
	FieldMapping map[string]string
	// Lenient 放宽引号校验，未配对的引号按普通字符处理
	Lenient bool
}

// Row 一行解析结果
type Row struct {
	Line   int              // 该行在源文本中的起始行号（从 1 开始）
	Fields map[string]Value // 规范字段名 -> 值
}

// Get 按字段名取值，不存在时返回空值
func (r Row) Get(name string) Value {
	return r.Fields[name]
}

// LineError 行级错误；Line 为 0 表示文件级错误
type LineError struct {
	Line    int    `json:"line"`
	Message string `json:"message"`
}

func (e LineError) Error() string {
	if e.Line == 0 {
		return e.Message
	}
	return fmt.Sprintf("line %d: %s", e.Line, e.Message)
}

// Result 解析结果
type Result struct {
	Headers  []string
	Rows     []Row
	Errors   []LineError // 被丢弃的行
	Warnings []LineError // 列数不一致等已自动修正的行
	Encoding string
}

// ParseString 解析 UTF-8 文本
func ParseString(text string, opts Options) *Result {
	return Parse([]byte(text), opts)
}

// Parse 将分隔文本解析为带类型的行
//
// 单行错误只记录行号与原因，不影响后续行；空输入或缺少表头时返回空行集和一条文件级错误。
// 引号内的分隔符与换行按字面处理，双写的引号表示一个字面引号。
// 未加引号的字段去除首尾空白，加引号的字段原样保留。
// 引号未闭合时该记录从起始行起吞掉了后续所有行，此时只丢弃起始行，从下一物理行重新开始解析。
func Parse(data []byte, opts Options) *Result {
	result := &Result{}

	decoded, enc, err := DetectAndDecode(data)
	if err != nil {
		result.Errors = append(result.Errors, LineError{Message: err.Error()})
		return result
	}
	result.Encoding = enc

	starts := lineStarts(decoded)
	reader := newReader(decoded, opts)
	base := 0 // 当前 reader 之前已跳过的物理行数

	header, err := readHeader(reader)
	if err != nil {
		result.Errors = append(result.Errors, LineError{Message: err.Error()})
		return result
	}

	headers := make([]string, len(header))
	for i, h := range header {
		name := strings.TrimSpace(h)
		if mapped, ok := opts.FieldMapping[name]; ok && mapped != "" {
			name = mapped
		}
		headers[i] = name
	}
	result.Headers = headers

	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			result.Errors = append(result.Errors, toLineError(err, base))
			next, ok := resumeLine(err, base)
			if !ok {
				continue
			}
			if next > len(starts) {
				break
			}
			base = next - 1
			reader = newReader(decoded[starts[base]:], opts)
			continue
		}

		line, _ := reader.FieldPos(0)
		line += base
		if isBlank(record) {
			continue
		}

		if len(record) != len(headers) {
			result.Warnings = append(result.Warnings, LineError{
				Line:    line,
				Message: fmt.Sprintf("row has %d columns, expected %d", len(record), len(headers)),
			})
		}

		fields := make(map[string]Value, len(headers))
		for i, name := range headers {
			if name == "" {
				continue
			}
			raw := ""
			if i < len(record) {
				raw = record[i]
				if !quotedField(decoded, starts, reader, base, i) {
					raw = strings.TrimSpace(raw)
				}
			}
			fields[name] = Infer(raw)
		}
		result.Rows = append(result.Rows, Row{Line: line, Fields: fields})
	}

	return result
}

func newReader(data []byte, opts Options) *csv.Reader {
	reader := csv.NewReader(bytes.NewReader(data))
	if opts.Delimiter != 0 {
		reader.Comma = opts.Delimiter
	}
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = opts.Lenient
	return reader
}

// lineStarts 每个物理行（从 1 开始）的起始字节偏移，starts[k] 对应第 k+1 行
func lineStarts(data []byte) []int {
	starts := []int{0}
	for i, b := range data {
		if b == '\n' && i+1 < len(data) {
			starts = append(starts, i+1)
		}
	}
	return starts
}

// resumeLine 引号未闭合、记录跨越多行时返回应重新开始解析的物理行号
func resumeLine(err error, base int) (int, bool) {
	var pe *csv.ParseError
	if !errors.As(err, &pe) || !errors.Is(pe.Err, csv.ErrQuote) || pe.Line <= pe.StartLine {
		return 0, false
	}
	return base + pe.StartLine + 1, true
}

// quotedField 第 i 个字段在源文本中是否以引号开头
func quotedField(data []byte, starts []int, reader *csv.Reader, base, i int) bool {
	line, col := reader.FieldPos(i)
	line += base
	if line < 1 || line > len(starts) {
		return false
	}
	off := starts[line-1] + col - 1
	return off >= 0 && off < len(data) && data[off] == '"'
}

// readHeader 读取第一条非空记录作为表头
func readHeader(reader *csv.Reader) ([]string, error) {
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			return nil, errors.New("empty input: no header row found")
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read header row: %w", err)
		}
		if !isBlank(record) {
			return record, nil
		}
	}
}

func isBlank(record []string) bool {
	for _, v := range record {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

func toLineError(err error, base int) LineError {
	var pe *csv.ParseError
	if errors.As(err, &pe) {
		return LineError{Line: base + pe.StartLine, Message: pe.Err.Error()}
	}
	return LineError{Message: err.Error()}
}
