package batch

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/segmentio/parquet-go"
)

// maxLineSize bounds one JSON line.
const maxLineSize = 4 * 1024 * 1024

// source yields input records in file order. Next returns io.EOF at the end
// and a *ValidationError for a row that should be skipped.
type source interface {
	Next() (InputRecord, error)
	Close() error
}

func openSource(path string, format FileFormat) (source, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open input file: %w", err)
	}

	var src source
	switch format {
	case FormatCSV:
		src, err = newCSVSource(file)
	case FormatJSON:
		src = newJSONSource(file)
	case FormatParquet:
		src = newParquetSource(file)
	default:
		err = fmt.Errorf("unsupported file format: %s", format)
	}
	if err != nil {
		file.Close()
		return nil, err
	}
	return src, nil
}

// csvSource reads a headed CSV file. Columns are located by name so their
// order does not matter; post_id is optional.
type csvSource struct {
	file     *os.File
	reader   *csv.Reader
	row      int64
	content  int
	platform int
	postID   int
}

func newCSVSource(file *os.File) (*csvSource, error) {
	reader := csv.NewReader(file)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}
	reader.FieldsPerRecord = len(header)

	s := &csvSource{file: file, reader: reader, content: -1, platform: -1, postID: -1}
	for i, name := range header {
		switch strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))) {
		case "content":
			s.content = i
		case "platform":
			s.platform = i
		case "post_id", "postid":
			s.postID = i
		}
	}
	if s.content < 0 || s.platform < 0 {
		return nil, fmt.Errorf("CSV header must contain content and platform columns, got %v", header)
	}
	return s, nil
}

func (s *csvSource) Next() (InputRecord, error) {
	fields, err := s.reader.Read()
	if err == io.EOF {
		return InputRecord{}, io.EOF
	}
	s.row++
	if err != nil {
		var parseErr *csv.ParseError
		if errors.As(err, &parseErr) {
			return InputRecord{}, &ValidationError{Row: s.row, Message: parseErr.Err.Error()}
		}
		return InputRecord{}, fmt.Errorf("failed to read CSV record: %w", err)
	}

	rec := InputRecord{
		Content:  fields[s.content],
		Platform: strings.TrimSpace(fields[s.platform]),
	}
	if s.postID >= 0 {
		rec.PostID = strings.TrimSpace(fields[s.postID])
	}
	return rec, nil
}

func (s *csvSource) Close() error {
	return s.file.Close()
}

// jsonSource reads one JSON object per line. Blank lines are ignored.
type jsonSource struct {
	file    *os.File
	scanner *bufio.Scanner
	row     int64
}

func newJSONSource(file *os.File) *jsonSource {
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	return &jsonSource{file: file, scanner: scanner}
}

func (s *jsonSource) Next() (InputRecord, error) {
	for s.scanner.Scan() {
		line := strings.TrimSpace(s.scanner.Text())
		if line == "" {
			continue
		}
		s.row++

		var rec InputRecord
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			return InputRecord{}, &ValidationError{Row: s.row, Message: "invalid JSON: " + err.Error()}
		}
		rec.Platform = strings.TrimSpace(rec.Platform)
		return rec, nil
	}
	if err := s.scanner.Err(); err != nil {
		return InputRecord{}, fmt.Errorf("failed to read JSON line: %w", err)
	}
	return InputRecord{}, io.EOF
}

func (s *jsonSource) Close() error {
	return s.file.Close()
}

// parquetSource reads rows whose columns match InputRecord's parquet tags.
type parquetSource struct {
	file   *os.File
	reader *parquet.Reader
}

func newParquetSource(file *os.File) *parquetSource {
	return &parquetSource{file: file, reader: parquet.NewReader(file)}
}

func (s *parquetSource) Next() (InputRecord, error) {
	var rec InputRecord
	if err := s.reader.Read(&rec); err != nil {
		if err == io.EOF {
			return InputRecord{}, io.EOF
		}
		return InputRecord{}, fmt.Errorf("failed to read Parquet record: %w", err)
	}
	rec.Platform = strings.TrimSpace(rec.Platform)
	return rec, nil
}

func (s *parquetSource) Close() error {
	s.reader.Close()
	return s.file.Close()
}
