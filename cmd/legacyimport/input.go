package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"legacymigrate/backend/internal/service"
)

// exportExtensions 目录中被当作表文件读取的扩展名
var exportExtensions = map[string]bool{".csv": true, ".txt": true, ".tsv": true}

var errNoTables = errors.New("no .csv, .txt or .tsv files found")

// readExport 把目录中的表文件读成一份导出
func readExport(flags *globalFlags) (service.Export, error) {
	e := service.Export{
		SourceFile:      flags.sourceFile,
		DatabaseVersion: flags.dbVersion,
		Tables:          make(map[string]string),
	}
	if e.SourceFile == "" {
		abs, err := filepath.Abs(flags.dir)
		if err != nil {
			return e, err
		}
		e.SourceFile = filepath.Base(abs)
	}

	delimiter, err := parseDelimiter(flags.delimiter)
	if err != nil {
		return e, err
	}
	e.Delimiter = delimiter

	entries, err := os.ReadDir(flags.dir)
	if err != nil {
		return e, fmt.Errorf("read export directory: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !exportExtensions[strings.ToLower(filepath.Ext(entry.Name()))] {
			continue
		}
		names = append(names, entry.Name())
	}
	if len(names) == 0 {
		return e, fmt.Errorf("%s: %w", flags.dir, errNoTables)
	}
	sort.Strings(names)

	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(flags.dir, name))
		if err != nil {
			return e, fmt.Errorf("read %s: %w", name, err)
		}
		e.Tables[name] = string(data)
	}

	if flags.mappings != "" {
		data, err := os.ReadFile(flags.mappings)
		if err != nil {
			return e, fmt.Errorf("read mappings: %w", err)
		}
		if err := json.Unmarshal(data, &e.FieldMappings); err != nil {
			return e, fmt.Errorf("parse mappings: %w", err)
		}
	}
	return e, nil
}

func parseDelimiter(s string) (rune, error) {
	switch s {
	case "":
		return 0, nil
	case "tab", `\t`, "\t":
		return '\t', nil
	}
	d, size := utf8.DecodeRuneInString(s)
	if d == utf8.RuneError || size != len(s) || d == '"' || d == '\n' || d == '\r' {
		return 0, fmt.Errorf("invalid --delimiter %q", s)
	}
	return d, nil
}
