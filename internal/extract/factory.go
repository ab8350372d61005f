package extract

import (
	"encoding/json"
	"fmt"
	"strings"
)

// NewParser builds a parser backend by name. "llamaparse" is the OCR path
// for scanned textbooks; "local" extracts embedded text directly and only
// works for born-digital PDFs.
func NewParser(name string, args interface{}) (Parser, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "llamaparse":
		cfg := LlamaParseConfig{}
		if err := decodeParserConfig(args, &cfg); err != nil {
			return nil, err
		}
		return NewLlamaParser(cfg)
	case "local", "":
		return NewLocalParser(), nil
	default:
		return nil, fmt.Errorf("unsupported parser: %s", name)
	}
}

func decodeParserConfig(args interface{}, dst interface{}) error {
	if args == nil {
		return fmt.Errorf("parser config is required")
	}
	data, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("encode parser config: %w", err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decode parser config: %w", err)
	}
	return nil
}
