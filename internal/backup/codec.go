package backup

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

func encode(w io.Writer, format Format, records []Record) error {
	switch format {
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(records); err != nil {
			return err
		}
		return enc.Close()
	default:
		enc := json.NewEncoder(w)
		for _, r := range records {
			if err := enc.Encode(r); err != nil {
				return err
			}
		}
		return nil
	}
}

func decode(r io.Reader, format Format) ([]Record, error) {
	if format == FormatYAML {
		var records []Record
		if err := yaml.NewDecoder(r).Decode(&records); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("malformed yaml backup: %w", err)
		}
		return records, nil
	}

	dec := json.NewDecoder(r)
	dec.UseNumber()
	var records []Record
	for line := 1; ; line++ {
		var rec Record
		err := dec.Decode(&rec)
		if errors.Is(err, io.EOF) {
			return records, nil
		}
		if err != nil {
			return nil, fmt.Errorf("malformed backup record %d: %w", line, err)
		}
		records = append(records, rec)
	}
}
