// Package utils contains small helper functions used across the project.
//
// These are usually generic helpers that don't belong to a specific domain.
package utils

import (
	"encoding/json"
	"fmt"
	"io"
)

// PrintJSON pretty-prints any Go value as indented JSON to w.
//
// If the value contains unsupported types (channels, funcs, circular refs)
// the marshalling error is returned and nothing is written.
func PrintJSON(w io.Writer, v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("error marshalling the JSON: %w", err)
	}

	_, err = fmt.Fprintln(w, string(out))
	return err
}
