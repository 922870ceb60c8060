package renderer

import (
	"io"

	"github.com/etnz/cryptotax"
	"github.com/goccy/go-json"
)

// ReportJSON writes the full report, overview and events, as indented
// json.
func ReportJSON(w io.Writer, r *cryptotax.Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}
