package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/odyssey-crm/odyssey-crm/internal/permissions/catalog"
	"github.com/odyssey-crm/odyssey-crm/internal/shared"
)

// CatalogValidateOptions defines available flags for the catalog validate command.
type CatalogValidateOptions struct {
	Path       string
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
}

// CatalogValidateSummary describes the JSON response for catalog validate.
type CatalogValidateSummary struct {
	OK            bool     `json:"ok"`
	Source        string   `json:"source"`
	Version       string   `json:"version,omitempty"`
	Nodes         int      `json:"nodes"`
	Params        int      `json:"params"`
	Problems      []string `json:"problems"`
	MissingParams []string `json:"missing_admin_params"`
}

// ValidateCatalogCommand checks a catalog definition before it is deployed.
// It exits 1 on usage or read failures and 10 when the definition is invalid
// or lacks a param the access-control API relies on.
func ValidateCatalogCommand(opts CatalogValidateOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}

	summary, err := validateCatalog(opts.Path)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "catalog validate: %v\n", err)
		return 1
	}
	if opts.JSONOutput {
		if err := json.NewEncoder(opts.Stdout).Encode(summary); err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "catalog validate: encode json: %v\n", err)
			return 1
		}
	} else {
		renderCatalogHuman(opts.Stdout, summary)
	}
	if !summary.OK {
		return 10
	}
	return 0
}

func validateCatalog(path string) (CatalogValidateSummary, error) {
	summary := CatalogValidateSummary{Source: "built-in", Problems: []string{}, MissingParams: []string{}}
	path = strings.TrimSpace(path)
	if path != "" {
		summary.Source = path
	}

	c, err := catalog.Load(path)
	switch {
	case err == nil:
	case errors.Is(err, catalog.ErrInvalid):
		summary.Problems = splitJoined(err)
		return summary, nil
	case errors.Is(err, os.ErrNotExist):
		return summary, err
	default:
		summary.Problems = []string{err.Error()}
		return summary, nil
	}

	summary.Version = c.Version
	summary.Params = len(c.Params())
	c.Walk(func(_ []string, _ *catalog.Node) bool {
		summary.Nodes++
		return true
	})
	for _, param := range shared.AdminParams() {
		if !c.Has(param) {
			summary.MissingParams = append(summary.MissingParams, param)
		}
	}
	sort.Strings(summary.MissingParams)
	summary.OK = len(summary.MissingParams) == 0
	return summary, nil
}

func splitJoined(err error) []string {
	var joined interface{ Unwrap() []error }
	if errors.As(err, &joined) {
		out := make([]string, 0, len(joined.Unwrap()))
		for _, e := range joined.Unwrap() {
			out = append(out, e.Error())
		}
		return out
	}
	return []string{err.Error()}
}

func renderCatalogHuman(out io.Writer, summary CatalogValidateSummary) {
	_, _ = fmt.Fprintf(out, "Catalog %s", summary.Source)
	if summary.Version != "" {
		_, _ = fmt.Fprintf(out, " (version %s)", summary.Version)
	}
	_, _ = fmt.Fprintln(out)
	if len(summary.Problems) > 0 {
		_, _ = fmt.Fprintf(out, "%d problem(s) detected:\n", len(summary.Problems))
		for _, p := range summary.Problems {
			_, _ = fmt.Fprintf(out, " - %s\n", p)
		}
		return
	}
	_, _ = fmt.Fprintf(out, "%d node(s), %d param(s)\n", summary.Nodes, summary.Params)
	if len(summary.MissingParams) > 0 {
		_, _ = fmt.Fprintf(out, "Missing access-control params: %s\n", strings.Join(summary.MissingParams, ", "))
		return
	}
	_, _ = fmt.Fprintln(out, "Catalog is valid.")
}
