// Package factcheck verifies claims through an ordered cascade of sources.
package factcheck

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ppiankov/claimstream/internal/model"
)

// ErrUnknownSource is returned for an unrecognized source selector
var ErrUnknownSource = errors.New("unknown fact-check source")

// Selector names a cascade stage or the whole cascade
type Selector string

const (
	SelectAny      Selector = "any"
	SelectDatabase Selector = "database"
	SelectGoogle   Selector = "google"
	SelectSearch   Selector = "search"
)

// Source is one verification stage
type Source interface {
	Name() string
	Check(ctx context.Context, claim string) ([]model.ProviderResult, error)
}

// ParseSource maps a user-supplied selector to a Selector. Matching ignores
// case and spaces; the empty string selects the whole cascade.
func ParseSource(s string) (Selector, error) {
	key := strings.ToLower(strings.ReplaceAll(s, " ", ""))
	switch key {
	case "", "any", "all":
		return SelectAny, nil
	case "database", "factcheckdatabase":
		return SelectDatabase, nil
	case "google", "googlefactcheck":
		return SelectGoogle, nil
	case "search", "searchandreview", "search&review":
		return SelectSearch, nil
	default:
		return "", fmt.Errorf("%w: %q (supported: any, database, google, search)", ErrUnknownSource, s)
	}
}
