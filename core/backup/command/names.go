package command

import (
	"fmt"
	"strings"
)

// Name identifies a versioned command understood by the command endpoint.
type Name string

const (
	ReplaceCatalog Name = "replace-catalog"
	StoreReport    Name = "store-report"
	ReplaceFacts   Name = "replace-facts"
)

// FactsBaselineVersion is the replace-facts version used unless the caller
// explicitly opts into the manifest's facts version.
const FactsBaselineVersion = 4

// Names lists the known commands in export order.
func Names() []Name {
	return []Name{ReplaceCatalog, StoreReport, ReplaceFacts}
}

// ParseName converts a manifest key into its canonical Name. Unknown names are
// returned in canonical form with ok=false so callers can keep them around.
func ParseName(raw string) (Name, bool) {
	key := strings.ToLower(strings.TrimSpace(raw))
	key = strings.NewReplacer("_", "-", " ", "-").Replace(key)
	name := Name(key)
	switch name {
	case ReplaceCatalog, StoreReport, ReplaceFacts:
		return name, true
	default:
		return name, false
	}
}

func (n Name) String() string {
	return string(n)
}

// ValidateVersion rejects versions the endpoint cannot interpret.
func ValidateVersion(name Name, version int) error {
	if version < 0 {
		return fmt.Errorf("%s: version must be non-negative, got %d", name, version)
	}
	return nil
}
