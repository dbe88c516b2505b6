package txn

import (
	"fmt"
	"strconv"
	"strings"

	"indyforge.dev/forge/did"
	"indyforge.dev/forge/forgeerr"
)

// MaxAttributes is the most attribute names a schema may declare.
const MaxAttributes = 125

const schemaMarker = "2"

// Schema is a named, versioned attribute set.
type Schema struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Version   string   `json:"version"`
	AttrNames []string `json:"attrNames"`
}

// SchemaID returns the ledger identifier <did>:2:<name>:<version>.
func SchemaID(submitter, name, version string) string {
	return strings.Join([]string{submitter, schemaMarker, name, version}, ":")
}

// ValidateSchemaVersion requires exactly three dot-separated unsigned
// integers.
func ValidateSchemaVersion(version string) error {
	parts := strings.Split(version, ".")
	if len(parts) != 3 {
		return forgeerr.New(forgeerr.KindInput, forgeerr.InvalidSchemaVersion,
			"Version must have exactly 3 parts (e.g., 1.0.0)")
	}
	for _, p := range parts {
		if _, err := strconv.ParseUint(p, 10, 32); err != nil {
			return forgeerr.Wrap(forgeerr.KindInput, forgeerr.InvalidSchemaVersion,
				fmt.Sprintf("Version part %q is not a valid number", p), err)
		}
	}
	return nil
}

// Validate checks the assembled schema.
func (s Schema) Validate() error {
	submitter, name, version, ok := splitSchemaID(s.ID)
	if !ok {
		return invalidSchema(fmt.Sprintf("malformed schema id %q", s.ID))
	}
	if err := did.Validate(submitter); err != nil {
		return forgeerr.Wrap(forgeerr.KindInput, forgeerr.InvalidSchema, "schema id carries an invalid DID", err)
	}
	if name != s.Name || version != s.Version {
		return invalidSchema("schema id does not match name and version")
	}
	if strings.TrimSpace(s.Name) == "" {
		return invalidSchema("schema name is required")
	}
	if err := ValidateSchemaVersion(s.Version); err != nil {
		return err
	}

	if len(s.AttrNames) == 0 {
		return forgeerr.New(forgeerr.KindInput, forgeerr.EmptyAttributes, "Empty list of Schema attributes has been passed")
	}
	if len(s.AttrNames) > MaxAttributes {
		return invalidSchema(fmt.Sprintf("The number of Schema attributes %d cannot be greater than %d",
			len(s.AttrNames), MaxAttributes))
	}
	seen := make(map[string]struct{}, len(s.AttrNames))
	for _, a := range s.AttrNames {
		if strings.TrimSpace(a) == "" {
			return invalidSchema("attribute names must not be blank")
		}
		if _, dup := seen[a]; dup {
			return invalidSchema(fmt.Sprintf("duplicate attribute name %q", a))
		}
		seen[a] = struct{}{}
	}
	return nil
}

// splitSchemaID parses from the right: the submitter may itself be a
// qualified DID containing ':'.
func splitSchemaID(id string) (submitter, name, version string, ok bool) {
	parts := strings.Split(id, ":")
	if len(parts) < 4 {
		return "", "", "", false
	}
	n := len(parts)
	if parts[n-3] != schemaMarker {
		return "", "", "", false
	}
	return strings.Join(parts[:n-3], ":"), parts[n-2], parts[n-1], true
}

func invalidSchema(msg string) error {
	return forgeerr.New(forgeerr.KindInput, forgeerr.InvalidSchema, msg)
}
