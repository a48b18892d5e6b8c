package download

import (
	"maps"

	"github.com/italolelis/aria2_downloader/internal/dc"
)

// ResolveFields merges the field sets of a new download. Later layers win:
// base, then the daemon status, then name. The resolved name always overrides
// any "name" key from the other layers. Inputs are not modified.
func ResolveFields(base map[string]any, status dc.Status, name string) map[string]any {
	fields := make(map[string]any, len(base)+len(status)+1)

	maps.Copy(fields, base)
	maps.Copy(fields, status)

	fields["name"] = name

	return fields
}

func stringField(fields map[string]any, key string) string {
	s, _ := fields[key].(string)

	return s
}
