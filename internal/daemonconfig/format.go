package daemonconfig

import "slices"

// PageFormats lists the planner memory layouts the step daemon accepts.
var PageFormats = []string{"SP_4x4D_128", "SP_4x2_256", "SP_4x1_512"}

// ValidFormat reports whether f names a supported page format.
func ValidFormat(f string) bool {
	return slices.Contains(PageFormats, f)
}
