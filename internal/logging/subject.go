package logging

import "strings"

// FormatSubject builds the component/item prefix used in console output.
func FormatSubject(component, itemID string) string {
	component = strings.TrimSpace(component)
	itemID = strings.TrimSpace(itemID)
	switch {
	case component != "" && itemID != "":
		return component + " · " + itemID
	case itemID != "":
		return itemID
	default:
		return component
	}
}
