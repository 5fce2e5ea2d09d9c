// Package portal holds the page components of the diagnosis portal: the
// state each component owns and the formatting rules applied before a
// fragment is rendered. Nothing here talks HTTP.
package portal

import "strings"

// Selection is the ordered set of symptoms the user picked, from the
// checklist or typed in. Order is insertion order.
type Selection []string

func (s Selection) Contains(symptom string) bool {
	for _, v := range s {
		if v == symptom {
			return true
		}
	}
	return false
}

// Add appends symptom unless it is already present.
func (s *Selection) Add(symptom string) {
	if s.Contains(symptom) {
		return
	}
	*s = append(*s, symptom)
}

func (s *Selection) Remove(symptom string) {
	out := (*s)[:0]
	for _, v := range *s {
		if v != symptom {
			out = append(out, v)
		}
	}
	*s = out
}

// Toggle mirrors a checkbox change.
func (s *Selection) Toggle(symptom string, checked bool) {
	if checked {
		s.Add(symptom)
		return
	}
	s.Remove(symptom)
}

// AddManual trims text and adds it. Empty input is ignored and reported
// as false.
func (s *Selection) AddManual(text string) bool {
	symptom := strings.TrimSpace(text)
	if symptom == "" {
		return false
	}
	s.Add(symptom)
	return true
}

// List returns a copy in display order.
func (s Selection) List() []string {
	out := make([]string, len(s))
	copy(out, s)
	return out
}

// CheckboxID is the element id of a catalog checkbox. The name is used
// as-is, so names with spaces or selector characters give ids that are
// valid HTML but awkward CSS selectors.
func CheckboxID(symptom string) string {
	return "symptom-" + symptom
}

// CatalogEntry is one rendered checkbox.
type CatalogEntry struct {
	Name    string
	ID      string
	Checked bool
}

// Checklist pairs the catalog with the current selection. Manually added
// symptoms have no checkbox and are not listed.
func Checklist(catalog []string, sel Selection) []CatalogEntry {
	out := make([]CatalogEntry, 0, len(catalog))
	for _, name := range catalog {
		out = append(out, CatalogEntry{
			Name:    name,
			ID:      CheckboxID(name),
			Checked: sel.Contains(name),
		})
	}
	return out
}
