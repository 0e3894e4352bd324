package scoring

import (
	"regexp"
	"strings"
)

// InterfaceImplementationName is the registry name of the interface factor
const InterfaceImplementationName = "interface_implementation"

var interfaceQuery = regexp.MustCompile(`^I[A-Z][A-Za-z0-9_]*$`)

// genericSuffixes name the production classes that usually implement an
// interface
var genericSuffixes = []string{"Service", "Repository", "Manager", "Handler", "Provider"}

// mockContent matches mock or fake types declared in content
var mockContent = regexp.MustCompile(`\b(Mock|Fake|Stub)[A-Z]\w*|\bMock<`)

// InterfaceImplementation prefers real implementations over mocks when the
// query is an interface name such as IUserService
type InterfaceImplementation struct {
	base
}

// NewInterfaceImplementation creates the interface implementation factor
func NewInterfaceImplementation(w *Weight) *InterfaceImplementation {
	return &InterfaceImplementation{base: base{name: InterfaceImplementationName, weight: w}}
}

// Compute returns NeutralScore for queries that are not a single interface
// name
func (f *InterfaceImplementation) Compute(doc Document, _ int64, sc Context) (float64, error) {
	query := strings.TrimSpace(sc.QueryText)
	if !interfaceQuery.MatchString(query) {
		return NeutralScore, nil
	}

	filePath, ok := doc.Field(FieldPath)
	if !ok || filePath == "" {
		return 0, ErrMissingField
	}
	content, _ := doc.Field(FieldContent)

	if isMockPath(filePath) || isTestPath(filePath) || mockContent.MatchString(content) {
		return 0.1, nil
	}

	stem := query[1:]
	name := strings.ToLower(strings.ReplaceAll(fileStem(filePath), "_", ""))
	lowerStem := strings.ToLower(stem)
	nameMatch := name == lowerStem || name == lowerStem+"impl" || name == "default"+lowerStem

	switch {
	case nameMatch && implements(content, query) && productionPath(filePath):
		return 1.0, nil
	case nameMatch:
		return 0.8, nil
	}

	fileName := fileStem(filePath)
	for _, suffix := range genericSuffixes {
		if strings.HasSuffix(fileName, suffix) {
			return 0.6, nil
		}
	}
	return NeutralScore, nil
}

// implements reports whether content declares a type implementing iface
func implements(content, iface string) bool {
	if !strings.Contains(content, iface) {
		return false
	}
	for _, marker := range []string{
		": " + iface,
		":" + iface,
		", " + iface,
		"implements " + iface,
		"extends " + iface,
		"impl " + iface + " for",
	} {
		if strings.Contains(content, marker) {
			return true
		}
	}
	return false
}
