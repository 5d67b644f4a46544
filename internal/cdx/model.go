package cdx

// FormatCycloneDX is the format label reported on notifications and audit
// records for every manifest this decoder accepts.
const FormatCycloneDX = "CycloneDX"

// Bom is the decoded manifest in a format-neutral shape. JSON and XML inputs
// both map onto it.
type Bom struct {
	SpecVersion  string       `json:"specVersion"`
	Version      int          `json:"version"`
	SerialNumber string       `json:"serialNumber"`
	Metadata     *Metadata    `json:"metadata"`
	Components   []Component  `json:"components"`
	Services     []Service    `json:"services"`
	Dependencies []Dependency `json:"dependencies"`
}

// Metadata carries the manifest's self-description: the component that is the
// project itself plus supplier/manufacturer/author declarations.
type Metadata struct {
	Component    *Component            `json:"component"`
	Supplier     *OrganizationalEntity `json:"supplier"`
	Manufacturer *OrganizationalEntity `json:"manufacture"`
	Authors      []Contact             `json:"authors"`
}

// Component is one declared inventory entry. Nested Components carry
// subassembly declarations and are flattened during staging.
type Component struct {
	BOMRef             string                `json:"bom-ref"`
	Type               string                `json:"type"`
	Group              string                `json:"group"`
	Name               string                `json:"name"`
	Version            string                `json:"version"`
	Purl               string                `json:"purl"`
	CPE                string                `json:"cpe"`
	Description        string                `json:"description"`
	Author             string                `json:"author"`
	Publisher          string                `json:"publisher"`
	Supplier           *OrganizationalEntity `json:"supplier"`
	Licenses           []LicenseChoice       `json:"licenses"`
	ExternalReferences []ExternalReference   `json:"externalReferences"`
	Components         []Component           `json:"components"`
}

// LicenseChoice is one entry of a component's license list: either a concrete
// license (by id or name) or an SPDX expression, never both.
type LicenseChoice struct {
	License    *LicenseRef `json:"license"`
	Expression string      `json:"expression"`
}

// LicenseRef names a license by SPDX id or by free text.
type LicenseRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	URL  string `json:"url"`
}

// Service is one declared external service dependency.
type Service struct {
	BOMRef      string   `json:"bom-ref"`
	Group       string   `json:"group"`
	Name        string   `json:"name"`
	Version     string   `json:"version"`
	Description string   `json:"description"`
	Endpoints   []string `json:"endpoints"`
}

// Dependency is one edge set of the declared dependency graph, keyed by the
// bom-ref of the dependant.
type Dependency struct {
	Ref       string   `json:"ref"`
	DependsOn []string `json:"dependsOn"`
}

// OrganizationalEntity describes a supplier or manufacturer.
type OrganizationalEntity struct {
	Name     string    `json:"name"`
	URLs     []string  `json:"url"`
	Contacts []Contact `json:"contact"`
}

// Contact is a person reference.
type Contact struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

// ExternalReference is a typed link attached to components or the metadata
// component.
type ExternalReference struct {
	Type    string `json:"type"`
	URL     string `json:"url"`
	Comment string `json:"comment"`
}

// AllComponents flattens the component tree in declaration order. The
// metadata component is not included.
func (b *Bom) AllComponents() []Component {
	var out []Component
	var walk func(components []Component)
	walk = func(components []Component) {
		for _, component := range components {
			nested := component.Components
			component.Components = nil
			out = append(out, component)
			walk(nested)
		}
	}
	walk(b.Components)
	return out
}
