package cdx

import (
	"bytes"
	"encoding/xml"
	"strconv"
)

// The XML schema nests everything one wrapper element deeper than JSON, so
// decoding goes through mirror structs and maps onto the neutral model.

type xmlBom struct {
	XMLName      xml.Name        `xml:"bom"`
	SerialNumber string          `xml:"serialNumber,attr"`
	Version      string          `xml:"version,attr"`
	Metadata     *xmlMetadata    `xml:"metadata"`
	Components   []xmlComponent  `xml:"components>component"`
	Services     []xmlService    `xml:"services>service"`
	Dependencies []xmlDependency `xml:"dependencies>dependency"`
}

type xmlMetadata struct {
	Component    *xmlComponent `xml:"component"`
	Supplier     *xmlEntity    `xml:"supplier"`
	Manufacturer *xmlEntity    `xml:"manufacture"`
	Authors      []xmlContact  `xml:"authors>author"`
}

type xmlComponent struct {
	BOMRef             string         `xml:"bom-ref,attr"`
	Type               string         `xml:"type,attr"`
	Group              string         `xml:"group"`
	Name               string         `xml:"name"`
	Version            string         `xml:"version"`
	Purl               string         `xml:"purl"`
	CPE                string         `xml:"cpe"`
	Description        string         `xml:"description"`
	Author             string         `xml:"author"`
	Publisher          string         `xml:"publisher"`
	Supplier           *xmlEntity     `xml:"supplier"`
	Licenses           []xmlLicense   `xml:"licenses>license"`
	Expressions        []string       `xml:"licenses>expression"`
	ExternalReferences []xmlReference `xml:"externalReferences>reference"`
	Components         []xmlComponent `xml:"components>component"`
}

type xmlLicense struct {
	ID   string `xml:"id"`
	Name string `xml:"name"`
	URL  string `xml:"url"`
}

type xmlReference struct {
	Type    string `xml:"type,attr"`
	URL     string `xml:"url"`
	Comment string `xml:"comment"`
}

type xmlService struct {
	BOMRef      string   `xml:"bom-ref,attr"`
	Group       string   `xml:"group"`
	Name        string   `xml:"name"`
	Version     string   `xml:"version"`
	Description string   `xml:"description"`
	Endpoints   []string `xml:"endpoints>endpoint"`
}

type xmlDependency struct {
	Ref       string          `xml:"ref,attr"`
	DependsOn []xmlDependency `xml:"dependency"`
}

type xmlEntity struct {
	Name     string       `xml:"name"`
	URLs     []string     `xml:"url"`
	Contacts []xmlContact `xml:"contact"`
}

type xmlContact struct {
	Name  string `xml:"name"`
	Email string `xml:"email"`
	Phone string `xml:"phone"`
}

func decodeXML(data []byte) (*Bom, error) {
	var raw xmlBom
	if err := xml.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	bom := &Bom{
		SpecVersion:  specVersionFromNamespace(raw.XMLName.Space),
		SerialNumber: raw.SerialNumber,
	}
	if v, err := strconv.Atoi(raw.Version); err == nil {
		bom.Version = v
	}
	if raw.Metadata != nil {
		bom.Metadata = &Metadata{
			Component:    mapXMLComponentPtr(raw.Metadata.Component),
			Supplier:     mapXMLEntity(raw.Metadata.Supplier),
			Manufacturer: mapXMLEntity(raw.Metadata.Manufacturer),
			Authors:      mapXMLContacts(raw.Metadata.Authors),
		}
	}
	for _, component := range raw.Components {
		bom.Components = append(bom.Components, mapXMLComponent(component))
	}
	for _, service := range raw.Services {
		bom.Services = append(bom.Services, Service{
			BOMRef:      service.BOMRef,
			Group:       service.Group,
			Name:        service.Name,
			Version:     service.Version,
			Description: service.Description,
			Endpoints:   service.Endpoints,
		})
	}
	for _, dep := range raw.Dependencies {
		edge := Dependency{Ref: dep.Ref}
		for _, child := range dep.DependsOn {
			edge.DependsOn = append(edge.DependsOn, child.Ref)
		}
		bom.Dependencies = append(bom.Dependencies, edge)
	}
	return bom, nil
}

func mapXMLComponent(raw xmlComponent) Component {
	component := Component{
		BOMRef:      raw.BOMRef,
		Type:        raw.Type,
		Group:       raw.Group,
		Name:        raw.Name,
		Version:     raw.Version,
		Purl:        raw.Purl,
		CPE:         raw.CPE,
		Description: raw.Description,
		Author:      raw.Author,
		Publisher:   raw.Publisher,
		Supplier:    mapXMLEntity(raw.Supplier),
	}
	for _, license := range raw.Licenses {
		component.Licenses = append(component.Licenses, LicenseChoice{
			License: &LicenseRef{ID: license.ID, Name: license.Name, URL: license.URL},
		})
	}
	for _, expression := range raw.Expressions {
		component.Licenses = append(component.Licenses, LicenseChoice{Expression: expression})
	}
	for _, ref := range raw.ExternalReferences {
		component.ExternalReferences = append(component.ExternalReferences, ExternalReference{
			Type:    ref.Type,
			URL:     ref.URL,
			Comment: ref.Comment,
		})
	}
	for _, nested := range raw.Components {
		component.Components = append(component.Components, mapXMLComponent(nested))
	}
	return component
}

func mapXMLComponentPtr(raw *xmlComponent) *Component {
	if raw == nil {
		return nil
	}
	component := mapXMLComponent(*raw)
	return &component
}

func mapXMLEntity(raw *xmlEntity) *OrganizationalEntity {
	if raw == nil {
		return nil
	}
	return &OrganizationalEntity{
		Name:     raw.Name,
		URLs:     raw.URLs,
		Contacts: mapXMLContacts(raw.Contacts),
	}
}

func mapXMLContacts(raw []xmlContact) []Contact {
	var contacts []Contact
	for _, contact := range raw {
		contacts = append(contacts, Contact{Name: contact.Name, Email: contact.Email, Phone: contact.Phone})
	}
	return contacts
}

func sniffXMLSpecVersion(data []byte) string {
	decoder := xml.NewDecoder(bytes.NewReader(data))
	for {
		token, err := decoder.Token()
		if err != nil {
			return ""
		}
		if start, ok := token.(xml.StartElement); ok {
			if start.Name.Local != "bom" {
				return ""
			}
			return specVersionFromNamespace(start.Name.Space)
		}
	}
}
