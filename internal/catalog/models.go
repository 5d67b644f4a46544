package catalog

import (
	"encoding/json"
	"strings"
	"time"
)

// Classifier describes what kind of thing a project or component is.
type Classifier string

const (
	ClassifierApplication Classifier = "APPLICATION"
	ClassifierFramework   Classifier = "FRAMEWORK"
	ClassifierLibrary     Classifier = "LIBRARY"
	ClassifierContainer   Classifier = "CONTAINER"
	ClassifierOS          Classifier = "OPERATING_SYSTEM"
	ClassifierDevice      Classifier = "DEVICE"
	ClassifierFirmware    Classifier = "FIRMWARE"
	ClassifierFile        Classifier = "FILE"
)

// ParseClassifier normalizes a classifier string; unknown values map to empty.
func ParseClassifier(value string) Classifier {
	normalized := Classifier(strings.ToUpper(strings.TrimSpace(value)))
	switch normalized {
	case ClassifierApplication, ClassifierFramework, ClassifierLibrary, ClassifierContainer,
		ClassifierOS, ClassifierDevice, ClassifierFirmware, ClassifierFile:
		return normalized
	default:
		return ""
	}
}

// Contact is a person reference attached to suppliers and manufacturers.
type Contact struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// OrganizationalEntity describes a supplier or manufacturer.
type OrganizationalEntity struct {
	Name     string    `json:"name,omitempty"`
	URLs     []string  `json:"urls,omitempty"`
	Contacts []Contact `json:"contacts,omitempty"`
}

// IsZero reports whether the entity carries no information.
func (o *OrganizationalEntity) IsZero() bool {
	return o == nil || (o.Name == "" && len(o.URLs) == 0 && len(o.Contacts) == 0)
}

// ExternalReference is a typed link attached to projects and components.
type ExternalReference struct {
	Type    string `json:"type,omitempty"`
	URL     string `json:"url,omitempty"`
	Comment string `json:"comment,omitempty"`
}

// Project is the root entity of the portfolio graph.
type Project struct {
	ID                  int64
	UUID                string
	Group               string
	Name                string
	Version             string
	Classifier          Classifier
	Purl                string
	Supplier            *OrganizationalEntity
	Manufacturer        *OrganizationalEntity
	Authors             []Contact
	ExternalReferences  []ExternalReference
	DirectDependencies  []string
	LastBomImport       *time.Time
	LastBomImportFormat string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Component is a portfolio graph node owned by a project.
type Component struct {
	ID          int64
	UUID        string
	ProjectID   int64
	Group       string
	Name        string
	Version     string
	Classifier  Classifier
	Purl        string
	CPE         string
	Description string
	Author      string
	Publisher   string
	Supplier    *OrganizationalEntity

	// At most one of LicenseName and ResolvedLicenseID carries a value;
	// LicenseExpression may accompany either.
	LicenseName       string
	LicenseExpression string
	LicenseURL        string
	ResolvedLicenseID *int64

	// DirectDependencies holds the identities of components this component
	// depends on. nil means the component is a leaf of the graph.
	DirectDependencies []string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Service is a declared service dependency of a project.
type Service struct {
	ID          int64
	UUID        string
	ProjectID   int64
	Group       string
	Name        string
	Version     string
	Description string
	Endpoints   []string
	CreatedAt   time.Time
}

// License is a registered license, standard (SPDX) or custom.
type License struct {
	ID        int64
	LicenseID string
	Name      string
	Custom    bool
}

// FetchStatus tracks progress of supplementary integrity metadata retrieval.
type FetchStatus string

const (
	FetchStatusNotYetFetched FetchStatus = "NOT_YET_FETCHED"
	FetchStatusInProgress    FetchStatus = "IN_PROGRESS"
	FetchStatusProcessed     FetchStatus = "PROCESSED"
	FetchStatusFailed        FetchStatus = "FAILED"
)

// IntegrityMeta is a side record per component coordinate tracking fetch
// status of integrity metadata.
type IntegrityMeta struct {
	ID        int64
	Purl      string
	Status    FetchStatus
	LastFetch *time.Time
}

// VulnerabilityScan tracks the fan-out of per-component analysis commands for
// one chain and the results received back so far.
type VulnerabilityScan struct {
	ID               int64
	Token            string
	TargetType       string
	TargetUUID       string
	ExpectedResults  int64
	ReceivedResults  int64
	NotifyOnComplete bool
	UpdatedAt        time.Time
}

// Complete reports whether every expected analysis result has arrived.
func (v *VulnerabilityScan) Complete() bool {
	return v != nil && v.ExpectedResults > 0 && v.ReceivedResults >= v.ExpectedResults
}

// BomImport is the audit record written for each successful manifest import.
type BomImport struct {
	ID           int64
	ProjectID    int64
	Format       string
	SpecVersion  string
	BomVersion   int
	SerialNumber string
	ImportedAt   time.Time
}

func marshalJSON(value any) (any, error) {
	if value == nil {
		return nil, nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func unmarshalJSON(raw string, target any) error {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	return json.Unmarshal([]byte(raw), target)
}
