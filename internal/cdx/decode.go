package cdx

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode"
)

// Encoding distinguishes the two accepted manifest serializations.
type Encoding string

const (
	EncodingJSON Encoding = "json"
	EncodingXML  Encoding = "xml"
)

// ErrUnrecognized indicates the payload is neither JSON nor XML.
var ErrUnrecognized = errors.New("unrecognized manifest encoding")

const maxDiagnosticLen = 256

// DetectEncoding sniffs the serialization from the first non-whitespace byte.
func DetectEncoding(data []byte) (Encoding, error) {
	for _, b := range data {
		if unicode.IsSpace(rune(b)) {
			continue
		}
		switch b {
		case '{':
			return EncodingJSON, nil
		case '<':
			return EncodingXML, nil
		default:
			return "", ErrUnrecognized
		}
	}
	return "", ErrUnrecognized
}

// Decode parses a CycloneDX manifest in either serialization. Decode errors
// carry a bounded diagnostic and never echo the payload.
func Decode(data []byte) (*Bom, error) {
	encoding, err := DetectEncoding(data)
	if err != nil {
		return nil, err
	}

	switch encoding {
	case EncodingJSON:
		var bom Bom
		if err := json.Unmarshal(data, &bom); err != nil {
			return nil, fmt.Errorf("decode json manifest: %s", truncateDiagnostic(err))
		}
		return &bom, nil
	case EncodingXML:
		bom, err := decodeXML(data)
		if err != nil {
			return nil, fmt.Errorf("decode xml manifest: %s", truncateDiagnostic(err))
		}
		return bom, nil
	default:
		return nil, ErrUnrecognized
	}
}

// SniffSpecVersion extracts the declared spec version without requiring a
// fully well-formed manifest. Returns "" when undeterminable; failure
// notifications carry that empty value rather than guessing.
func SniffSpecVersion(data []byte) string {
	encoding, err := DetectEncoding(data)
	if err != nil {
		return ""
	}
	switch encoding {
	case EncodingJSON:
		var probe struct {
			SpecVersion string `json:"specVersion"`
		}
		if err := json.Unmarshal(data, &probe); err != nil {
			return ""
		}
		return probe.SpecVersion
	case EncodingXML:
		return sniffXMLSpecVersion(data)
	}
	return ""
}

const xmlNamespacePrefix = "http://cyclonedx.org/schema/bom/"

func specVersionFromNamespace(ns string) string {
	if strings.HasPrefix(ns, xmlNamespacePrefix) {
		return strings.TrimSuffix(strings.TrimPrefix(ns, xmlNamespacePrefix), "/")
	}
	return ""
}

func truncateDiagnostic(err error) string {
	msg := err.Error()
	if len(msg) > maxDiagnosticLen {
		msg = msg[:maxDiagnosticLen] + "..."
	}
	return msg
}
