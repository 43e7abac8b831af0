// Package jsonld renders verified credentials as W3C verifiable credential
// documents and normalizes them to N-Quads with URDNA2015.
//
// Contexts are embedded; the exporter never fetches anything over the
// network.
package jsonld

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/piprate/json-gold/ld"

	"attest/internal/canonical"
	"attest/internal/credential/models"
	dErrors "attest/pkg/domain-errors"
	"attest/pkg/platform/privacy"
)

const (
	TypeVerifiableCredential = "VerifiableCredential"
	TypeDigitalCredential    = "DigitalCredential"

	normalizationAlgorithm = "URDNA2015"
	nquadsFormat           = "application/n-quads"
)

// Integrity is the verification outcome embedded in the exported document.
type Integrity struct {
	Fingerprint     string
	AnchorStatus    string
	AnchorReference string
	VerifiedAt      time.Time
}

// Document is an exported credential. JSON is served as application/ld+json;
// NQuads is its normalized RDF dataset.
type Document struct {
	JSON   json.RawMessage
	NQuads string
}

type Exporter struct {
	baseURL string
	loader  ld.DocumentLoader
}

// New returns an exporter whose document ids live under baseURL.
func New(baseURL string) (*Exporter, error) {
	loader, err := newDocumentLoader()
	if err != nil {
		return nil, err
	}
	return &Exporter{baseURL: strings.TrimRight(baseURL, "/"), loader: loader}, nil
}

// VerificationURL is the document id and the public verification link.
func (e *Exporter) VerificationURL(id models.CredentialID) string {
	return e.baseURL + "/verify/" + id.String()
}

// Export renders c. The caller passes the exact snapshot it verified.
func (e *Exporter) Export(ctx context.Context, c *models.Credential, in Integrity) (*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	body, err := json.Marshal(e.document(c, in))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "encode json-ld document")
	}
	nquads, err := e.normalize(body)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "normalize json-ld document")
	}
	return &Document{JSON: body, NQuads: nquads}, nil
}

func (e *Exporter) document(c *models.Credential, in Integrity) map[string]any {
	url := e.VerificationURL(c.ID)
	content := c.Content
	if content == nil {
		content = canonical.NewMap()
	}

	issuer := map[string]any{"id": e.baseURL}
	if name := firstNonEmpty(content.GetString(models.FieldIssuer), content.GetString(models.FieldOrganization)); name != "" {
		issuer["name"] = name
	}

	subject := map[string]any{"achievement": achievement(content)}
	if name := content.GetString(models.FieldRecipientName); name != "" {
		subject["name"] = name
	}
	if email := content.GetString(models.FieldRecipientEmail); email != "" {
		subject["email"] = privacy.MaskEmail(email)
	}

	status := map[string]any{
		"id":           url + "#integrity",
		"type":         "IntegrityStatus",
		"fingerprint":  in.Fingerprint,
		"anchorStatus": in.AnchorStatus,
		"verifiedAt":   in.VerifiedAt.UTC().Format(time.RFC3339),
	}
	if in.AnchorReference != "" {
		status["anchorReference"] = in.AnchorReference
	}

	doc := map[string]any{
		"@context":          []any{CredentialsContextV1, AttestContextV1},
		"id":                url,
		"type":              []any{TypeVerifiableCredential, TypeDigitalCredential},
		"issuer":            issuer,
		"credentialSubject": subject,
		"credentialStatus":  status,
	}
	if c.IssuedAt != nil {
		doc["issuanceDate"] = c.IssuedAt.UTC().Format(time.RFC3339)
	}
	if c.ExpiresAt != nil {
		doc["expirationDate"] = c.ExpiresAt.UTC().Format(time.RFC3339)
	}
	return doc
}

// recordFields are rendered elsewhere in the document or not at all.
var recordFields = map[string]bool{
	models.FieldCredentialID:   true,
	models.FieldIssuedAt:       true,
	models.FieldExpiresAt:      true,
	models.FieldRecipientName:  true,
	models.FieldRecipientEmail: true,
	models.FieldIssuer:         true,
	models.FieldOrganization:   true,
}

// achievement carries title, description and every custom attribute.
// Keys that look like JSON-LD keywords are dropped.
func achievement(content *canonical.Map) map[string]any {
	out := map[string]any{"type": "Achievement"}
	content.Range(func(key string, v canonical.Value) bool {
		if recordFields[key] || strings.HasPrefix(key, "@") || v.IsEmpty() {
			return true
		}
		out[key] = v
		return true
	})
	return out
}

func (e *Exporter) normalize(body []byte) (string, error) {
	input, err := ld.DocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	opts := ld.NewJsonLdOptions("")
	opts.DocumentLoader = e.loader
	opts.Format = nquadsFormat
	opts.Algorithm = normalizationAlgorithm

	out, err := ld.NewJsonLdProcessor().Normalize(input, opts)
	if err != nil {
		return "", err
	}
	nquads, ok := out.(string)
	if !ok {
		return "", fmt.Errorf("unexpected normalization result %T", out)
	}
	return nquads, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
