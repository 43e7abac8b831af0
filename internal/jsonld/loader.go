package jsonld

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"net/url"

	"github.com/piprate/json-gold/ld"
)

//go:embed contexts/*.jsonld
var contexts embed.FS

const (
	CredentialsContextV1 = "https://www.w3.org/2018/credentials/v1"
	AttestContextV1      = "https://attest.dev/contexts/credential/v1"
)

// contextFiles maps context URLs to embedded copies. The credentials
// context is reduced to the credential and presentation terms.
var contextFiles = map[string]string{
	CredentialsContextV1: "contexts/credentials-v1.jsonld",
	AttestContextV1:      "contexts/attest-v1.jsonld",
}

var errRemoteContext = errors.New("remote contexts are not loaded")

// embeddedLoader reads documents from the embedded filesystem and refuses
// anything that would need the network.
type embeddedLoader struct {
	fs fs.FS
}

func (l embeddedLoader) LoadDocument(path string) (*ld.RemoteDocument, error) {
	u, err := url.Parse(path)
	if err != nil {
		return nil, ld.NewJsonLdError(ld.LoadingDocumentFailed, fmt.Sprintf("error parsing URL: %s", path))
	}
	if u.Scheme == "http" || u.Scheme == "https" {
		return nil, ld.NewJsonLdError(ld.LoadingDocumentFailed, fmt.Errorf("%w: %s", errRemoteContext, path))
	}
	f, err := l.fs.Open(path)
	if err != nil {
		return nil, ld.NewJsonLdError(ld.LoadingDocumentFailed, err)
	}
	defer f.Close()
	doc, err := ld.DocumentFromReader(f)
	if err != nil {
		return nil, err
	}
	return &ld.RemoteDocument{DocumentURL: path, Document: doc}, nil
}

// newDocumentLoader preloads every known context, so normalization never
// leaves the process.
func newDocumentLoader() (ld.DocumentLoader, error) {
	loader := ld.NewCachingDocumentLoader(embeddedLoader{fs: contexts})
	if err := loader.PreloadWithMapping(contextFiles); err != nil {
		return nil, fmt.Errorf("preload json-ld contexts: %w", err)
	}
	return loader, nil
}
