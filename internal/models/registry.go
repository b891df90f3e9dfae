package models

import (
	"context"
	"sync"
	"time"
)

// DocumentURLGenerator interface for generating signed document URLs
type DocumentURLGenerator interface {
	GetSignedURL(ctx context.Context, path string, duration time.Duration) (string, error)
}

var (
	urlGenerator DocumentURLGenerator
	registryMu   sync.RWMutex
)

// RegisterDocumentURLGenerator sets the URL generator for application documents
func RegisterDocumentURLGenerator(generator DocumentURLGenerator) {
	registryMu.Lock()
	defer registryMu.Unlock()
	urlGenerator = generator
}
