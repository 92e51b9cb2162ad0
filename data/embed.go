package data

import (
	_ "embed"
)

// Catalog is the artifact category catalog loaded by internal/catalog.
//
//go:embed catalog.yaml
var Catalog []byte
