package router

import (
	"os"
	"path/filepath"

	"mindpalace/backend/pkg/validator"
)

// AddOpenAPIValidation validates /api requests against the schema and
// serves the schema under /api/docs.
func (r *Router) AddOpenAPIValidation(schemaPath string) {
	if !fileExists(schemaPath) {
		r.Logger.Warn("OpenAPI schema file not found, skipping validation", "path", schemaPath)
		return
	}

	v, err := validator.NewOpenAPIValidator(schemaPath)
	if err != nil {
		r.Logger.LogError(err, "Failed to initialize OpenAPI validator")
		return
	}

	docs := "/api/docs/" + filepath.Base(schemaPath)
	r.Engine.Use(v.Middleware())
	r.Engine.StaticFile(docs, schemaPath)
	r.Logger.Info("OpenAPI validation enabled", "schema", schemaPath, "docs", docs)
}

// fileExists checks if a file exists and is not a directory
func fileExists(filename string) bool {
	info, err := os.Stat(filename)
	if err != nil {
		return false
	}
	return !info.IsDir()
}
