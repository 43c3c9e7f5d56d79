package openapi

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
)

//go:embed openapi.yaml
var embedded []byte

// Document is the parsed description of the public HTTP surface.
type Document struct {
	doc *openapi3.T
}

// Operation is one documented method and path pair.
type Operation struct {
	Method      string
	Path        string
	OperationID string
}

// Load parses and validates the embedded document.
func Load() (*Document, error) {
	return LoadFromData(embedded)
}

func LoadFromData(data []byte) (*Document, error) {
	loader := openapi3.NewLoader()

	doc, err := loader.LoadFromData(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse OpenAPI document: %w", err)
	}

	if err := doc.Validate(loader.Context); err != nil {
		return nil, fmt.Errorf("OpenAPI document validation failed: %w", err)
	}

	return &Document{doc: doc}, nil
}

func (d *Document) Title() string {
	return d.doc.Info.Title
}

// Operations lists every documented operation ordered by path then method.
func (d *Document) Operations() []Operation {
	var ops []Operation
	for path, item := range d.doc.Paths.Map() {
		for method, op := range item.Operations() {
			ops = append(ops, Operation{Method: method, Path: path, OperationID: op.OperationID})
		}
	}
	sort.Slice(ops, func(i, j int) bool {
		if ops[i].Path != ops[j].Path {
			return ops[i].Path < ops[j].Path
		}
		return ops[i].Method < ops[j].Method
	})
	return ops
}

func (d *Document) lookup(method, path string) (*openapi3.PathItem, *openapi3.Operation) {
	item := d.doc.Paths.Value(path)
	if item == nil {
		return nil, nil
	}
	return item, item.GetOperation(method)
}

// HasOperation reports whether method and path are documented exactly.
func (d *Document) HasOperation(method, path string) bool {
	_, op := d.lookup(method, path)
	return op != nil
}

// ValidateResponse checks a response produced for a documented operation.
func (d *Document) ValidateResponse(ctx context.Context, req *http.Request, path string, status int, header http.Header, body []byte) error {
	item, op := d.lookup(req.Method, path)
	if op == nil {
		return fmt.Errorf("operation %s %s is not documented", req.Method, path)
	}

	input := &openapi3filter.ResponseValidationInput{
		RequestValidationInput: &openapi3filter.RequestValidationInput{
			Request: req,
			Route: &routers.Route{
				Spec:      d.doc,
				Path:      path,
				PathItem:  item,
				Method:    req.Method,
				Operation: op,
			},
		},
		Status: status,
		Header: header,
		Body:   io.NopCloser(bytes.NewReader(body)),
		Options: &openapi3filter.Options{
			IncludeResponseStatus: true,
		},
	}
	return openapi3filter.ValidateResponse(ctx, input)
}

// ValidateSchema checks a JSON body against a named component schema.
func (d *Document) ValidateSchema(name string, body []byte) error {
	ref, ok := d.doc.Components.Schemas[name]
	if !ok || ref.Value == nil {
		return fmt.Errorf("schema %q is not defined", name)
	}

	var value any
	if err := json.Unmarshal(body, &value); err != nil {
		return fmt.Errorf("failed to decode body: %w", err)
	}
	return ref.Value.VisitJSON(value)
}
