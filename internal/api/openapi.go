package api

import (
	"net/http"
	"sync"

	"github.com/getkin/kin-openapi/openapi3"
)

// Version is reported in the OpenAPI document.
var Version = "dev"

var (
	specOnce sync.Once
	spec     *openapi3.T
)

// OpenAPI returns the document describing the run API.
func OpenAPI() *openapi3.T {
	specOnce.Do(func() { spec = buildOpenAPI() })
	return spec
}

func (s *Server) openAPI(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, OpenAPI())
}

func jsonResponse(desc string, schema *openapi3.Schema) *openapi3.Response {
	return openapi3.NewResponse().WithDescription(desc).WithJSONSchema(schema)
}

func errorSchema() *openapi3.Schema {
	return openapi3.NewObjectSchema().
		WithProperty("code", openapi3.NewIntegerSchema()).
		WithProperty("message", openapi3.NewStringSchema())
}

func stepSchema() *openapi3.Schema {
	arg := openapi3.NewObjectSchema().
		WithProperty("key", openapi3.NewStringSchema()).
		WithProperty("type", openapi3.NewStringSchema()).
		WithProperty("value", &openapi3.Schema{Description: "scalar, or a step list when type is subsearch"})
	return openapi3.NewObjectSchema().
		WithProperty("name", openapi3.NewStringSchema()).
		WithProperty("arguments", openapi3.NewObjectSchema().WithAdditionalProperties(openapi3.NewArraySchema().WithItems(arg))).
		WithRequired([]string{"name"})
}

func runResultSchema() *openapi3.Schema {
	runErr := openapi3.NewObjectSchema().
		WithProperty("kind", openapi3.NewStringSchema()).
		WithProperty("step", openapi3.NewIntegerSchema()).
		WithProperty("command", openapi3.NewStringSchema()).
		WithProperty("message", openapi3.NewStringSchema())
	return openapi3.NewObjectSchema().
		WithProperty("id", openapi3.NewStringSchema()).
		WithProperty("state", openapi3.NewStringSchema().WithEnum("Idle", "Running", "Completed", "Failed")).
		WithProperty("trigger", openapi3.NewStringSchema()).
		WithProperty("started_at", openapi3.NewDateTimeSchema()).
		WithProperty("finished_at", openapi3.NewDateTimeSchema()).
		WithProperty("rows", openapi3.NewIntegerSchema()).
		WithProperty("columns", openapi3.NewArraySchema().WithItems(openapi3.NewStringSchema())).
		WithProperty("schema", openapi3.NewStringSchema()).
		WithProperty("preview", openapi3.NewArraySchema().WithItems(openapi3.NewObjectSchema())).
		WithProperty("error", runErr)
}

func runRecordSchema() *openapi3.Schema {
	return openapi3.NewObjectSchema().
		WithProperty("id", openapi3.NewStringSchema()).
		WithProperty("status", openapi3.NewStringSchema().WithEnum("RUNNING", "SUCCESS", "FAILED")).
		WithProperty("trigger", openapi3.NewStringSchema()).
		WithProperty("failed_step", openapi3.NewIntegerSchema()).
		WithProperty("error", openapi3.NewStringSchema()).
		WithProperty("started_at", openapi3.NewDateTimeSchema()).
		WithProperty("finished_at", openapi3.NewDateTimeSchema())
}

func dataOf(items *openapi3.Schema) *openapi3.Schema {
	return openapi3.NewObjectSchema().WithProperty("data", openapi3.NewArraySchema().WithItems(items))
}

func operation(id, summary string) *openapi3.Operation {
	op := openapi3.NewOperation()
	op.OperationID = id
	op.Summary = summary
	return op
}

func buildOpenAPI() *openapi3.T {
	health := operation("healthz", "Liveness probe")
	health.AddResponse(http.StatusOK, jsonResponse("Service is up", openapi3.NewObjectSchema().WithProperty("status", openapi3.NewStringSchema())))

	commands := operation("listCommands", "List registered units")
	commands.AddResponse(http.StatusOK, jsonResponse("Registered units", dataOf(openapi3.NewObjectSchema().
		WithProperty("name", openapi3.NewStringSchema()).
		WithProperty("source", openapi3.NewStringSchema().WithEnum("system", "builtin", "plugin")).
		WithProperty("origin", openapi3.NewStringSchema()).
		WithProperty("syntax", openapi3.NewObjectSchema()))))

	create := operation("createRun", "Execute a pipeline")
	create.RequestBody = &openapi3.RequestBodyRef{Value: openapi3.NewRequestBody().
		WithDescription("Step list, or an object with a steps list").
		WithRequired(true).
		WithJSONSchema(openapi3.NewArraySchema().WithItems(stepSchema()))}
	create.AddResponse(http.StatusOK, jsonResponse("Run completed", runResultSchema()))
	create.AddResponse(http.StatusBadRequest, jsonResponse("Malformed step list", errorSchema()))
	create.AddResponse(http.StatusUnprocessableEntity, jsonResponse("Run failed", runResultSchema()))

	list := operation("listRuns", "List journaled runs, newest first")
	list.AddParameter(openapi3.NewQueryParameter("limit").WithSchema(openapi3.NewIntegerSchema().WithMin(0)))
	list.AddResponse(http.StatusOK, jsonResponse("Runs", dataOf(runRecordSchema())))
	list.AddResponse(http.StatusNotImplemented, jsonResponse("Journal disabled", errorSchema()))

	get := operation("getRun", "Get a journaled run and its steps")
	get.AddParameter(openapi3.NewPathParameter("id").WithSchema(openapi3.NewStringSchema()))
	get.AddResponse(http.StatusOK, jsonResponse("Run", runRecordSchema().
		WithProperty("step_runs", openapi3.NewArraySchema().WithItems(openapi3.NewObjectSchema()))))
	get.AddResponse(http.StatusNotFound, jsonResponse("Unknown run", errorSchema()))
	get.AddResponse(http.StatusNotImplemented, jsonResponse("Journal disabled", errorSchema()))

	return &openapi3.T{
		OpenAPI: "3.0.3",
		Info:    &openapi3.Info{Title: "ppexec run API", Version: Version},
		Paths: openapi3.NewPaths(
			openapi3.WithPath("/healthz", &openapi3.PathItem{Get: health}),
			openapi3.WithPath("/v1/commands", &openapi3.PathItem{Get: commands}),
			openapi3.WithPath("/v1/runs", &openapi3.PathItem{Get: list, Post: create}),
			openapi3.WithPath("/v1/runs/{id}", &openapi3.PathItem{Get: get}),
		),
	}
}
