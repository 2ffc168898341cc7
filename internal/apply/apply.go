// Package apply pushes compiled artifacts to the search cluster: lifecycle
// policy first, then the ingest pipeline, then the index itself wired to
// both. Apply is optional; the engine never requires a live cluster.
package apply

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	elasticsearch "github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/mapforge-io/mapforge/internal/logging"
	"github.com/mapforge-io/mapforge/internal/metrics"
	"github.com/mapforge-io/mapforge/internal/schema"
)

// Applier applies artifacts to one cluster.
type Applier struct {
	client  *elasticsearch.Client
	metrics *metrics.ApplyMetrics
	logger  *logging.Logger
}

// New creates an Applier. Metrics and logger may be nil.
func New(client *elasticsearch.Client, m *metrics.ApplyMetrics, logger *logging.Logger) *Applier {
	if logger == nil {
		logger = logging.DefaultLogger()
	}
	return &Applier{client: client, metrics: m, logger: logger}
}

// Apply pushes the lifecycle policy, the ingest pipeline and the index in
// order, stopping at the first failure.
func (a *Applier) Apply(ctx context.Context, index string, art *schema.Artifacts) error {
	if err := a.applyILM(ctx, art); err != nil {
		return err
	}
	if err := a.applyPipeline(ctx, art); err != nil {
		return err
	}
	return a.applyIndex(ctx, index, art)
}

func (a *Applier) applyILM(ctx context.Context, art *schema.Artifacts) error {
	body, err := encode(map[string]any{"policy": art.ILMPolicy.Policy})
	if err != nil {
		return err
	}
	req := esapi.ILMPutLifecycleRequest{Policy: art.ILMPolicy.Name, Body: body}
	return a.do(ctx, metrics.ResourceILM, art.ILMPolicy.Name, req)
}

func (a *Applier) applyPipeline(ctx context.Context, art *schema.Artifacts) error {
	body, err := encode(art.IngestPipeline.Body)
	if err != nil {
		return err
	}
	req := esapi.IngestPutPipelineRequest{PipelineID: art.IngestPipeline.Name, Body: body}
	return a.do(ctx, metrics.ResourcePipeline, art.IngestPipeline.Name, req)
}

func (a *Applier) applyIndex(ctx context.Context, index string, art *schema.Artifacts) error {
	settings := map[string]any{}
	for k, v := range art.Settings {
		settings[k] = v
	}
	settings["index.lifecycle.name"] = art.ILMPolicy.Name
	settings["index.default_pipeline"] = art.IngestPipeline.Name

	body, err := encode(map[string]any{
		"settings": settings,
		"mappings": art.Mappings,
	})
	if err != nil {
		return err
	}
	req := esapi.IndicesCreateRequest{Index: index, Body: body}
	return a.do(ctx, metrics.ResourceIndex, index, req)
}

// doer is the common surface of the esapi request types.
type doer interface {
	Do(ctx context.Context, transport esapi.Transport) (*esapi.Response, error)
}

func (a *Applier) do(ctx context.Context, resource, name string, req doer) error {
	res, err := req.Do(ctx, a.client)
	if err != nil {
		a.metrics.Fail(resource)
		return fmt.Errorf("apply: %s %q: %w", resource, name, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		a.metrics.Fail(resource)
		return fmt.Errorf("apply: %s %q: %s", resource, name, res.String())
	}
	a.metrics.Success(resource)
	a.logger.Infof("artifact applied", map[string]any{"resource": resource, "name": name})
	return nil
}

func encode(v any) (*bytes.Reader, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("apply: encode body: %w", err)
	}
	return bytes.NewReader(b), nil
}
