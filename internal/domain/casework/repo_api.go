package casework

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/carecase/console/internal/action"
	"github.com/carecase/console/internal/form"
	"github.com/carecase/console/internal/listing"
	"github.com/carecase/console/internal/platform/apiclient"
	"github.com/carecase/console/internal/platform/blobstore"
)

type apiRepo[T listing.Record] struct {
	client  *apiclient.Client
	feature *Feature[T]
	blobs   blobstore.BlobStore
	logger  zerolog.Logger
}

// NewAPIRepository returns a Repository backed by the remote REST API. Staged
// attachments are read from blobs when a submission is sent.
func NewAPIRepository[T listing.Record](client *apiclient.Client, f *Feature[T], blobs blobstore.BlobStore, logger zerolog.Logger) Repository[T] {
	return &apiRepo[T]{
		client:  client,
		feature: f,
		blobs:   blobs,
		logger:  logger.With().Str("feature", f.Key).Logger(),
	}
}

func (r *apiRepo[T]) List(ctx context.Context) ([]T, error) {
	var out []T
	if err := r.client.List(ctx, r.feature.Path, nil, &out); err != nil {
		return nil, fmt.Errorf("list %s: %w", r.feature.Key, err)
	}
	return out, nil
}

func (r *apiRepo[T]) Get(ctx context.Context, id string) (T, error) {
	var out T
	if err := r.client.Get(ctx, r.feature.RecordPath(id), &out); err != nil {
		return out, fmt.Errorf("get %s %s: %w", r.feature.Key, id, err)
	}
	return out, nil
}

func (r *apiRepo[T]) Mutate(ctx context.Context, m action.Mutation) error {
	switch m.Effect {
	case action.EffectPatch:
		var body any = m.Payload
		if r.feature.PatchBody != nil {
			body = r.feature.PatchBody(m.Payload)
		}
		return r.client.Patch(ctx, r.feature.RecordPath(m.RecordID), body, nil)
	case action.EffectDelete:
		return r.client.Delete(ctx, r.feature.RecordPath(m.RecordID))
	case action.EffectSubmit:
		sub, ok := m.Submission.(form.Submission)
		if !ok {
			return fmt.Errorf("submit %s: missing submission", r.feature.Key)
		}
		return r.submit(ctx, sub)
	default:
		return fmt.Errorf("unsupported effect %q", m.Effect)
	}
}

// submit posts the form fields and every staged attachment as one multipart
// request. Parts are named files.<key>. A form without attachments is sent as
// JSON.
func (r *apiRepo[T]) submit(ctx context.Context, sub form.Submission) error {
	if len(sub.Attachments) == 0 {
		return r.client.Post(ctx, r.feature.Path, sub.Fields, nil)
	}

	var parts []apiclient.FilePart
	var open []io.Closer
	defer func() {
		for _, c := range open {
			c.Close()
		}
	}()

	for _, a := range sub.Attachments {
		if r.blobs == nil {
			return fmt.Errorf("attachment %s: no staging store", a.Key)
		}
		rc, meta, err := r.blobs.Download(ctx, a.BlobID)
		if err != nil {
			return fmt.Errorf("attachment %s: %w", a.Key, err)
		}
		open = append(open, rc)
		parts = append(parts, apiclient.FilePart{
			Field:       form.PartName(a.Key),
			FileName:    meta.FileName,
			ContentType: meta.ContentType,
			Content:     rc,
		})
	}

	if err := r.client.Submit(ctx, http.MethodPost, r.feature.Path, sub.Fields, parts, nil); err != nil {
		return err
	}

	for _, a := range sub.Attachments {
		if err := r.blobs.Delete(ctx, a.BlobID); err != nil {
			r.logger.Warn().Err(err).Str("blob_id", a.BlobID).Msg("failed to discard staged attachment")
		}
	}
	return nil
}
