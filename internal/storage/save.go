package storage

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"

	"github.com/pagemill/pagemill/internal/pipeline"
)

// Artifact is a persisted output image plus its retrievable locator.
type Artifact struct {
	Name    string `json:"name"`
	Locator string `json:"locator"`
}

// SavePages persists one PNG artifact per corrected page, in ascending
// page index, named <base>_page_<n>.png. All pages are encoded before the
// first write, and a failure or cancellation between writes retracts the
// pages already written, so an errored save never leaves a partial page
// set visible.
func SavePages(ctx context.Context, store Store, base string, pages []pipeline.Page) ([]Artifact, error) {
	encoded := make([][]byte, len(pages))
	for i, page := range pages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := encodePNG(page.Image)
		if err != nil {
			return nil, fmt.Errorf("encode page %d: %w", page.Index, err)
		}
		encoded[i] = data
	}

	artifacts := make([]Artifact, 0, len(pages))
	for i, page := range pages {
		if err := ctx.Err(); err != nil {
			retract(store, artifacts)
			return nil, err
		}
		name := PageArtifactName(base, page.Index)
		locator, err := store.Write(name, encoded[i])
		if err != nil {
			retract(store, artifacts)
			return nil, fmt.Errorf("page %d: %w", page.Index, err)
		}
		artifacts = append(artifacts, Artifact{Name: name, Locator: locator})
	}
	return artifacts, nil
}

// retract rolls back artifacts already written when a multi-page save
// cannot complete, so a failed request never leaves a partial page set
// resolvable. Best effort: a store without Remove keeps what it has.
func retract(store Store, artifacts []Artifact) {
	remover, ok := store.(Remover)
	if !ok {
		return
	}
	for _, a := range artifacts {
		_ = remover.Remove(a.Name)
	}
}

// SaveStitched persists the stitched composite as <base>_stitched.png.
func SaveStitched(ctx context.Context, store Store, base string, composite image.Image) (Artifact, error) {
	if err := ctx.Err(); err != nil {
		return Artifact{}, err
	}
	data, err := encodePNG(composite)
	if err != nil {
		return Artifact{}, fmt.Errorf("encode stitched image: %w", err)
	}
	name := StitchedArtifactName(base)
	locator, err := store.Write(name, data)
	if err != nil {
		return Artifact{}, err
	}
	return Artifact{Name: name, Locator: locator}, nil
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
