package provider

import (
	"context"
	"testing"

	"github.com/everstacklabs/modelwatch/internal/config"
	"github.com/everstacklabs/modelwatch/internal/httpclient"
)

type fakeFetcher struct{ id string }

func (f *fakeFetcher) ProviderID() string { return f.id }

func (f *fakeFetcher) Fetch(context.Context) ([]byte, error) { return nil, nil }

func TestRegistry(t *testing.T) {
	Register("fake", func(spec config.ProviderSpec, _ *httpclient.Client) (Fetcher, error) {
		return &fakeFetcher{id: spec.ID}, nil
	})

	f, err := New(config.ProviderSpec{ID: "test-model", Kind: "fake"}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if f.ProviderID() != "test-model" {
		t.Errorf("ProviderID = %q, want test-model", f.ProviderID())
	}

	if _, err := New(config.ProviderSpec{ID: "x", Kind: "nope"}, nil); err == nil {
		t.Error("expected error for unregistered kind")
	}

	found := false
	for _, k := range Kinds() {
		if k == "fake" {
			found = true
		}
	}
	if !found {
		t.Errorf("Kinds() = %v, missing fake", Kinds())
	}
}
