package app

import (
	"errors"
	"testing"

	"github.com/Sternrassler/vidmeta/internal/config"
	apibackend "github.com/Sternrassler/vidmeta/pkg/backend/api"
	"github.com/Sternrassler/vidmeta/pkg/backend/scrape"
	"github.com/Sternrassler/vidmeta/pkg/dataapi"
)

func TestNewRedisClient(t *testing.T) {
	tests := []struct {
		name     string
		url      string
		wantNil  bool
		wantAddr string
		wantDB   int
		wantErr  bool
	}{
		{name: "empty disables redis", url: "", wantNil: true},
		{name: "bare address", url: "localhost:6379", wantAddr: "localhost:6379"},
		{name: "url with db", url: "redis://cache:6380/2", wantAddr: "cache:6380", wantDB: 2},
		{name: "bad scheme", url: "http://cache:6379", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := NewRedisClient(tt.url)
			if tt.wantErr {
				if err == nil {
					t.Fatal("NewRedisClient() error = nil, want error")
				}
				return
			}
			if err != nil {
				t.Fatalf("NewRedisClient() error = %v", err)
			}
			if tt.wantNil {
				if client != nil {
					t.Errorf("NewRedisClient() = %v, want nil", client)
				}
				return
			}
			defer client.Close()
			if got := client.Options().Addr; got != tt.wantAddr {
				t.Errorf("Addr = %q, want %q", got, tt.wantAddr)
			}
			if got := client.Options().DB; got != tt.wantDB {
				t.Errorf("DB = %d, want %d", got, tt.wantDB)
			}
		})
	}
}

func TestFactories(t *testing.T) {
	cfg := config.Default()

	factories := Factories(cfg, nil, NewQuotaTracker(cfg, nil))
	if len(factories) != 2 {
		t.Fatalf("Factories() returned %d factories, want 2", len(factories))
	}

	b, err := factories[scrape.Name]()
	if err != nil {
		t.Fatalf("scrape factory error = %v", err)
	}
	if b.Name() != scrape.Name {
		t.Errorf("scrape backend Name() = %q", b.Name())
	}

	// Without a key the api backend fails at job start, not at boot.
	if _, err := factories[apibackend.Name](); !errors.Is(err, dataapi.ErrMissingAPIKey) {
		t.Errorf("api factory error = %v, want ErrMissingAPIKey", err)
	}

	cfg.APIKey = "key"
	cfg.APIBaseURL = "http://127.0.0.1:1"
	b, err = Factories(cfg, nil, NewQuotaTracker(cfg, nil))[apibackend.Name]()
	if err != nil {
		t.Fatalf("api factory error = %v", err)
	}
	if b.Name() != apibackend.Name || b.MaxBatch() != dataapi.MaxIDsPerRequest {
		t.Errorf("api backend = %s/%d", b.Name(), b.MaxBatch())
	}
}
