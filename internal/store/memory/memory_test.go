package memory

import (
	"testing"

	"github.com/btroidl/ivre/internal/logging"
	"github.com/btroidl/ivre/internal/schema"
	"github.com/btroidl/ivre/internal/store"
	"github.com/btroidl/ivre/internal/store/storetest"
)

func TestConformance(t *testing.T) {
	storetest.TestStore(t, func(t *testing.T) store.Store {
		return New(schema.NewRegistry("tags"), logging.Discard())
	})
}

func TestFactory(t *testing.T) {
	f := NewFactory()
	s, err := f(nil, schema.NewRegistry(), logging.Discard())
	if err != nil {
		t.Fatalf("factory: %v", err)
	}
	if s == nil {
		t.Fatal("factory returned nil store")
	}
	if err := s.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}
