package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"

	"KnowledgeSync/internal/config"
)

func TestWarnEphemeralStore(t *testing.T) {
	tests := []struct {
		store string
		warn  bool
	}{
		{store: "", warn: true},
		{store: config.StoreMemory, warn: true},
		{store: config.StoreRedis, warn: false},
		{store: config.StorePostgres, warn: false},
	}

	for _, tt := range tests {
		t.Run(tt.store, func(t *testing.T) {
			var out bytes.Buffer
			warnEphemeralStore(&out, config.Config{Session: config.SessionConfig{Store: tt.store}})
			assert.Equal(t, tt.warn, bytes.Contains(out.Bytes(), []byte(`session.store is "memory"`)))
		})
	}
}
