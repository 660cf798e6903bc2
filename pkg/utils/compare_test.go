package utils

import (
	"testing"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
)

func TestStreamConfigEqual(t *testing.T) {
	base := nats.StreamConfig{
		Name:      "bot-events",
		Retention: nats.LimitsPolicy,
		MaxMsgs:   1000,
		MaxAge:    3600,
		Storage:   nats.FileStorage,
		Subjects:  []string{"v1.bots.events.*"},
	}

	tests := []struct {
		name     string
		mutate   func(c *nats.StreamConfig)
		expected bool
	}{
		{name: "identical configs", mutate: func(c *nats.StreamConfig) {}, expected: true},
		{name: "different name", mutate: func(c *nats.StreamConfig) { c.Name = "other" }, expected: false},
		{name: "different retention", mutate: func(c *nats.StreamConfig) { c.Retention = nats.InterestPolicy }, expected: false},
		{name: "different max msgs", mutate: func(c *nats.StreamConfig) { c.MaxMsgs = 2000 }, expected: false},
		{name: "different max age", mutate: func(c *nats.StreamConfig) { c.MaxAge = 7200 }, expected: false},
		{name: "different storage", mutate: func(c *nats.StreamConfig) { c.Storage = nats.MemoryStorage }, expected: false},
		{name: "different subjects", mutate: func(c *nats.StreamConfig) { c.Subjects = append(c.Subjects, "v1.bots.audit.*") }, expected: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			other := base
			other.Subjects = append([]string(nil), base.Subjects...)
			tc.mutate(&other)
			assert.Equal(t, tc.expected, StreamConfigEqual(base, other))
		})
	}
}
