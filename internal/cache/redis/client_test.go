package redis

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestJoinKey(t *testing.T) {
	tests := []struct {
		prefix string
		parts  []string
		want   string
	}{
		{"", []string{"lock", "provision"}, "lock:provision"},
		{"boldengine", []string{"lock", "settle"}, "boldengine:lock:settle"},
		{"boldengine", []string{"events", "", "bet_settled"}, "boldengine:events:bet_settled"},
		{"boldengine", nil, "boldengine"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, joinKey(tt.prefix, tt.parts...))
	}
}

func TestClientKeyUsesPrefix(t *testing.T) {
	c := &Client{prefix: "staging"}
	assert.Equal(t, "staging:lock:provision", c.key("lock", "provision"))
}
