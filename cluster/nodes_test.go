package cluster

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseNodes(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{"empty", "", nil},
		{"whitespace only", "  ", nil},
		{"single", "192.168.1.1", []string{"192.168.1.1"}},
		{"spaces around entries", "a, b ,c", []string{"a", "b", "c"}},
		{"empty entries dropped", "a,,b,", []string{"a", "b"}},
		{"hostnames", "head.local, worker1.local", []string{"head.local", "worker1.local"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseNodes(tt.input))
		})
	}
}

func TestWorkerNodes(t *testing.T) {
	assert.Nil(t, WorkerNodes(nil))
	assert.Nil(t, WorkerNodes([]string{"h"}))
	assert.Equal(t, []string{"w1", "w2"}, WorkerNodes([]string{"h", "w1", "w2"}))
}

func TestIsCluster(t *testing.T) {
	assert.False(t, IsCluster(nil))
	assert.False(t, IsCluster([]string{"h"}))
	assert.True(t, IsCluster([]string{"h", "w1"}))
}
