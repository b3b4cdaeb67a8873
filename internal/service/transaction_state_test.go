package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		current string
		next    string
		want    bool
	}{
		{"PENDING", "APPROVED", true},
		{"PENDING", "DENIED", true},
		{"PENDING", "FROZEN", true},
		{"PENDING", "COMPLETED", true},
		{"FROZEN", "APPROVED", true},
		{"FROZEN", "DENIED", true},
		{"FROZEN", "PENDING", true},
		{"APPROVED", "REVERSED", true},
		{"COMPLETED", "REVERSED", true},
		{"DENIED", "APPROVED", false},
		{"DENIED", "PENDING", false},
		{"REVERSED", "APPROVED", false},
		{"APPROVED", "DENIED", false},
		{"APPROVED", "PENDING", false},
		{"PENDING", "REVERSED", false},
		{"UNKNOWN", "APPROVED", false},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, canTransition(tc.current, tc.next), "%s -> %s", tc.current, tc.next)
	}
}

func TestCanTransitionNormalizesInput(t *testing.T) {
	assert.True(t, canTransition(" pending ", "approved"))
	assert.True(t, canTransition("Frozen", "Denied"))
	assert.False(t, canTransition(" denied", "approved "))
}
