package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitFeatures(t *testing.T) {
	assert.Equal(t, []string{"orders", "dashboard"}, splitFeatures(" orders, ,dashboard,"))
	assert.Nil(t, splitFeatures(""))
}
