package security

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/muxos/muxos-helper/pkg/model"
)

func TestRegistryCoversEveryFeature(t *testing.T) {
	for _, f := range model.Features {
		assert.NotNil(t, registry[f].enable, f.String())
		assert.NotNil(t, registry[f].disable, f.String())
	}
}
