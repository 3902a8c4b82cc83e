package discovery

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInstanceKey(t *testing.T) {
	in := &Instance{Name: "storefront", Host: "10.0.0.4", Port: 8000}
	assert.Equal(t, "/services/storefront/10.0.0.4:8000", instanceKey("/services/", in))
	assert.Equal(t, "/services/storefront/", servicePrefix("/services/", "storefront"))

	v6 := &Instance{Name: "storefront", Host: "::1", Port: 8000}
	assert.Equal(t, "[::1]:8000", v6.Addr())
}

func TestParseInstance(t *testing.T) {
	in, err := parseInstance("storefront", "10.0.0.4:8000")
	require.NoError(t, err)
	assert.Equal(t, &Instance{Name: "storefront", Host: "10.0.0.4", Port: 8000}, in)

	_, err = parseInstance("storefront", "10.0.0.4")
	assert.Error(t, err)

	_, err = parseInstance("storefront", "host:http")
	assert.Error(t, err)
}
