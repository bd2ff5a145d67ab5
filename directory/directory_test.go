package directory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticDirectoryExists(t *testing.T) {
	d := StaticDirectory{"alice@example.com": true}

	exists, err := d.Exists(context.Background(), "alice@example.com")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = d.Exists(context.Background(), "bob@example.com")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestStaticDirectoryNilMap(t *testing.T) {
	var d StaticDirectory

	exists, err := d.Exists(context.Background(), "alice@example.com")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestNewClientHonorsEndpointOverride(t *testing.T) {
	client, err := NewClient(context.Background(), ClientConfig{
		Region:      "us-east-1",
		EndpointURL: "http://localhost:4566",
		AccessKeyID: "test",
		SecretKey:   "test",
	})
	require.NoError(t, err)
	assert.NotNil(t, client)
}
