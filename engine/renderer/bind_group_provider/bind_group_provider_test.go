package bind_group_provider

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOwnershipFollowsLastSet(t *testing.T) {
	p := NewBindGroupProvider("skin", WithOwnedBuffer(0, nil), WithBuffer(1, nil))
	assert.Equal(t, "skin", p.Label())
	assert.True(t, p.Owns(0))
	assert.False(t, p.Owns(1))

	p.SetBuffer(0, nil)
	assert.False(t, p.Owns(0))
	p.SetOwnedBuffer(1, nil)
	assert.True(t, p.Owns(1))
	assert.Len(t, p.Buffers(), 2)
}

func TestReleaseClearsBindings(t *testing.T) {
	p := NewBindGroupProvider("skin", WithOwnedBuffer(0, nil), WithBuffer(3, nil))
	p.Release()
	assert.Empty(t, p.Buffers())
	assert.False(t, p.Owns(0))
	assert.Nil(t, p.BindGroup())
	assert.Nil(t, p.Buffer(3))
}
