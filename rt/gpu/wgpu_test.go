package gpu

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/gekko3d/deferred/rt/core"
)

func TestGeometryUsersKeepSharedMeshes(t *testing.T) {
	shared := core.NewBoxGeometry(1, 1, 1)
	own := core.NewPlaneGeometry(1, 1)
	a, b := uuid.New(), uuid.New()

	users := make(geometryUsers)
	users.add(shared, a)
	users.add(shared, b)
	users.add(own, a)
	users.add(own, a)

	assert.Equal(t, []*core.Geometry{own}, users.drop(a))
	assert.Contains(t, users, shared)
	assert.Empty(t, users.drop(a))
	assert.Equal(t, []*core.Geometry{shared}, users.drop(b))
	assert.Empty(t, users)
}
