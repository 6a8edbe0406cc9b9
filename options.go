package deferred

import (
	"github.com/gekko3d/deferred/rt/material"
	"github.com/gekko3d/deferred/rt/state"
)

type Option func(*Renderer)

// WithLogger installs l. A nil logger keeps the nop default.
func WithLogger(l Logger) Option {
	return func(r *Renderer) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithTraversal replaces the traverser picked from Config.TraversalWorkers.
func WithTraversal(t state.Traverser) Option {
	return func(r *Renderer) {
		if t != nil {
			r.traverser = t
		}
	}
}

// WithFactory supplies the material factory. The renderer hooks its context
// into the factory's program releases, so one factory serves one renderer.
func WithFactory(f *material.Factory) Option {
	return func(r *Renderer) {
		if f != nil {
			r.factory = f
		}
	}
}
