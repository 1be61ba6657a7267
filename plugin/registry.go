package plugin

import (
	"sync"

	"github.com/Osman-OO/pipe/log"
	"github.com/pkg/errors"
)

// Spec describes one configured plugin before instantiation.
type Spec struct {
	Role    Role
	Name    string
	Options Options
}

// Factory builds a plugin instance from merged options. Factories should
// validate options but defer resource acquisition to Start where possible.
type Factory func(opts Options, l log.Logger) (Plugin, error)

// Registration binds a Factory with the plugin-declared default options.
type Registration struct {
	Factory  Factory
	Defaults Options
}

// Registry maps (role, name) pairs to plugin Registrations.
type Registry struct {
	mu    sync.RWMutex
	table map[Role]map[string]Registration
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		table: make(map[Role]map[string]Registration),
	}
}

// Register adds a Registration under (role, name). Registering the same
// pair twice is a programming error and returns an error.
func (r *Registry) Register(role Role, name string, reg Registration) error {
	if reg.Factory == nil {
		return errors.Errorf("plugin %s/%s registered without a factory", role, name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	byName, there := r.table[role]
	if !there {
		byName = make(map[string]Registration)
		r.table[role] = byName
	}
	if _, there := byName[name]; there {
		return errors.Errorf("plugin %s/%s registered twice", role, name)
	}
	byName[name] = reg
	return nil
}

// Names returns the registered plugin names for a role, for diagnostics.
func (r *Registry) Names(role Role) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var names []string
	for name := range r.table[role] {
		names = append(names, name)
	}
	return names
}

// Resolve looks up (spec.Role, spec.Name), merges plugin defaults with the
// spec options (spec wins), instantiates the plugin and runs its Start hook.
// If Start fails the instance is stopped again so partially acquired
// resources are released.
func (r *Registry) Resolve(spec Spec, l log.Logger) (Plugin, error) {
	r.mu.RLock()
	reg, there := r.table[spec.Role][spec.Name]
	r.mu.RUnlock()
	if !there {
		return nil, errors.Wrapf(ErrUnknownPlugin, "%s/%s", spec.Role, spec.Name)
	}
	if l == nil {
		l = log.NewNoop()
	}
	opts := reg.Defaults.Merge(spec.Options)
	p, err := reg.Factory(opts, l)
	if err != nil {
		return nil, errors.Wrapf(err, "creating plugin %s/%s", spec.Role, spec.Name)
	}
	if err := p.Start(); err != nil {
		p.Stop()
		return nil, errors.Wrapf(err, "starting plugin %s/%s", spec.Role, spec.Name)
	}
	return p, nil
}

// ResolveInput resolves spec under the input role.
func (r *Registry) ResolveInput(spec Spec, l log.Logger) (Input, error) {
	spec.Role = RoleInput
	p, err := r.Resolve(spec, l)
	if err != nil {
		return nil, err
	}
	in, ok := p.(Input)
	if !ok {
		p.Stop()
		return nil, errors.Errorf("plugin %s does not implement the input role", spec.Name)
	}
	return in, nil
}

// ResolveDecoder resolves spec under the decode role.
func (r *Registry) ResolveDecoder(spec Spec, l log.Logger) (Decoder, error) {
	spec.Role = RoleDecode
	p, err := r.Resolve(spec, l)
	if err != nil {
		return nil, err
	}
	dec, ok := p.(Decoder)
	if !ok {
		p.Stop()
		return nil, errors.Errorf("plugin %s does not implement the decode role", spec.Name)
	}
	return dec, nil
}

// ResolveOutput resolves spec under the output role.
func (r *Registry) ResolveOutput(spec Spec, l log.Logger) (Output, error) {
	spec.Role = RoleOutput
	p, err := r.Resolve(spec, l)
	if err != nil {
		return nil, err
	}
	out, ok := p.(Output)
	if !ok {
		p.Stop()
		return nil, errors.Errorf("plugin %s does not implement the output role", spec.Name)
	}
	return out, nil
}
