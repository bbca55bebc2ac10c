package update_rate

// RegistryBuilderOption is a functional option for configuring a Registry via NewRegistry.
type RegistryBuilderOption func(*registry)

// WithSettings is an option builder that replaces the registry's policy.
//
// Parameters:
//   - settings: the policy shared by every group
//
// Returns:
//   - RegistryBuilderOption: a function that applies the settings option to a registry
func WithSettings(settings Settings) RegistryBuilderOption {
	return func(r *registry) {
		*r.settings = settings
	}
}

// WithInitialShift is an option builder that sets the stagger phase given to the first group.
// Later groups receive consecutive phases.
//
// Parameters:
//   - shift: the first stagger phase
//
// Returns:
//   - RegistryBuilderOption: a function that applies the shift option to a registry
func WithInitialShift(shift uint8) RegistryBuilderOption {
	return func(r *registry) {
		r.nextShift = shift
	}
}
